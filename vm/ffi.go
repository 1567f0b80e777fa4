package vm

import "sync"

// Foreign function loading and marshalling are explicitly out of scope for
// this engine (spec.md §1's non-goals list them as "external collaborators
// with specified interfaces only"). This file is that interface: it defines
// the boundary a host program crosses to supply a foreign symbol, and the
// registry the FFI.* natives consult, but it never dlopens a shared library
// or converts a C calling convention itself. A host that wants real .so
// loading builds it with cgo (the way _examples/daios-ai-msg/ffi.go does for
// its own language) and calls RegisterForeignLibrary before running a
// snapshot that references it.

// ForeignFunction is a foreign symbol already marshalled to and from this
// engine's Value representation by whoever registers it. Returning an error
// terminates the call with FailureWrongArgumentType; the function itself
// decides how to interpret args (arity checking is its own responsibility,
// mirroring how a native method behaves).
type ForeignFunction func(args []Value) (Value, error)

// ForeignLibrary resolves symbol names to ForeignFunctions within one
// logical shared library. A host registers one ForeignLibrary per library
// name a program passes to the FFI.lookup/FFI.call natives.
type ForeignLibrary interface {
	Lookup(symbol string) (ForeignFunction, bool)
}

// StaticForeignLibrary is the simplest ForeignLibrary: a fixed map handed
// to RegisterForeignLibrary by a host that already knows every symbol a
// snapshot will ask for, with no dynamic loading involved at all.
type StaticForeignLibrary map[string]ForeignFunction

func (l StaticForeignLibrary) Lookup(symbol string) (ForeignFunction, bool) {
	fn, ok := l[symbol]
	return fn, ok
}

// ForeignRegistry is the process-independent table of libraries a host has
// registered, consulted by the FFI.* natives. One registry is shared by
// every process under a Program, the same way NativeRegistry is shared.
type ForeignRegistry struct {
	mu   sync.RWMutex
	libs map[string]ForeignLibrary
}

// NewForeignRegistry returns an empty registry; nothing is resolvable until
// a host calls Register.
func NewForeignRegistry() *ForeignRegistry {
	return &ForeignRegistry{libs: make(map[string]ForeignLibrary)}
}

// Register binds name (matching the library-name argument of a program's
// FFI.lookup/FFI.call) to lib.
// Registering the same name twice replaces the previous binding.
func (fr *ForeignRegistry) Register(name string, lib ForeignLibrary) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	fr.libs[name] = lib
}

func (fr *ForeignRegistry) lookup(libName, symbol string) (ForeignFunction, bool) {
	fr.mu.RLock()
	lib, ok := fr.libs[libName]
	fr.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return lib.Lookup(symbol)
}

// RegisterForeignLibrary is the embedding entry point: a host calls this on
// the Engine before RunSnapshot/RunSnapshotFromFile so a program's
// FFI.lookup/FFI.call natives can resolve name. Environment.
// AddDefaultSharedLibrary only records a search-path hint for a host's own
// loader to consult (env.go); it never triggers a load on this engine's
// behalf.
func (e *Engine) RegisterForeignLibrary(name string, lib ForeignLibrary) {
	e.natives.Foreign().Register(name, lib)
}

// registerFFINatives installs the FFI.* natives against a Program's
// ForeignRegistry. Grounded on natives_process.go's argument-validation
// style: every argument is checked before any foreign call is attempted.
// A missing library or symbol never panics: FFI.lookup answers False, and
// FFI.call fails the same way a wrong-typed native argument does.
func registerFFINatives(r *NativeRegistry, foreign *ForeignRegistry) {
	r.Register("FFI.lookup", func(p *Process, receiver Value, args []Value) Value {
		libName, ok := asGoString(argOr(args, 0))
		if !ok {
			return NewFailure(FailureWrongArgumentType)
		}
		symbol, ok := asGoString(argOr(args, 1))
		if !ok {
			return NewFailure(FailureWrongArgumentType)
		}
		if _, ok := foreign.lookup(libName, symbol); !ok {
			return False
		}
		return True
	})

	r.Register("FFI.call", func(p *Process, receiver Value, args []Value) Value {
		libName, ok := asGoString(argOr(args, 0))
		if !ok {
			return NewFailure(FailureWrongArgumentType)
		}
		symbol, ok := asGoString(argOr(args, 1))
		if !ok {
			return NewFailure(FailureWrongArgumentType)
		}
		fn, ok := foreign.lookup(libName, symbol)
		if !ok {
			return NewFailure(FailureWrongArgumentType)
		}
		callArgs := args[2:]
		result, err := fn(callArgs)
		if err != nil {
			return NewFailure(FailureWrongArgumentType)
		}
		return result
	})
}

// asGoString extracts a Go string from a String heap value, used by the
// FFI natives to turn a program-supplied library/symbol name into
// something a ForeignRegistry lookup can key on.
func asGoString(v Value) (string, bool) {
	if !v.IsHeapObject() {
		return "", false
	}
	h := AsHeapObject(v)
	if h.Class() == nil || h.Class().Format.Type != InstanceTypeString {
		return "", false
	}
	return (*String)(v.HeapObjectPointer()).Go(), true
}
