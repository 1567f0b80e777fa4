package vm

// Method is anything installable in a VTable slot: a compiled user method,
// a native, or the noSuchMethod trampoline. Grounded on the teacher's
// vm/method.go Method interface, simplified to the two concrete
// implementations this engine needs (compiled bytecode methods dispatch
// through the interpreter directly and never call Invoke).
type Method interface {
	// Invoke runs a native method. Compiled methods panic here; the
	// interpreter recognizes *CompiledMethod via a type switch before
	// ever calling Invoke, entering a new call frame instead.
	Invoke(p *Process, receiver Value, args []Value) Value
}

// CompiledMethod binds a Function to the (class, selector) it was compiled
// for. The interpreter reads Body's bytecode directly; Invoke exists only
// to satisfy Method so a CompiledMethod can live in a VTable slot alongside
// natives.
type CompiledMethod struct {
	Selector Selector
	Class    *Class
	Body     *Function
}

// Invoke is never called by the interpreter; present only to satisfy
// Method so *CompiledMethod can be stored in a vtable slot.
func (m *CompiledMethod) Invoke(p *Process, receiver Value, args []Value) Value {
	panic("vm: CompiledMethod.Invoke called directly; the interpreter must push a call frame instead")
}

// NativeFunc is the Go implementation of a built-in method (natives.go and
// friends). It returns either a user-visible Value or a tagged Failure.
type NativeFunc func(p *Process, receiver Value, args []Value) Value

// NativeMethod wraps a NativeFunc so it can be installed in a VTable.
type NativeMethod struct {
	Name string
	Fn   NativeFunc
}

func (m *NativeMethod) Invoke(p *Process, receiver Value, args []Value) Value {
	return m.Fn(p, receiver, args)
}

// NewNativeMethod builds a NativeMethod, the constructor used throughout
// natives.go and natives_*.go.
func NewNativeMethod(name string, fn NativeFunc) *NativeMethod {
	return &NativeMethod{Name: name, Fn: fn}
}

// noSuchMethodTrampoline is installed as ProgramVTable entry 0 and as the
// fallback of the primary cache's slow path. It does not itself perform the
// language-level "noSuchMethod" send — that rerouting is handled by
// invokeNoSuchMethod (exception.go), which dispatch calls on an empty
// cache entry — this trampoline exists purely so a VTableEntry always
// has a non-nil Target to compare against in tests and inline-cache misses.
type trampolineMethod struct{}

func (trampolineMethod) Invoke(p *Process, receiver Value, args []Value) Value {
	panic("vm: noSuchMethod trampoline invoked directly; dispatch must reroute via invokeNoSuchMethod")
}

var noSuchMethodTrampoline Method = trampolineMethod{}
