package vm

// NativeRegistry builds the flat Program.Natives table invoke-native and
// invoke-native-yield index into. Grounded on spec.md §4.1's native-table
// description: a fixed, snapshot-independent table the reader looks names
// up against while materializing each invoke-native call site's u16
// operand, kept as a registry here rather than assigned by hand so adding
// a native is a one-line Register call instead of a renumbering exercise.
type NativeRegistry struct {
	byName map[string]int
	table  []Method

	// foreign backs the FFI.* natives (ffi.go); Engine.RegisterForeignLibrary
	// populates the same instance returned by Foreign() before a snapshot
	// referencing it is run.
	foreign *ForeignRegistry
}

// NewNativeRegistry builds the registry with every native this engine
// ships, in the order natives_object.go / natives_array.go /
// natives_string.go / natives_numeric.go / natives_process.go register
// them. Index 0 is never
// assigned to a real native so a zeroed (unresolved) invoke-native operand
// fails loudly instead of silently calling the wrong native.
func NewNativeRegistry() *NativeRegistry {
	r := &NativeRegistry{byName: make(map[string]int), foreign: NewForeignRegistry()}
	r.table = append(r.table, &NativeMethod{Name: "<unresolved>", Fn: func(p *Process, receiver Value, args []Value) Value {
		return NewFailure(FailureWrongArgumentType)
	}})
	registerObjectNatives(r)
	registerArrayNatives(r)
	registerStringNatives(r)
	registerNumericNatives(r)
	registerProcessNatives(r)
	registerFFINatives(r, r.foreign)
	return r
}

// Foreign returns the registry's ForeignRegistry, the handle
// Engine.RegisterForeignLibrary populates on behalf of the FFI.* natives.
func (r *NativeRegistry) Foreign() *ForeignRegistry { return r.foreign }

// Register installs fn under name, returning its table index for the
// snapshot reader to record against call sites that reference name.
func (r *NativeRegistry) Register(name string, fn NativeFunc) int {
	idx := len(r.table)
	r.table = append(r.table, &NativeMethod{Name: name, Fn: fn})
	r.byName[name] = idx
	return idx
}

// Index looks up a previously registered native by name, used by the
// snapshot reader to resolve an invoke-native call site.
func (r *NativeRegistry) Index(name string) (int, bool) {
	idx, ok := r.byName[name]
	return idx, ok
}

// Table returns the flat slice to install as Program.Natives.
func (r *NativeRegistry) Table() []Method { return r.table }

// argOr returns args[i] if present, else Nil — used by natives with
// optional trailing arguments.
func argOr(args []Value, i int) Value {
	if i < 0 || i >= len(args) {
		return Nil
	}
	return args[i]
}
