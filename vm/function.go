package vm

// Function is the heap object layout backing user-defined code: a fixed
// arity, a bytecode stream, and a literal pool of constants referenced by
// the LOAD_LITERAL/LOAD_CONST bytecode group. Functions are allocated in
// the program's immortal heap by the snapshot reader and never mutated
// except by the debug session's change-method-literal opcode.
type Function struct {
	HeapObject

	Name     string
	Arity    int
	MaxStack int // stack slots reserved by stack-overflow-check(n) at entry
	Bytecode []byte
	Literals []Value

	// CallSites holds the resolved Selector for each invoke-method /
	// invoke-method-vtable call site, indexed by that instruction's u16
	// operand. Populated by the program-folding pass (program.go) from the
	// same compiled-method records that populate Program.VTable, so a call
	// site's Selector always carries the correct flat-vtable Offset.
	CallSites []Selector

	// FastDispatch holds the per-call-site range table for each
	// invoke-method-fast instruction, indexed the same way as CallSites.
	FastDispatch []*FastDispatchTable

	// FrameDescriptor carries the catch-block metadata the throw semantics
	// of spec.md §4.1 need to walk without re-decoding bytecode: for each
	// try region, the bytecode range it covers, the exception class it
	// catches (nil = catches everything), the handler entry point, and the
	// operand-stack depth to unwind to. Encoded at compile time at each
	// function's method-end, per spec.
	Catches []CatchRegion
}

// CatchRegion describes one exception handler installed within a Function.
type CatchRegion struct {
	StartPC     int
	EndPC       int
	Catches     *Class // nil catches any user exception
	HandlerPC   int
	UnwindDepth int
}

// FindCatch returns the innermost CatchRegion covering pc that accepts an
// exception of class excClass, or nil if none does. Regions are searched
// from the end so a nested try is found before its enclosing one, matching
// how the compiler emits them (innermost last would also work; this
// matches the source VM's stack_walker.cc top-down frame walk).
func (f *Function) FindCatch(pc int, excClass *Class) *CatchRegion {
	for i := len(f.Catches) - 1; i >= 0; i-- {
		r := &f.Catches[i]
		if pc < r.StartPC || pc >= r.EndPC {
			continue
		}
		if r.Catches == nil || (excClass != nil && excClass.IsSubclassOf(r.Catches)) {
			return r
		}
	}
	return nil
}
