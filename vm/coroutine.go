package vm

// CallFrame is one activation record of the interpreter's own call stack:
// the function being executed, its current program counter, the index into
// CoroutineStack.slots where this activation's parameters/locals begin, and
// the receiver (kept off the operand stack so load-field never has to walk
// past an unknown number of locals to find it).
//
// This engine keeps one flat operand+frame Stack per coroutine rather than
// recursing through Go's own call stack (spec.md §9's design note: "the
// interpreter owns stack layout"), so CallFrame lives on the Coroutine, not
// as a Go-level local.
type CallFrame struct {
	Function *Function
	PC       int
	Base     int
	Receiver Value
}

// Coroutine is a stack plus a caller link. Per spec.md §3 invariant 6,
// caller == self signals a terminated coroutine whose stack has already
// been released (CoroutineStack is set to nil at that point).
type Coroutine struct {
	HeapObject
	CoroutineStack *Stack
	Caller         *Coroutine

	frames []CallFrame
}

// CurrentFrame returns the innermost active frame, or nil if the coroutine
// has returned from its last call (the interpreter then terminates it).
func (co *Coroutine) CurrentFrame() *CallFrame {
	if len(co.frames) == 0 {
		return nil
	}
	return &co.frames[len(co.frames)-1]
}

// PushFrame enters a new activation.
func (co *Coroutine) PushFrame(f CallFrame) { co.frames = append(co.frames, f) }

// PopFrame leaves the innermost activation and returns it.
func (co *Coroutine) PopFrame() CallFrame {
	f := co.frames[len(co.frames)-1]
	co.frames = co.frames[:len(co.frames)-1]
	return f
}

// FrameDepth reports how many activations are currently live, used by the
// debug session's backtrace opcode and by throw's unwind search.
func (co *Coroutine) FrameDepth() int { return len(co.frames) }

// FrameAt returns the frame at depth i counting from the outermost (0),
// used by the debug session's backtrace inspection.
func (co *Coroutine) FrameAt(i int) *CallFrame { return &co.frames[i] }

// NewCoroutine allocates a fresh, non-terminated coroutine over stack.
// Caller is left nil until the interpreter's coroutine-change
// (interpreter.go) links it to the coroutine that switched into it.
func NewCoroutine(c *Class, stack *Stack) *Coroutine {
	co := &Coroutine{CoroutineStack: stack}
	co.SetClass(c)
	return co
}

// IsTerminated reports whether this coroutine has run to completion (or had
// its exception unwind reach the top) and released its stack.
func (co *Coroutine) IsTerminated() bool {
	return co.Caller == co
}

// Terminate releases the coroutine's stack and marks it terminated by
// pointing Caller at itself, per invariant 6. Called when an exception
// unwinds past every catch frame (exception.go's throw handling) or when
// the coroutine's top-level call returns.
func (co *Coroutine) Terminate() {
	co.CoroutineStack = nil
	co.Caller = co
}
