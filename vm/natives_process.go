package vm

// registerProcessNatives installs Process._spawn (spec.md §4.5): the
// actor-spawn primitive that hands the scheduler a freshly built Process
// with its initial stack already pointed at entrypoint. Grounded on
// scheduler.cc's ScheduleProgram entry point, generalized from "the one
// main process" to "any process, spawned from bytecode at any time".
func registerProcessNatives(r *NativeRegistry) {
	r.Register("Process._spawn", func(p *Process, receiver Value, args []Value) Value {
		entrypoint := argOr(args, 0)
		closure := argOr(args, 1)
		argument := argOr(args, 2)

		fn, ok := asFunction(entrypoint)
		if !ok {
			return NewFailure(FailureWrongArgumentType)
		}
		if !p.isImmutableValue(closure) {
			return NewFailure(FailureWrongArgumentType)
		}
		if argument != Nil && !p.isImmutableValue(argument) {
			return NewFailure(FailureWrongArgumentType)
		}
		if p.Program.scheduler == nil {
			// No scheduler attached (e.g. a unit test driving Run directly
			// without Setup): spawning is meaningless, so report it as a
			// wrong-argument-type failure rather than panicking.
			return NewFailure(FailureWrongArgumentType)
		}

		child := NewProcess(p.Program, p.env.Config.Heap.InitialMutableWords, p.env)
		stack, _, ok := child.NewStack(p.Program.StackClass, p.env.Config.Stack.InitialFrames)
		if !ok {
			return NewFailure(FailureRetryAfterGC)
		}
		co := NewCoroutine(p.Program.CoroutineClass, stack)
		child.UpdateCoroutine(co)
		co.PushFrame(newCallFrame(fn, []Value{closure, argument}, stack, Nil))

		p.Program.scheduler.Spawn(child)
		return True
	})
}

func asFunction(v Value) (*Function, bool) {
	if !v.IsHeapObject() {
		return nil, false
	}
	h := AsHeapObject(v)
	if h.Class() == nil || h.Class().Format.Type != InstanceTypeFunction {
		return nil, false
	}
	return (*Function)(v.HeapObjectPointer()), true
}
