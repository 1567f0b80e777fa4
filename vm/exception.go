package vm

// throw implements the throw bytecode's unwinding semantics: walk the
// current coroutine's frame stack from innermost outward, consulting each
// frame's Function.FindCatch for a region that covers its PC and accepts
// exc's class. The first match wins: the operand stack is truncated to the
// region's recorded depth, the exception is pushed, and execution resumes
// at the handler's entry point. If no frame of no coroutine on this
// process's call chain catches it, the process surfaces
// InterruptUncaughtException.
func throw(p *Process, co *Coroutine, frame *CallFrame, exc Value) *RunOutcome {
	stack := co.CoroutineStack
	for {
		for depth := co.FrameDepth() - 1; depth >= 0; depth-- {
			f := co.FrameAt(depth)
			class := p.ReceiverClass(exc)
			region := f.Function.FindCatch(f.PC, class)
			if region == nil {
				continue
			}
			for co.FrameDepth()-1 > depth {
				co.PopFrame()
			}
			stack.Truncate(f.Base + region.UnwindDepth - 1)
			stack.Push(exc)
			f.PC = region.HandlerPC
			return nil
		}
		// Nothing in this coroutine catches it; if it was entered via
		// coroutine-change, unwinding continues in the caller that
		// switched into it, matching how a return propagates.
		if co.Caller == nil || co.Caller == co {
			return &RunOutcome{Kind: InterruptUncaughtException, Value: exc}
		}
		caller := co.Caller
		co.Terminate()
		co = caller
		stack = co.CoroutineStack
		if co.FrameDepth() == 0 {
			return &RunOutcome{Kind: InterruptUncaughtException, Value: exc}
		}
	}
}

// invokeNoSuchMethod implements the enter-no-such-method/exit-no-such-method
// protocol of spec.md §4.1: when a method lookup misses every class in the
// receiver's hierarchy, the interpreter builds an Array of the original
// arguments and sends Program.NoSuchMethodSelector to the receiver instead,
// letting a user override observe and recover from the failed send. A
// receiver whose hierarchy has no override either (the root trampoline
// itself) surfaces InterruptUncaughtException.
func invokeNoSuchMethod(p *Process, co *Coroutine, frame *CallFrame, receiver Value, args []Value) (*RunOutcome, bool) {
	sel := p.Program.NoSuchMethodSelector
	tag, target := p.LookupEntry(receiver, sel)
	if tag == CacheTagEmpty {
		return &RunOutcome{Kind: InterruptUncaughtException, Value: receiver}, false
	}

	argsArray, arrVal, ok := p.NewArray(p.Program.ArrayClass, len(args))
	if !ok {
		p.CollectMutableGarbage()
		argsArray, arrVal, ok = p.NewArray(p.Program.ArrayClass, len(args))
	}
	if !ok {
		return &RunOutcome{Kind: InterruptUncaughtException, Value: receiver}, false
	}
	for i, a := range args {
		argsArray.AtPut(i, a)
	}

	nsmArgs := []Value{arrVal}
	switch m := target.(type) {
	case *CompiledMethod:
		co.PushFrame(newCallFrame(m.Body, nsmArgs, co.CoroutineStack, receiver))
		return nil, true
	default:
		result := target.Invoke(p, receiver, nsmArgs)
		for result.IsFailure() && result.FailureCode() == FailureRetryAfterGC {
			p.CollectMutableGarbage()
			result = target.Invoke(p, receiver, nsmArgs)
		}
		if result.IsFailure() {
			return finalizeFailure(p, co, frame, result)
		}
		co.CoroutineStack.Push(result)
		return nil, false
	}
}
