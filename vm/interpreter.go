package vm

import bc "github.com/floitschG/fletch/pkg/bytecode"

// InterruptKind enumerates the reasons Run returns control to the scheduler
// (spec.md §4.5's interrupt-kind table).
type InterruptKind uint8

const (
	// InterruptReady is never actually returned by Run; it exists so a
	// zero-valued RunOutcome reads as "nothing happened yet" in tests.
	InterruptReady InterruptKind = iota
	// InterruptPreempted means stack-overflow-check's sentinel fired; the
	// scheduler should re-enqueue the process to resume at the same pc.
	InterruptPreempted
	// InterruptUncaughtException means an exception unwound past every
	// frame of every coroutine on this process; Value carries the
	// exception object.
	InterruptUncaughtException
	// InterruptBreakpoint means execution hit a debug-session breakpoint;
	// Value carries nothing meaningful, the debugger reads process state
	// directly.
	InterruptBreakpoint
	// InterruptTargetYield means process-yield executed; the scheduler
	// should give another process a turn before resuming this one.
	InterruptTargetYield
	// InterruptImmutableAllocationFailure means the shared immutable heap
	// is exhausted and a program-wide GC rendezvous is needed before this
	// process can make progress.
	InterruptImmutableAllocationFailure
	// InterruptTerminated means the root coroutine's top-level call
	// returned; Value carries its result.
	InterruptTerminated
)

func (k InterruptKind) String() string {
	switch k {
	case InterruptReady:
		return "ready"
	case InterruptPreempted:
		return "interrupt"
	case InterruptUncaughtException:
		return "uncaught-exception"
	case InterruptBreakpoint:
		return "breakpoint"
	case InterruptTargetYield:
		return "target-yield"
	case InterruptImmutableAllocationFailure:
		return "immutable-allocation-failure"
	case InterruptTerminated:
		return "terminate"
	default:
		return "unknown-interrupt"
	}
}

// RunOutcome is Run's result: why it stopped, and (for the kinds that carry
// one) a Value.
type RunOutcome struct {
	Kind  InterruptKind
	Value Value
}

// Run drives the threaded-dispatch bytecode loop for p's current coroutine
// until one of the interrupt kinds above applies. It is re-entrant: the
// scheduler calls it again with the same Process to resume after
// InterruptPreempted/InterruptTargetYield, picking up exactly where the
// paused frame's PC left off.
func Run(p *Process) RunOutcome {
	for {
		co := p.Current
		if co == nil || co.IsTerminated() {
			return RunOutcome{Kind: InterruptTerminated}
		}
		frame := co.CurrentFrame()
		if frame == nil {
			return RunOutcome{Kind: InterruptTerminated}
		}
		if p.Breakpoints != nil {
			if p.resumeSkip {
				p.resumeSkip = false
			} else if p.Breakpoints.Has(frame.Function, frame.PC) {
				return RunOutcome{Kind: InterruptBreakpoint}
			}
		}
		outcome, switched := step(p, co, frame)
		if outcome != nil {
			return *outcome
		}
		if switched {
			continue
		}
	}
}

// step executes instructions from frame until a call crosses into a new
// frame or coroutine (switched=true, loop again to refetch frame), or an
// interrupt kind applies (outcome != nil). It returns to its own caller's
// loop after every single instruction that neither pushes/pops a frame nor
// interrupts, which keeps the function itself simple at the cost of a
// slightly deeper Go call per bytecode; real threaded dispatch would inline
// this as one giant loop, but splitting it here keeps each instruction
// group readable.
func step(p *Process, co *Coroutine, frame *CallFrame) (*RunOutcome, bool) {
	fn := frame.Function
	code := fn.Bytecode
	stack := co.CoroutineStack
	pc := frame.PC
	op := bc.Opcode(code[pc])

	switch op {

	// --- Load group ---------------------------------------------------
	case bc.OpLoadLocal:
		stack.Push(stack.Get(frame.Base + int(readU8(code, pc+1))))
		frame.PC = pc + 2
	case bc.OpLoadLocalWide:
		stack.Push(stack.Get(frame.Base + int(readU16(code, pc+1))))
		frame.PC = pc + 3
	case bc.OpLoadBoxed:
		boxed := stack.Get(frame.Base + int(readU8(code, pc+1)))
		stack.Push((*Boxed)(boxed.HeapObjectPointer()).Get())
		frame.PC = pc + 2
	case bc.OpLoadStatic:
		stack.Push(p.Statics[readU16(code, pc+1)])
		frame.PC = pc + 3
	case bc.OpLoadField:
		inst := (*Instance)(frame.Receiver.HeapObjectPointer())
		stack.Push(inst.GetSlot(int(readU8(code, pc+1))))
		frame.PC = pc + 2
	case bc.OpLoadFieldWide:
		inst := (*Instance)(frame.Receiver.HeapObjectPointer())
		stack.Push(inst.GetSlot(int(readU16(code, pc+1))))
		frame.PC = pc + 3
	case bc.OpLoadConst, bc.OpLoadConstInline:
		idx := int(readU16Or8(op, code, pc+1))
		stack.Push(fn.Literals[idx])
		frame.PC = pc + op.InstructionLen()
	case bc.OpLoadNull:
		stack.Push(Nil)
		frame.PC = pc + 1
	case bc.OpLoadTrue:
		stack.Push(True)
		frame.PC = pc + 1
	case bc.OpLoadFalse:
		stack.Push(False)
		frame.PC = pc + 1
	case bc.OpLoadSmi0:
		v, _ := NewSmi(0)
		stack.Push(v)
		frame.PC = pc + 1
	case bc.OpLoadSmi1:
		v, _ := NewSmi(1)
		stack.Push(v)
		frame.PC = pc + 1
	case bc.OpLoadSmiSmall:
		v, _ := NewSmi(int64(int8(readU8(code, pc+1))))
		stack.Push(v)
		frame.PC = pc + 2
	case bc.OpLoadSmiWide:
		v, _ := NewSmi(int64(readI32(code, pc+1)))
		stack.Push(v)
		frame.PC = pc + 5

	// --- Store group ---------------------------------------------------
	case bc.OpStoreLocal:
		stack.Set(frame.Base+int(readU8(code, pc+1)), stack.Pop())
		frame.PC = pc + 2
	case bc.OpStoreLocalWide:
		stack.Set(frame.Base+int(readU16(code, pc+1)), stack.Pop())
		frame.PC = pc + 3
	case bc.OpStoreBoxed:
		v := stack.Pop()
		slot := frame.Base + int(readU8(code, pc+1))
		boxedVal := stack.Get(slot)
		p.StoreBoxed((*Boxed)(boxedVal.HeapObjectPointer()), boxedVal, v)
		frame.PC = pc + 2
	case bc.OpStoreStatic:
		p.Statics[readU16(code, pc+1)] = stack.Pop()
		frame.PC = pc + 3
	case bc.OpStoreField:
		v := stack.Pop()
		inst := (*Instance)(frame.Receiver.HeapObjectPointer())
		p.StoreField(inst, frame.Receiver, int(readU8(code, pc+1)), v)
		frame.PC = pc + 2
	case bc.OpStoreFieldWide:
		v := stack.Pop()
		inst := (*Instance)(frame.Receiver.HeapObjectPointer())
		p.StoreField(inst, frame.Receiver, int(readU16(code, pc+1)), v)
		frame.PC = pc + 3

	// --- Invoke group ---------------------------------------------------
	case bc.OpInvokeMethod, bc.OpInvokeMethodFast, bc.OpInvokeMethodVTable,
		bc.OpInvokeSelector, bc.OpInvokeTest:
		idx := readU16(code, pc+1)
		arity := int(readU8(code, pc+3))
		frame.PC = pc + 4
		receiver, args := popCall(stack, arity)
		target, tag := resolveInvoke(p, fn, op, idx, receiver)
		return dispatch(p, co, frame, receiver, args, target, tag)

	case bc.OpInvokeStatic, bc.OpInvokeFactory:
		idx := readU16(code, pc+1)
		frame.PC = pc + 3
		callee := p.Program.Functions[idx]
		args := popArgs(stack, callee.Arity)
		co.PushFrame(newCallFrame(callee, args, stack, Nil))
		return nil, true

	case bc.OpInvokeNative, bc.OpInvokeNativeYield:
		idx := readU16(code, pc+1)
		arity := int(readU8(code, pc+3))
		frame.PC = pc + 4
		receiver, args := popCall(stack, arity)
		native := p.Program.Natives[idx]
		result := native.Invoke(p, receiver, args)
		for result.IsFailure() && result.FailureCode() == FailureRetryAfterGC {
			p.CollectMutableGarbage()
			result = native.Invoke(p, receiver, args)
		}
		if result.IsFailure() {
			return finalizeFailure(p, co, frame, result)
		}
		stack.Push(result)
		if op == bc.OpInvokeNativeYield && result != Nil {
			return &RunOutcome{Kind: InterruptTargetYield}, false
		}

	case bc.OpInvokeMethodNumeric:
		numOp := NumericOp(readU8(code, pc+1))
		arity := int(readU8(code, pc+2))
		frame.PC = pc + 3
		receiver, args := popCall(stack, arity)
		if len(args) != 1 {
			stack.Push(Nil)
			break
		}
		if v, ok := ApplyNumericOp(numOp, receiver, args[0]); ok {
			stack.Push(v)
		} else {
			// Fall back to a real send: the two operands didn't both fit
			// the smi fast path (overflow, Double, LargeInteger).
			sel := p.Program.Selectors.Selector(numericOpSelectorName(numOp), SelectorMethod, 1)
			tag, target := p.LookupEntry(receiver, sel)
			return dispatch(p, co, frame, receiver, args, target, tag)
		}

	// --- Control group ---------------------------------------------------
	case bc.OpReturn:
		v := stack.Pop()
		return finishReturn(p, co, frame, v), true
	case bc.OpReturnWide:
		extra := int(readU8(code, pc+1))
		for i := 0; i < extra; i++ {
			stack.Pop()
		}
		v := stack.Pop()
		return finishReturn(p, co, frame, v), true
	case bc.OpPop:
		stack.Pop()
		frame.PC = pc + 1
	case bc.OpBranch:
		frame.PC = pc + 3 + int(readI16(code, pc+1))
	case bc.OpBranchBackward:
		frame.PC = pc + 3 + int(readI16(code, pc+1))
	case bc.OpBranchWide:
		frame.PC = pc + 5 + int(readI32(code, pc+1))
	case bc.OpBranchIfTrue:
		cond := stack.Pop()
		if cond.IsTruthy() {
			frame.PC = pc + 3 + int(readI16(code, pc+1))
		} else {
			frame.PC = pc + 3
		}
	case bc.OpBranchIfFalse:
		cond := stack.Pop()
		if !cond.IsTruthy() {
			frame.PC = pc + 3 + int(readI16(code, pc+1))
		} else {
			frame.PC = pc + 3
		}
	case bc.OpPopAndBranch:
		stack.Pop()
		frame.PC = pc + 3 + int(readI16(code, pc+1))
	case bc.OpSubroutineCall:
		ret, _ := NewSmi(int64(pc + 3))
		stack.Push(ret)
		frame.PC = pc + 3 + int(readI16(code, pc+1))
	case bc.OpSubroutineReturn:
		ret := stack.Pop()
		frame.PC = int(ret.SmiValue())
	case bc.OpThrow:
		exc := stack.Pop()
		return throw(p, co, frame, exc), true
	case bc.OpNegate:
		v := stack.Pop()
		frame.PC = pc + 1
		if n, ok := Negate(v); ok {
			stack.Push(n)
			break
		}
		if !v.IsSmi() {
			// Double or LargeInteger receiver: no fast path, send the real
			// unary selector so natives_numeric.go's boxed methods handle it.
			sel := p.Program.Selectors.Selector("negated", SelectorMethod, 0)
			tag, target := p.LookupEntry(v, sel)
			return dispatch(p, co, frame, v, nil, target, tag)
		}
		// v is smi but -v overflows smi range (minimum smi only); promote.
		_, boxed, ok := p.NewInteger(p.Program.LargeIntegerClass, -v.SmiValue())
		if !ok {
			p.CollectMutableGarbage()
			_, boxed, ok = p.NewInteger(p.Program.LargeIntegerClass, -v.SmiValue())
		}
		if !ok {
			return &RunOutcome{Kind: InterruptUncaughtException, Value: Nil}, false
		}
		stack.Push(boxed)
	case bc.OpIdentical:
		b, a := stack.Pop(), stack.Pop()
		stack.Push(Identical(a, b))
		frame.PC = pc + 1
	case bc.OpIdenticalNonNumeric:
		b, a := stack.Pop(), stack.Pop()
		stack.Push(boolValue(a == b))
		frame.PC = pc + 1

	// --- Allocation group ---------------------------------------------------
	case bc.OpAllocate:
		class := p.Program.Classes[readU16(code, pc+1)]
		frame.PC = pc + 3
		if outcome := allocateInstance(p, stack, class, false); outcome != nil {
			return outcome, false
		}
	case bc.OpAllocateConst:
		lit := fn.Literals[readU16(code, pc+1)]
		frame.PC = pc + 3
		class := (*Class)(lit.HeapObjectPointer())
		if outcome := allocateInstance(p, stack, class, false); outcome != nil {
			return outcome, false
		}
	case bc.OpAllocateImmutable:
		class := p.Program.Classes[readU16(code, pc+1)]
		frame.PC = pc + 3
		if outcome := allocateInstance(p, stack, class, true); outcome != nil {
			return outcome, false
		}
	case bc.OpAllocateBoxed:
		class := p.Program.Classes[readU16(code, pc+1)]
		frame.PC = pc + 3
		initial := stack.Pop()
		_, v, ok := p.NewBoxed(class, initial)
		if !ok {
			p.CollectMutableGarbage()
			_, v, ok = p.NewBoxed(class, initial)
		}
		if !ok {
			return &RunOutcome{Kind: InterruptUncaughtException}, false
		}
		stack.Push(v)

	// --- Stack safety ---------------------------------------------------
	case bc.OpStackOverflowCheck:
		n := int(readU16(code, pc+1))
		switch p.HandleStackOverflow(n) {
		case StackContinue, StackGrow:
			frame.PC = pc + 3
		case StackInterrupt:
			frame.PC = pc // retry this exact instruction on resume
			return &RunOutcome{Kind: InterruptPreempted}, false
		case StackOverflow:
			return &RunOutcome{Kind: InterruptUncaughtException, Value: Nil}, false
		}

	// --- Process control-transfer ---------------------------------------------------
	case bc.OpProcessYield:
		frame.PC = pc + 1
		return &RunOutcome{Kind: InterruptTargetYield}, false
	case bc.OpCoroutineChange:
		passVal := stack.Pop()
		targetVal := stack.Pop()
		frame.PC = pc + 1
		target := (*Coroutine)(targetVal.HeapObjectPointer())
		target.Caller = co
		p.UpdateCoroutine(target)
		if target.CoroutineStack != nil {
			target.CoroutineStack.Push(passVal)
		}
		return nil, true

	// --- No-such-method overlay ---------------------------------------------------
	case bc.OpEnterNoSuchMethod:
		frame.PC = pc + 3 // selector operand consumed only by the debugger's stack walker
	case bc.OpExitNoSuchMethod:
		frame.PC = pc + 1

	default:
		return &RunOutcome{Kind: InterruptUncaughtException, Value: Nil}, false
	}
	return nil, false
}

// popArgs pops arity argument values in call order, with no receiver: the
// layout invoke-static/invoke-factory's operand stack uses.
func popArgs(stack *Stack, arity int) []Value {
	args := make([]Value, arity)
	for i := arity - 1; i >= 0; i-- {
		args[i] = stack.Pop()
	}
	return args
}

// popCall pops arity argument values (in call order) followed by the
// receiver, the layout every method-send bytecode's operand stack shares.
func popCall(stack *Stack, arity int) (receiver Value, args []Value) {
	args = popArgs(stack, arity)
	receiver = stack.Pop()
	return receiver, args
}

func resolveInvoke(p *Process, fn *Function, op bc.Opcode, idx uint16, receiver Value) (Method, CacheTag) {
	switch op {
	case bc.OpInvokeMethodFast:
		table := fn.FastDispatch[idx]
		class := p.ReceiverClass(receiver)
		if entry, ok := table.Dispatch(class.ID); ok {
			return entry.Target, CacheTagMethod
		}
		tag, target := p.LookupEntry(receiver, table.Selector)
		return target, tag
	case bc.OpInvokeMethodVTable:
		sel := fn.CallSites[idx]
		class := p.ReceiverClass(receiver)
		entry := p.Program.VTable.Dispatch(class, sel)
		if entry.Target == noSuchMethodTrampoline {
			return entry.Target, CacheTagEmpty
		}
		return entry.Target, CacheTagMethod
	default: // OpInvokeMethod, OpInvokeSelector, OpInvokeTest
		sel := fn.CallSites[idx]
		tag, target := p.LookupEntry(receiver, sel)
		return target, tag
	}
}

// dispatch performs the shared back half of every method send: route to a
// compiled method (push a new frame), a native (call directly), or the
// noSuchMethod overlay on a cache miss.
func dispatch(p *Process, co *Coroutine, frame *CallFrame, receiver Value, args []Value, target Method, tag CacheTag) (*RunOutcome, bool) {
	if tag == CacheTagEmpty {
		return invokeNoSuchMethod(p, co, frame, receiver, args)
	}
	switch m := target.(type) {
	case *CompiledMethod:
		co.PushFrame(newCallFrame(m.Body, args, co.CoroutineStack, receiver))
		return nil, true
	default:
		result := target.Invoke(p, receiver, args)
		for result.IsFailure() && result.FailureCode() == FailureRetryAfterGC {
			p.CollectMutableGarbage()
			result = target.Invoke(p, receiver, args)
		}
		if result.IsFailure() {
			return finalizeFailure(p, co, frame, result)
		}
		co.CoroutineStack.Push(result)
		return nil, false
	}
}

// newCallFrame pushes args (and nothing else; this engine does not track a
// separate non-parameter local count, see DESIGN.md) onto stack as the new
// frame's slots and returns the frame describing them.
func newCallFrame(fn *Function, args []Value, stack *Stack, receiver Value) CallFrame {
	base := stack.Top() + 1
	for _, a := range args {
		stack.Push(a)
	}
	return CallFrame{Function: fn, PC: 0, Base: base, Receiver: receiver}
}

// finishReturn implements the shared tail of return/return-wide: unwind the
// current frame's slots, and either resume the caller frame, hand the
// result to the coroutine that switched into this one, or terminate the
// process if the root coroutine's top-level call just returned.
func finishReturn(p *Process, co *Coroutine, frame *CallFrame, v Value) *RunOutcome {
	stack := co.CoroutineStack
	stack.Truncate(frame.Base - 1)
	co.PopFrame()
	if co.FrameDepth() > 0 {
		stack.Push(v)
		return nil
	}
	caller := co.Caller
	co.Terminate()
	if caller == nil || caller == co {
		return &RunOutcome{Kind: InterruptTerminated, Value: v}
	}
	p.UpdateCoroutine(caller)
	if caller.CoroutineStack != nil {
		caller.CoroutineStack.Push(v)
	}
	return nil
}

func allocateInstance(p *Process, stack *Stack, class *Class, immutable bool) *RunOutcome {
	n := class.NumInstVars()
	fields := make([]Value, n)
	for i := n - 1; i >= 0; i-- {
		fields[i] = stack.Pop()
	}
	inst, v, ok := p.NewInstance(class)
	if !ok {
		p.CollectMutableGarbage()
		inst, v, ok = p.NewInstance(class)
	}
	if !ok {
		return &RunOutcome{Kind: InterruptUncaughtException, Value: Nil}
	}
	for i, f := range fields {
		p.StoreField(inst, v, i, f)
	}
	if immutable {
		p.FinalizeImmutableInstance(inst, v)
	}
	stack.Push(v)
	return nil
}

// finalizeFailure implements the non-retry half of spec.md §7's allocation-
// failure taxonomy: immutable-heap exhaustion escalates straight to the
// scheduler for a program-wide GC rendezvous, and wrong-argument-type /
// index-out-of-bounds are reified into exception objects and thrown exactly
// as if the native itself had thrown. Callers must already have exhausted
// the retry-after-gc loop (result.FailureCode() != FailureRetryAfterGC).
func finalizeFailure(p *Process, co *Coroutine, frame *CallFrame, result Value) (*RunOutcome, bool) {
	if result.FailureCode() == FailureImmutableAllocationFailure {
		return &RunOutcome{Kind: InterruptImmutableAllocationFailure}, false
	}
	return throw(p, co, frame, reifyFailure(p, result)), true
}

// reifyFailure builds the exception instance a wrong-argument-type or
// index-out-of-bounds Failure reifies into. Allocation failure here (after
// one GC retry) degrades to throwing Nil rather than looping forever.
func reifyFailure(p *Process, result Value) Value {
	var class *Class
	if result.FailureCode() == FailureIndexOutOfBounds {
		class = p.Program.IndexOutOfBoundsClass
	} else {
		class = p.Program.WrongArgumentTypeClass
	}
	_, exc, ok := p.NewInstance(class)
	if !ok {
		p.CollectMutableGarbage()
		_, exc, ok = p.NewInstance(class)
	}
	if !ok {
		return Nil
	}
	return exc
}

func numericOpSelectorName(op NumericOp) string {
	switch op {
	case NumericAdd:
		return "+"
	case NumericSub:
		return "-"
	case NumericMul:
		return "*"
	case NumericDiv:
		return "/"
	case NumericMod:
		return "%"
	case NumericLess:
		return "<"
	case NumericLessEqual:
		return "<="
	case NumericGreater:
		return ">"
	case NumericGreaterEqual:
		return ">="
	case NumericEqual:
		return "="
	default:
		return "?"
	}
}

// --- little-endian byte decoding, matching pkg/bytecode's encoding -------

func readU8(code []byte, pc int) uint8 { return code[pc] }

func readU16(code []byte, pc int) uint16 {
	return uint16(code[pc]) | uint16(code[pc+1])<<8
}

func readU16Or8(op bc.Opcode, code []byte, pc int) uint16 {
	if op == bc.OpLoadConstInline {
		return uint16(readU8(code, pc))
	}
	return readU16(code, pc)
}

func readI16(code []byte, pc int) int16 { return int16(readU16(code, pc)) }

func readI32(code []byte, pc int) int32 {
	u := uint32(code[pc]) | uint32(code[pc+1])<<8 | uint32(code[pc+2])<<16 | uint32(code[pc+3])<<24
	return int32(u)
}
