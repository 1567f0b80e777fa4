package vm

import "testing"

func newExceptionValue(t *testing.T, class *Class) Value {
	t.Helper()
	inst := NewInstance(class)
	return TagHeapObject(ptrOf(inst))
}

func TestThrowFindsMatchingCatchInSameFrame(t *testing.T) {
	excClass := NewClass(1, "MyError", InstanceFormat{Type: InstanceTypeInstance}, nil, nil)
	fn := &Function{
		Name: "main",
		Catches: []CatchRegion{
			{StartPC: 0, EndPC: 10, Catches: excClass, HandlerPC: 5, UnwindDepth: 0},
		},
	}
	stack := NewStack(nil, 1)
	co := NewCoroutine(nil, stack)
	co.PushFrame(CallFrame{Function: fn, PC: 3, Base: 0})

	p := &Process{}
	exc := newExceptionValue(t, excClass)
	frame := co.CurrentFrame()
	outcome := throw(p, co, frame, exc)

	if outcome != nil {
		t.Fatalf("throw returned an interrupt outcome %+v, want nil (handled)", outcome)
	}
	if co.FrameDepth() != 1 {
		t.Fatalf("FrameDepth() = %d, want 1 (frame stays, just rewound)", co.FrameDepth())
	}
	handled := co.CurrentFrame()
	if handled.PC != 5 {
		t.Errorf("PC = %d, want 5 (HandlerPC)", handled.PC)
	}
	if stack.Top() != 0 || stack.Get(0) != exc {
		t.Errorf("exception was not pushed onto the truncated stack: top=%d", stack.Top())
	}
}

func TestThrowIgnoresCatchOfUnrelatedClass(t *testing.T) {
	excClass := NewClass(1, "MyError", InstanceFormat{Type: InstanceTypeInstance}, nil, nil)
	otherClass := NewClass(2, "OtherError", InstanceFormat{Type: InstanceTypeInstance}, nil, nil)
	fn := &Function{
		Catches: []CatchRegion{
			{StartPC: 0, EndPC: 10, Catches: otherClass, HandlerPC: 5, UnwindDepth: 0},
		},
	}
	stack := NewStack(nil, 1)
	co := NewCoroutine(nil, stack)
	co.PushFrame(CallFrame{Function: fn, PC: 3, Base: 0})

	p := &Process{}
	exc := newExceptionValue(t, excClass)
	outcome := throw(p, co, co.CurrentFrame(), exc)

	if outcome == nil {
		t.Fatal("throw should not consider the region a match")
	}
	if outcome.Kind != InterruptUncaughtException {
		t.Errorf("Kind = %v, want InterruptUncaughtException", outcome.Kind)
	}
	if outcome.Value != exc {
		t.Errorf("Value = %v, want %v", outcome.Value, exc)
	}
}

func TestThrowCatchAllMatchesAnyClass(t *testing.T) {
	excClass := NewClass(1, "AnyError", InstanceFormat{Type: InstanceTypeInstance}, nil, nil)
	fn := &Function{
		Catches: []CatchRegion{
			{StartPC: 0, EndPC: 10, Catches: nil, HandlerPC: 7, UnwindDepth: 0},
		},
	}
	stack := NewStack(nil, 1)
	co := NewCoroutine(nil, stack)
	co.PushFrame(CallFrame{Function: fn, PC: 1, Base: 0})

	p := &Process{}
	exc := newExceptionValue(t, excClass)
	outcome := throw(p, co, co.CurrentFrame(), exc)
	if outcome != nil {
		t.Fatalf("a nil-class catch region should match any exception, got outcome %+v", outcome)
	}
	if co.CurrentFrame().PC != 7 {
		t.Errorf("PC = %d, want 7", co.CurrentFrame().PC)
	}
}

func TestThrowOutsideCatchRangeIsUncaught(t *testing.T) {
	excClass := NewClass(1, "MyError", InstanceFormat{Type: InstanceTypeInstance}, nil, nil)
	fn := &Function{
		Catches: []CatchRegion{
			{StartPC: 0, EndPC: 2, Catches: excClass, HandlerPC: 5, UnwindDepth: 0},
		},
	}
	stack := NewStack(nil, 1)
	co := NewCoroutine(nil, stack)
	co.PushFrame(CallFrame{Function: fn, PC: 9, Base: 0}) // outside [0, 2)

	p := &Process{}
	exc := newExceptionValue(t, excClass)
	outcome := throw(p, co, co.CurrentFrame(), exc)
	if outcome == nil || outcome.Kind != InterruptUncaughtException {
		t.Errorf("outcome = %+v, want InterruptUncaughtException", outcome)
	}
}
