package vm

import "testing"

func TestStackNewStackSizesToInitialFrames(t *testing.T) {
	s := NewStack(nil, 1)
	if s.Cap() != DefaultStackSize {
		t.Errorf("Cap() = %d, want the default floor %d", s.Cap(), DefaultStackSize)
	}
	big := NewStack(nil, 100)
	if big.Cap() != 100*8 {
		t.Errorf("Cap() = %d, want %d", big.Cap(), 100*8)
	}
}

func TestStackPushPopGetSet(t *testing.T) {
	s := NewStack(nil, 1)
	if s.Top() != -1 {
		t.Fatalf("Top() on a fresh stack = %d, want -1", s.Top())
	}
	one, _ := NewSmi(1)
	two, _ := NewSmi(2)
	s.Push(one)
	s.Push(two)
	if s.Top() != 1 {
		t.Fatalf("Top() after two pushes = %d, want 1", s.Top())
	}
	if s.Get(0) != one || s.Get(1) != two {
		t.Error("Get should read back the pushed values in order")
	}
	three, _ := NewSmi(3)
	s.Set(0, three)
	if s.Get(0) != three {
		t.Error("Set should overwrite the slot in place")
	}
	if got := s.Pop(); got != two {
		t.Errorf("Pop() = %v, want the last-pushed value", got)
	}
	if s.Top() != 0 {
		t.Errorf("Top() after one pop = %d, want 0", s.Top())
	}
}

func TestStackSlotsInUseExcludesScratchAboveTop(t *testing.T) {
	s := NewStack(nil, 1)
	if s.SlotsInUse() != nil {
		t.Error("SlotsInUse on an empty stack should be nil")
	}
	one, _ := NewSmi(1)
	s.Push(one)
	if len(s.SlotsInUse()) != 1 {
		t.Errorf("SlotsInUse len = %d, want 1", len(s.SlotsInUse()))
	}
}

func TestStackTruncateClearsSlotsAboveNewTop(t *testing.T) {
	s := NewStack(nil, 1)
	one, _ := NewSmi(1)
	two, _ := NewSmi(2)
	three, _ := NewSmi(3)
	s.Push(one)
	s.Push(two)
	s.Push(three)
	s.Truncate(0)
	if s.Top() != 0 {
		t.Fatalf("Top() after Truncate(0) = %d, want 0", s.Top())
	}
	if s.Get(1) != Nil || s.Get(2) != Nil {
		t.Error("Truncate should clear discarded slots to Nil so they don't linger as GC roots")
	}
}

func TestStackEnsureRoomContinuesWhenRoomAlreadyFits(t *testing.T) {
	s := NewStack(nil, 1)
	if got := s.EnsureRoom(1); got != StackContinue {
		t.Errorf("EnsureRoom(1) on an empty, freshly-sized stack = %v, want StackContinue", got)
	}
	if s.GrowthEvents() != 0 {
		t.Error("EnsureRoom should not grow when room already fits")
	}
}

func TestStackEnsureRoomGrowsWithinMaxStackSize(t *testing.T) {
	s := NewStack(nil, 1)
	capBefore := s.Cap()
	if got := s.EnsureRoom(capBefore + 1); got != StackGrow {
		t.Fatalf("EnsureRoom(cap+1) = %v, want StackGrow", got)
	}
	if s.Cap() <= capBefore {
		t.Error("EnsureRoom should have doubled the backing slice")
	}
	if s.GrowthEvents() != 1 {
		t.Errorf("GrowthEvents() = %d, want 1", s.GrowthEvents())
	}
}

func TestStackEnsureRoomOverflowsPastMaxStackSize(t *testing.T) {
	s := NewStack(nil, 1)
	if got := s.EnsureRoom(MaxStackSize + 1); got != StackOverflow {
		t.Errorf("EnsureRoom(MaxStackSize+1) = %v, want StackOverflow", got)
	}
	if s.Cap() != DefaultStackSize {
		t.Error("a rejected grow should leave the stack's backing slice untouched")
	}
}

func TestProcessHandleStackOverflowHonorsPendingPreemption(t *testing.T) {
	p := newTestProcess(t)
	stack, _, ok := p.NewStack(nil, 1)
	if !ok {
		t.Fatal("NewStack failed")
	}
	p.UpdateCoroutine(NewCoroutine(nil, stack))
	p.RequestPreemption()

	if got := p.HandleStackOverflow(1); got != StackInterrupt {
		t.Errorf("HandleStackOverflow right after RequestPreemption = %v, want StackInterrupt", got)
	}
	// The sentinel is one-shot: the next call defers to the stack as usual.
	if got := p.HandleStackOverflow(1); got != StackContinue {
		t.Errorf("HandleStackOverflow after the sentinel fired once = %v, want StackContinue", got)
	}
}

func TestProcessHandleStackOverflowDefersToCurrentStack(t *testing.T) {
	p := newTestProcess(t)
	stack, _, ok := p.NewStack(nil, 1)
	if !ok {
		t.Fatal("NewStack failed")
	}
	p.UpdateCoroutine(NewCoroutine(nil, stack))

	if got := p.HandleStackOverflow(MaxStackSize + 1); got != StackOverflow {
		t.Errorf("HandleStackOverflow(MaxStackSize+1) with no pending preemption = %v, want StackOverflow", got)
	}
}
