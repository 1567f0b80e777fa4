package vm

import (
	"testing"

	bc "github.com/floitschG/fletch/pkg/bytecode"
)

// TestInterpreterCoroutineChangeSwitchesAndReturns exercises a full
// ping-pong: the root coroutine switches into a second coroutine passing a
// value, the second coroutine discards it and returns a value of its own,
// which resumes the root coroutine exactly where OpCoroutineChange left
// off.
func TestInterpreterCoroutineChangeSwitchesAndReturns(t *testing.T) {
	p := newTestProcess(t)

	stackB, _, ok := p.NewStack(nil, 1)
	if !ok {
		t.Fatal("NewStack failed")
	}
	coB := NewCoroutine(nil, stackB)
	fnB := &Function{
		Name: "b",
		Bytecode: []byte{
			byte(bc.OpPop),
			byte(bc.OpLoadSmiSmall), 11,
			byte(bc.OpReturn),
		},
		MaxStack: 2,
	}
	coB.PushFrame(CallFrame{Function: fnB, PC: 0, Base: 0})

	stackA, _, ok := p.NewStack(nil, 1)
	if !ok {
		t.Fatal("NewStack failed")
	}
	coA := NewCoroutine(nil, stackA)
	coBVal := TagHeapObject(ptrOf(coB))
	fnA := &Function{
		Name:     "a",
		Literals: []Value{coBVal},
		Bytecode: []byte{
			byte(bc.OpLoadConstInline), 0,
			byte(bc.OpLoadSmiSmall), 10,
			byte(bc.OpCoroutineChange),
			byte(bc.OpReturn),
		},
		MaxStack: 2,
	}
	coA.PushFrame(CallFrame{Function: fnA, PC: 0, Base: 0})
	p.UpdateCoroutine(coA)

	outcome := Run(p)

	if outcome.Kind != InterruptTerminated {
		t.Fatalf("Kind = %v, want InterruptTerminated", outcome.Kind)
	}
	if !outcome.Value.IsSmi() || outcome.Value.SmiValue() != 11 {
		t.Errorf("outcome.Value = %v, want smi 11", outcome.Value)
	}
	if coB.Caller != coB {
		t.Error("coB's top-level return should have terminated it, pointing its Caller at itself")
	}
	if !coA.IsTerminated() {
		t.Error("the root coroutine should be terminated after its top-level call returns")
	}
}
