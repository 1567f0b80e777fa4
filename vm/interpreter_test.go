package vm

import (
	"testing"

	bc "github.com/floitschG/fletch/pkg/bytecode"
)

// runFunction wires fn as the root coroutine's sole frame and drives it to
// completion through the real Run loop, returning the final outcome.
func runFunction(t *testing.T, fn *Function) (*Process, RunOutcome) {
	t.Helper()
	program := NewProgram()
	env := newTestEnvironment()
	p := NewProcess(program, 1<<16, env)
	stack, _, ok := p.NewStack(nil, 4)
	if !ok {
		t.Fatal("NewStack failed")
	}
	co := NewCoroutine(nil, stack)
	p.UpdateCoroutine(co)
	co.PushFrame(CallFrame{Function: fn, PC: 0, Base: 0})
	return p, Run(p)
}

func TestInterpreterSmiArithmeticFastPath(t *testing.T) {
	code := []byte{
		byte(bc.OpLoadSmiSmall), 20,
		byte(bc.OpLoadSmiSmall), 22,
		byte(bc.OpInvokeMethodNumeric), byte(NumericAdd), 1,
		byte(bc.OpReturn),
	}
	fn := &Function{Name: "add", Bytecode: code, MaxStack: 4}
	_, outcome := runFunction(t, fn)

	if outcome.Kind != InterruptTerminated {
		t.Fatalf("Kind = %v, want InterruptTerminated", outcome.Kind)
	}
	if !outcome.Value.IsSmi() || outcome.Value.SmiValue() != 42 {
		t.Errorf("Value = %v, want smi 42", outcome.Value)
	}
}

func TestInterpreterBranchIfFalseSkipsThenBranch(t *testing.T) {
	// push false; branch-if-false +2 over a load-smi-1; load-smi-0; return
	code := []byte{
		byte(bc.OpLoadFalse),
		byte(bc.OpBranchIfFalse), 2, 0,
		byte(bc.OpLoadSmi1),
		byte(bc.OpReturn),
		byte(bc.OpLoadSmi0),
		byte(bc.OpReturn),
	}
	fn := &Function{Name: "branch", Bytecode: code, MaxStack: 4}
	_, outcome := runFunction(t, fn)
	if outcome.Kind != InterruptTerminated {
		t.Fatalf("Kind = %v, want InterruptTerminated", outcome.Kind)
	}
	if outcome.Value.SmiValue() != 0 {
		t.Errorf("Value = %v, want smi 0 (the skip-to target)", outcome.Value)
	}
}

func TestInterpreterNumericOverflowFallsBackToDispatch(t *testing.T) {
	table := NewSelectorTable()
	sel := table.Selector("+", SelectorMethod, 1)
	called := false
	promoted := NewNativeMethod("+", func(p *Process, receiver Value, args []Value) Value {
		called = true
		sum := receiver.SmiValue() + args[0].SmiValue()
		_, boxed, ok := p.NewInteger(p.Program.LargeIntegerClass, sum)
		if !ok {
			return NewFailure(FailureRetryAfterGC)
		}
		return boxed
	})
	smiClass := NewClass(0, "Smi", InstanceFormat{Type: InstanceTypeInstance}, nil, nil)
	smiClass.Methods.AddMethod(sel.ID, promoted)

	program := NewProgram()
	program.Selectors = table
	program.SmiClass = smiClass
	largeIntClass := NewClass(1, "LargeInteger", InstanceFormat{Type: InstanceTypeLargeInteger}, nil, nil)
	program.LargeIntegerClass = largeIntClass

	env := newTestEnvironment()
	p := NewProcess(program, 1<<16, env)
	stack, _, ok := p.NewStack(nil, 4)
	if !ok {
		t.Fatal("NewStack failed")
	}
	co := NewCoroutine(nil, stack)
	p.UpdateCoroutine(co)

	// Push operands directly (no bytecode literal can reach MaxSmi, a
	// 61-bit value); the instructions under test are just the numeric-op
	// send and the return.
	a, ok := NewSmi(MaxSmi)
	if !ok {
		t.Fatal("NewSmi(MaxSmi) should succeed")
	}
	stack.Push(a)
	stack.Push(a)

	code := []byte{
		byte(bc.OpInvokeMethodNumeric), byte(NumericAdd), 1,
		byte(bc.OpReturn),
	}
	fn := &Function{Name: "overflowAdd", Bytecode: code, MaxStack: 4}
	co.PushFrame(CallFrame{Function: fn, PC: 0, Base: 0})
	outcome := Run(p)

	if outcome.Kind != InterruptTerminated {
		t.Fatalf("Kind = %v, want InterruptTerminated", outcome.Kind)
	}
	if !called {
		t.Fatal("overflow should fall back to the real '+' method dispatch")
	}
	if !outcome.Value.IsHeapObject() {
		t.Fatal("the promoted result should be a heap-allocated LargeInteger")
	}
	li := (*LargeInteger)(outcome.Value.HeapObjectPointer())
	if li.Value != MaxSmi*2 {
		t.Errorf("LargeInteger.Value = %d, want %d", li.Value, MaxSmi*2)
	}
}

func TestInterpreterIdenticalDistinguishesNaNAndSignedZero(t *testing.T) {
	doubleClass := NewClass(0, "Double", InstanceFormat{Type: InstanceTypeDouble}, nil, nil)
	p := newTestProcess(t)
	_, nan1, ok := p.NewDouble(doubleClass, nanValue())
	if !ok {
		t.Fatal("NewDouble failed")
	}
	_, nan2, ok := p.NewDouble(doubleClass, nanValue())
	if !ok {
		t.Fatal("NewDouble failed")
	}
	if Identical(nan1, nan2) != True {
		t.Error("two NaN doubles should be Identical by raw bits")
	}

	_, posZero, ok := p.NewDouble(doubleClass, 0.0)
	if !ok {
		t.Fatal("NewDouble failed")
	}
	_, negZero, ok := p.NewDouble(doubleClass, negZeroValue())
	if !ok {
		t.Fatal("NewDouble failed")
	}
	if Identical(posZero, negZero) == True {
		t.Error("+0.0 and -0.0 should not be Identical (distinct raw bits)")
	}
}

func nanValue() float64 {
	var zero float64
	return zero / zero
}

func negZeroValue() float64 {
	var zero float64
	return -zero
}
