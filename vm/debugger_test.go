package vm

import "testing"

func TestBreakpointSetSetHasDelete(t *testing.T) {
	b := NewBreakpointSet()
	fn := &Function{Name: "f"}
	if b.Has(fn, 10) {
		t.Fatal("a fresh set should have no breakpoints")
	}
	b.Set(fn, 10)
	if !b.Has(fn, 10) {
		t.Error("Has should report a breakpoint just Set")
	}
	if b.Has(fn, 11) {
		t.Error("Has should not report a breakpoint at a different pc")
	}
	b.Delete(fn, 10)
	if b.Has(fn, 10) {
		t.Error("Has should not report a breakpoint after Delete")
	}
}

func TestBreakpointSetDistinguishesFunctions(t *testing.T) {
	b := NewBreakpointSet()
	fnA := &Function{Name: "a"}
	fnB := &Function{Name: "b"}
	b.Set(fnA, 5)
	if b.Has(fnB, 5) {
		t.Error("a breakpoint on one function's pc should not match another function at the same pc")
	}
	if !b.Has(fnA, 5) {
		t.Error("the original function's breakpoint should still be set")
	}
}

func TestFindClassByFormatMatchesInstanceType(t *testing.T) {
	program := NewProgram()
	stringClass := NewClass(1, "String", InstanceFormat{Type: InstanceTypeString}, nil, nil)
	doubleClass := NewClass(2, "Double", InstanceFormat{Type: InstanceTypeDouble}, nil, nil)
	program.Classes = []*Class{stringClass, doubleClass}

	if got := findClassByFormat(program, InstanceTypeDouble); got != doubleClass {
		t.Errorf("findClassByFormat(Double) = %v, want doubleClass", got)
	}
	if got := findClassByFormat(program, InstanceTypeString); got != stringClass {
		t.Errorf("findClassByFormat(String) = %v, want stringClass", got)
	}
}

func TestFindClassByFormatReturnsNilWhenAbsent(t *testing.T) {
	program := NewProgram()
	program.Classes = []*Class{
		NewClass(1, "String", InstanceFormat{Type: InstanceTypeString}, nil, nil),
	}
	if got := findClassByFormat(program, InstanceTypeLargeInteger); got != nil {
		t.Errorf("findClassByFormat for an absent type = %v, want nil", got)
	}
}
