package vm

import "testing"

func TestSmiRoundTrip(t *testing.T) {
	cases := []int64{0, 1, -1, 42, MaxSmi, MinSmi, MaxSmi - 1, MinSmi + 1}
	for _, n := range cases {
		v, ok := NewSmi(n)
		if !ok {
			t.Fatalf("NewSmi(%d) reported out of range", n)
		}
		if !v.IsSmi() {
			t.Fatalf("NewSmi(%d).IsSmi() = false", n)
		}
		if got := v.SmiValue(); got != n {
			t.Errorf("SmiValue() = %d, want %d", got, n)
		}
	}
}

func TestSmiOutOfRange(t *testing.T) {
	if _, ok := NewSmi(MaxSmi + 1); ok {
		t.Error("NewSmi(MaxSmi+1) should report out of range")
	}
	if _, ok := NewSmi(MinSmi - 1); ok {
		t.Error("NewSmi(MinSmi-1) should report out of range")
	}
}

func TestImmediateSingletons(t *testing.T) {
	for _, v := range []Value{Nil, True, False} {
		if v.IsSmi() {
			t.Errorf("%v.IsSmi() = true, want false", v)
		}
		if v.IsHeapObject() {
			t.Errorf("%v.IsHeapObject() = true, want false", v)
		}
		if v.IsFailure() {
			t.Errorf("%v.IsFailure() = true, want false", v)
		}
		if !v.IsImmediate() {
			t.Errorf("%v.IsImmediate() = false, want true", v)
		}
	}
	if Nil == True || Nil == False || True == False {
		t.Error("Nil/True/False must be pairwise distinct")
	}
}

func TestTruthy(t *testing.T) {
	if Nil.IsTruthy() {
		t.Error("Nil should not be truthy")
	}
	if False.IsTruthy() {
		t.Error("False should not be truthy")
	}
	if !True.IsTruthy() {
		t.Error("True should be truthy")
	}
	smi, _ := NewSmi(0)
	if !smi.IsTruthy() {
		t.Error("smi zero should be truthy (only Nil/False are falsy)")
	}
}

func TestFailureRoundTrip(t *testing.T) {
	for _, f := range []Failure{FailureRetryAfterGC, FailureWrongArgumentType, FailureIndexOutOfBounds, FailureImmutableAllocationFailure} {
		v := NewFailure(f)
		if !v.IsFailure() {
			t.Fatalf("NewFailure(%v).IsFailure() = false", f)
		}
		if got := v.FailureCode(); got != f {
			t.Errorf("FailureCode() = %v, want %v", got, f)
		}
		if v.IsSmi() || v.IsHeapObject() || v.IsImmediate() {
			t.Errorf("failure %v tagged ambiguously", f)
		}
	}
}

func TestHeapObjectTagRoundTrip(t *testing.T) {
	c := NewClass(0, "Probe", InstanceFormat{Type: InstanceTypeInstance}, nil, nil)
	obj := NewInstance(c)
	v := TagHeapObject(ptrOf(obj))
	if !v.IsHeapObject() {
		t.Fatal("TagHeapObject result should report IsHeapObject")
	}
	if v.IsSmi() || v.IsFailure() || v.IsImmediate() {
		t.Error("heap pointer tagged ambiguously with another category")
	}
	got := AsHeapObject(v)
	if got.Class() != c {
		t.Errorf("AsHeapObject round-trip lost the class pointer")
	}
}
