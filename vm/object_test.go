package vm

import "testing"

func TestNewInstanceInlineSlots(t *testing.T) {
	c := NewClass(1, "Point", InstanceFormat{Type: InstanceTypeInstance}, nil, []string{"x", "y"})
	inst := NewInstance(c)
	if inst.NumSlots() != 2 {
		t.Fatalf("NumSlots() = %d, want 2", inst.NumSlots())
	}
	if len(inst.overflow) != 0 {
		t.Error("a 2-field class should fit entirely in the inline slots")
	}
}

func TestNewInstanceOverflowSlots(t *testing.T) {
	c := NewClass(1, "Big", InstanceFormat{Type: InstanceTypeInstance}, nil,
		[]string{"a", "b", "c", "d", "e", "f"})
	inst := NewInstance(c)
	if inst.NumSlots() != 6 {
		t.Fatalf("NumSlots() = %d, want 6", inst.NumSlots())
	}
	if len(inst.overflow) != 2 {
		t.Fatalf("overflow = %d slots, want 2", len(inst.overflow))
	}

	for i := 0; i < 6; i++ {
		v, _ := NewSmi(int64(i))
		inst.SetSlot(i, v)
	}
	for i := 0; i < 6; i++ {
		got := inst.GetSlot(i)
		if !got.IsSmi() || got.SmiValue() != int64(i) {
			t.Errorf("GetSlot(%d) = %v, want smi %d", i, got, i)
		}
	}
}

func TestInstanceForEachSlotVisitsEveryField(t *testing.T) {
	c := NewClass(1, "Big", InstanceFormat{Type: InstanceTypeInstance}, nil,
		[]string{"a", "b", "c", "d", "e"})
	inst := NewInstance(c)
	for i := 0; i < 5; i++ {
		v, _ := NewSmi(int64(i * 10))
		inst.SetSlot(i, v)
	}

	seen := make(map[int]int64)
	inst.ForEachSlot(func(index int, v Value) {
		if v.IsSmi() {
			seen[index] = v.SmiValue()
		}
	})
	if len(seen) != 5 {
		t.Fatalf("ForEachSlot visited %d fields, want 5", len(seen))
	}
	for i := 0; i < 5; i++ {
		if seen[i] != int64(i*10) {
			t.Errorf("slot %d = %d, want %d", i, seen[i], i*10)
		}
	}
}

func TestInstanceSetEachSlotRewritesInPlace(t *testing.T) {
	c := NewClass(1, "Big", InstanceFormat{Type: InstanceTypeInstance}, nil,
		[]string{"a", "b", "c", "d", "e"})
	inst := NewInstance(c)
	for i := 0; i < 5; i++ {
		v, _ := NewSmi(int64(i))
		inst.SetSlot(i, v)
	}

	inst.SetEachSlot(func(index int, v Value) Value {
		doubled, _ := NewSmi(v.SmiValue() * 2)
		return doubled
	})

	for i := 0; i < 5; i++ {
		got := inst.GetSlot(i)
		if got.SmiValue() != int64(i*2) {
			t.Errorf("slot %d after SetEachSlot = %d, want %d", i, got.SmiValue(), i*2)
		}
	}
}

func TestInstanceRuntimeImmutableFlag(t *testing.T) {
	c := NewClass(1, "Pair", InstanceFormat{Type: InstanceTypeInstance}, nil, []string{"a", "b"})
	inst := NewInstance(c)
	if inst.IsRuntimeImmutable() {
		t.Fatal("a freshly allocated instance must not start runtime-immutable")
	}
	inst.setRuntimeImmutable()
	if !inst.IsRuntimeImmutable() {
		t.Error("setRuntimeImmutable should set the flag")
	}
}
