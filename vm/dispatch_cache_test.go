package vm

import "testing"

func TestPrimaryCacheMissOnEmptySlot(t *testing.T) {
	c := NewPrimaryCache(16)
	class := NewClass(1, "Foo", InstanceFormat{Type: InstanceTypeInstance}, nil, nil)
	table := NewSelectorTable()
	sel := table.Selector("bar", SelectorMethod, 0)

	if _, _, ok := c.Lookup(class, sel); ok {
		t.Error("a fresh cache should miss on every lookup")
	}
}

func TestPrimaryCacheInsertThenHit(t *testing.T) {
	c := NewPrimaryCache(16)
	class := NewClass(1, "Foo", InstanceFormat{Type: InstanceTypeInstance}, nil, nil)
	table := NewSelectorTable()
	sel := table.Selector("bar", SelectorMethod, 0)
	method := &noopMethod{}

	c.Insert(class, sel, CacheTagMethod, method)
	tag, target, ok := c.Lookup(class, sel)
	if !ok {
		t.Fatal("expected a hit after Insert")
	}
	if tag != CacheTagMethod {
		t.Errorf("tag = %v, want CacheTagMethod", tag)
	}
	if target != method {
		t.Error("target should be the exact method inserted")
	}
}

func TestPrimaryCacheDifferentClassMisses(t *testing.T) {
	c := NewPrimaryCache(16)
	table := NewSelectorTable()
	sel := table.Selector("bar", SelectorMethod, 0)
	classA := NewClass(1, "A", InstanceFormat{Type: InstanceTypeInstance}, nil, nil)
	classB := NewClass(17, "B", InstanceFormat{Type: InstanceTypeInstance}, nil, nil)

	c.Insert(classA, sel, CacheTagMethod, &noopMethod{})
	if _, _, ok := c.Lookup(classB, sel); ok {
		t.Error("a lookup for a different class occupying the same slot should miss")
	}
}

func TestPrimaryCacheInvalidateAll(t *testing.T) {
	c := NewPrimaryCache(16)
	class := NewClass(1, "Foo", InstanceFormat{Type: InstanceTypeInstance}, nil, nil)
	table := NewSelectorTable()
	sel := table.Selector("bar", SelectorMethod, 0)
	c.Insert(class, sel, CacheTagMethod, &noopMethod{})

	c.InvalidateAll()
	if _, _, ok := c.Lookup(class, sel); ok {
		t.Error("InvalidateAll should clear every entry")
	}
}

func TestNewPrimaryCacheRejectsNonPowerOfTwo(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewPrimaryCache should panic on a non-power-of-two size")
		}
	}()
	NewPrimaryCache(17)
}
