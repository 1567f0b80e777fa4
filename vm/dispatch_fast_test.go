package vm

import "testing"

func TestFastDispatchTableRangeMatch(t *testing.T) {
	table := NewSelectorTable()
	sel := table.Selector("foo", SelectorMethod, 0)
	dt := NewFastDispatchTable(0, sel)
	m1 := &noopMethod{}
	m2 := &noopMethod{}
	dt.Add(0, 10, 0, m1)
	dt.Add(10, 20, 0, m2)

	if e, ok := dt.Dispatch(5); !ok || e.Target != m1 {
		t.Errorf("Dispatch(5) = (%v, %v), want m1", e.Target, ok)
	}
	if e, ok := dt.Dispatch(15); !ok || e.Target != m2 {
		t.Errorf("Dispatch(15) = (%v, %v), want m2", e.Target, ok)
	}
	if _, ok := dt.Dispatch(100); ok {
		t.Error("Dispatch outside every range should miss")
	}
}

func TestFastDispatchTableSentinelUpperMatchesEverythingAbove(t *testing.T) {
	table := NewSelectorTable()
	sel := table.Selector("bar", SelectorMethod, 1)
	dt := NewFastDispatchTable(1, sel)
	m := &noopMethod{}
	dt.Add(50, FastDispatchRangeMax, 0, m)

	if _, ok := dt.Dispatch(49); ok {
		t.Error("Dispatch below Lower should miss")
	}
	if e, ok := dt.Dispatch(50); !ok || e.Target != m {
		t.Error("Dispatch at Lower with a sentinel Upper should hit")
	}
	if e, ok := dt.Dispatch(1 << 20); !ok || e.Target != m {
		t.Error("Dispatch far above Lower with a sentinel Upper should still hit")
	}
}

func TestFastDispatchTableEmptyAlwaysMisses(t *testing.T) {
	table := NewSelectorTable()
	sel := table.Selector("baz", SelectorMethod, 0)
	dt := NewFastDispatchTable(0, sel)
	if _, ok := dt.Dispatch(0); ok {
		t.Error("an empty table should never match")
	}
}
