package vm

// Boxed is a single-slot mutable cell, used by the compiler to implement
// captured locals that closures may mutate after capture (spec.md §3).
type Boxed struct {
	HeapObject
	Slot Value
}

// NewBoxed allocates a Boxed cell containing v.
//
// Per spec.md §9's open question, StoreBoxed (process.go) inserts the cell
// into the store buffer whenever the stored value is an immutable-heap
// pointer; this allocator unifies with that policy rather than special-
// casing a null initial value, closing the discrepancy the open question
// flags between StoreBoxed and "the equivalent check in the boxed
// allocator".
func NewBoxed(c *Class, v Value) *Boxed {
	b := &Boxed{Slot: v}
	b.SetClass(c)
	return b
}

func (b *Boxed) Get() Value     { return b.Slot }
func (b *Boxed) Set(v Value)    { b.Slot = v }
