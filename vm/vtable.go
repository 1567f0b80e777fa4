package vm

// VTable is a per-class method table indexed by selector id, with parent
// chain fallback for inherited methods not overridden locally. This is the
// structure the dispatch slow path (LookupEntrySlow) walks; it is distinct
// from the flat, program-wide VTable used by invoke-method-vtable (see
// ProgramVTable below), which is what spec.md §4.1 calls "the program
// carries a flat virtual table".
//
// Grounded on the teacher's vm/vtable.go (Lookup/AddMethod/parent chain).
type VTable struct {
	class   *Class
	parent  *VTable
	methods map[int]Method // selector id -> Method
}

// NewVTable creates an empty per-class method table.
func NewVTable(class *Class, parent *VTable) *VTable {
	return &VTable{class: class, parent: parent, methods: make(map[int]Method)}
}

// Lookup walks this vtable and its parent chain, returning the first method
// installed for selector, or nil.
func (vt *VTable) Lookup(selector int) Method {
	for v := vt; v != nil; v = v.parent {
		if m, ok := v.methods[selector]; ok {
			return m
		}
	}
	return nil
}

// LookupLocal returns the method installed directly on this vtable, without
// consulting parents.
func (vt *VTable) LookupLocal(selector int) Method {
	return vt.methods[selector]
}

// AddMethod installs or replaces a method for selector.
func (vt *VTable) AddMethod(selector int, m Method) {
	vt.methods[selector] = m
}

// RemoveMethod deletes a method for selector, used by change-method-table.
func (vt *VTable) RemoveMethod(selector int) {
	delete(vt.methods, selector)
}

// Class returns the class this vtable belongs to.
func (vt *VTable) Class() *Class { return vt.class }

// ---------------------------------------------------------------------------
// Program-wide flat vtable (invoke-method-vtable)
// ---------------------------------------------------------------------------

// VTableEntry is one slot of the program's flat virtual table, addressed by
// class.ID + selector.Offset(). RecordedOffset must equal the selector's
// offset for the entry to be trusted; a mismatch means the slot was never
// folded for that (class, selector) pair and dispatch must fall back to
// entry 0, the installed noSuchMethod trampoline.
type VTableEntry struct {
	RecordedOffset int
	Selector       Selector
	Intrinsic      int // 0 = none; >0 selects a native-compiled fast path
	Target         Method
}

// ProgramVTable is the folded, dense array described in spec.md §4.1.
// Index 0 is reserved for the noSuchMethod trampoline entry.
type ProgramVTable struct {
	entries []VTableEntry
}

// NewProgramVTable creates a flat vtable with capacity for size entries and
// installs trampoline as entry 0.
func NewProgramVTable(size int, trampoline Method) *ProgramVTable {
	pv := &ProgramVTable{entries: make([]VTableEntry, size)}
	if size > 0 {
		pv.entries[0] = VTableEntry{RecordedOffset: 0, Target: trampoline}
	}
	return pv
}

// Grow extends the table so index fits, preserving existing entries.
func (pv *ProgramVTable) Grow(index int) {
	if index < len(pv.entries) {
		return
	}
	grown := make([]VTableEntry, index+1)
	copy(grown, pv.entries)
	pv.entries = grown
}

// Install folds a (class, selector) -> method binding into the flat table at
// class.ID + selector.Offset(), recording the offset for later validation.
func (pv *ProgramVTable) Install(class *Class, sel Selector, method Method, intrinsic int) {
	idx := class.ID + sel.Offset()
	pv.Grow(idx)
	pv.entries[idx] = VTableEntry{RecordedOffset: sel.Offset(), Selector: sel, Intrinsic: intrinsic, Target: method}
}

// Dispatch performs invoke-method-vtable: index by class.ID+selector.Offset(),
// validate RecordedOffset, and fall back to the entry 0 trampoline on
// mismatch (an unfolded slot, or a slot that belongs to a different
// selector that happened to alias the same offset).
func (pv *ProgramVTable) Dispatch(class *Class, sel Selector) VTableEntry {
	idx := class.ID + sel.Offset()
	if idx < 0 || idx >= len(pv.entries) {
		return pv.entries[0]
	}
	e := pv.entries[idx]
	if e.RecordedOffset != sel.Offset() {
		return pv.entries[0]
	}
	return e
}

// Trampoline returns the entry 0 noSuchMethod trampoline entry.
func (pv *ProgramVTable) Trampoline() VTableEntry {
	if len(pv.entries) == 0 {
		return VTableEntry{}
	}
	return pv.entries[0]
}

// Len reports the number of allocated slots.
func (pv *ProgramVTable) Len() int { return len(pv.entries) }
