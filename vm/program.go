package vm

import "fmt"

// Program is the immutable-after-load arena produced by the snapshot reader
// (snapshot.go): classes, functions, constants, statics, and the folded
// dispatch structures the interpreter consults. Per spec.md §9's design
// note, cyclic references within the arena (classes -> functions ->
// constants -> classes) are expressed as slice indices into Classes/
// Constants rather than raw Go pointers during snapshot construction; once
// Fold has run, every structure holds direct Go pointers as the rest of the
// engine expects; see snapshot.go for the index-based intermediate form.
type Program struct {
	Selectors *SelectorTable
	Immortal  *Heap // program heap: holds Classes, Functions, Constants

	Classes   []*Class
	Functions []*Function
	Constants []Value
	Statics   []Value

	// EntryFunction is the function a spawned root process's initial stack
	// is set up to call.
	EntryFunction *Function

	// VTable is the flat, program-wide virtual table for
	// invoke-method-vtable, populated by Fold.
	VTable *ProgramVTable

	SmiClass   *Class // the program's smi-class, used by invoke-method's
	// receiver-class computation when the receiver is a tagged smi.
	NilClass   *Class
	TrueClass  *Class
	FalseClass *Class

	// ArrayClass is the program's root Array class, used for internal
	// allocations that need an Array but have no more specific class at
	// hand (the enter-no-such-method args array, native varargs helpers).
	ArrayClass *Class

	// StackClass and CoroutineClass back every Stack/Coroutine this engine
	// allocates outside of a snapshot's own class table: the root process's
	// initial coroutine and every child spawned by Process._spawn
	// (natives_process.go).
	StackClass     *Class
	CoroutineClass *Class

	// LargeIntegerClass backs smi-overflowing integer results (negate,
	// invoke-method-numeric's slow path, native arithmetic).
	LargeIntegerClass *Class

	// WrongArgumentTypeClass and IndexOutOfBoundsClass back the exception
	// objects synthesized when a native returns the corresponding Failure
	// sentinel (spec.md §7: "reified into user-visible exception objects
	// and continued as if the native had thrown").
	WrongArgumentTypeClass *Class
	IndexOutOfBoundsClass  *Class

	// Natives is the flat table invoke-native / invoke-native-yield index
	// into by their u16 operand, populated at Setup time from natives.go's
	// registry (SPEC_FULL.md §12.1).
	Natives []Method

	// NoSuchMethodSelector is the (name, kind, arity) triple the interpreter
	// sends when invoke-method's dispatch misses every class in the
	// hierarchy (spec.md §4.1's enter-no-such-method/exit-no-such-method
	// pair). Assigned once, by the snapshot reader, from the program's own
	// interned "noSuchMethod" selector so user classes can override it like
	// any other method.
	NoSuchMethodSelector Selector

	// scheduler is set once, by NewScheduler, so Process._spawn's native
	// (natives_process.go) can reach the pool that owns its program
	// without threading a Scheduler through every allocation call.
	scheduler *Scheduler

	folding foldingStats
}

// ClassOfImmediate returns the class of one of the three singleton
// immediates, panicking if v is not one (callers check IsImmediate first).
func (p *Program) ClassOfImmediate(v Value) *Class {
	switch v {
	case Nil:
		return p.NilClass
	case True:
		return p.TrueClass
	case False:
		return p.FalseClass
	default:
		panic("vm: ClassOfImmediate called on a non-immediate value")
	}
}

type foldingStats struct {
	vtableFolded int
	cacheOnly    int
}

// FoldingReport is the supplemented diagnostic of SPEC_FULL.md §12.5: how
// many call sites the folding pass promoted to invoke-method-vtable versus
// left to resolve through invoke-method's primary cache.
type FoldingReport struct {
	VTableFolded int
	CacheOnly    int
}

func (p *Program) FoldingReport() FoldingReport {
	return FoldingReport{VTableFolded: p.folding.vtableFolded, CacheOnly: p.folding.cacheOnly}
}

// NewProgram constructs an empty program arena ready for the snapshot
// reader to populate.
func NewProgram() *Program {
	return &Program{Selectors: NewSelectorTable(), Immortal: NewImmutableHeap(1 << 28)}
}

// Fold performs the "program folding pass" spec.md §3's Lifecycles section
// refers to: it ensures a flat ProgramVTable exists before the snapshot
// reader starts calling FoldClassMethod, which does the actual per-method
// installation (folding needs each method's Selector, which only the
// reader has as it walks compiled method records).
func (p *Program) Fold() {
	if p.VTable == nil {
		p.VTable = NewProgramVTable(1, noSuchMethodTrampoline)
	}
	p.folding = foldingStats{}
}

// FoldClassMethod installs one (class, selector) -> method binding into the
// flat ProgramVTable, growing it as needed, and updates the folding report.
// Called by the snapshot reader once per compiled method as classes are
// materialized.
func (p *Program) FoldClassMethod(c *Class, sel Selector, m Method, intrinsic int) {
	if p.VTable == nil {
		p.VTable = NewProgramVTable(1, noSuchMethodTrampoline)
	}
	idx := c.ID + sel.Offset()
	p.VTable.Grow(idx)
	existing := p.VTable.entries[idx]
	if existing.Target != nil && existing.RecordedOffset == sel.Offset() && !existing.Selector.Equal(sel) {
		// Genuine offset collision between two distinct selectors that
		// happen to land on the same dense slot for this class id; leave
		// the table unfolded for this pair and count it for the report.
		p.folding.cacheOnly++
		return
	}
	p.VTable.Install(c, sel, m, intrinsic)
	p.folding.vtableFolded++
	c.Methods.AddMethod(sel.ID, m)
}

func (p *Program) String() string {
	return fmt.Sprintf("Program(classes=%d functions=%d)", len(p.Classes), len(p.Functions))
}
