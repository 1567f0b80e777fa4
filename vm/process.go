package vm

import (
	"sync/atomic"

	"github.com/floitschG/fletch/internal/platform"
	"github.com/google/uuid"
)

// valueWordBytes is the wire size backing one Heap word of accounting, used
// only to size the real virtual-memory reservation memRegion holds
// alongside the accounting-based Heap (see heap.go's own design note) so
// the engine genuinely exercises the platform-level memory glue spec.md §1
// names as an external collaborator, rather than leaving it unreserved.
const valueWordBytes = 8

// Process is the lightweight, single-threaded actor of spec.md §4.4: it
// owns a mutable heap, a store buffer, a primary lookup cache, a current
// coroutine, its statics, and a mailbox of Ports. Exactly one worker thread
// holds a Process at any instant (spec.md §8's ownership invariant),
// enforced here by the owner flag the scheduler flips on dequeue/enqueue.
type Process struct {
	ID uuid.UUID

	Program *Program
	env     *Environment

	Mutable   *Heap
	Immutable *Heap // shared program-wide immutable heap

	Current *Coroutine
	Statics []Value

	Cache       *PrimaryCache
	StoreBuffer *StoreBuffer
	Identity    *IdentityHashTable

	Port    *Port
	Mailbox *Mailbox

	// memRegion is the real OS-backed reservation sized to the mutable
	// heap's word budget. heap.go's Heap itself stays the accounting-only
	// substitution already justified there; this reservation exists
	// purely so the engine holds genuine virtual memory for its mutable
	// generation rather than none at all, and is released on process
	// termination (Scheduler.terminate).
	memRegion *platform.Region

	// stackLimitSentinel, when set, makes the next HandleStackOverflow call
	// return StackInterrupt regardless of how much room the stack actually
	// has (spec.md §4.5's preemption mechanism).
	stackLimitSentinel atomic.Bool

	// owner guards the single-owner invariant; only the scheduler touches
	// it, via Acquire/Release.
	owner atomic.Bool

	// Breakpoints is nil unless a debug session is attached (DebugServer.
	// Attach, debugger.go); the interpreter's main loop consults it once
	// per frame fetch. resumeSkip suppresses the check exactly once after
	// a debug session resumes a process sitting on a breakpoint, so the
	// same (function, pc) doesn't re-trigger before the instruction there
	// has actually executed.
	Breakpoints *BreakpointSet
	resumeSkip  bool
}

// SkipNextBreakpointCheck arms the one-shot suppression flag a debug
// session's resume/step commands set before re-enqueueing a process that
// stopped at InterruptBreakpoint, so Run doesn't immediately re-report the
// same (function, pc) before that instruction has executed.
func (p *Process) SkipNextBreakpointCheck() { p.resumeSkip = true }

// NewProcess creates a process bound to program, with a fresh mutable heap
// of the given word capacity and the program's shared immutable heap.
func NewProcess(program *Program, mutableHeapWords int, env *Environment) *Process {
	p := &Process{
		ID:          uuid.New(),
		Program:     program,
		env:         env,
		Mutable:     NewMutableHeap(mutableHeapWords),
		Immutable:   program.Immortal,
		Statics:     make([]Value, len(program.Statics)),
		Cache:       NewPrimaryCache(DefaultPrimaryCacheSize),
		StoreBuffer: NewStoreBuffer(),
		Identity:    NewIdentityHashTable(),
		Mailbox:     NewMailbox(),
	}
	p.Port = NewPort(p)
	if region, err := platform.NewRegion(mutableHeapWords * valueWordBytes); err == nil {
		p.memRegion = region
	}
	copy(p.Statics, program.Statics)
	return p
}

// Acquire flips the single-owner flag, returning false if another worker
// already holds the process (a scheduler bug, never expected in practice).
func (p *Process) Acquire() bool { return p.owner.CompareAndSwap(false, true) }

// Release clears the single-owner flag.
func (p *Process) Release() { p.owner.Store(false) }

// ReleaseMemory returns the process's virtual-memory reservation to the
// OS. Called once, by the scheduler, when the process terminates.
func (p *Process) ReleaseMemory() {
	if p.memRegion != nil {
		p.memRegion.Release()
		p.memRegion = nil
	}
}

// RequestPreemption is called by the scheduler's tick handler to arrange
// that the next stack-overflow-check in this process returns StackInterrupt.
func (p *Process) RequestPreemption() { p.stackLimitSentinel.Store(true) }

// HandleStackOverflow implements stack-overflow-check(n) (spec.md §4.1): it
// first honors a pending preemption request, then defers to the current
// coroutine's Stack.EnsureRoom.
func (p *Process) HandleStackOverflow(n int) StackOverflowOutcome {
	if p.stackLimitSentinel.CompareAndSwap(true, false) {
		return StackInterrupt
	}
	return p.Current.CoroutineStack.EnsureRoom(n)
}

// UpdateCoroutine atomically switches the active coroutine, re-inserting
// the incoming coroutine's stack into the store buffer (spec.md §4.4's
// "coroutine change inserts the new stack into the store buffer
// unconditionally").
func (p *Process) UpdateCoroutine(c *Coroutine) {
	p.Current = c
	if c.CoroutineStack != nil {
		p.StoreBuffer.Insert(TagHeapObject(ptrOf(c.CoroutineStack)))
	}
}

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

// NewInstance allocates a mutable Instance of class c with every field left
// Nil. See FinalizeImmutableInstance for the deferred immutability decision
// of spec.md §4.3.
func (p *Process) NewInstance(c *Class) (*Instance, Value, bool) {
	inst := NewInstance(c)
	v := TagHeapObject(ptrOf(inst))
	if !p.Mutable.TryAllocate(v, 1+inst.NumSlots()) {
		return nil, 0, false
	}
	return inst, v, true
}

// isImmutableValue reports whether v is safe to embed in an immutable
// object without violating the cross-heap invariant of spec.md §8: smis
// and immediates always are, heap pointers are iff they point into the
// immutable heap.
func (p *Process) isImmutableValue(v Value) bool {
	if v.IsSmi() || v.IsImmediate() {
		return true
	}
	if !v.IsHeapObject() {
		return false
	}
	return p.Immutable.Contains(v)
}

// FinalizeImmutableInstance implements the deferred immutability decision
// of spec.md §4.3: once every field of inst (addressed by objValue) has
// been stored, check whether all fields are themselves immutable. If so,
// move the instance's bookkeeping into the immutable heap and mark it
// runtime-immutable; otherwise leave it exactly where NewInstance put it.
// This mirrors the source VM's "allocate mutable, check after
// initialization, relabel" sequencing rather than requiring callers to
// pre-scan field values before allocating.
func (p *Process) FinalizeImmutableInstance(inst *Instance, objValue Value) bool {
	allImmutable := true
	inst.ForEachSlot(func(_ int, v Value) {
		if !p.isImmutableValue(v) {
			allImmutable = false
		}
	})
	if !allImmutable {
		return false
	}
	size, ok := p.Mutable.objects[objValue]
	if !ok {
		return false
	}
	delete(p.Mutable.objects, objValue)
	p.Mutable.used -= size
	if !p.Immutable.TryAllocate(objValue, size) {
		// The immutable heap is full; leave the instance mutable rather
		// than losing track of it (FailureImmutableAllocationFailure is
		// reserved for allocations that originate directly in immutable
		// space, not for this relabeling step).
		p.Mutable.objects[objValue] = size
		p.Mutable.used += size
		return false
	}
	inst.setRuntimeImmutable()
	return true
}

// NewArray allocates a mutable Array of length n.
func (p *Process) NewArray(c *Class, n int) (*Array, Value, bool) {
	a := NewArray(c, n)
	v := TagHeapObject(ptrOf(a))
	if !p.Mutable.TryAllocate(v, 1+n) {
		return nil, 0, false
	}
	return a, v, true
}

// NewDouble allocates a boxed Double.
func (p *Process) NewDouble(c *Class, d float64) (*Double, Value, bool) {
	box := NewDouble(c, d)
	v := TagHeapObject(ptrOf(box))
	if !p.Mutable.TryAllocate(v, 2) {
		return nil, 0, false
	}
	return box, v, true
}

// NewInteger allocates a LargeInteger for a smi-overflowing value.
func (p *Process) NewInteger(c *Class, i int64) (*LargeInteger, Value, bool) {
	li := NewLargeInteger(c, i)
	v := TagHeapObject(ptrOf(li))
	if !p.Mutable.TryAllocate(v, 2) {
		return nil, 0, false
	}
	return li, v, true
}

// NewString allocates a String of length UTF-16 units.
func (p *Process) NewString(c *Class, length int) (*String, Value, bool) {
	s := NewString(c, length)
	v := TagHeapObject(ptrOf(s))
	if !p.Mutable.TryAllocate(v, 1+(length+1)/2) {
		return nil, 0, false
	}
	return s, v, true
}

// NewStack allocates a coroutine Stack.
func (p *Process) NewStack(c *Class, initialFrames int) (*Stack, Value, bool) {
	s := NewStack(c, initialFrames)
	v := TagHeapObject(ptrOf(s))
	if !p.Mutable.TryAllocate(v, 1+s.Cap()) {
		return nil, 0, false
	}
	return s, v, true
}

// NewBoxed allocates a Boxed cell containing initial, inserting it into the
// store buffer whenever initial is an immutable-heap pointer — the policy
// NewBoxed documents as closing spec.md §9's open question against
// StoreBoxed below.
func (p *Process) NewBoxed(c *Class, initial Value) (*Boxed, Value, bool) {
	b := NewBoxed(c, initial)
	v := TagHeapObject(ptrOf(b))
	if !p.Mutable.TryAllocate(v, 2) {
		return nil, 0, false
	}
	if initial.IsHeapObject() && p.Immutable.Contains(initial) {
		p.StoreBuffer.Insert(v)
	}
	return b, v, true
}

// StoreBoxed stores newValue into b (tagged as objValue), applying the same
// store-buffer policy as NewBoxed.
func (p *Process) StoreBoxed(b *Boxed, objValue, newValue Value) {
	b.Set(newValue)
	if newValue.IsHeapObject() && p.Immutable.Contains(newValue) {
		p.StoreBuffer.Insert(objValue)
	}
}

// StoreField stores v into inst's field index, inserting objValue into the
// store buffer when v is an immutable-heap pointer. Every bytecode that
// writes an object field goes through this rather than Instance.SetSlot
// directly, to keep the barrier from being forgotten.
func (p *Process) StoreField(inst *Instance, objValue Value, index int, v Value) {
	inst.SetSlot(index, v)
	if v.IsHeapObject() && p.Immutable.Contains(v) {
		p.StoreBuffer.Insert(objValue)
	}
}

// StoreArraySlot implements array-atPut's write barrier: the same
// cross-heap bookkeeping as StoreField, for an Array's variable-length
// slot vector rather than an Instance's fixed fields.
func (p *Process) StoreArraySlot(a *Array, objValue Value, index int, v Value) {
	a.AtPut(index, v)
	if v.IsHeapObject() && p.Immutable.Contains(v) {
		p.StoreBuffer.Insert(objValue)
	}
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

// ReceiverClass computes the receiver's class, special-casing tagged smis
// and the nil/true/false immediates per spec.md §4.1.
func (p *Process) ReceiverClass(receiver Value) *Class {
	switch {
	case receiver.IsSmi():
		return p.Program.SmiClass
	case receiver.IsImmediate():
		return p.Program.ClassOfImmediate(receiver)
	default:
		return AsHeapObject(receiver).Class()
	}
}

// LookupEntry implements invoke-method's dispatch: a primary-cache lookup,
// falling back to LookupEntrySlow on a miss.
func (p *Process) LookupEntry(receiver Value, sel Selector) (CacheTag, Method) {
	class := p.ReceiverClass(receiver)
	if tag, target, ok := p.Cache.Lookup(class, sel); ok {
		return tag, target
	}
	return p.LookupEntrySlow(class, sel)
}

// LookupEntrySlow walks the class hierarchy for sel, installing whatever it
// finds (or the noSuchMethod trampoline) into the primary cache before
// returning.
func (p *Process) LookupEntrySlow(class *Class, sel Selector) (CacheTag, Method) {
	m := class.Methods.Lookup(sel.ID)
	if m == nil {
		p.Cache.Insert(class, sel, CacheTagEmpty, noSuchMethodTrampoline)
		return CacheTagEmpty, noSuchMethodTrampoline
	}
	p.Cache.Insert(class, sel, CacheTagMethod, m)
	return CacheTagMethod, m
}

// ---------------------------------------------------------------------------
// GC
// ---------------------------------------------------------------------------

// CollectMutableGarbage scavenges the mutable heap using the current
// coroutine's live stack slots plus the store buffer's entries as roots,
// then unconditionally re-inserts the current stack into the now-empty
// store buffer, per spec.md §4.3.
func (p *Process) CollectMutableGarbage() int {
	roots := make([]Value, 0, 8)
	if p.Current != nil && p.Current.CoroutineStack != nil {
		roots = append(roots, p.Current.CoroutineStack.SlotsInUse()...)
	}
	roots = append(roots, p.StoreBuffer.Entries()...)
	reclaimed := p.Mutable.Scavenge(roots, p.visitChildren)
	p.StoreBuffer.Reset()
	if p.Current != nil && p.Current.CoroutineStack != nil {
		p.StoreBuffer.Insert(TagHeapObject(ptrOf(p.Current.CoroutineStack)))
	}
	return reclaimed
}

// visitChildren returns every outgoing Value pointer directly reachable
// from v, dispatching on the class's InstanceType the way spec.md §9's
// design note describes ("polymorphic operations become a dispatch over
// the type tag").
func (p *Process) visitChildren(v Value) []Value {
	if !v.IsHeapObject() {
		return nil
	}
	header := AsHeapObject(v)
	ptr := v.HeapObjectPointer()
	switch header.Class().Format.Type {
	case InstanceTypeInstance:
		inst := (*Instance)(ptr)
		out := make([]Value, 0, inst.NumSlots())
		inst.ForEachSlot(func(_ int, child Value) { out = append(out, child) })
		return out
	case InstanceTypeArray:
		arr := (*Array)(ptr)
		out := make([]Value, 0, arr.Len())
		arr.ForEachSlot(func(_ int, child Value) { out = append(out, child) })
		return out
	case InstanceTypeBoxed:
		b := (*Boxed)(ptr)
		return []Value{b.Slot}
	case InstanceTypeStack:
		s := (*Stack)(ptr)
		return append([]Value(nil), s.SlotsInUse()...)
	case InstanceTypeCoroutine:
		co := (*Coroutine)(ptr)
		var out []Value
		if co.CoroutineStack != nil {
			out = append(out, TagHeapObject(ptrOf(co.CoroutineStack)))
		}
		if co.Caller != nil && co.Caller != co {
			out = append(out, TagHeapObject(ptrOf(co.Caller)))
		}
		return out
	default:
		return nil
	}
}
