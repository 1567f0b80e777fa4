package vm

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// snapshotMagic and snapshotVersion identify the live program-snapshot wire
// format spec.md §6 describes: a pre-compiled program ready for RunSnapshot
// to load and drive to completion. This is distinct from the CBOR-based
// tooling export the write-snapshot debug opcode produces (snapshot_writer.go);
// the two never share a reader.
const (
	snapshotMagic   uint16 = 0xBEEF
	snapshotVersion uint16 = 1
)

// snapshotValueTag discriminates the literal/constant/static pool encoding.
// Everything beyond the three immediates and Smi carries an explicit class
// index, so decodeValue can dispatch on that class's own InstanceFormat
// rather than needing a second, parallel tag space to stay in sync with it.
type snapshotValueTag byte

const (
	svNil  snapshotValueTag = 0
	svTrue snapshotValueTag = 1
	svFalse snapshotValueTag = 2
	svSmi  snapshotValueTag = 3
	svHeap snapshotValueTag = 4
)

// snapshotMethodKind discriminates a class method record's target.
type snapshotMethodKind byte

const (
	smkCompiled snapshotMethodKind = 0
	smkNative   snapshotMethodKind = 1
)

// specialClassSlot indexes the header's fixed-size special-class table.
// Order is part of the wire format; a writer must emit exactly these ten
// slots in this order, -1 where the program defines no such class.
type specialClassSlot int

const (
	specialSmi specialClassSlot = iota
	specialNil
	specialTrue
	specialFalse
	specialArray
	specialLargeInteger
	specialWrongArgumentType
	specialIndexOutOfBounds
	specialStack
	specialCoroutine
	numSpecialClassSlots
)

// rawValue is the structural, pointer-free decoding of one literal/constant/
// static pool entry. Resolving it to a live Value (decodeValue) happens only
// after every class and function has been materialized, since a rawValue
// may reference either by index.
type rawValue struct {
	tag       snapshotValueTag
	smi       int64
	classIdx  int
	units     []uint16
	bits      uint64
	largeInt  int64
	elements  []rawValue
	funcIdx   int
}

type rawCatch struct {
	startPC, endPC   int
	catchesClassIdx  int // -1 = catches any
	handlerPC        int
	unwindDepth      int
}

type rawSelector struct {
	name  string
	kind  SelectorKind
	arity int
}

type rawMethod struct {
	sel       rawSelector
	kind      snapshotMethodKind
	funcIdx   int    // smkCompiled
	native    string // smkNative
	intrinsic int
}

type rawClass struct {
	name         string
	format       InstanceFormat
	superIdx     int // -1 = none
	instVarNames []string
	methods      []rawMethod
}

type rawFastEntry struct {
	lower, upper, intrinsic int
	targetKind              snapshotMethodKind
	targetClassIdx          int // smkCompiled
	targetFuncIdx           int // smkCompiled
	targetNative            string
}

type rawFastTable struct {
	sel     rawSelector
	entries []rawFastEntry
}

type rawFunction struct {
	name         string
	arity        int
	maxStack     int
	bytecode     []byte
	literals     []rawValue
	catches      []rawCatch
	callSites    []rawSelector
	fastDispatch []rawFastTable
}

type rawSnapshot struct {
	noSuchMethod  rawSelector
	entryFuncIdx  int
	special       [numSpecialClassSlots]int
	classes       []rawClass
	functions     []rawFunction
	constants     []rawValue
	statics       []rawValue
}

// ReadSnapshotFile opens path and decodes it with ReadSnapshot.
func ReadSnapshotFile(path string, program *Program, natives *NativeRegistry) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("vm: opening snapshot %q: %w", path, err)
	}
	defer f.Close()
	return ReadSnapshot(f, program, natives)
}

// ReadSnapshot decodes a binary program snapshot (spec.md §6) into program,
// resolving invoke-native call sites against natives. It is the only way a
// Program is populated outside of tests, which may build one by hand.
//
// Decoding happens in two phases: decodeStructure reads the entire stream
// into the rawSnapshot intermediate form with no pointer resolution, then
// materialize walks that form in three passes (classes, function stubs,
// function bodies/constants/statics) so forward references — a class's
// compiled method pointing at a function defined later in the stream, a
// function literal closing over another function not yet read — resolve to
// the same Go pointer every other reference to that index resolves to.
func ReadSnapshot(r io.Reader, program *Program, natives *NativeRegistry) error {
	br := &snapshotReader{r: bufio.NewReader(r)}
	raw, err := br.decodeStructure()
	if err != nil {
		return err
	}
	if br.err != nil {
		return br.err
	}
	return materialize(program, natives, raw)
}

// ---------------------------------------------------------------------------
// Byte-level reader
// ---------------------------------------------------------------------------

type snapshotReader struct {
	r   *bufio.Reader
	err error
}

func (br *snapshotReader) fail(err error) {
	if br.err == nil {
		br.err = err
	}
}

func (br *snapshotReader) u8() byte {
	if br.err != nil {
		return 0
	}
	b, err := br.r.ReadByte()
	if err != nil {
		br.fail(fmt.Errorf("vm: snapshot: %w", err))
		return 0
	}
	return b
}

func (br *snapshotReader) bytes(n int) []byte {
	if br.err != nil || n == 0 {
		return nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(br.r, buf); err != nil {
		br.fail(fmt.Errorf("vm: snapshot: reading %d bytes: %w", n, err))
		return nil
	}
	return buf
}

func (br *snapshotReader) u16() uint16 {
	b := br.bytes(2)
	if len(b) < 2 {
		return 0
	}
	return uint16(b[0]) | uint16(b[1])<<8
}

func (br *snapshotReader) u32() uint32 {
	b := br.bytes(4)
	if len(b) < 4 {
		return 0
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func (br *snapshotReader) u64() uint64 {
	b := br.bytes(8)
	if len(b) < 8 {
		return 0
	}
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func (br *snapshotReader) i32() int32 { return int32(br.u32()) }
func (br *snapshotReader) i64() int64 { return int64(br.u64()) }

// str reads a length-prefixed (u32 byte count) UTF-8 string, the encoding
// used for every name in the snapshot (class/selector/native names); string
// *values* in the constant pool use str16 instead, since this engine's
// String object stores UTF-16 code units directly (string.go).
func (br *snapshotReader) str() string {
	n := int(br.u32())
	if n == 0 {
		return ""
	}
	return string(br.bytes(n))
}

// str16 reads a length-prefixed (u32 unit count) run of little-endian UTF-16
// code units, matching String.Units' representation exactly so decodeValue
// never has to re-encode.
func (br *snapshotReader) str16() []uint16 {
	n := int(br.u32())
	if n == 0 {
		return nil
	}
	units := make([]uint16, n)
	for i := range units {
		units[i] = br.u16()
	}
	return units
}

// ---------------------------------------------------------------------------
// Structural decode (phase 1: no pointer resolution)
// ---------------------------------------------------------------------------

func (br *snapshotReader) decodeStructure() (*rawSnapshot, error) {
	magic := br.u16()
	version := br.u16()
	if br.err != nil {
		return nil, br.err
	}
	if magic != snapshotMagic {
		return nil, fmt.Errorf("vm: snapshot: bad magic %#04x", magic)
	}
	if version != snapshotVersion {
		return nil, fmt.Errorf("vm: snapshot: unsupported version %d", version)
	}

	classCount := int(br.u32())
	functionCount := int(br.u32())
	constantCount := int(br.u32())
	staticCount := int(br.u32())

	raw := &rawSnapshot{}
	raw.noSuchMethod = br.readSelector()
	raw.entryFuncIdx = int(br.u32())
	for i := 0; i < int(numSpecialClassSlots); i++ {
		raw.special[i] = int(br.i32())
	}

	raw.classes = make([]rawClass, classCount)
	for i := range raw.classes {
		raw.classes[i] = br.readClass()
	}

	raw.functions = make([]rawFunction, functionCount)
	for i := range raw.functions {
		raw.functions[i] = br.readFunction()
	}

	raw.constants = make([]rawValue, constantCount)
	for i := range raw.constants {
		raw.constants[i] = br.readValue()
	}

	raw.statics = make([]rawValue, staticCount)
	for i := range raw.statics {
		raw.statics[i] = br.readValue()
	}

	if br.err != nil {
		return nil, br.err
	}
	return raw, nil
}

func (br *snapshotReader) readSelector() rawSelector {
	name := br.str()
	kind := SelectorKind(br.u8())
	arity := int(br.u8())
	return rawSelector{name: name, kind: kind, arity: arity}
}

func (br *snapshotReader) readClass() rawClass {
	c := rawClass{}
	c.name = br.str()
	c.format.Type = InstanceType(br.u8())
	c.format.FixedSize = int(br.u32())
	c.format.MutableByDefault = br.u8() != 0
	c.superIdx = int(br.i32())

	nInstVars := int(br.u32())
	c.instVarNames = make([]string, nInstVars)
	for i := range c.instVarNames {
		c.instVarNames[i] = br.str()
	}

	nMethods := int(br.u32())
	c.methods = make([]rawMethod, nMethods)
	for i := range c.methods {
		m := rawMethod{}
		m.sel = br.readSelector()
		m.kind = snapshotMethodKind(br.u8())
		switch m.kind {
		case smkCompiled:
			m.funcIdx = int(br.u32())
		case smkNative:
			m.native = br.str()
		}
		m.intrinsic = int(br.u32())
		c.methods[i] = m
	}
	return c
}

func (br *snapshotReader) readFunction() rawFunction {
	f := rawFunction{}
	f.name = br.str()
	f.arity = int(br.u32())
	f.maxStack = int(br.u32())

	codeLen := int(br.u32())
	f.bytecode = br.bytes(codeLen)

	nLiterals := int(br.u32())
	f.literals = make([]rawValue, nLiterals)
	for i := range f.literals {
		f.literals[i] = br.readValue()
	}

	nCatches := int(br.u32())
	f.catches = make([]rawCatch, nCatches)
	for i := range f.catches {
		f.catches[i] = rawCatch{
			startPC:         int(br.u32()),
			endPC:           int(br.u32()),
			catchesClassIdx: int(br.i32()),
			handlerPC:       int(br.u32()),
			unwindDepth:     int(br.u32()),
		}
	}

	nCallSites := int(br.u32())
	f.callSites = make([]rawSelector, nCallSites)
	for i := range f.callSites {
		f.callSites[i] = br.readSelector()
	}

	nFast := int(br.u32())
	f.fastDispatch = make([]rawFastTable, nFast)
	for i := range f.fastDispatch {
		t := rawFastTable{sel: br.readSelector()}
		nEntries := int(br.u32())
		t.entries = make([]rawFastEntry, nEntries)
		for j := range t.entries {
			e := rawFastEntry{}
			e.lower = int(br.i32())
			upper := br.i32()
			if upper == -1 {
				e.upper = FastDispatchRangeMax
			} else {
				e.upper = int(upper)
			}
			e.intrinsic = int(br.u32())
			e.targetKind = snapshotMethodKind(br.u8())
			switch e.targetKind {
			case smkCompiled:
				e.targetClassIdx = int(br.u32())
				e.targetFuncIdx = int(br.u32())
			case smkNative:
				e.targetNative = br.str()
			}
			t.entries[j] = e
		}
		f.fastDispatch[i] = t
	}
	return f
}

func (br *snapshotReader) readValue() rawValue {
	v := rawValue{tag: snapshotValueTag(br.u8())}
	switch v.tag {
	case svNil, svTrue, svFalse:
	case svSmi:
		v.smi = br.i64()
	case svHeap:
		v.classIdx = int(br.u32())
		// The payload shape is resolved later, against the class's own
		// InstanceFormat.Type once materialized (decodeValue below) — but
		// the wire format still needs a shape to read here, so every
		// heap value carries a payload-kind byte followed by exactly the
		// one payload that kind names.
		switch snapshotHeapPayloadKind(br.u8()) {
		case payloadUnits:
			v.units = br.str16()
		case payloadBits:
			v.bits = br.u64()
		case payloadLargeInt:
			v.largeInt = br.i64()
		case payloadElements:
			n := int(br.u32())
			v.elements = make([]rawValue, n)
			for i := range v.elements {
				v.elements[i] = br.readValue()
			}
		case payloadFuncRef:
			v.funcIdx = int(br.u32())
		case payloadClassRef:
			v.elements = []rawValue{{tag: svSmi, smi: br.i64()}} // reuse: smi carries the ref index
		}
	}
	return v
}

// snapshotHeapPayloadKind tags which of rawValue's payload fields a heap
// value record carries on the wire, written by the encoder alongside the
// class index so the reader need not have the class's InstanceFormat in
// hand yet to know how many bytes follow.
type snapshotHeapPayloadKind byte

const (
	payloadUnits     snapshotHeapPayloadKind = 0 // String
	payloadBits      snapshotHeapPayloadKind = 1 // Double
	payloadLargeInt  snapshotHeapPayloadKind = 2 // LargeInteger
	payloadElements  snapshotHeapPayloadKind = 3 // Array, or general Instance fields
	payloadFuncRef   snapshotHeapPayloadKind = 4 // Function literal
	payloadClassRef  snapshotHeapPayloadKind = 5 // Class literal
)

// ---------------------------------------------------------------------------
// Materialization (phases 2-4: classes, function stubs, bodies)
// ---------------------------------------------------------------------------

func materialize(program *Program, natives *NativeRegistry, raw *rawSnapshot) error {
	classes, err := materializeClasses(raw.classes)
	if err != nil {
		return err
	}
	program.Classes = classes
	assignSpecialClasses(program, classes, raw.special)

	functions := make([]*Function, len(raw.functions))
	for i, rf := range raw.functions {
		functions[i] = &Function{Name: rf.name, Arity: rf.arity, MaxStack: rf.maxStack}
	}
	program.Functions = functions

	program.Fold()
	for ci, rc := range raw.classes {
		class := classes[ci]
		for _, rm := range rc.methods {
			sel := program.Selectors.Selector(rm.sel.name, rm.sel.kind, rm.sel.arity)
			method, err := resolveMethod(natives, functions, sel, class, rm.kind, rm.funcIdx, rm.native)
			if err != nil {
				return fmt.Errorf("vm: snapshot: class %q method %q: %w", rc.name, rm.sel.name, err)
			}
			program.FoldClassMethod(class, sel, method, rm.intrinsic)
		}
	}

	for i, rf := range raw.functions {
		fn := functions[i]
		fn.Bytecode = rf.bytecode

		fn.Literals = make([]Value, len(rf.literals))
		for j, rv := range rf.literals {
			v, err := decodeValue(program, classes, functions, rv)
			if err != nil {
				return fmt.Errorf("vm: snapshot: function %q literal %d: %w", rf.name, j, err)
			}
			fn.Literals[j] = v
		}

		fn.Catches = make([]CatchRegion, len(rf.catches))
		for j, rc := range rf.catches {
			var catches *Class
			if rc.catchesClassIdx >= 0 {
				if rc.catchesClassIdx >= len(classes) {
					return fmt.Errorf("vm: snapshot: function %q catch %d: class index %d out of range", rf.name, j, rc.catchesClassIdx)
				}
				catches = classes[rc.catchesClassIdx]
			}
			fn.Catches[j] = CatchRegion{
				StartPC: rc.startPC, EndPC: rc.endPC,
				Catches: catches, HandlerPC: rc.handlerPC, UnwindDepth: rc.unwindDepth,
			}
		}

		fn.CallSites = make([]Selector, len(rf.callSites))
		for j, rs := range rf.callSites {
			fn.CallSites[j] = program.Selectors.Selector(rs.name, rs.kind, rs.arity)
		}

		fn.FastDispatch = make([]*FastDispatchTable, len(rf.fastDispatch))
		for j, rt := range rf.fastDispatch {
			sel := program.Selectors.Selector(rt.sel.name, rt.sel.kind, rt.sel.arity)
			table := NewFastDispatchTable(rt.sel.arity, sel)
			for _, re := range rt.entries {
				var target Method
				var err error
				if re.targetKind == smkCompiled {
					if re.targetClassIdx < 0 || re.targetClassIdx >= len(classes) {
						return fmt.Errorf("vm: snapshot: function %q fast-dispatch entry: class index %d out of range", rf.name, re.targetClassIdx)
					}
					target, err = resolveMethod(natives, functions, sel, classes[re.targetClassIdx], re.targetKind, re.targetFuncIdx, re.targetNative)
				} else {
					target, err = resolveMethod(natives, functions, sel, nil, re.targetKind, 0, re.targetNative)
				}
				if err != nil {
					return fmt.Errorf("vm: snapshot: function %q fast-dispatch entry: %w", rf.name, err)
				}
				table.Add(re.lower, re.upper, re.intrinsic, target)
			}
			fn.FastDispatch[j] = table
		}
	}

	program.Constants = make([]Value, len(raw.constants))
	for i, rv := range raw.constants {
		v, err := decodeValue(program, classes, functions, rv)
		if err != nil {
			return fmt.Errorf("vm: snapshot: constant %d: %w", i, err)
		}
		program.Constants[i] = v
	}

	program.Statics = make([]Value, len(raw.statics))
	for i, rv := range raw.statics {
		v, err := decodeValue(program, classes, functions, rv)
		if err != nil {
			return fmt.Errorf("vm: snapshot: static %d: %w", i, err)
		}
		program.Statics[i] = v
	}

	if raw.entryFuncIdx < 0 || raw.entryFuncIdx >= len(functions) {
		return fmt.Errorf("vm: snapshot: entry function index %d out of range", raw.entryFuncIdx)
	}
	program.EntryFunction = functions[raw.entryFuncIdx]
	program.NoSuchMethodSelector = program.Selectors.Selector(raw.noSuchMethod.name, raw.noSuchMethod.kind, raw.noSuchMethod.arity)
	program.Natives = natives.Table()

	return nil
}

func materializeClasses(raw []rawClass) ([]*Class, error) {
	classes := make([]*Class, len(raw))
	for i, rc := range raw {
		var super *Class
		if rc.superIdx >= 0 {
			if rc.superIdx >= i {
				return nil, fmt.Errorf("vm: snapshot: class %q superclass index %d is not topologically earlier", rc.name, rc.superIdx)
			}
			super = classes[rc.superIdx]
		}
		classes[i] = NewClass(i, rc.name, rc.format, super, rc.instVarNames)
	}
	return classes, nil
}

func assignSpecialClasses(program *Program, classes []*Class, special [numSpecialClassSlots]int) {
	at := func(slot specialClassSlot) *Class {
		idx := special[slot]
		if idx < 0 || idx >= len(classes) {
			return nil
		}
		return classes[idx]
	}
	program.SmiClass = at(specialSmi)
	program.NilClass = at(specialNil)
	program.TrueClass = at(specialTrue)
	program.FalseClass = at(specialFalse)
	program.ArrayClass = at(specialArray)
	program.LargeIntegerClass = at(specialLargeInteger)
	program.WrongArgumentTypeClass = at(specialWrongArgumentType)
	program.IndexOutOfBoundsClass = at(specialIndexOutOfBounds)
	program.StackClass = at(specialStack)
	program.CoroutineClass = at(specialCoroutine)
}

func resolveMethod(natives *NativeRegistry, functions []*Function, sel Selector, class *Class, kind snapshotMethodKind, funcIdx int, nativeName string) (Method, error) {
	switch kind {
	case smkCompiled:
		if funcIdx < 0 || funcIdx >= len(functions) {
			return nil, fmt.Errorf("function index %d out of range", funcIdx)
		}
		return &CompiledMethod{Selector: sel, Class: class, Body: functions[funcIdx]}, nil
	case smkNative:
		idx, ok := natives.Index(nativeName)
		if !ok {
			return nil, fmt.Errorf("unregistered native %q", nativeName)
		}
		return natives.Table()[idx], nil
	default:
		return nil, fmt.Errorf("unknown method kind %d", kind)
	}
}

// decodeValue resolves a rawValue to a live Value, allocating any heap
// object it needs directly into program.Immortal — every constant the
// snapshot carries is immutable and program-lifetime by construction, so
// there is no mutable-heap intermediate step the way a running program's
// own allocation bytecodes have (Process.NewInstance et al.).
func decodeValue(program *Program, classes []*Class, functions []*Function, rv rawValue) (Value, error) {
	switch rv.tag {
	case svNil:
		return Nil, nil
	case svTrue:
		return True, nil
	case svFalse:
		return False, nil
	case svSmi:
		v, ok := NewSmi(rv.smi)
		if !ok {
			return 0, fmt.Errorf("smi %d out of representable range", rv.smi)
		}
		return v, nil
	case svHeap:
		if rv.classIdx < 0 || rv.classIdx >= len(classes) {
			return 0, fmt.Errorf("class index %d out of range", rv.classIdx)
		}
		class := classes[rv.classIdx]
		switch class.Format.Type {
		case InstanceTypeString:
			s := NewString(class, len(rv.units))
			copy(s.Units, rv.units)
			v := TagHeapObject(ptrOf(s))
			return v, internToImmortal(program, v, 1+(len(rv.units)+1)/2)
		case InstanceTypeDouble:
			d := &Double{Bits: rv.bits}
			d.SetClass(class)
			v := TagHeapObject(ptrOf(d))
			return v, internToImmortal(program, v, 2)
		case InstanceTypeLargeInteger:
			li := NewLargeInteger(class, rv.largeInt)
			v := TagHeapObject(ptrOf(li))
			return v, internToImmortal(program, v, 2)
		case InstanceTypeArray:
			a := NewArray(class, len(rv.elements))
			v := TagHeapObject(ptrOf(a))
			for i, el := range rv.elements {
				ev, err := decodeValue(program, classes, functions, el)
				if err != nil {
					return 0, err
				}
				a.AtPut(i, ev)
			}
			return v, internToImmortal(program, v, 1+len(rv.elements))
		case InstanceTypeFunction:
			if rv.funcIdx < 0 || rv.funcIdx >= len(functions) {
				return 0, fmt.Errorf("function index %d out of range", rv.funcIdx)
			}
			fn := functions[rv.funcIdx]
			if fn.Class() == nil {
				fn.SetClass(class)
			}
			return TagHeapObject(ptrOf(fn)), nil
		case InstanceTypeClass:
			if len(rv.elements) != 1 {
				return 0, fmt.Errorf("malformed class-literal value")
			}
			refIdx := int(rv.elements[0].smi)
			if refIdx < 0 || refIdx >= len(classes) {
				return 0, fmt.Errorf("class-literal index %d out of range", refIdx)
			}
			// The referenced class's own metaclass is left unset; nothing
			// in this engine's end-to-end scenarios sends a message to a
			// class used as a first-class value.
			return TagHeapObject(ptrOf(classes[refIdx])), nil
		default:
			inst := NewInstance(class)
			v := TagHeapObject(ptrOf(inst))
			for i, el := range rv.elements {
				ev, err := decodeValue(program, classes, functions, el)
				if err != nil {
					return 0, err
				}
				inst.SetSlot(i, ev)
			}
			return v, internToImmortal(program, v, 1+inst.NumSlots())
		}
	default:
		return 0, fmt.Errorf("unknown value tag %d", rv.tag)
	}
}

// internToImmortal places v into the program's shared immortal heap. Unlike
// a running process's retry-after-gc allocation path, failure here is fatal
// — there is no live process yet to collect against, so a snapshot whose
// constant pool overflows Config.Heap.ImmutableWords cannot load at all.
func internToImmortal(program *Program, v Value, words int) error {
	if !program.Immortal.TryAllocate(v, words) {
		return fmt.Errorf("immortal heap exhausted (capacity %d words)", program.Immortal.Capacity())
	}
	return nil
}
