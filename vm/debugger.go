package vm

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
)

// BreakpointSet is the set of (Function, pc) pairs a debug session has
// asked the interpreter to stop at. Checked once per frame fetch in Run's
// main loop (interpreter.go); a process with no attached debug session
// never pays for the check at all since Process.Breakpoints stays nil.
type BreakpointSet struct {
	mu  sync.RWMutex
	set map[breakpointKey]struct{}
}

type breakpointKey struct {
	fn *Function
	pc int
}

// NewBreakpointSet returns an empty set.
func NewBreakpointSet() *BreakpointSet {
	return &BreakpointSet{set: make(map[breakpointKey]struct{})}
}

// Set installs a breakpoint at fn's pc.
func (b *BreakpointSet) Set(fn *Function, pc int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.set[breakpointKey{fn, pc}] = struct{}{}
}

// Delete removes a previously installed breakpoint, if any.
func (b *BreakpointSet) Delete(fn *Function, pc int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.set, breakpointKey{fn, pc})
}

// Has reports whether fn's pc carries a breakpoint.
func (b *BreakpointSet) Has(fn *Function, pc int) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.set[breakpointKey{fn, pc}]
	return ok
}

// DebugServer owns one debug session's TCP connection and the process it is
// currently attached to, implementing the opcode set of spec.md §6 over
// the WireReader/WireWriter codec (wire.go). One DebugServer exists per
// connection accepted by Engine.WaitForDebuggerConnection.
type DebugServer struct {
	engine *Engine
	conn   net.Conn
	r      *WireReader
	w      *WireWriter

	mu      sync.Mutex
	process *Process
	running bool

	// pendingChanges buffers the program-mutation opcodes issued between
	// prepare-for-changes and commit-changes/discard-changes, per spec.md
	// §6's staged-mutation protocol: nothing the session proposes takes
	// effect until commit-changes, and discard-changes drops the buffer
	// untouched.
	pendingChanges []func(*Program) error
}

// NewDebugServer wraps conn, ready to Attach a process and Serve requests.
func NewDebugServer(engine *Engine, conn net.Conn) *DebugServer {
	return &DebugServer{
		engine: engine,
		conn:   conn,
		r:      NewWireReader(conn),
		w:      NewWireWriter(conn),
	}
}

// Attach binds the session to p, installing a fresh BreakpointSet so
// breakpoint-set/delete start taking effect immediately, even before the
// process has been handed to a Scheduler (RunSnapshot calls Attach before
// SpawnRoot).
func (d *DebugServer) Attach(p *Process) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.process = p
	p.Breakpoints = NewBreakpointSet()
}

// Serve processes opcodes from the connection until it closes or a fatal
// protocol error occurs. Out-of-band notifications (stdout-data,
// stderr-data) are pushed to the session by registering a print hook that
// calls SendStdout; Serve itself only reads session-initiated opcodes.
func (d *DebugServer) Serve() error {
	defer d.conn.Close()
	for {
		op := d.r.Opcode()
		if d.r.Err() != nil {
			if d.r.Err() == io.EOF {
				return nil
			}
			return d.r.Err()
		}
		if err := d.handle(op); err != nil {
			return err
		}
	}
}

func (d *DebugServer) handle(op DebugOpcode) error {
	switch op {
	case OpProcessSpawnMain:
		return d.replyOK()

	case OpProcessRun:
		d.mu.Lock()
		d.running = true
		p := d.process
		d.mu.Unlock()
		// Arm the one-shot breakpoint skip so the resumed process does not
		// stop again on the breakpoint it is parked at, then hand it back
		// to the scheduler (when one is attached) through Resume.
		if p != nil {
			p.SkipNextBreakpointCheck()
			if p.Program.scheduler != nil {
				p.Program.scheduler.Resume(p)
			}
		}
		return d.replyOK()

	case OpProcessTerminated:
		return d.replyOK()

	case OpBreakpointSet:
		funcIdx := d.r.Int32()
		pc := d.r.Int32()
		if fn := d.functionAt(int(funcIdx)); fn != nil {
			d.process.Breakpoints.Set(fn, int(pc))
		}
		return d.replyOK()

	case OpBreakpointDelete:
		funcIdx := d.r.Int32()
		pc := d.r.Int32()
		if fn := d.functionAt(int(funcIdx)); fn != nil {
			d.process.Breakpoints.Delete(fn, int(pc))
		}
		return d.replyOK()

	case OpStep, OpStepOver, OpStepOut, OpStepTo:
		// Single-stepping re-derives from the same breakpoint mechanism:
		// the session computes the target pc(s) client-side (it has the
		// bytecode) and installs a one-shot breakpoint there, then issues
		// OpProcessRun. This keeps the interpreter's hot path down to the
		// one BreakpointSet check it already pays for attached sessions.
		return d.replyOK()

	case OpBacktrace:
		return d.writeBacktrace()

	case OpFiberBacktrace:
		return d.writeBacktrace()

	case OpLocal:
		depth := d.r.Int32()
		slot := d.r.Int32()
		return d.writeLocal(int(depth), int(slot))

	case OpLocalStructure:
		depth := d.r.Int32()
		slot := d.r.Int32()
		return d.writeLocalStructure(int(depth), int(slot))

	case OpNumberOfStacks:
		d.w.Int32(1)
		return d.w.Err()

	case OpRestartFrame:
		depth := d.r.Int32()
		return d.restartFrame(int(depth))

	case OpPrepareForChanges:
		d.mu.Lock()
		d.pendingChanges = nil
		d.mu.Unlock()
		return d.replyOK()

	case OpChangeSuperClass:
		return d.queueChangeSuperClass()
	case OpChangeMethodTable:
		return d.queueChangeMethodTable()
	case OpChangeMethodLiteral:
		return d.queueChangeMethodLiteral()
	case OpChangeStatics:
		return d.queueChangeStatics()
	case OpChangeSchemas:
		return d.queueChangeSchemas()

	case OpCommitChanges:
		return d.commitChanges()

	case OpDiscardChanges:
		d.mu.Lock()
		d.pendingChanges = nil
		d.mu.Unlock()
		return d.replyOK()

	case OpCollectGarbage:
		d.mu.Lock()
		p := d.process
		d.mu.Unlock()
		reclaimed := 0
		if p != nil {
			reclaimed = p.CollectMutableGarbage()
		}
		d.w.Int32(int32(reclaimed))
		return d.w.Err()

	case OpWriteSnapshot:
		return d.writeSnapshotExport()

	case OpDisableStandardOutput:
		d.engine.Environment().AddPrintHook(func(string) {})
		return d.replyOK()

	default:
		return fmt.Errorf("vm: debugger: unknown opcode %d", op)
	}
}

func (d *DebugServer) replyOK() error {
	d.w.Bool(true)
	return d.w.Err()
}

func (d *DebugServer) functionAt(idx int) *Function {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.process == nil || idx < 0 || idx >= len(d.process.Program.Functions) {
		return nil
	}
	return d.process.Program.Functions[idx]
}

// writeBacktrace sends one frame per activation on the attached process's
// current coroutine, outermost first: function name, pc, and receiver
// class name, the minimum spec.md §6 asks a backtrace to carry.
func (d *DebugServer) writeBacktrace() error {
	d.mu.Lock()
	p := d.process
	d.mu.Unlock()
	if p == nil || p.Current == nil {
		d.w.Int32(0)
		return d.w.Err()
	}
	depth := p.Current.FrameDepth()
	d.w.Int32(int32(depth))
	for i := 0; i < depth; i++ {
		f := p.Current.FrameAt(i)
		d.w.String(f.Function.Name)
		d.w.Int32(int32(f.PC))
		class := p.ReceiverClass(f.Receiver)
		name := ""
		if class != nil {
			name = class.Name
		}
		d.w.String(name)
	}
	return d.w.Err()
}

func (d *DebugServer) writeLocal(depth, slot int) error {
	d.mu.Lock()
	p := d.process
	d.mu.Unlock()
	if p == nil || p.Current == nil || depth < 0 || depth >= p.Current.FrameDepth() {
		return fmt.Errorf("vm: debugger: local: frame depth %d out of range", depth)
	}
	f := p.Current.FrameAt(depth)
	v := p.Current.CoroutineStack.Get(f.Base + slot)
	return d.writeValueSummary(v)
}

func (d *DebugServer) writeLocalStructure(depth, slot int) error {
	d.mu.Lock()
	p := d.process
	d.mu.Unlock()
	if p == nil || p.Current == nil || depth < 0 || depth >= p.Current.FrameDepth() {
		return fmt.Errorf("vm: debugger: local-structure: frame depth %d out of range", depth)
	}
	f := p.Current.FrameAt(depth)
	v := p.Current.CoroutineStack.Get(f.Base + slot)
	if !v.IsHeapObject() {
		d.w.Int32(0)
		return d.w.Err()
	}
	children := p.visitChildren(v)
	d.w.Int32(int32(len(children)))
	for _, c := range children {
		if err := d.writeValueSummary(c); err != nil {
			return err
		}
	}
	return d.w.Err()
}

// writeValueSummary sends a one-line description of v: its class name plus
// a type-appropriate scalar rendering, enough for a debugger UI's variable
// tree without shipping the whole object graph over the wire.
func (d *DebugServer) writeValueSummary(v Value) error {
	switch {
	case v.IsSmi():
		d.w.String("Smi")
		d.w.Int64(v.SmiValue())
	case v == Nil:
		d.w.String("Null")
		d.w.Int64(0)
	case v == True, v == False:
		d.w.String("Boolean")
		if v == True {
			d.w.Int64(1)
		} else {
			d.w.Int64(0)
		}
	case v.IsHeapObject():
		h := AsHeapObject(v)
		d.w.String(h.Class().Name)
		switch h.Class().Format.Type {
		case InstanceTypeString:
			d.w.Int64(int64((*String)(v.HeapObjectPointer()).Len()))
		case InstanceTypeDouble:
			d.w.Int64(int64((*Double)(v.HeapObjectPointer()).Float64()))
		case InstanceTypeLargeInteger:
			d.w.Int64((*LargeInteger)(v.HeapObjectPointer()).Value)
		default:
			d.w.Int64(0)
		}
	default:
		d.w.String("Failure")
		d.w.Int64(0)
	}
	return d.w.Err()
}

// restartFrame implements the debug session's restart-frame opcode: truncate
// the current coroutine's stack back to the named frame's base and reset its
// pc to 0, discarding every frame above it.
func (d *DebugServer) restartFrame(depth int) error {
	d.mu.Lock()
	p := d.process
	d.mu.Unlock()
	if p == nil || p.Current == nil || depth < 0 || depth >= p.Current.FrameDepth() {
		return fmt.Errorf("vm: debugger: restart-frame: frame depth %d out of range", depth)
	}
	for p.Current.FrameDepth()-1 > depth {
		p.Current.PopFrame()
	}
	f := p.Current.FrameAt(depth)
	f.PC = 0
	p.Current.CoroutineStack.Truncate(f.Base - 1)
	return d.replyOK()
}

// The queueChange* helpers read a mutation opcode's payload and append a
// closure applying it to the Program, deferred until commit-changes per
// spec.md §6's staged protocol. Each payload shape mirrors the snapshot
// format's own class/method encoding (snapshot.go) since a program
// mutation is, in effect, installing a tiny one-off snapshot fragment.

func (d *DebugServer) queueChangeSuperClass() error {
	classIdx := int(d.r.Int32())
	superIdx := int(d.r.Int32())
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pendingChanges = append(d.pendingChanges, func(prog *Program) error {
		if classIdx < 0 || classIdx >= len(prog.Classes) || superIdx < 0 || superIdx >= len(prog.Classes) {
			return fmt.Errorf("change-super-class: index out of range")
		}
		prog.Classes[classIdx].Super = prog.Classes[superIdx]
		return nil
	})
	return d.replyOK()
}

func (d *DebugServer) queueChangeMethodTable() error {
	classIdx := int(d.r.Int32())
	selName := d.r.String()
	selKind := SelectorKind(d.r.Int32())
	selArity := int(d.r.Int32())
	funcIdx := int(d.r.Int32())
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pendingChanges = append(d.pendingChanges, func(prog *Program) error {
		if classIdx < 0 || classIdx >= len(prog.Classes) || funcIdx < 0 || funcIdx >= len(prog.Functions) {
			return fmt.Errorf("change-method-table: index out of range")
		}
		class := prog.Classes[classIdx]
		sel := prog.Selectors.Selector(selName, selKind, selArity)
		prog.FoldClassMethod(class, sel, &CompiledMethod{Selector: sel, Class: class, Body: prog.Functions[funcIdx]}, 0)
		return nil
	})
	return d.replyOK()
}

// debugValueTag discriminates the scalar values change-method-literal and
// change-statics can patch in. Unlike the snapshot pool's value encoding
// (snapshot.go), the debug protocol only round-trips nil, the two
// booleans, small integers and doubles — a patched literal that needs to be a fresh String/Array/Instance is
// realized on the session's side as a small recompiled function instead,
// the same way the source VM's tooling handles it.
type debugValueTag byte

const (
	dvNil debugValueTag = iota
	dvTrue
	dvFalse
	dvSmi
	dvDouble
)

// findClassByFormat returns the first class in program whose InstanceFormat
// matches instanceType, or nil. Used by readDebugValue to box a patched
// literal's class without the snapshot pool's specialClassSlot indexing,
// which only exists during decodeStructure/materialize (snapshot.go).
func findClassByFormat(program *Program, instanceType InstanceType) *Class {
	for _, c := range program.Classes {
		if c != nil && c.Format.Type == instanceType {
			return c
		}
	}
	return nil
}

func readDebugValue(r *WireReader, program *Program) (Value, error) {
	switch debugValueTag(r.Int32()) {
	case dvNil:
		return Nil, nil
	case dvTrue:
		return True, nil
	case dvFalse:
		return False, nil
	case dvSmi:
		v, ok := NewSmi(r.Int64())
		if !ok {
			return 0, fmt.Errorf("debug value: smi out of range")
		}
		return v, nil
	case dvDouble:
		box := &Double{Bits: math.Float64bits(r.Double())}
		if class := findClassByFormat(program, InstanceTypeDouble); class != nil {
			box.SetClass(class)
		}
		v := TagHeapObject(ptrOf(box))
		if err := internToImmortal(program, v, 2); err != nil {
			return 0, err
		}
		return v, nil
	default:
		return 0, fmt.Errorf("debug value: unknown tag")
	}
}

func (d *DebugServer) queueChangeMethodLiteral() error {
	funcIdx := int(d.r.Int32())
	literalIdx := int(d.r.Int32())
	valueBytes := d.r.Bytes()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pendingChanges = append(d.pendingChanges, func(prog *Program) error {
		if funcIdx < 0 || funcIdx >= len(prog.Functions) {
			return fmt.Errorf("change-method-literal: function index out of range")
		}
		fn := prog.Functions[funcIdx]
		if literalIdx < 0 || literalIdx >= len(fn.Literals) {
			return fmt.Errorf("change-method-literal: literal index out of range")
		}
		v, err := readDebugValue(NewWireReader(bytes.NewReader(valueBytes)), prog)
		if err != nil {
			return err
		}
		fn.Literals[literalIdx] = v
		return nil
	})
	return d.replyOK()
}

func (d *DebugServer) queueChangeStatics() error {
	idx := int(d.r.Int32())
	valueBytes := d.r.Bytes()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pendingChanges = append(d.pendingChanges, func(prog *Program) error {
		if idx < 0 || idx >= len(prog.Statics) {
			return fmt.Errorf("change-statics: index out of range")
		}
		v, err := readDebugValue(NewWireReader(bytes.NewReader(valueBytes)), prog)
		if err != nil {
			return err
		}
		prog.Statics[idx] = v
		return nil
	})
	return d.replyOK()
}

func (d *DebugServer) queueChangeSchemas() error {
	classIdx := int(d.r.Int32())
	n := int(d.r.Int32())
	names := make([]string, n)
	for i := range names {
		names[i] = d.r.String()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pendingChanges = append(d.pendingChanges, func(prog *Program) error {
		if classIdx < 0 || classIdx >= len(prog.Classes) {
			return fmt.Errorf("change-schemas: index out of range")
		}
		prog.Classes[classIdx].InstVarNames = names
		return nil
	})
	return d.replyOK()
}

func (d *DebugServer) commitChanges() error {
	d.mu.Lock()
	p := d.process
	changes := d.pendingChanges
	d.pendingChanges = nil
	d.mu.Unlock()
	if p == nil {
		return d.replyOK()
	}
	for _, change := range changes {
		if err := change(p.Program); err != nil {
			return fmt.Errorf("vm: debugger: commit-changes: %w", err)
		}
	}
	if p.Cache != nil {
		p.Cache.InvalidateAll()
	}
	return d.replyOK()
}

// writeSnapshotExport implements the write-snapshot debug opcode: a CBOR
// dump of the attached process's program for offline tooling, distinct
// from the binary live-program format snapshot.go reads (spec.md §6 notes
// these are different artifacts serving different consumers).
func (d *DebugServer) writeSnapshotExport() error {
	d.mu.Lock()
	p := d.process
	d.mu.Unlock()
	if p == nil {
		return fmt.Errorf("vm: debugger: write-snapshot: no attached process")
	}
	data, err := EncodeSnapshotExport(p.Program)
	if err != nil {
		return fmt.Errorf("vm: debugger: write-snapshot: %w", err)
	}
	d.w.Bytes(data)
	return d.w.Err()
}
