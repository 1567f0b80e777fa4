package vm

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"unicode/utf16"
)

// DebugOpcode enumerates the debug session protocol's message kinds
// (spec.md §6): process lifecycle, breakpoints, state inspection, program
// mutation, and out-of-band notifications. Every message on the wire is one
// opcode byte followed by its payload of primitives; there is no overall
// message-length prefix.
type DebugOpcode byte

const (
	OpProcessSpawnMain DebugOpcode = iota
	OpProcessRun
	OpProcessTerminated
	OpBreakpointSet
	OpBreakpointDelete
	OpStep
	OpStepOver
	OpStepOut
	OpStepTo
	OpBacktrace
	OpFiberBacktrace
	OpLocal
	OpLocalStructure
	OpNumberOfStacks
	OpRestartFrame
	OpPrepareForChanges
	OpChangeSuperClass
	OpChangeMethodTable
	OpChangeMethodLiteral
	OpChangeStatics
	OpChangeSchemas
	OpCommitChanges
	OpDiscardChanges
	OpCollectGarbage
	OpWriteSnapshot
	OpDisableStandardOutput
	OpStdoutData
	OpStderrData
)

func (op DebugOpcode) String() string {
	names := [...]string{
		"process-spawn-main", "process-run", "process-terminated",
		"breakpoint-set", "breakpoint-delete", "step", "step-over",
		"step-out", "step-to", "backtrace", "fiber-backtrace", "local",
		"local-structure", "number-of-stacks", "restart-frame",
		"prepare-for-changes", "change-super-class", "change-method-table",
		"change-method-literal", "change-statics", "change-schemas",
		"commit-changes", "discard-changes", "collect-garbage",
		"write-snapshot", "disable-standard-output", "stdout-data",
		"stderr-data",
	}
	if int(op) < len(names) {
		return names[op]
	}
	return "unknown-opcode"
}

// WireWriter encodes debug-session messages: an opcode byte followed by its
// primitives, little-endian throughout (spec.md §6). Errors are sticky —
// once a write fails every subsequent call is a no-op — so callers can
// chain a message's fields and check Err once at the end, the same pattern
// snapshot.go's reader uses on the decode side.
type WireWriter struct {
	w   io.Writer
	err error
}

// NewWireWriter wraps w for encoding.
func NewWireWriter(w io.Writer) *WireWriter { return &WireWriter{w: w} }

// Err returns the first error this writer encountered, if any.
func (w *WireWriter) Err() error { return w.err }

func (w *WireWriter) write(b []byte) {
	if w.err != nil {
		return
	}
	if _, err := w.w.Write(b); err != nil {
		w.err = fmt.Errorf("vm: wire: write: %w", err)
	}
}

// Opcode writes the single-byte message tag that begins every frame.
func (w *WireWriter) Opcode(op DebugOpcode) *WireWriter {
	w.write([]byte{byte(op)})
	return w
}

func (w *WireWriter) Bool(v bool) *WireWriter {
	if v {
		w.write([]byte{1})
	} else {
		w.write([]byte{0})
	}
	return w
}

func (w *WireWriter) Int32(v int32) *WireWriter {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	w.write(b[:])
	return w
}

func (w *WireWriter) Int64(v int64) *WireWriter {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	w.write(b[:])
	return w
}

func (w *WireWriter) Double(v float64) *WireWriter {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	w.write(b[:])
	return w
}

// Bytes writes a u32 length prefix followed by raw bytes.
func (w *WireWriter) Bytes(b []byte) *WireWriter {
	w.Int32(int32(len(b)))
	w.write(b)
	return w
}

// String writes a u32 UTF-16 unit-count prefix followed by little-endian
// UTF-16 code units, matching this engine's own String representation
// (string.go) so a debug session never has to re-encode a name it read out
// of the running program.
func (w *WireWriter) String(s string) *WireWriter {
	units := utf16.Encode([]rune(s))
	w.Int32(int32(len(units)))
	for _, u := range units {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], u)
		w.write(b[:])
	}
	return w
}

// WireReader decodes debug-session messages, the mirror of WireWriter.
type WireReader struct {
	r   io.Reader
	err error
}

func NewWireReader(r io.Reader) *WireReader { return &WireReader{r: r} }

func (r *WireReader) Err() error { return r.err }

func (r *WireReader) read(n int) []byte {
	if r.err != nil {
		return make([]byte, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		r.err = fmt.Errorf("vm: wire: read: %w", err)
	}
	return b
}

// Opcode reads the next message's tag.
func (r *WireReader) Opcode() DebugOpcode {
	return DebugOpcode(r.read(1)[0])
}

func (r *WireReader) Bool() bool { return r.read(1)[0] != 0 }

func (r *WireReader) Int32() int32 {
	return int32(binary.LittleEndian.Uint32(r.read(4)))
}

func (r *WireReader) Int64() int64 {
	return int64(binary.LittleEndian.Uint64(r.read(8)))
}

func (r *WireReader) Double() float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(r.read(8)))
}

func (r *WireReader) Bytes() []byte {
	n := int(r.Int32())
	if n <= 0 {
		return nil
	}
	return r.read(n)
}

func (r *WireReader) String() string {
	n := int(r.Int32())
	if n <= 0 {
		return ""
	}
	units := make([]uint16, n)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(r.read(2))
	}
	return string(utf16.Decode(units))
}
