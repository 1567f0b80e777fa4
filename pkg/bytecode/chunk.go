package bytecode

import "fmt"

// Chunk is a growable bytecode buffer. It carries no constant pool of its
// own: load-const's operand indexes the owning Function's Literals slice (a
// []vm.Value), which this package does not import, keeping pkg/bytecode
// free of a dependency on the vm package. Chunk exists so tests and tooling
// can assemble a Function's Bytecode field without hand-encoding bytes; no
// front-end compiler ships with this engine, programs normally arrive
// pre-compiled inside a snapshot.
type Chunk struct {
	Code []byte
}

// NewChunk returns an empty chunk.
func NewChunk() *Chunk {
	return &Chunk{Code: make([]byte, 0, 64)}
}

// Emit appends a bare opcode with no operand.
func (c *Chunk) Emit(op Opcode) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op))
	return offset
}

// EmitU8 appends op followed by a one-byte operand.
func (c *Chunk) EmitU8(op Opcode, operand uint8) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op), operand)
	return offset
}

// EmitU16 appends op followed by a little-endian two-byte operand.
func (c *Chunk) EmitU16(op Opcode, operand uint16) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op), byte(operand), byte(operand>>8))
	return offset
}

// EmitU16U8 appends op followed by a little-endian two-byte operand and a
// trailing one-byte operand, the encoding used by the three invoke-method
// forms (selector or table index, then argument arity).
func (c *Chunk) EmitU16U8(op Opcode, u16 uint16, u8 uint8) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op), byte(u16), byte(u16>>8), u8)
	return offset
}

// EmitI32 appends op followed by a little-endian four-byte signed operand,
// used by load-smi-wide.
func (c *Chunk) EmitI32(op Opcode, operand int32) int {
	offset := len(c.Code)
	u := uint32(operand)
	c.Code = append(c.Code, byte(op), byte(u), byte(u>>8), byte(u>>16), byte(u>>24))
	return offset
}

// EmitJump appends a branch opcode with a placeholder i16 offset and
// returns the position of the placeholder's low byte, to be filled in by
// PatchJump once the target is known.
func (c *Chunk) EmitJump(op Opcode) int {
	pos := len(c.Code) + 1
	c.Code = append(c.Code, byte(op), 0, 0)
	return pos
}

// EmitJumpWide is EmitJump's four-byte counterpart for branch-wide.
func (c *Chunk) EmitJumpWide(op Opcode) int {
	pos := len(c.Code) + 1
	c.Code = append(c.Code, byte(op), 0, 0, 0, 0)
	return pos
}

// PatchJump overwrites the placeholder i16 offset at pos (as returned by
// EmitJump) with the distance from the byte after the offset to the
// current end of the chunk.
func (c *Chunk) PatchJump(pos int) {
	target := int16(len(c.Code) - (pos + 2))
	c.Code[pos] = byte(target)
	c.Code[pos+1] = byte(target >> 8)
}

// PatchJumpWide is PatchJump's four-byte counterpart for branch-wide.
func (c *Chunk) PatchJumpWide(pos int) {
	target := int32(len(c.Code) - (pos + 4))
	u := uint32(target)
	c.Code[pos] = byte(u)
	c.Code[pos+1] = byte(u >> 8)
	c.Code[pos+2] = byte(u >> 16)
	c.Code[pos+3] = byte(u >> 24)
}

// ReadU8 reads a one-byte operand at pc.
func (c *Chunk) ReadU8(pc int) uint8 { return c.Code[pc] }

// ReadU16 reads a little-endian two-byte operand at pc.
func (c *Chunk) ReadU16(pc int) uint16 {
	return uint16(c.Code[pc]) | uint16(c.Code[pc+1])<<8
}

// ReadI16 reads a little-endian two-byte signed operand at pc, used for
// branch offsets.
func (c *Chunk) ReadI16(pc int) int16 { return int16(c.ReadU16(pc)) }

// ReadI32 reads a little-endian four-byte signed operand at pc.
func (c *Chunk) ReadI32(pc int) int32 {
	u := uint32(c.Code[pc]) | uint32(c.Code[pc+1])<<8 | uint32(c.Code[pc+2])<<16 | uint32(c.Code[pc+3])<<24
	return int32(u)
}

// Len returns the number of emitted bytes.
func (c *Chunk) Len() int { return len(c.Code) }

func (c *Chunk) String() string {
	return fmt.Sprintf("Chunk(%d bytes)", len(c.Code))
}
