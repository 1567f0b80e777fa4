package bytecode

import "testing"

func TestNewChunkEmpty(t *testing.T) {
	c := NewChunk()
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestEmitBareOpcode(t *testing.T) {
	c := NewChunk()
	pos := c.Emit(OpPop)
	if pos != 0 {
		t.Errorf("pos = %d, want 0", pos)
	}
	if c.Len() != 1 || Opcode(c.Code[0]) != OpPop {
		t.Errorf("Code = %v, want [OpPop]", c.Code)
	}
}

func TestEmitU8RoundTrip(t *testing.T) {
	c := NewChunk()
	c.EmitU8(OpLoadLocal, 7)
	if Opcode(c.Code[0]) != OpLoadLocal {
		t.Fatalf("opcode = %v, want load-local", Opcode(c.Code[0]))
	}
	if got := c.ReadU8(1); got != 7 {
		t.Errorf("operand = %d, want 7", got)
	}
}

func TestEmitU16RoundTrip(t *testing.T) {
	c := NewChunk()
	c.EmitU16(OpLoadStatic, 0x1234)
	if got := c.ReadU16(1); got != 0x1234 {
		t.Errorf("operand = 0x%04x, want 0x1234", got)
	}
}

func TestEmitU16U8RoundTrip(t *testing.T) {
	c := NewChunk()
	c.EmitU16U8(OpInvokeMethod, 42, 3)
	if got := c.ReadU16(1); got != 42 {
		t.Errorf("selector = %d, want 42", got)
	}
	if got := c.ReadU8(3); got != 3 {
		t.Errorf("arity = %d, want 3", got)
	}
}

func TestEmitI32RoundTrip(t *testing.T) {
	c := NewChunk()
	c.EmitI32(OpLoadSmiWide, -123456)
	if got := c.ReadI32(1); got != -123456 {
		t.Errorf("operand = %d, want -123456", got)
	}
}

func TestEmitJumpForwardPatch(t *testing.T) {
	c := NewChunk()
	pos := c.EmitJump(OpBranchIfFalse)
	c.Emit(OpLoadNull)
	c.Emit(OpReturn)
	c.PatchJump(pos)

	target := pos + 2 + int(c.ReadI16(pos))
	if target != c.Len() {
		t.Errorf("patched target = %d, want %d (end of chunk)", target, c.Len())
	}
}

func TestEmitJumpBackwardPatch(t *testing.T) {
	c := NewChunk()
	loopStart := c.Emit(OpLoadTrue)
	pos := c.EmitJump(OpBranchBackward)
	// Patch to jump back to loopStart: compute offset manually like a real
	// compiler's loop-emission helper would.
	target := loopStart
	offset := int16(target - (pos + 2))
	c.Code[pos] = byte(offset)
	c.Code[pos+1] = byte(offset >> 8)

	got := pos + 2 + int(c.ReadI16(pos))
	if got != loopStart {
		t.Errorf("resolved target = %d, want %d", got, loopStart)
	}
}

func TestInstructionLenMatchesOperandLen(t *testing.T) {
	cases := []struct {
		op  Opcode
		len int
	}{
		{OpPop, 1},
		{OpLoadLocal, 2},
		{OpLoadStatic, 3},
		{OpInvokeMethod, 4},
		{OpLoadSmiWide, 5},
	}
	for _, tc := range cases {
		if got := tc.op.InstructionLen(); got != tc.len {
			t.Errorf("%s.InstructionLen() = %d, want %d", tc.op, got, tc.len)
		}
	}
}
