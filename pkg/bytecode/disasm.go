package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble renders every instruction in c as one line per instruction:
// offset, mnemonic, decoded operand, and the jump target for branches.
func (c *Chunk) Disassemble(name string) string {
	var b strings.Builder
	if name != "" {
		fmt.Fprintf(&b, "== %s ==\n", name)
	}
	for pc := 0; pc < len(c.Code); {
		pc = c.disassembleInstruction(&b, pc)
	}
	return b.String()
}

// DisassembleToLines is Disassemble split into one string per instruction,
// used by tests that want to assert on a single line without matching the
// whole listing.
func (c *Chunk) DisassembleToLines() []string {
	var lines []string
	var b strings.Builder
	for pc := 0; pc < len(c.Code); {
		b.Reset()
		pc = c.disassembleInstruction(&b, pc)
		lines = append(lines, strings.TrimRight(b.String(), "\n"))
	}
	return lines
}

func (c *Chunk) disassembleInstruction(b *strings.Builder, pc int) int {
	op := Opcode(c.Code[pc])
	fmt.Fprintf(b, "%04d %s", pc, op)
	switch op.OperandLen() {
	case 1:
		fmt.Fprintf(b, " %d", c.ReadU8(pc+1))
	case 2:
		switch op {
		case OpBranch, OpBranchBackward, OpBranchIfTrue, OpBranchIfFalse, OpPopAndBranch, OpSubroutineCall:
			offset := int(c.ReadI16(pc + 1))
			fmt.Fprintf(b, " %d (-> %04d)", offset, pc+3+offset)
		default:
			fmt.Fprintf(b, " %d", c.ReadU16(pc+1))
		}
	case 3:
		fmt.Fprintf(b, " %d %d", c.ReadU16(pc+1), c.ReadU8(pc+3))
	case 4:
		switch op {
		case OpBranchWide:
			offset := int(c.ReadI32(pc + 1))
			fmt.Fprintf(b, " %d (-> %04d)", offset, pc+5+offset)
		default:
			fmt.Fprintf(b, " %d", c.ReadI32(pc+1))
		}
	}
	b.WriteByte('\n')
	return pc + op.InstructionLen()
}
