// Package bytecode defines the instruction encoding every compiled
// Function's code stream is written in: the Opcode set of load, store,
// invoke, control, allocation, stack-safety, process-control, and
// no-such-method instructions, plus a small assembler (Chunk) and
// disassembler used by tests and tooling to build and inspect bytecode
// without a full front-end compiler.
//
// # Encoding
//
// Every instruction is one opcode byte followed by zero or more operand
// bytes; OperandLen reports how many. Multi-byte operands are little-endian.
// Branch targets are signed offsets relative to the byte immediately
// following the offset field, so a fixed-up jump never needs to know its
// own absolute position.
//
// # Constants
//
// load-const's operand indexes the owning Function's Literals slice, a
// []vm.Value the interpreter holds directly; this package carries no
// constant pool of its own and has no dependency on the vm package.
package bytecode
