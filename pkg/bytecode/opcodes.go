// Package bytecode defines the instruction encoding shared by every
// compiled Function: the Opcode set, operand layout, and a small assembler/
// disassembler used by tests and tooling to build and inspect bytecode
// without a full front-end compiler (none ships with this engine; programs
// normally arrive pre-compiled inside a snapshot).
package bytecode

import "fmt"

// Opcode is a single bytecode instruction tag. Groups mirror the bytecode
// set named by the engine's interpreter design: load, store, invoke,
// control, allocation, stack-safety, process control-transfer, and
// no-such-method overlay management.
type Opcode byte

const (
	// Load group (0x00-0x1F)
	OpLoadLocal        Opcode = 0x00 // <slot:u8>
	OpLoadLocalWide    Opcode = 0x01 // <slot:u16>
	OpLoadBoxed        Opcode = 0x02 // <slot:u8> — unboxes a Boxed local
	OpLoadStatic       Opcode = 0x03 // <index:u16>
	OpLoadField        Opcode = 0x04 // <index:u8>
	OpLoadFieldWide    Opcode = 0x05 // <index:u16>
	OpLoadConst        Opcode = 0x06 // <index:u16> — literal pool
	OpLoadConstInline  Opcode = 0x07 // <offset:i8> — small inline literal
	OpLoadNull         Opcode = 0x08
	OpLoadTrue         Opcode = 0x09
	OpLoadFalse        Opcode = 0x0A
	OpLoadSmi0         Opcode = 0x0B
	OpLoadSmi1         Opcode = 0x0C
	OpLoadSmiSmall     Opcode = 0x0D // <value:i8>
	OpLoadSmiWide      Opcode = 0x0E // <value:i32>

	// Store group (0x20-0x2F), mirrors Load
	OpStoreLocal     Opcode = 0x20 // <slot:u8>
	OpStoreLocalWide Opcode = 0x21 // <slot:u16>
	OpStoreBoxed     Opcode = 0x22 // <slot:u8>
	OpStoreStatic    Opcode = 0x23 // <index:u16>
	OpStoreField     Opcode = 0x24 // <index:u8>
	OpStoreFieldWide Opcode = 0x25 // <index:u16>

	// Invoke group (0x40-0x6F)
	OpInvokeMethod       Opcode = 0x40 // <selector:u16> <arity:u8>
	OpInvokeMethodFast   Opcode = 0x41 // <table:u16> <arity:u8>
	OpInvokeMethodVTable Opcode = 0x42 // <selector:u16> <arity:u8>
	OpInvokeStatic       Opcode = 0x43 // <function:u16>
	OpInvokeFactory      Opcode = 0x44 // <function:u16>
	OpInvokeNative       Opcode = 0x45 // <native:u16> <arity:u8>
	OpInvokeNativeYield   Opcode = 0x46 // <native:u16> <arity:u8>
	OpInvokeSelector     Opcode = 0x47 // <selector:u16> <arity:u8> — late-bound
	OpInvokeTest         Opcode = 0x48 // <selector:u16> <arity:u8>
	OpInvokeMethodNumeric Opcode = 0x49 // <op:u8> <arity:u8> — pre-monomorphized fast path

	// Control group (0x80-0x9F)
	OpReturn          Opcode = 0x80
	OpReturnWide      Opcode = 0x81 // <count:u8> — multi-value cleanup
	OpPop             Opcode = 0x82
	OpBranch          Opcode = 0x83 // <offset:i16>
	OpBranchBackward  Opcode = 0x84 // <offset:i16>
	OpBranchIfTrue    Opcode = 0x85 // <offset:i16>
	OpBranchIfFalse   Opcode = 0x86 // <offset:i16>
	OpBranchWide      Opcode = 0x87 // <offset:i32>
	OpPopAndBranch    Opcode = 0x88 // <offset:i16>
	OpSubroutineCall  Opcode = 0x89 // <offset:i16> — finally blocks
	OpSubroutineReturn Opcode = 0x8A
	OpThrow           Opcode = 0x8B
	OpNegate          Opcode = 0x8C
	OpIdentical       Opcode = 0x8D
	OpIdenticalNonNumeric Opcode = 0x8E

	// Allocation group (0xA0-0xAF)
	OpAllocate          Opcode = 0xA0 // <class:u16>
	OpAllocateConst     Opcode = 0xA1 // <class-const:u16> — inline class constant
	OpAllocateImmutable Opcode = 0xA2 // <class:u16>
	OpAllocateBoxed     Opcode = 0xA3 // <class:u16>

	// Stack safety (0xB0-0xB1)
	OpStackOverflowCheck Opcode = 0xB0 // <n:u16>

	// Process control-transfer (0xC0-0xC1)
	OpProcessYield     Opcode = 0xC0
	OpCoroutineChange  Opcode = 0xC1

	// No-such-method overlay (0xD0-0xD1)
	OpEnterNoSuchMethod Opcode = 0xD0 // <selector:u16>
	OpExitNoSuchMethod  Opcode = 0xD1
)

// OperandLen reports how many operand bytes follow the opcode, used by both
// the disassembler and the interpreter's instruction-pointer advance.
func (op Opcode) OperandLen() int {
	switch op {
	case OpLoadLocal, OpLoadBoxed, OpLoadField, OpLoadConstInline,
		OpLoadSmiSmall, OpStoreLocal, OpStoreBoxed, OpStoreField,
		OpReturnWide:
		return 1
	case OpInvokeMethodNumeric,
		OpLoadLocalWide, OpLoadStatic, OpLoadFieldWide, OpLoadConst,
		OpStoreLocalWide, OpStoreStatic, OpStoreFieldWide,
		OpAllocate, OpAllocateConst, OpAllocateImmutable, OpAllocateBoxed,
		OpStackOverflowCheck, OpEnterNoSuchMethod,
		OpBranch, OpBranchBackward, OpBranchIfTrue, OpBranchIfFalse,
		OpPopAndBranch, OpSubroutineCall, OpInvokeStatic, OpInvokeFactory:
		return 2
	case OpInvokeMethod, OpInvokeMethodFast, OpInvokeMethodVTable,
		OpInvokeNative, OpInvokeNativeYield, OpInvokeSelector, OpInvokeTest:
		return 3
	case OpLoadSmiWide, OpBranchWide:
		return 4
	default:
		return 0
	}
}

// InstructionLen is 1 (the opcode byte) plus OperandLen.
func (op Opcode) InstructionLen() int { return 1 + op.OperandLen() }

var opcodeNames = map[Opcode]string{
	OpLoadLocal: "load-local", OpLoadLocalWide: "load-local-wide",
	OpLoadBoxed: "load-boxed", OpLoadStatic: "load-static",
	OpLoadField: "load-field", OpLoadFieldWide: "load-field-wide",
	OpLoadConst: "load-const", OpLoadConstInline: "load-const-inline",
	OpLoadNull: "load-null", OpLoadTrue: "load-true", OpLoadFalse: "load-false",
	OpLoadSmi0: "load-smi-0", OpLoadSmi1: "load-smi-1",
	OpLoadSmiSmall: "load-smi-small", OpLoadSmiWide: "load-smi-wide",
	OpStoreLocal: "store-local", OpStoreLocalWide: "store-local-wide",
	OpStoreBoxed: "store-boxed", OpStoreStatic: "store-static",
	OpStoreField: "store-field", OpStoreFieldWide: "store-field-wide",
	OpInvokeMethod: "invoke-method", OpInvokeMethodFast: "invoke-method-fast",
	OpInvokeMethodVTable: "invoke-method-vtable", OpInvokeStatic: "invoke-static",
	OpInvokeFactory: "invoke-factory", OpInvokeNative: "invoke-native",
	OpInvokeNativeYield: "invoke-native-yield", OpInvokeSelector: "invoke-selector",
	OpInvokeTest: "invoke-test", OpInvokeMethodNumeric: "invoke-method-numeric",
	OpReturn: "return", OpReturnWide: "return-wide", OpPop: "pop",
	OpBranch: "branch", OpBranchBackward: "branch-backward",
	OpBranchIfTrue: "branch-if-true", OpBranchIfFalse: "branch-if-false",
	OpBranchWide: "branch-wide", OpPopAndBranch: "pop-and-branch",
	OpSubroutineCall: "subroutine-call", OpSubroutineReturn: "subroutine-return",
	OpThrow: "throw", OpNegate: "negate", OpIdentical: "identical",
	OpIdenticalNonNumeric: "identical-non-numeric",
	OpAllocate: "allocate", OpAllocateConst: "allocate-const",
	OpAllocateImmutable: "allocate-immutable", OpAllocateBoxed: "allocate-boxed",
	OpStackOverflowCheck: "stack-overflow-check",
	OpProcessYield: "process-yield", OpCoroutineChange: "coroutine-change",
	OpEnterNoSuchMethod: "enter-no-such-method", OpExitNoSuchMethod: "exit-no-such-method",
}

// String returns the opcode's mnemonic.
func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%02x)", byte(op))
}
