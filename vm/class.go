package vm

import "fmt"

// InstanceType discriminates the concrete Go layout backing a heap object,
// packed into a Class's InstanceFormat word per spec.md §3.
type InstanceType uint8

const (
	InstanceTypeInstance InstanceType = iota
	InstanceTypeArray
	InstanceTypeByteArray
	InstanceTypeString
	InstanceTypeDouble
	InstanceTypeLargeInteger
	InstanceTypeBoxed
	InstanceTypeStack
	InstanceTypeCoroutine
	InstanceTypeFunction
	InstanceTypeInitializer
	InstanceTypeClass
)

// InstanceFormat is the packed word describing how instances of a class are
// laid out: type tag, fixed word size, and whether the class instantiates
// runtime-mutable objects by default.
type InstanceFormat struct {
	Type         InstanceType
	FixedSize    int  // words, excluding variable-length array/string bodies
	MutableByDefault bool
}

// IsVariableLength reports whether instances of this format carry a
// variable-length body (Array, ByteArray, String) beyond FixedSize.
func (f InstanceFormat) IsVariableLength() bool {
	switch f.Type {
	case InstanceTypeArray, InstanceTypeByteArray, InstanceTypeString:
		return true
	default:
		return false
	}
}

// Class is the immutable-after-load runtime representation of a program
// class: its InstanceFormat, superclass link, method table, and a densely
// assigned class id used as the key for vtable and dispatch-table lookups.
//
// Grounded on the teacher's vm/class.go and vm/object.go split between a
// forward-declared struct and its behavior; here the two are merged since
// there is no import-cycle to break (single flat package).
type Class struct {
	HeapObject

	ID     int // dense index, assigned by the program at fold time
	Name   string
	Format InstanceFormat

	Super *Class

	// Methods is this class's own vtable (see vtable.go). Lookup walks
	// Super chains only during the slow path; the folded program vtable
	// (Program.VTable) is what invoke-method-vtable actually indexes.
	Methods *VTable

	// InstVarNames names this class's own (non-inherited) instance
	// variables, used by the debug session's `local` / `local-structure`
	// inspection opcodes.
	InstVarNames []string
}

// NumInstVars returns the total instance variable count including
// everything inherited from Super.
func (c *Class) NumInstVars() int {
	n := len(c.InstVarNames)
	if c.Super != nil {
		n += c.Super.NumInstVars()
	}
	return n
}

// IsSubclassOf reports whether c is other or a transitive subclass of other.
func (c *Class) IsSubclassOf(other *Class) bool {
	for cur := c; cur != nil; cur = cur.Super {
		if cur == other {
			return true
		}
	}
	return false
}

// InstVarIndex returns the slot index of a named instance variable,
// accounting for inherited slots, or -1 if not found.
func (c *Class) InstVarIndex(name string) int {
	base := 0
	if c.Super != nil {
		base = c.Super.NumInstVars()
		if idx := c.Super.InstVarIndex(name); idx >= 0 {
			return idx
		}
	}
	for i, n := range c.InstVarNames {
		if n == name {
			return base + i
		}
	}
	return -1
}

func (c *Class) String() string {
	return fmt.Sprintf("Class(%s#%d)", c.Name, c.ID)
}

// NewClass constructs a class record. It is used both by the snapshot
// reader (program load) and by the debug session's change-schemas /
// change-super-class program-mutation opcodes.
func NewClass(id int, name string, format InstanceFormat, super *Class, instVars []string) *Class {
	c := &Class{
		ID:           id,
		Name:         name,
		Format:       format,
		Super:        super,
		InstVarNames: instVars,
	}
	c.Methods = NewVTable(c, methodsOf(super))
	return c
}

func methodsOf(c *Class) *VTable {
	if c == nil {
		return nil
	}
	return c.Methods
}
