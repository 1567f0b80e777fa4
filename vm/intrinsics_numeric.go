package vm

import "math"

// NumericOp enumerates the fast-path arithmetic/comparison operations
// invoke-method-numeric's op byte selects. These are the same operations
// the source VM's generated interpreter inlines directly at each arithmetic
// bytecode rather than dispatching through a real method lookup; this
// engine keeps them as a single table-driven helper instead of one opcode
// per operator; natives_numeric.go's Smi/Double/LargeInteger methods fall
// back to the slow, fully-dispatched path for anything this table can't
// resolve purely from two tagged operands (mixed-type arithmetic, overflow).
type NumericOp uint8

const (
	NumericAdd NumericOp = iota
	NumericSub
	NumericMul
	NumericDiv
	NumericMod
	NumericLess
	NumericLessEqual
	NumericGreater
	NumericGreaterEqual
	NumericEqual
)

// ApplyNumericOp implements invoke-method-numeric for the smi/smi case,
// which is the only shape cheap enough to inline without a full dispatch:
// anything else (overflow, a Double or LargeInteger operand) returns
// ok=false so the interpreter falls back to an ordinary invoke-method send,
// letting natives_numeric.go's boxed-number methods handle promotion.
func ApplyNumericOp(op NumericOp, receiver, arg Value) (Value, bool) {
	if !receiver.IsSmi() || !arg.IsSmi() {
		return 0, false
	}
	a, b := receiver.SmiValue(), arg.SmiValue()
	switch op {
	case NumericAdd:
		return smiOrFallback(a + b)
	case NumericSub:
		return smiOrFallback(a - b)
	case NumericMul:
		if a != 0 && (a*b)/a != b {
			return 0, false // overflow; let the slow path promote to LargeInteger
		}
		return smiOrFallback(a * b)
	case NumericDiv:
		if b == 0 {
			return 0, false
		}
		return smiOrFallback(a / b)
	case NumericMod:
		if b == 0 {
			return 0, false
		}
		return smiOrFallback(a % b)
	case NumericLess:
		return boolValue(a < b), true
	case NumericLessEqual:
		return boolValue(a <= b), true
	case NumericGreater:
		return boolValue(a > b), true
	case NumericGreaterEqual:
		return boolValue(a >= b), true
	case NumericEqual:
		return boolValue(a == b), true
	default:
		return 0, false
	}
}

func smiOrFallback(n int64) (Value, bool) {
	v, ok := NewSmi(n)
	return v, ok
}

func boolValue(b bool) Value {
	if b {
		return True
	}
	return False
}

// Negate implements the negate bytecode: smi negation when representable,
// otherwise a caller-driven promotion via Process.NewInteger (interpreter.go).
func Negate(v Value) (Value, bool) {
	if !v.IsSmi() {
		return 0, false
	}
	return smiOrFallback(-v.SmiValue())
}

// Identical implements the identical bytecode: bitwise identity, with
// Double compared by raw bits (so NaN == NaN and +0.0 != -0.0, per spec.md
// scenario 3) and LargeInteger compared by value rather than by the two
// distinct heap addresses a promotion may have produced.
func Identical(a, b Value) Value {
	if a == b {
		return True
	}
	if a.IsHeapObject() && b.IsHeapObject() {
		ha, hb := AsHeapObject(a), AsHeapObject(b)
		if ha.Class() == hb.Class() {
			switch ha.Class().Format.Type {
			case InstanceTypeDouble:
				da := (*Double)(a.HeapObjectPointer())
				db := (*Double)(b.HeapObjectPointer())
				return boolValue(da.Bits == db.Bits)
			case InstanceTypeLargeInteger:
				la := (*LargeInteger)(a.HeapObjectPointer())
				lb := (*LargeInteger)(b.HeapObjectPointer())
				return boolValue(la.Value == lb.Value)
			}
		}
	}
	return False
}

// float64Identical is used by natives_numeric.go for cross-type comparisons
// (smi vs Double) where the language still wants numeric equality rather
// than identity.
func float64Identical(a, b float64) bool {
	return math.Float64bits(a) == math.Float64bits(b)
}
