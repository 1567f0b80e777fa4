package vm

// registerNumericNatives installs the boxed-number arithmetic and
// comparison methods invoke-method-numeric's fallback sends resolve to
// when ApplyNumericOp's smi/smi fast path can't handle the operands
// (overflow, or a Double/LargeInteger operand). Grounded on
// intrinsics_numeric.go's own ApplyNumericOp switch, generalized from
// bare int64 arithmetic to the three numeric representations spec.md §3
// names (Smi, LargeInteger, Double).
func registerNumericNatives(r *NativeRegistry) {
	r.Register("Number.+", func(p *Process, receiver Value, args []Value) Value {
		return numericBinary(p, receiver, argOr(args, 0), func(a, b float64) float64 { return a + b })
	})
	r.Register("Number.-", func(p *Process, receiver Value, args []Value) Value {
		return numericBinary(p, receiver, argOr(args, 0), func(a, b float64) float64 { return a - b })
	})
	r.Register("Number.*", func(p *Process, receiver Value, args []Value) Value {
		return numericBinary(p, receiver, argOr(args, 0), func(a, b float64) float64 { return a * b })
	})
	r.Register("Number./", func(p *Process, receiver Value, args []Value) Value {
		return numericBinary(p, receiver, argOr(args, 0), func(a, b float64) float64 { return a / b })
	})
	r.Register("Number.negated", func(p *Process, receiver Value, args []Value) Value {
		f, ok := asFloat(receiver)
		if !ok {
			return NewFailure(FailureWrongArgumentType)
		}
		_, v, allocOK := p.NewDouble(p.ReceiverClass(receiver), -f)
		if !allocOK {
			return NewFailure(FailureRetryAfterGC)
		}
		return v
	})
	r.Register("Number.equals", func(p *Process, receiver Value, args []Value) Value {
		a, ok1 := asFloat(receiver)
		b, ok2 := asFloat(argOr(args, 0))
		if !ok1 || !ok2 {
			return boolValue(false)
		}
		return boolValue(float64Identical(a, b) || a == b)
	})
}

// asFloat widens any of Smi/LargeInteger/Double to a float64 for the slow
// arithmetic path; the result is always rebuilt through NewDouble, so
// precision loss only affects values already outside the smi fast path's
// domain.
func asFloat(v Value) (float64, bool) {
	switch {
	case v.IsSmi():
		return float64(v.SmiValue()), true
	case v.IsHeapObject():
		h := AsHeapObject(v)
		if h.Class() == nil {
			return 0, false
		}
		switch h.Class().Format.Type {
		case InstanceTypeLargeInteger:
			return float64((*LargeInteger)(v.HeapObjectPointer()).Value), true
		case InstanceTypeDouble:
			return (*Double)(v.HeapObjectPointer()).Float64(), true
		}
	}
	return 0, false
}

func numericBinary(p *Process, receiver, arg Value, op func(a, b float64) float64) Value {
	a, ok1 := asFloat(receiver)
	b, ok2 := asFloat(arg)
	if !ok1 || !ok2 {
		return NewFailure(FailureWrongArgumentType)
	}
	result := op(a, b)
	_, v, ok := p.NewDouble(p.ReceiverClass(receiver), result)
	if !ok {
		return NewFailure(FailureRetryAfterGC)
	}
	return v
}
