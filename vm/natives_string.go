package vm

// registerStringNatives installs the string construction and inspection
// natives: length/at are read-only intrinsics in the same spirit as
// Array's, concat allocates a fresh String since spec.md
// treats String as effectively immutable after construction (string.go's
// own doc comment).
func registerStringNatives(r *NativeRegistry) {
	r.Register("String.length", func(p *Process, receiver Value, args []Value) Value {
		s, ok := asString(receiver)
		if !ok {
			return NewFailure(FailureWrongArgumentType)
		}
		v, _ := NewSmi(int64(s.Len()))
		return v
	})

	r.Register("String.at", func(p *Process, receiver Value, args []Value) Value {
		s, ok := asString(receiver)
		idx := argOr(args, 0)
		if !ok || !idx.IsSmi() {
			return NewFailure(FailureWrongArgumentType)
		}
		unit, ok := s.At(int(idx.SmiValue()))
		if !ok {
			return NewFailure(FailureIndexOutOfBounds)
		}
		v, _ := NewSmi(int64(unit))
		return v
	})

	r.Register("String.concat", func(p *Process, receiver Value, args []Value) Value {
		a, ok1 := asString(receiver)
		b, ok2 := asString(argOr(args, 0))
		if !ok1 || !ok2 {
			return NewFailure(FailureWrongArgumentType)
		}
		result, v, ok := p.NewString(p.ReceiverClass(receiver), a.Len()+b.Len())
		if !ok {
			return NewFailure(FailureRetryAfterGC)
		}
		copy(result.Units, a.Units)
		copy(result.Units[a.Len():], b.Units)
		return v
	})

	r.Register("String.equals", func(p *Process, receiver Value, args []Value) Value {
		a, ok1 := asString(receiver)
		b, ok2 := asString(argOr(args, 0))
		if !ok1 || !ok2 {
			return boolValue(false)
		}
		if a.Len() != b.Len() {
			return boolValue(false)
		}
		for i := range a.Units {
			if a.Units[i] != b.Units[i] {
				return boolValue(false)
			}
		}
		return boolValue(true)
	})
}

func asString(v Value) (*String, bool) {
	if !v.IsHeapObject() {
		return nil, false
	}
	h := AsHeapObject(v)
	if h.Class() == nil || h.Class().Format.Type != InstanceTypeString {
		return nil, false
	}
	return (*String)(v.HeapObjectPointer()), true
}

