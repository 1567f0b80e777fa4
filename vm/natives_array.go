package vm

// registerArrayNatives installs the array-length/index-get/index-set
// intrinsics of spec.md §4.2, plus a constructor native (bytecode only
// allocates Instance-shaped objects; Array's variable length makes it a
// natural native-constructed type, matching how the teacher routes
// variable-length allocations through a native rather than a dedicated
// opcode).
func registerArrayNatives(r *NativeRegistry) {
	r.Register("Array.new", func(p *Process, receiver Value, args []Value) Value {
		size := argOr(args, 0)
		if !size.IsSmi() || size.SmiValue() < 0 {
			return NewFailure(FailureWrongArgumentType)
		}
		_, v, ok := p.NewArray(p.Program.ArrayClass, int(size.SmiValue()))
		if !ok {
			return NewFailure(FailureRetryAfterGC)
		}
		return v
	})

	r.Register("Array.length", func(p *Process, receiver Value, args []Value) Value {
		a, ok := asArray(receiver)
		if !ok {
			return NewFailure(FailureWrongArgumentType)
		}
		v, _ := NewSmi(int64(a.Len()))
		return v
	})

	r.Register("Array.at", func(p *Process, receiver Value, args []Value) Value {
		a, ok := asArray(receiver)
		idx := argOr(args, 0)
		if !ok || !idx.IsSmi() {
			return NewFailure(FailureWrongArgumentType)
		}
		v, ok := a.At(int(idx.SmiValue()))
		if !ok {
			return NewFailure(FailureIndexOutOfBounds)
		}
		return v
	})

	r.Register("Array.atPut", func(p *Process, receiver Value, args []Value) Value {
		a, ok := asArray(receiver)
		idx, v := argOr(args, 0), argOr(args, 1)
		if !ok || !idx.IsSmi() {
			return NewFailure(FailureWrongArgumentType)
		}
		if a.IsRuntimeImmutable() {
			return NewFailure(FailureWrongArgumentType)
		}
		i := int(idx.SmiValue())
		old, inRange := a.At(i)
		_ = old
		if !inRange {
			return NewFailure(FailureIndexOutOfBounds)
		}
		p.StoreArraySlot(a, receiver, i, v)
		return v
	})
}

func asArray(v Value) (*Array, bool) {
	if !v.IsHeapObject() {
		return nil, false
	}
	h := AsHeapObject(v)
	if h.Class() == nil || h.Class().Format.Type != InstanceTypeArray {
		return nil, false
	}
	return (*Array)(v.HeapObjectPointer()), true
}
