package vm

// registerObjectNatives installs the object-identity and field-access
// intrinsics spec.md §4.2 names (object equality, field getter/setter) as
// ordinary natives: this portable interpreter, per dispatch_cache.go's own
// doc comment, treats an intrinsic cache tag exactly like CacheTagMethod
// and relies on the target Method to implement the fast behavior itself,
// so "intrinsic" here just means "one of these specific natives" rather
// than a separate code path in the interpreter loop.
func registerObjectNatives(r *NativeRegistry) {
	r.Register("Object.identityEquals", func(p *Process, receiver Value, args []Value) Value {
		return Identical(receiver, argOr(args, 0))
	})

	r.Register("Object.class", func(p *Process, receiver Value, args []Value) Value {
		class := p.ReceiverClass(receiver)
		return TagHeapObject(ptrOf(class))
	})

	r.Register("Object.fieldAt", func(p *Process, receiver Value, args []Value) Value {
		idx := argOr(args, 0)
		if !receiver.IsHeapObject() || !idx.IsSmi() {
			return NewFailure(FailureWrongArgumentType)
		}
		inst := (*Instance)(receiver.HeapObjectPointer())
		i := int(idx.SmiValue())
		if i < 0 || i >= inst.NumSlots() {
			return NewFailure(FailureIndexOutOfBounds)
		}
		return inst.GetSlot(i)
	})

	r.Register("Object.fieldAtPut", func(p *Process, receiver Value, args []Value) Value {
		idx, v := argOr(args, 0), argOr(args, 1)
		if !receiver.IsHeapObject() || !idx.IsSmi() {
			return NewFailure(FailureWrongArgumentType)
		}
		inst := (*Instance)(receiver.HeapObjectPointer())
		i := int(idx.SmiValue())
		if i < 0 || i >= inst.NumSlots() {
			return NewFailure(FailureIndexOutOfBounds)
		}
		if inst.IsRuntimeImmutable() {
			return NewFailure(FailureWrongArgumentType)
		}
		p.StoreField(inst, receiver, i, v)
		return v
	})

	r.Register("Object.isImmutable", func(p *Process, receiver Value, args []Value) Value {
		return boolValue(p.isImmutableValue(receiver))
	})
}
