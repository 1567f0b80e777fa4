package vm

import "testing"

func TestStaticForeignLibraryLookup(t *testing.T) {
	called := false
	lib := StaticForeignLibrary{
		"double": func(args []Value) (Value, error) {
			called = true
			return args[0], nil
		},
	}
	fn, ok := lib.Lookup("double")
	if !ok {
		t.Fatal("Lookup should find a registered symbol")
	}
	v, _ := NewSmi(21)
	result, err := fn([]Value{v})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("the registered function should have run")
	}
	if result != v {
		t.Errorf("result = %v, want %v", result, v)
	}
	if _, ok := lib.Lookup("missing"); ok {
		t.Error("Lookup of an unregistered symbol should fail")
	}
}

func TestForeignRegistryRegisterAndLookup(t *testing.T) {
	fr := NewForeignRegistry()
	if _, ok := fr.lookup("libm", "sqrt"); ok {
		t.Error("an unregistered library should not resolve")
	}
	fr.Register("libm", StaticForeignLibrary{
		"sqrt": func(args []Value) (Value, error) { return Nil, nil },
	})
	fn, ok := fr.lookup("libm", "sqrt")
	if !ok || fn == nil {
		t.Error("a registered library's symbol should resolve")
	}
	if _, ok := fr.lookup("libm", "cos"); ok {
		t.Error("an unregistered symbol within a known library should not resolve")
	}
}

func TestFFINativesConsultRegistry(t *testing.T) {
	registry := &NativeRegistry{byName: make(map[string]int), foreign: NewForeignRegistry()}
	registerFFINatives(registry, registry.foreign)

	lookupIdx, ok := registry.Index("FFI.lookup")
	if !ok {
		t.Fatal("FFI.lookup should be registered")
	}
	callIdx, ok := registry.Index("FFI.call")
	if !ok {
		t.Fatal("FFI.call should be registered")
	}

	stringClass := NewClass(0, "String", InstanceFormat{Type: InstanceTypeString}, nil, nil)
	libName := NewStringFromGo(stringClass, "mylib")
	symbol := NewStringFromGo(stringClass, "identity")
	libVal := TagHeapObject(ptrOf(libName))
	symVal := TagHeapObject(ptrOf(symbol))

	lookupMethod := registry.table[lookupIdx]
	if got := lookupMethod.Invoke(nil, Nil, []Value{libVal, symVal}); got != False {
		t.Errorf("FFI.lookup before registration = %v, want False", got)
	}

	registry.foreign.Register("mylib", StaticForeignLibrary{
		"identity": func(args []Value) (Value, error) { return args[0], nil },
	})

	if got := lookupMethod.Invoke(nil, Nil, []Value{libVal, symVal}); got != True {
		t.Errorf("FFI.lookup after registration = %v, want True", got)
	}

	callMethod := registry.table[callIdx]
	arg, _ := NewSmi(99)
	got := callMethod.Invoke(nil, Nil, []Value{libVal, symVal, arg})
	if got != arg {
		t.Errorf("FFI.call result = %v, want %v", got, arg)
	}
}
