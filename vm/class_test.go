package vm

import "testing"

func TestNewClassNoSuper(t *testing.T) {
	c := NewClass(0, "Object", InstanceFormat{Type: InstanceTypeInstance}, nil, nil)
	if c.Name != "Object" {
		t.Errorf("Name = %q, want %q", c.Name, "Object")
	}
	if c.Super != nil {
		t.Error("root class should have nil Super")
	}
	if c.Methods == nil {
		t.Error("Methods vtable should be created")
	}
	if c.Methods.Class() != c {
		t.Error("Methods.Class() should return c")
	}
	if c.NumInstVars() != 0 {
		t.Errorf("NumInstVars() = %d, want 0", c.NumInstVars())
	}
}

func TestClassInstVarInheritance(t *testing.T) {
	object := NewClass(0, "Object", InstanceFormat{Type: InstanceTypeInstance}, nil, nil)
	point := NewClass(1, "Point", InstanceFormat{Type: InstanceTypeInstance}, object, []string{"x", "y"})
	colorPoint := NewClass(2, "ColorPoint", InstanceFormat{Type: InstanceTypeInstance}, point, []string{"color"})

	if point.NumInstVars() != 2 {
		t.Errorf("Point.NumInstVars() = %d, want 2", point.NumInstVars())
	}
	if colorPoint.NumInstVars() != 3 {
		t.Errorf("ColorPoint.NumInstVars() = %d, want 3", colorPoint.NumInstVars())
	}
	if idx := colorPoint.InstVarIndex("y"); idx != 1 {
		t.Errorf("InstVarIndex(y) = %d, want 1 (inherited slot)", idx)
	}
	if idx := colorPoint.InstVarIndex("color"); idx != 2 {
		t.Errorf("InstVarIndex(color) = %d, want 2 (own slot after inherited)", idx)
	}
	if idx := colorPoint.InstVarIndex("nope"); idx != -1 {
		t.Errorf("InstVarIndex(nope) = %d, want -1", idx)
	}
}

func TestIsSubclassOf(t *testing.T) {
	object := NewClass(0, "Object", InstanceFormat{Type: InstanceTypeInstance}, nil, nil)
	point := NewClass(1, "Point", InstanceFormat{Type: InstanceTypeInstance}, object, nil)
	other := NewClass(2, "Other", InstanceFormat{Type: InstanceTypeInstance}, nil, nil)

	if !point.IsSubclassOf(object) {
		t.Error("Point should be a subclass of Object")
	}
	if !point.IsSubclassOf(point) {
		t.Error("a class should be a subclass of itself")
	}
	if point.IsSubclassOf(other) {
		t.Error("Point should not be a subclass of Other")
	}
}

func TestInstanceFormatIsVariableLength(t *testing.T) {
	variable := []InstanceType{InstanceTypeArray, InstanceTypeByteArray, InstanceTypeString}
	fixed := []InstanceType{InstanceTypeInstance, InstanceTypeDouble, InstanceTypeLargeInteger, InstanceTypeBoxed}

	for _, it := range variable {
		if !(InstanceFormat{Type: it}).IsVariableLength() {
			t.Errorf("InstanceType %v should be variable-length", it)
		}
	}
	for _, it := range fixed {
		if (InstanceFormat{Type: it}).IsVariableLength() {
			t.Errorf("InstanceType %v should not be variable-length", it)
		}
	}
}
