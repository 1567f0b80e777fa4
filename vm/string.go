package vm

import "unicode/utf16"

// String stores its characters as UTF-16 code units (spec.md §3), matching
// the source VM's internal string representation. A String is effectively
// immutable after creation: the only writers are the allocator (during
// construction) and the natives that build strings incrementally before
// handing the result to user code; no bytecode stores into an already
// published String.
type String struct {
	HeapObject
	Units []uint16
}

// NewString allocates a String with room for n UTF-16 code units, all zero.
func NewString(c *Class, n int) *String {
	s := &String{Units: make([]uint16, n)}
	s.SetClass(c)
	return s
}

// NewStringFromGo builds a String by encoding a Go string to UTF-16.
func NewStringFromGo(c *Class, text string) *String {
	return &String{HeapObject: HeapObject{class: c}, Units: utf16.Encode([]rune(text))}
}

func (s *String) Len() int { return len(s.Units) }

// Go decodes the String back to a Go string, replacing unpaired surrogates
// per utf16.Decode's usual behavior.
func (s *String) Go() string {
	return string(utf16.Decode(s.Units))
}

func (s *String) At(i int) (uint16, bool) {
	if i < 0 || i >= len(s.Units) {
		return 0, false
	}
	return s.Units[i], true
}
