package vm

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// EncodeSnapshotExport produces a CBOR dump of program for offline tooling
// (the write-snapshot debug opcode, debugger.go), distinct from the binary
// live-program format snapshot.go reads. Where the live format is built for
// the interpreter — index-resolved, pointer-free until materialize — this
// export is built for a human or a separate tool to read back: named
// fields, selector names resolved instead of raw ids, no heap layout
// details a debugger consumer has no use for.
func EncodeSnapshotExport(program *Program) ([]byte, error) {
	exp := snapshotExport{
		Classes:   make([]classExport, len(program.Classes)),
		Functions: make([]functionExport, len(program.Functions)),
		Statics:   make([]valueExport, len(program.Statics)),
	}
	if program.EntryFunction != nil {
		exp.EntryFunction = program.EntryFunction.Name
	}

	classIndex := make(map[*Class]int, len(program.Classes))
	for i, c := range program.Classes {
		classIndex[c] = i
	}
	for i, c := range program.Classes {
		ce := classExport{
			Name:         c.Name,
			InstanceType: int(c.Format.Type),
			FixedSize:    c.Format.FixedSize,
			InstVarNames: c.InstVarNames,
		}
		if c.Super != nil {
			idx, ok := classIndex[c.Super]
			if !ok {
				return nil, fmt.Errorf("vm: snapshot export: class %q's superclass not in program.Classes", c.Name)
			}
			ce.SuperIndex = idx
		} else {
			ce.SuperIndex = -1
		}
		exp.Classes[i] = ce
	}

	for i, fn := range program.Functions {
		fe := functionExport{
			Name:     fn.Name,
			Arity:    fn.Arity,
			MaxStack: fn.MaxStack,
			Literals: make([]valueExport, len(fn.Literals)),
		}
		for j, lit := range fn.Literals {
			fe.Literals[j] = exportValue(program, lit)
		}
		exp.Functions[i] = fe
	}

	for i, v := range program.Statics {
		exp.Statics[i] = exportValue(program, v)
	}

	return cbor.Marshal(exp)
}

type snapshotExport struct {
	EntryFunction string           `cbor:"entry_function"`
	Classes       []classExport    `cbor:"classes"`
	Functions     []functionExport `cbor:"functions"`
	Statics       []valueExport    `cbor:"statics"`
}

type classExport struct {
	Name         string   `cbor:"name"`
	SuperIndex   int      `cbor:"super_index"`
	InstanceType int      `cbor:"instance_type"`
	FixedSize    int      `cbor:"fixed_size"`
	InstVarNames []string `cbor:"inst_var_names"`
}

type functionExport struct {
	Name     string        `cbor:"name"`
	Arity    int           `cbor:"arity"`
	MaxStack int           `cbor:"max_stack"`
	Literals []valueExport `cbor:"literals"`
}

// valueExport is a best-effort, read-only rendering of a Value for tooling
// consumption. It is not fed back into readDebugValue — change-method-literal
// and change-statics carry their own, separately encoded payload.
type valueExport struct {
	Kind   string  `cbor:"kind"`
	Smi    int64   `cbor:"smi,omitempty"`
	Double float64 `cbor:"double,omitempty"`
	Text   string  `cbor:"text,omitempty"`
	Class  string  `cbor:"class,omitempty"`
}

func exportValue(program *Program, v Value) valueExport {
	switch {
	case v == Nil:
		return valueExport{Kind: "nil"}
	case v == True:
		return valueExport{Kind: "true"}
	case v == False:
		return valueExport{Kind: "false"}
	case v.IsSmi():
		return valueExport{Kind: "smi", Smi: v.SmiValue()}
	case v.IsHeapObject():
		h := AsHeapObject(v)
		className := ""
		if c := h.Class(); c != nil {
			className = c.Name
		}
		format := InstanceTypeInstance
		if h.Class() != nil {
			format = h.Class().Format.Type
		}
		switch format {
		case InstanceTypeString:
			s := (*String)(v.HeapObjectPointer())
			return valueExport{Kind: "string", Text: s.Go(), Class: className}
		case InstanceTypeDouble:
			d := (*Double)(v.HeapObjectPointer())
			return valueExport{Kind: "double", Double: d.Float64(), Class: className}
		case InstanceTypeLargeInteger:
			li := (*LargeInteger)(v.HeapObjectPointer())
			return valueExport{Kind: "large-integer", Smi: li.Value, Class: className}
		default:
			return valueExport{Kind: "heap", Class: className}
		}
	default:
		return valueExport{Kind: "unknown"}
	}
}
