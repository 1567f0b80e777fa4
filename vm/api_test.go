package vm

import (
	"testing"

	bc "github.com/floitschG/fletch/pkg/bytecode"
)

func buildReturningSnapshot(t *testing.T, smi byte) []byte {
	t.Helper()
	var b snapshotBuilder
	b.header(1, 1, 0, 0, 0)
	b.class("Object", InstanceFormat{Type: InstanceTypeInstance}, -1)
	code := []byte{
		byte(bc.OpLoadSmiSmall), smi,
		byte(bc.OpReturn),
	}
	b.function("main", 0, 4, code, func() { b.nilValue() })
	return b.buf.Bytes()
}

func TestEngineSetupUsesDefaultConfig(t *testing.T) {
	e, err := Setup("")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer e.TearDown()
	if e.Environment() == nil {
		t.Fatal("Environment() should be non-nil after Setup")
	}
	if e.Environment().Config.Worker.PoolSize != DefaultConfig().Worker.PoolSize {
		t.Error("Setup(\"\") should use DefaultConfig's values")
	}
}

func TestEngineRunSnapshotRunsEntryFunctionToCompletion(t *testing.T) {
	e, err := Setup("")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer e.TearDown()

	data := buildReturningSnapshot(t, 42)
	result, err := e.RunSnapshot(data, nil)
	if err != nil {
		t.Fatalf("RunSnapshot: %v", err)
	}
	if !result.IsSmi() || result.SmiValue() != 42 {
		t.Errorf("RunSnapshot result = %v, want smi 42", result)
	}
}

func TestEngineRunSnapshotRejectsMalformedData(t *testing.T) {
	e, err := Setup("")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer e.TearDown()

	if _, err := e.RunSnapshot([]byte{0x00, 0x00}, nil); err == nil {
		t.Error("RunSnapshot should reject a stream with a bad magic number")
	}
}

func TestEngineRunSnapshotFromFileRejectsMissingFile(t *testing.T) {
	e, err := Setup("")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer e.TearDown()

	if _, err := e.RunSnapshotFromFile("/nonexistent/path/to/a.snapshot"); err == nil {
		t.Error("RunSnapshotFromFile should fail on a missing file")
	}
}

func TestEngineTearDownIsSafeWithoutDebugListener(t *testing.T) {
	e, err := Setup("")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := e.TearDown(); err != nil {
		t.Errorf("TearDown on an Engine with no debug listener = %v, want nil", err)
	}
}
