package vm

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the decoded contents of a fletch.toml configuration file
// (SPEC_FULL.md §10.2). Every field has a hardcoded default applied before
// decoding, so a missing file or a file that omits a section still yields a
// usable Config.
type Config struct {
	Worker  WorkerConfig  `toml:"worker"`
	Heap    HeapConfig    `toml:"heap"`
	Stack   StackConfig   `toml:"stack"`
	Library LibraryConfig `toml:"library"`
	Debug   DebugConfig   `toml:"debug"`
}

type WorkerConfig struct {
	PoolSize int `toml:"pool_size"`
}

type HeapConfig struct {
	InitialMutableWords int `toml:"initial_mutable_words"`
	MaxMutableWords     int `toml:"max_mutable_words"`
	ImmutableWords      int `toml:"immutable_words"`
}

type StackConfig struct {
	InitialFrames int `toml:"initial_frames"`
	MaxWords      int `toml:"max_words"`
}

type LibraryConfig struct {
	SearchPath []string `toml:"search_path"`
}

type DebugConfig struct {
	ListenAddress string `toml:"listen_address"`
}

// DefaultConfig returns the hardcoded fallback values named in SPEC_FULL.md
// §10.2.
func DefaultConfig() *Config {
	return &Config{
		Worker: WorkerConfig{PoolSize: 4},
		Heap: HeapConfig{
			InitialMutableWords: 1 << 16,
			MaxMutableWords:     1 << 24,
			ImmutableWords:      1 << 28,
		},
		Stack: StackConfig{InitialFrames: 8, MaxWords: MaxStackSize},
		Debug: DebugConfig{ListenAddress: "localhost:41000"},
	}
}

// LoadConfig decodes path over DefaultConfig's values. A missing path
// (path == "") returns the defaults unchanged. A malformed file is a fatal
// Setup error per SPEC_FULL.md §10.2 / §10.4's error-handling policy.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("vm: decoding config %q: %w", path, err)
	}
	return cfg, nil
}
