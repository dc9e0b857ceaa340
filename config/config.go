package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config carries the settings for the demo driver. The ledger core itself is
// configuration-free; only the hosting binary chooses a storage backend.
type Config struct {
	DataDir string `toml:"DataDir"`
	Backend string `toml:"Backend"`
	Env     string `toml:"Env"`
}

const defaultConfig = `# escrowledger demo configuration
DataDir = "./escrow-data"
# Backend selects the record store: "memory" or "leveldb".
Backend = "memory"
Env = "local"
`

// Load loads the configuration from the given path, writing a commented
// default file when none exists yet.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return normalize(cfg)
}

func createDefault(path string) (*Config, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	if err := os.WriteFile(path, []byte(defaultConfig), 0o644); err != nil {
		return nil, err
	}
	cfg := &Config{}
	if _, err := toml.Decode(defaultConfig, cfg); err != nil {
		return nil, err
	}
	return normalize(cfg)
}

func normalize(cfg *Config) (*Config, error) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./escrow-data"
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	switch cfg.Backend {
	case "":
		cfg.Backend = "memory"
	case "memory", "leveldb":
	default:
		return nil, fmt.Errorf("config: unsupported backend %q", cfg.Backend)
	}
	return cfg, nil
}
