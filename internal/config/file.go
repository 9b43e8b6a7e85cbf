package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

// LoadFile reads the raw (unexpanded, un-defaulted) configuration file at
// path, used by the add-phabricator/add-repohost/add-repo/rm-repo
// commands, which mutate the file directly rather than going through
// Load's env-overlay path. A missing file returns a zero Config, not an
// error — these commands are also how the file comes to exist.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// SaveFile writes cfg to path atomically, the same rename-based write
// fsconfig uses for repo descriptors.
func SaveFile(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal %s: %w", path, err)
	}
	return atomic.WriteFile(path, strings.NewReader(string(data)))
}
