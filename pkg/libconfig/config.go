// Package libconfig loads the library packaging configuration consumed by
// image assembly: which module binaries belong in one image and the base
// address each one was linked for. The configuration is TOML, mirroring the
// host firmware's own configuration format. Nothing here is visible to the
// running module; the file exists only at build time.
package libconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/thesofproject/sof-lmdk/internal/types"
)

var (
	// ErrNoLibraryName is returned when the [library] table has no name.
	ErrNoLibraryName = errors.New("library name is required")

	// ErrNoModules is returned when the configuration declares no modules.
	ErrNoModules = errors.New("library declares no modules")

	// ErrNoBinary is returned when a module entry has no binary path.
	ErrNoBinary = errors.New("module binary path is required")

	// ErrZeroBase is returned when a module entry has no base address.
	ErrZeroBase = errors.New("module base address is required")
)

// Library describes the image being packaged.
type Library struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Module is one module's packaging entry: the built binary and the base
// address it was linked for. UUID is optional; when present it must match
// the manifest embedded in the binary, catching a stale binary path before
// it reaches a signed image.
type Module struct {
	Binary      string     `toml:"binary"`
	BaseAddress uint32     `toml:"base_address"`
	UUID        types.UUID `toml:"uuid,omitempty"`
}

// Config is a parsed library packaging configuration.
type Config struct {
	Library Library  `toml:"library"`
	Modules []Module `toml:"module"`

	// baseDir resolves relative binary paths against the config file.
	baseDir string
}

// Parse decodes and validates a TOML configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse library config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads and parses a configuration file. Relative binary paths in the
// file resolve against the file's own directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read library config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.baseDir = filepath.Dir(path)
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Library.Name == "" {
		return ErrNoLibraryName
	}
	if len(c.Modules) == 0 {
		return fmt.Errorf("%w: %s", ErrNoModules, c.Library.Name)
	}
	for i, m := range c.Modules {
		if m.Binary == "" {
			return fmt.Errorf("%w: module %d", ErrNoBinary, i)
		}
		if m.BaseAddress == 0 {
			return fmt.Errorf("%w: module %d (%s)", ErrZeroBase, i, m.Binary)
		}
	}
	return nil
}

// BinaryPath resolves a module's binary path against the config location.
func (c *Config) BinaryPath(m Module) string {
	if filepath.IsAbs(m.Binary) || c.baseDir == "" {
		return m.Binary
	}
	return filepath.Join(c.baseDir, m.Binary)
}
