// Package config handles brainfunc.toml run configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/brainfunc/source"
	"github.com/chazu/brainfunc/vm"
)

// FileName is the name looked for when searching for a configuration.
const FileName = "brainfunc.toml"

// Config represents a brainfunc.toml file.
type Config struct {
	Tape   Tape   `toml:"tape"`
	Source Source `toml:"source"`
	VM     VM     `toml:"vm"`
	Cache  Cache  `toml:"cache"`

	// Path is the file the configuration was loaded from (empty for defaults).
	Path string `toml:"-"`
}

// Tape configures the tape every run starts with.
type Tape struct {
	Cells int    `toml:"cells"`
	EOF   string `toml:"eof"`
}

// Source configures program loading.
type Source struct {
	MaxSize int64 `toml:"max-size"`
}

// VM configures the executor.
type VM struct {
	RecursionLimit int `toml:"recursion-limit"`
}

// Cache configures the compiled-program cache. An empty path disables it.
type Cache struct {
	Path string `toml:"path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Tape:   Tape{Cells: vm.DefaultTapeSize, EOF: vm.EOFMinusOne.String()},
		Source: Source{MaxSize: source.DefaultMaxSize},
		VM:     VM{RecursionLimit: vm.DefaultMaxDepth},
	}
}

// LoadFile parses the configuration file at path. Keys it does not set keep
// their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	if _, err := toml.Decode(string(data), c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	// A relative cache path is relative to the configuration file.
	if c.Cache.Path != "" && !filepath.IsAbs(c.Cache.Path) {
		c.Cache.Path = filepath.Join(filepath.Dir(c.Path), c.Cache.Path)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a brainfunc.toml file, then
// loads it. Without one it returns the defaults.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return Default(), nil
		}
		dir = parent
	}
}

// Validate rejects values the executor cannot honour.
func (c *Config) Validate() error {
	if c.Tape.Cells <= 0 {
		return fmt.Errorf("tape.cells must be positive, got %d", c.Tape.Cells)
	}
	if _, err := vm.ParseEOFBehavior(c.Tape.EOF); err != nil {
		return fmt.Errorf("tape.eof: %w", err)
	}
	if c.Source.MaxSize <= 0 {
		return fmt.Errorf("source.max-size must be positive, got %d", c.Source.MaxSize)
	}
	if c.VM.RecursionLimit <= 0 {
		return fmt.Errorf("vm.recursion-limit must be positive, got %d", c.VM.RecursionLimit)
	}
	return nil
}

// VMOptions returns executor options for this configuration. I/O streams
// are left for the caller to fill in.
func (c *Config) VMOptions() vm.Options {
	eof, _ := vm.ParseEOFBehavior(c.Tape.EOF)
	return vm.Options{
		TapeSize: c.Tape.Cells,
		MaxDepth: c.VM.RecursionLimit,
		EOF:      eof,
	}
}
