package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/brainfunc/vm"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	opts := c.VMOptions()
	if opts.TapeSize != vm.DefaultTapeSize {
		t.Errorf("TapeSize = %d, want %d", opts.TapeSize, vm.DefaultTapeSize)
	}
	if opts.MaxDepth != vm.DefaultMaxDepth {
		t.Errorf("MaxDepth = %d, want %d", opts.MaxDepth, vm.DefaultMaxDepth)
	}
	if opts.EOF != vm.EOFMinusOne {
		t.Errorf("EOF = %v, want minus-one", opts.EOF)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
[tape]
cells = 30000
eof = "zero"

[vm]
recursion-limit = 64

[cache]
path = ".brainfunc/cache.db"
`)

	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if c.Tape.Cells != 30000 {
		t.Errorf("tape.cells = %d, want 30000", c.Tape.Cells)
	}
	if c.VMOptions().EOF != vm.EOFZero {
		t.Errorf("eof = %v, want zero", c.VMOptions().EOF)
	}
	if c.VM.RecursionLimit != 64 {
		t.Errorf("recursion-limit = %d, want 64", c.VM.RecursionLimit)
	}
	// Unset keys keep their defaults.
	if c.Source.MaxSize != Default().Source.MaxSize {
		t.Errorf("source.max-size = %d, want default", c.Source.MaxSize)
	}
	wantCache := filepath.Join(dir, ".brainfunc", "cache.db")
	if c.Cache.Path != wantCache {
		t.Errorf("cache.path = %q, want %q", c.Cache.Path, wantCache)
	}
	if c.Path == "" {
		t.Error("Path not recorded")
	}
}

func TestLoadFileRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errPart string
	}{
		{"cells", "[tape]\ncells = 0\n", "tape.cells"},
		{"eof", "[tape]\neof = \"sometimes\"\n", "tape.eof"},
		{"max size", "[source]\nmax-size = -1\n", "source.max-size"},
		{"recursion", "[vm]\nrecursion-limit = 0\n", "vm.recursion-limit"},
		{"syntax", "[tape\n", "parse error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.content)
			_, err := LoadFile(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.errPart) {
				t.Errorf("error %q does not mention %q", err, tt.errPart)
			}
		})
	}
}

func TestFindAndLoadWalksUp(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "[tape]\ncells = 100\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if c.Tape.Cells != 100 {
		t.Errorf("tape.cells = %d, want 100", c.Tape.Cells)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), FileName)); err == nil {
		t.Error("expected error for missing file")
	}
}
