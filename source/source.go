// Package source loads program text with an upper bound on its size.
package source

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// DefaultMaxSize is the largest program accepted unless configured otherwise.
const DefaultMaxSize = 1 << 20

// ErrTooLarge is returned when a source exceeds the size limit.
var ErrTooLarge = errors.New("source is too long")

// Read reads all of r, failing with ErrTooLarge once more than max bytes
// arrive. A non-positive max selects DefaultMaxSize.
func Read(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		max = DefaultMaxSize
	}
	// One extra byte tells "exactly max" apart from "more than max".
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, fmt.Errorf("error while reading source: %w", err)
	}
	if int64(len(data)) > max {
		return nil, ErrTooLarge
	}
	return data, nil
}

// ReadFile reads the file at path, checking its size before reading it.
func ReadFile(path string, max int64) ([]byte, error) {
	if max <= 0 {
		max = DefaultMaxSize
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open file '%s': %w", path, err)
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && info.Mode().IsRegular() && info.Size() > max {
		return nil, ErrTooLarge
	}
	data, err := Read(f, max)
	if err != nil {
		if errors.Is(err, ErrTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("could not read file '%s': %w", path, err)
	}
	return data, nil
}
