// Package image reads and writes compiled brainfunc programs. An image is the
// magic "BFBC" followed by a canonical CBOR body, so the same program always
// encodes to the same bytes.
package image

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/brainfunc/source"
	"github.com/chazu/brainfunc/vm"
)

// Version is the current image format version.
// Increment when making incompatible changes to the format.
const Version uint16 = 1

// Magic identifies a brainfunc image file.
var Magic = [4]byte{'B', 'F', 'B', 'C'}

// Errors returned by Read and Unmarshal.
var (
	ErrBadMagic = errors.New("image: not a brainfunc image")
	ErrTooLarge = errors.New("image: image is too large")
)

// maxBytesPerSourceByte bounds how many encoded bytes one source byte can
// produce. Each source byte yields at most one instruction (11 bytes of CBOR
// at most), and a two-byte definition yields a RET plus a function record.
const maxBytesPerSourceByte = 16

// headerAllowance covers the magic, version, hash, map and array headers,
// and the RET that ends the last function.
const headerAllowance = 128

// MaxSize returns the largest image Read accepts for programs whose source
// is limited to sourceMax bytes. Any program compiled from such a source
// encodes within it. A non-positive sourceMax selects source.DefaultMaxSize.
func MaxSize(sourceMax int64) int64 {
	if sourceMax <= 0 {
		sourceMax = source.DefaultMaxSize
	}
	if sourceMax > (math.MaxInt64-headerAllowance)/maxBytesPerSourceByte {
		return math.MaxInt64
	}
	return sourceMax*maxBytesPerSourceByte + headerAllowance
}

// Image is the serialized form of a compiled program.
type Image struct {
	Version    uint16        `cbor:"1,keyasint"`
	SourceHash [32]byte      `cbor:"2,keyasint"`
	Code       []Instruction `cbor:"3,keyasint"`
	Functions  []Function    `cbor:"4,keyasint,omitempty"`
}

// Instruction is an encoded vm.Instruction, packed as a two-element array.
type Instruction struct {
	_   struct{} `cbor:",toarray"`
	Op  uint8
	Arg int
}

// Function is an encoded vm.Function.
type Function struct {
	Name  string `cbor:"1,keyasint"`
	Entry int    `cbor:"2,keyasint"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// HashSource returns the content hash recorded in images built from src.
func HashSource(src []byte) [32]byte {
	return sha256.Sum256(src)
}

// New builds an image from a compiled program and the source it came from.
func New(prog *vm.Program, src []byte) *Image {
	img := &Image{
		Version:    Version,
		SourceHash: HashSource(src),
		Code:       make([]Instruction, len(prog.Code)),
	}
	for i, in := range prog.Code {
		img.Code[i] = Instruction{Op: uint8(in.Op), Arg: in.Arg}
	}
	for _, fn := range prog.Functions {
		img.Functions = append(img.Functions, Function{Name: fn.Name, Entry: fn.Entry})
	}
	return img
}

// Program converts the image back into a validated program.
func (img *Image) Program() (*vm.Program, error) {
	if img.Version != Version {
		return nil, fmt.Errorf("image: unsupported version %d (want %d)", img.Version, Version)
	}
	prog := vm.NewProgram()
	for _, in := range img.Code {
		prog.Append(vm.Opcode(in.Op), in.Arg)
	}
	for _, fn := range img.Functions {
		prog.Functions = append(prog.Functions, vm.Function{Name: fn.Name, Entry: fn.Entry})
	}
	if err := prog.Validate(); err != nil {
		return nil, fmt.Errorf("image: %w", err)
	}
	return prog, nil
}

// Marshal serializes an image, magic included.
func Marshal(img *Image) ([]byte, error) {
	body, err := cborEncMode.Marshal(img)
	if err != nil {
		return nil, fmt.Errorf("image: marshal: %w", err)
	}
	out := make([]byte, 0, len(Magic)+len(body))
	out = append(out, Magic[:]...)
	return append(out, body...), nil
}

// Unmarshal deserializes an image. It does not validate the program; call
// Program for that.
func Unmarshal(data []byte) (*Image, error) {
	if !IsImage(data) {
		return nil, ErrBadMagic
	}
	var img Image
	if err := cbor.Unmarshal(data[len(Magic):], &img); err != nil {
		return nil, fmt.Errorf("image: unmarshal: %w", err)
	}
	return &img, nil
}

// IsImage reports whether data starts with the image magic.
func IsImage(data []byte) bool {
	return len(data) >= len(Magic) && bytes.Equal(data[:len(Magic)], Magic[:])
}

// Write encodes prog to w.
func Write(w io.Writer, prog *vm.Program, src []byte) error {
	data, err := Marshal(New(prog, src))
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Read decodes and validates a program from r, failing with ErrTooLarge
// once more than max bytes arrive. A non-positive max selects
// MaxSize(source.DefaultMaxSize).
func Read(r io.Reader, max int64) (*vm.Program, error) {
	if max <= 0 {
		max = MaxSize(source.DefaultMaxSize)
	}
	// One extra byte tells "exactly max" apart from "more than max".
	limit := max
	if limit < math.MaxInt64 {
		limit++
	}
	data, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return nil, fmt.Errorf("image: read: %w", err)
	}
	if int64(len(data)) > max {
		return nil, ErrTooLarge
	}
	img, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return img.Program()
}
