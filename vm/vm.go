package vm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
)

// DefaultMaxDepth bounds how deeply loop bodies and calls may nest at run time.
const DefaultMaxDepth = 256

// unbounded is the "run to RET" end bound of a function or main invocation.
const unbounded = -1

// EOFBehavior selects what IN stores once input is exhausted.
type EOFBehavior uint8

const (
	EOFMinusOne  EOFBehavior = iota // Store -1, like C's getchar
	EOFZero                         // Store 0
	EOFUnchanged                    // Leave the cell alone
)

// String returns the configuration spelling of b.
func (b EOFBehavior) String() string {
	switch b {
	case EOFMinusOne:
		return "minus-one"
	case EOFZero:
		return "zero"
	case EOFUnchanged:
		return "unchanged"
	default:
		return fmt.Sprintf("EOFBehavior(%d)", uint8(b))
	}
}

// ParseEOFBehavior parses "minus-one", "zero" or "unchanged". The empty
// string selects EOFMinusOne.
func ParseEOFBehavior(s string) (EOFBehavior, error) {
	switch strings.ToLower(s) {
	case "", "minus-one", "-1":
		return EOFMinusOne, nil
	case "zero", "0":
		return EOFZero, nil
	case "unchanged":
		return EOFUnchanged, nil
	}
	return 0, fmt.Errorf("unknown eof behaviour %q", s)
}

// Options configures a VM. Zero values select the defaults.
type Options struct {
	Input    io.Reader // Source of IN bytes (default: empty)
	Output   io.Writer // Sink of OUT bytes (default: discarded)
	Trace    io.Writer // If set, one "exec <op> <arg>" line per executed instruction
	TapeSize int       // Cells on the tape (default DefaultTapeSize)
	MaxDepth int       // Nesting ceiling (default DefaultMaxDepth)
	EOF      EOFBehavior
}

// VM executes a compiled Program against a Tape. A VM is single-use per
// Run and is not safe for concurrent use.
type VM struct {
	prog *Program
	tape *Tape

	in    *bufio.Reader
	out   *bufio.Writer
	trace io.Writer

	tapeSize int
	maxDepth int
	eof      EOFBehavior

	steps uint64
}

// New creates a VM for prog.
func New(prog *Program, opts Options) *VM {
	in := opts.Input
	if in == nil {
		in = strings.NewReader("")
	}
	out := opts.Output
	if out == nil {
		out = io.Discard
	}
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &VM{
		prog:     prog,
		in:       bufio.NewReader(in),
		out:      bufio.NewWriter(out),
		trace:    opts.Trace,
		tapeSize: opts.TapeSize,
		maxDepth: maxDepth,
		eof:      opts.EOF,
	}
}

// Run validates the program, allocates a fresh tape and executes the main
// body. Output is flushed even when the run fails.
func (vm *VM) Run() error {
	if err := vm.prog.Validate(); err != nil {
		return err
	}
	return vm.RunTape(NewTape(vm.tapeSize))
}

// RunTape executes the main body against a caller-supplied tape. The
// program is assumed to have been validated.
func (vm *VM) RunTape(tape *Tape) error {
	if tape.Head < 0 || tape.Head >= tape.Len() {
		return fmt.Errorf("head %d outside tape of %d cells", tape.Head, tape.Len())
	}
	vm.tape = tape
	vm.steps = 0
	err := vm.run(0, unbounded, 0)
	if ferr := vm.out.Flush(); ferr != nil && err == nil {
		err = runtimeError(fmt.Errorf("%w: %v", ErrIO, ferr), vm.prog.Len(), OpOut)
	}
	return err
}

// Tape returns the tape of the last run, or nil before the first run.
func (vm *VM) Tape() *Tape {
	return vm.tape
}

// Steps returns the number of instructions executed by the last run.
func (vm *VM) Steps() uint64 {
	return vm.steps
}

// run executes code[from:to). With to == unbounded it stops at RET or at the
// end of the program; with a finite to it is a loop body, where RET is an
// error. The head is read from the tape on entry and written back before
// every return and around every nested invocation.
func (vm *VM) run(from, to, depth int) error {
	code := vm.prog.Code
	if depth > vm.maxDepth {
		var op Opcode
		if from < len(code) {
			op = code[from].Op
		}
		return runtimeError(ErrRecursionLimit, from, op)
	}

	cells := vm.tape.Cells
	pos := vm.tape.Head
	defer func() { vm.tape.Head = pos }()

	for i := from; i < len(code) && i != to; i++ {
		in := code[i]
		vm.steps++
		if vm.trace != nil {
			fmt.Fprintf(vm.trace, "exec %s %d\n", in.Op, in.Arg)
		}

		switch in.Op {
		case OpRet:
			if to != unbounded {
				return runtimeError(ErrRetInLoop, i, in.Op)
			}
			return nil

		case OpIn:
			if err := vm.out.Flush(); err != nil {
				return runtimeError(fmt.Errorf("%w: %v", ErrIO, err), i, in.Op)
			}
			for n := in.Arg; n > 0; n-- {
				c, err := vm.in.ReadByte()
				switch {
				case err == nil:
					cells[pos] = int32(c)
				case errors.Is(err, io.EOF):
					switch vm.eof {
					case EOFMinusOne:
						cells[pos] = -1
					case EOFZero:
						cells[pos] = 0
					}
				default:
					return runtimeError(fmt.Errorf("%w: %v", ErrIO, err), i, in.Op)
				}
			}

		case OpOut:
			for n := in.Arg; n > 0; n-- {
				if err := vm.out.WriteByte(byte(cells[pos])); err != nil {
					return runtimeError(fmt.Errorf("%w: %v", ErrIO, err), i, in.Op)
				}
			}

		case OpLeft:
			if in.Arg > pos {
				return runtimeError(ErrTapeLeft, i, in.Op)
			}
			pos -= in.Arg

		case OpRight:
			// len-pos is always positive, so this cannot wrap.
			if in.Arg >= len(cells)-pos {
				return runtimeError(ErrTapeRight, i, in.Op)
			}
			pos += in.Arg

		case OpInc:
			if int64(in.Arg) > math.MaxInt32-int64(cells[pos]) {
				return runtimeError(ErrOverflow, i, in.Op)
			}
			cells[pos] += int32(in.Arg)

		case OpDec:
			if int64(in.Arg) > int64(cells[pos])-math.MinInt32 {
				return runtimeError(ErrUnderflow, i, in.Op)
			}
			cells[pos] -= int32(in.Arg)

		case OpRepNZ:
			if cells[pos] != 0 {
				vm.tape.Head = pos
				if err := vm.run(i+1, i+1+in.Arg, depth+1); err != nil {
					pos = vm.tape.Head
					return err
				}
				pos = vm.tape.Head
				// Test the same REPNZ again.
				i--
			} else {
				i += in.Arg
			}

		case OpCall:
			vm.tape.Head = pos
			if err := vm.run(in.Arg, unbounded, depth+1); err != nil {
				pos = vm.tape.Head
				return err
			}
			pos = vm.tape.Head
		}
	}
	return nil
}
