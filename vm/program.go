package vm

import (
	"errors"
	"fmt"
)

// minProgramCapacity is the initial instruction capacity of a new Program.
const minProgramCapacity = 128

// Instruction is a single fixed-width bytecode instruction.
type Instruction struct {
	Op  Opcode
	Arg int
}

// String formats the instruction the way listings and traces print it.
func (in Instruction) String() string {
	return fmt.Sprintf("%s %d", in.Op, in.Arg)
}

// Function records where a named function starts. It is listing metadata
// only; the executor reaches functions through resolved CALL operands.
type Function struct {
	Name  string
	Entry int
}

// Program is an append-only sequence of instructions. The main body is a
// prefix of Code; each function follows the RET that seals the block before
// it. Loop bodies sit inline right after their REPNZ.
type Program struct {
	Code      []Instruction
	Functions []Function
}

// NewProgram creates an empty program presized for a whole compilation.
// Buffers for nested blocks should start as a zero Program instead, which
// allocates nothing until the first Append.
func NewProgram() *Program {
	return &Program{Code: make([]Instruction, 0, minProgramCapacity)}
}

// Len returns the number of instructions, which is also the offset the next
// appended instruction will occupy.
func (p *Program) Len() int {
	return len(p.Code)
}

// Append adds one instruction.
func (p *Program) Append(op Opcode, arg int) {
	p.Code = append(p.Code, Instruction{Op: op, Arg: arg})
}

// AppendProgram splices a copy of other's instructions onto the end of p.
// other is left untouched and shares no storage with p afterwards.
func (p *Program) AppendProgram(other *Program) {
	p.Code = append(p.Code, other.Code...)
}

// FunctionAt returns the name of the function whose entry is offset.
func (p *Program) FunctionAt(offset int) (string, bool) {
	for _, fn := range p.Functions {
		if fn.Entry == offset {
			return fn.Name, true
		}
	}
	return "", false
}

// ErrInvalidProgram is returned (wrapped) by Validate.
var ErrInvalidProgram = errors.New("invalid program")

// Validate checks the structural invariants the executor relies on: known
// opcodes, non-negative operands, REPNZ bodies that stay inside the program,
// and CALL targets that point into it.
func (p *Program) Validate() error {
	n := len(p.Code)
	var loopEnds []int
	for i, in := range p.Code {
		for len(loopEnds) > 0 && loopEnds[len(loopEnds)-1] <= i {
			loopEnds = loopEnds[:len(loopEnds)-1]
		}
		if !in.Op.Valid() {
			return fmt.Errorf("%w: unknown opcode %d at %d", ErrInvalidProgram, uint8(in.Op), i)
		}
		if in.Arg < 0 {
			return fmt.Errorf("%w: negative operand %d at %d", ErrInvalidProgram, in.Arg, i)
		}
		switch in.Op {
		case OpRet:
			if in.Arg != 0 {
				return fmt.Errorf("%w: ret with operand %d at %d", ErrInvalidProgram, in.Arg, i)
			}
		case OpRepNZ:
			if in.Arg > n-(i+1) {
				return fmt.Errorf("%w: loop body at %d runs past the end", ErrInvalidProgram, i)
			}
			end := i + 1 + in.Arg
			if len(loopEnds) > 0 && end > loopEnds[len(loopEnds)-1] {
				return fmt.Errorf("%w: loop body at %d overlaps its enclosing loop", ErrInvalidProgram, i)
			}
			loopEnds = append(loopEnds, end)
		case OpCall:
			if in.Arg >= n {
				return fmt.Errorf("%w: call target %d at %d out of range", ErrInvalidProgram, in.Arg, i)
			}
		}
	}
	for _, fn := range p.Functions {
		if fn.Entry < 0 || fn.Entry >= n {
			return fmt.Errorf("%w: function %q entry %d out of range", ErrInvalidProgram, fn.Name, fn.Entry)
		}
	}
	return nil
}
