package vm

import "fmt"

// Opcode identifies a bytecode instruction. Every instruction carries exactly
// one non-negative operand; see Instruction.
type Opcode uint8

const (
	OpRet   Opcode = iota // End of function or main body (operand 0)
	OpIn                  // Read <n> bytes into the current cell
	OpOut                 // Write the current cell <n> times
	OpLeft                // Move the head left by <n>
	OpRight               // Move the head right by <n>
	OpInc                 // Add <n> to the current cell
	OpDec                 // Subtract <n> from the current cell
	OpRepNZ               // While the current cell is nonzero run the next <n> instructions
	OpCall                // Call the function whose entry offset is <n>

	opCount
)

// OpcodeInfo provides metadata about each opcode for listings and validation.
type OpcodeInfo struct {
	Name string // Mnemonic used in listings and traces
}

var opcodeInfoTable = [opCount]OpcodeInfo{
	OpRet:   {"ret"},
	OpIn:    {"in"},
	OpOut:   {"out"},
	OpLeft:  {"left"},
	OpRight: {"right"},
	OpInc:   {"inc"},
	OpDec:   {"dec"},
	OpRepNZ: {"repnz"},
	OpCall:  {"call"},
}

// GetOpcodeInfo returns metadata for an opcode.
// Unknown opcodes get a synthetic name.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if op.Valid() {
		return opcodeInfoTable[op]
	}
	return OpcodeInfo{Name: fmt.Sprintf("op(%d)", uint8(op))}
}

// String returns the mnemonic of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	return op < opCount
}

// IsStructural reports whether the operand of op is an offset or length
// into the program rather than a repeat count.
func (op Opcode) IsStructural() bool {
	return op == OpRepNZ || op == OpCall
}

// OpcodeForSymbol maps a run-length folded source character to its opcode.
func OpcodeForSymbol(c byte) (Opcode, bool) {
	switch c {
	case '.':
		return OpOut, true
	case ',':
		return OpIn, true
	case '+':
		return OpInc, true
	case '-':
		return OpDec, true
	case '<':
		return OpLeft, true
	case '>':
		return OpRight, true
	}
	return 0, false
}

// ParseOpcode returns the opcode with the given mnemonic.
func ParseOpcode(name string) (Opcode, bool) {
	for op := Opcode(0); op < opCount; op++ {
		if opcodeInfoTable[op].Name == name {
			return op, true
		}
	}
	return 0, false
}

// AllOpcodes returns every defined opcode in numeric order.
func AllOpcodes() []Opcode {
	ops := make([]Opcode, 0, opCount)
	for op := Opcode(0); op < opCount; op++ {
		ops = append(ops, op)
	}
	return ops
}
