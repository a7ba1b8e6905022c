// Package vm implements the brainfunc bytecode and its interpreter.
//
// This package contains:
//   - The opcode set and fixed-width Instruction
//   - Program, the append-only instruction buffer the compiler fills
//   - Tape, the fixed row of int32 cells a run mutates
//   - VM, a recursive executor with a nesting ceiling and overflow checks
//   - Text and YAML listings of compiled programs
package vm
