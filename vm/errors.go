package vm

import (
	"errors"
	"fmt"
)

// Runtime failures. Every one of them ends the run; RuntimeError wraps them
// with the offset of the instruction that failed.
var (
	ErrTapeLeft       = errors.New("ran off the left end of the tape")
	ErrTapeRight      = errors.New("ran off the right end of the tape")
	ErrOverflow       = errors.New("positive overflow")
	ErrUnderflow      = errors.New("negative overflow")
	ErrRetInLoop      = errors.New("ret instruction inside loop")
	ErrRecursionLimit = errors.New("recursion limit reached")
	ErrIO             = errors.New("i/o error")
)

// RuntimeError reports where execution stopped and why.
type RuntimeError struct {
	Err error  // One of the sentinel errors above, possibly wrapping a cause
	IP  int    // Offset of the failing instruction
	Op  Opcode // Opcode at IP
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%v (at %d: %s)", e.Err, e.IP, e.Op)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func runtimeError(err error, ip int, op Opcode) error {
	return &RuntimeError{Err: err, IP: ip, Op: op}
}
