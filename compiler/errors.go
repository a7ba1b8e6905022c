package compiler

import (
	"errors"
	"fmt"
)

// Compile error kinds. Match them with errors.Is.
var (
	ErrUnclosedLoop  = errors.New("unclosed loop")
	ErrStrayClose    = errors.New("close bracket outside loop")
	ErrFuncInLoop    = errors.New("function defined inside loop")
	ErrUndefinedFunc = errors.New("call to undefined function")
)

// Error is a compile error. Offset is the byte offset of the construct that
// caused it: the unmatched '[', the stray ']', or the offending identifier.
type Error struct {
	Kind   error
	Offset int
	Name   string // Identifier involved, if any
}

func (e *Error) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%v '%s' (at offset %d)", e.Kind, e.Name, e.Offset)
	}
	return fmt.Sprintf("%v (at offset %d)", e.Kind, e.Offset)
}

func (e *Error) Unwrap() error {
	return e.Kind
}
