package compiler

import (
	"github.com/chazu/brainfunc/vm"
)

// ---------------------------------------------------------------------------
// Block compiler: source text to flat bytecode
// ---------------------------------------------------------------------------

// blockMode selects how a block ends and what it may contain.
type blockMode uint8

const (
	modeMain blockMode = iota // Top level; runs to end of source
	modeFunc                  // Function body; ends at the next definition or end of source
	modeLoop                  // Loop body; ends at the matching ']'
)

// Unit is the result of compiling one program.
type Unit struct {
	Program *vm.Program
	Symbols []Symbol // Identifiers in order of first appearance
}

// Symbol looks up a symbol by name.
func (u *Unit) Symbol(name string) (Symbol, bool) {
	for _, s := range u.Symbols {
		if s.Name == name {
			return s, true
		}
	}
	return Symbol{}, false
}

// Compile compiles src into a program ready for execution.
func Compile(src []byte) (*vm.Program, error) {
	u, err := CompileUnit(src)
	if err != nil {
		return nil, err
	}
	return u.Program, nil
}

// CompileUnit compiles src and resolves every call. On error nothing is
// returned; no partially compiled program ever escapes.
func CompileUnit(src []byte) (*Unit, error) {
	c := &compiler{src: src, ids: newIDTable()}
	prog := vm.NewProgram()
	if _, err := c.compileBlock(0, modeMain, prog); err != nil {
		return nil, err
	}
	if err := fixup(prog, c.ids); err != nil {
		return nil, err
	}
	return &Unit{Program: prog, Symbols: c.ids.symbols()}, nil
}

type compiler struct {
	src []byte
	ids *idTable
}

// compileBlock compiles src[start:] in the given mode, appending to out.
// It returns the offset where the caller should resume: just past ']' for
// a loop, the start of the next "name:" for a function that was cut short by
// another definition, or len(src).
func (c *compiler) compileBlock(start int, mode blockMode, out *vm.Program) (int, error) {
	src := c.src
	i := start
	for i < len(src) {
		ch := src[i]
		switch {
		case isIdentStart(ch):
			begin := i
			i = scanIdent(src, i)
			id := c.ids.intern(src[begin:i])

			if i >= len(src) || src[i] != ':' {
				c.ids.noteCall(id, begin)
				out.Append(vm.OpCall, id)
				continue
			}

			switch mode {
			case modeLoop:
				return 0, &Error{Kind: ErrFuncInLoop, Offset: begin, Name: c.ids.name(id)}
			case modeFunc:
				// Definitions do not nest: this one ends the current function.
				return begin, nil
			}

			c.ids.noteDef(id, begin)
			// Nested buffers start empty; only the top level is presized.
			body := &vm.Program{}
			next, err := c.compileBlock(i+1, modeFunc, body)
			if err != nil {
				return 0, err
			}
			// Seal the main body or the previous function.
			out.Append(vm.OpRet, 0)
			c.ids.setEntry(id, out.Len())
			out.Functions = append(out.Functions, vm.Function{Name: c.ids.name(id), Entry: out.Len()})
			out.AppendProgram(body)
			i = next

		case ch == '#':
			i = skipComment(src, i)

		case ch == '[':
			body := &vm.Program{}
			next, err := c.compileBlock(i+1, modeLoop, body)
			if err != nil {
				return 0, err
			}
			out.Append(vm.OpRepNZ, body.Len())
			out.AppendProgram(body)
			i = next

		case ch == ']':
			if mode != modeLoop {
				return 0, &Error{Kind: ErrStrayClose, Offset: i}
			}
			return i + 1, nil

		default:
			op, ok := vm.OpcodeForSymbol(ch)
			if !ok {
				i++
				continue
			}
			n := 0
			for i < len(src) && src[i] == ch {
				i++
				n++
			}
			out.Append(op, n)
		}
	}

	switch mode {
	case modeLoop:
		return 0, &Error{Kind: ErrUnclosedLoop, Offset: start - 1}
	case modeFunc:
		out.Append(vm.OpRet, 0)
	}
	return len(src), nil
}

// ---------------------------------------------------------------------------
// Lexical helpers
// ---------------------------------------------------------------------------

func isIdentStart(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || ('0' <= c && c <= '9')
}

// scanIdent returns the offset just past the identifier starting at i.
func scanIdent(src []byte, i int) int {
	for i < len(src) && isIdentChar(src[i]) {
		i++
	}
	return i
}

// skipComment skips a '#' comment starting at i. A trailing '\n' is consumed;
// a '\r' is left for the caller, which ignores it.
func skipComment(src []byte, i int) int {
	for i < len(src) && src[i] != '\n' && src[i] != '\r' {
		i++
	}
	if i < len(src) && src[i] == '\n' {
		i++
	}
	return i
}
