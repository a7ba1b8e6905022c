package compiler

import (
	"fmt"
	"sort"
)

// WarningKind classifies a Warning.
type WarningKind uint8

const (
	WarnRedefined WarningKind = iota // An earlier definition is shadowed by a later one
	WarnUnused                       // A function is never called
)

// Warning is a non-fatal finding about a program that compiles.
type Warning struct {
	Kind    WarningKind
	Offset  int
	Name    string
	Message string
}

// Analyze reports redefined and never-called functions. It never fails;
// a function defined twice still compiles, with the later body winning.
func Analyze(u *Unit) []Warning {
	var warnings []Warning
	for _, s := range u.Symbols {
		if len(s.Defs) > 1 {
			for _, off := range s.Defs[:len(s.Defs)-1] {
				warnings = append(warnings, Warning{
					Kind:    WarnRedefined,
					Offset:  off,
					Name:    s.Name,
					Message: fmt.Sprintf("function '%s' is redefined later; this definition is never called", s.Name),
				})
			}
		}
		if s.Defined && len(s.Calls) == 0 {
			warnings = append(warnings, Warning{
				Kind:    WarnUnused,
				Offset:  s.Defs[len(s.Defs)-1],
				Name:    s.Name,
				Message: fmt.Sprintf("function '%s' is never called", s.Name),
			})
		}
	}
	sort.SliceStable(warnings, func(i, j int) bool {
		return warnings[i].Offset < warnings[j].Offset
	})
	return warnings
}

// Occurrence is one appearance of an identifier in source.
type Occurrence struct {
	Name   string
	Offset int
	Def    bool // "name:" rather than a call
}

// Index lists every identifier occurrence in src without compiling it, so it
// works on sources that do not compile. Comments are skipped.
func Index(src []byte) []Occurrence {
	var occs []Occurrence
	for i := 0; i < len(src); {
		switch {
		case isIdentStart(src[i]):
			begin := i
			i = scanIdent(src, i)
			def := i < len(src) && src[i] == ':'
			occs = append(occs, Occurrence{Name: string(src[begin:i]), Offset: begin, Def: def})
		case src[i] == '#':
			i = skipComment(src, i)
		default:
			i++
		}
	}
	return occs
}
