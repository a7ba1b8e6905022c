package compiler

import "github.com/chazu/brainfunc/vm"

// fixup rewrites every CALL operand from an identifier id to the entry
// offset of the function with that name. Calls may precede definitions, so
// this only runs once the whole source has been compiled.
func fixup(prog *vm.Program, ids *idTable) error {
	for i := range prog.Code {
		in := &prog.Code[i]
		if in.Op != vm.OpCall {
			continue
		}
		entry, ok := ids.entryOf(in.Arg)
		if !ok {
			rec := ids.recs[in.Arg]
			offset := 0
			if len(rec.calls) > 0 {
				offset = rec.calls[0]
			}
			return &Error{Kind: ErrUndefinedFunc, Offset: offset, Name: rec.name}
		}
		in.Arg = entry
	}
	return nil
}
