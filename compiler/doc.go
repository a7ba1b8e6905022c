// Package compiler turns brainfunc source into vm bytecode.
//
// Source is the brainfuck command set plus named functions: an identifier
// immediately followed by ':' starts a function, which runs until the next
// definition or the end of the source, and any other identifier is a call.
// Calls may name functions defined later; they are resolved after the whole
// source has been compiled. '#' starts a comment that runs to end of line.
//
// Runs of the same data command fold into one instruction, so "+++" becomes
// a single inc 3.
package compiler
