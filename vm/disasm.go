package vm

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// ListingVersion is the version reported in listings and images.
const ListingVersion = 1

// Disassemble returns a human-readable listing of the program.
func (p *Program) Disassemble() string {
	var sb strings.Builder
	p.WriteListing(&sb)
	return sb.String()
}

// WriteListing writes one line per instruction, preceded by a header and
// with a label line before each function entry.
func (p *Program) WriteListing(w io.Writer) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "; brainfunc bytecode v%d\n", ListingVersion)
	fmt.Fprintf(&sb, "; %d instructions, %d functions\n", len(p.Code), len(p.Functions))
	for i, in := range p.Code {
		if name, ok := p.FunctionAt(i); ok {
			fmt.Fprintf(&sb, "; %s:\n", name)
		}
		fmt.Fprintf(&sb, "[%4d]  %5s %d\n", i, in.Op, in.Arg)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

type yamlListing struct {
	Version   int               `yaml:"version"`
	Functions []yamlFunction    `yaml:"functions,omitempty"`
	Code      []yamlInstruction `yaml:"code"`
}

type yamlFunction struct {
	Name  string `yaml:"name"`
	Entry int    `yaml:"entry"`
}

type yamlInstruction struct {
	Offset int    `yaml:"offset"`
	Op     string `yaml:"op"`
	Arg    int    `yaml:"arg"`
}

// WriteYAML writes the listing as a YAML document.
func (p *Program) WriteYAML(w io.Writer) error {
	doc := yamlListing{
		Version: ListingVersion,
		Code:    make([]yamlInstruction, len(p.Code)),
	}
	for _, fn := range p.Functions {
		doc.Functions = append(doc.Functions, yamlFunction{Name: fn.Name, Entry: fn.Entry})
	}
	for i, in := range p.Code {
		doc.Code[i] = yamlInstruction{Offset: i, Op: in.Op.String(), Arg: in.Arg}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encode listing: %w", err)
	}
	return enc.Close()
}

// ReadYAML parses a listing written by WriteYAML back into a program.
// The result is validated before it is returned.
func ReadYAML(r io.Reader) (*Program, error) {
	var doc yamlListing
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	if doc.Version != ListingVersion {
		return nil, fmt.Errorf("unsupported listing version %d", doc.Version)
	}

	p := NewProgram()
	for i, yi := range doc.Code {
		if yi.Offset != i {
			return nil, fmt.Errorf("listing offset %d out of sequence (want %d)", yi.Offset, i)
		}
		op, ok := ParseOpcode(yi.Op)
		if !ok {
			return nil, fmt.Errorf("unknown opcode %q at %d", yi.Op, i)
		}
		p.Append(op, yi.Arg)
	}
	for _, fn := range doc.Functions {
		p.Functions = append(p.Functions, Function{Name: fn.Name, Entry: fn.Entry})
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
