// brainfunc CLI - compiles and runs brainfunc programs
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"

	"github.com/chazu/brainfunc/cache"
	"github.com/chazu/brainfunc/compiler"
	"github.com/chazu/brainfunc/config"
	"github.com/chazu/brainfunc/server"
	"github.com/chazu/brainfunc/source"
	"github.com/chazu/brainfunc/vm"
	"github.com/chazu/brainfunc/vm/image"

	_ "github.com/tliron/commonlog/simple"
)

const version = "0.1.0"

var log = commonlog.GetLogger("brainfunc")

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// options holds the parsed command line.
type options struct {
	verbose    bool
	configPath string
	dump       bool
	dumpFormat string
	trace      bool
	output     string
	isImage    bool
	cachePath  string
	lsp        bool
	input      string // "" or "-" for stdin
}

func parseArgs(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("brainfunc", flag.ContinueOnError)
	fs.SetOutput(stderr)

	o := &options{}
	fs.BoolVar(&o.verbose, "v", false, "Verbose logging")
	fs.StringVar(&o.configPath, "config", "", "Configuration file (default: nearest "+config.FileName+")")
	fs.BoolVar(&o.dump, "dump", false, "Print the bytecode listing before running")
	fs.StringVar(&o.dumpFormat, "dump-format", "text", "Listing format: text or yaml")
	fs.BoolVar(&o.trace, "trace", false, "Write an execution trace to stderr")
	fs.StringVar(&o.output, "o", "", "Compile to a bytecode image at this path instead of running")
	fs.BoolVar(&o.isImage, "image", false, "Treat the input as a compiled bytecode image")
	fs.StringVar(&o.cachePath, "cache", "", "SQLite compile cache (overrides the configuration)")
	fs.BoolVar(&o.lsp, "lsp", false, "Serve the Language Server Protocol on stdio")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: brainfunc [options] [file | -]\n\n")
		fmt.Fprintf(stderr, "Compiles and runs a brainfunc program. With no file, or with -, the\n")
		fmt.Fprintf(stderr, "program is read from standard input.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  brainfunc hello.bf                 # Compile and run\n")
		fmt.Fprintf(stderr, "  brainfunc -dump hello.bf           # Show bytecode, then run\n")
		fmt.Fprintf(stderr, "  brainfunc -o hello.bfc hello.bf    # Compile to an image\n")
		fmt.Fprintf(stderr, "  brainfunc -image hello.bfc         # Run an image\n")
		fmt.Fprintf(stderr, "  brainfunc -lsp                     # Start the language server\n")
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch fs.NArg() {
	case 0:
	case 1:
		o.input = fs.Arg(0)
		if o.input == "" {
			return nil, errors.New("bad command line argument (empty)")
		}
	default:
		return nil, fmt.Errorf("expected at most one program, got %d", fs.NArg())
	}

	if o.dumpFormat != "text" && o.dumpFormat != "yaml" {
		return nil, fmt.Errorf("unknown dump format %q", o.dumpFormat)
	}
	return o, nil
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	o, err := parseArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "brainfunc: %v\n", err)
		return 1
	}

	verbosity := 0
	if o.verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	cfg, err := loadConfig(o.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "brainfunc: %v\n", err)
		return 1
	}
	if cfg.Path != "" {
		log.Debugf("using configuration %s", cfg.Path)
	}

	if o.lsp {
		if err := server.NewLSP(version).Run(); err != nil {
			fmt.Fprintf(stderr, "brainfunc: lsp: %v\n", err)
			return 1
		}
		return 0
	}

	prog, src, err := load(o, cfg, stdin, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "brainfunc: %v\n", err)
		return 1
	}

	if o.output != "" {
		if err := writeImage(o.output, prog, src); err != nil {
			fmt.Fprintf(stderr, "brainfunc: %v\n", err)
			return 1
		}
		log.Infof("wrote %s (%d instructions)", o.output, prog.Len())
		return 0
	}

	if o.dump {
		if err := dumpProgram(stdout, prog, o.dumpFormat); err != nil {
			fmt.Fprintf(stderr, "brainfunc: %v\n", err)
			return 1
		}
	}

	opts := cfg.VMOptions()
	opts.Input = stdin
	opts.Output = stdout
	if o.trace {
		opts.Trace = stderr
	}

	runID := uuid.New()
	log.Debugf("run %s: %d instructions, tape %d cells", runID, prog.Len(), opts.TapeSize)
	machine := vm.New(prog, opts)
	err = machine.Run()
	log.Debugf("run %s: %d instructions executed", runID, machine.Steps())
	if err != nil {
		fmt.Fprintf(stderr, "brainfunc: %v\n", err)
		return 1
	}
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.FindAndLoad(".")
}

// load reads the input and produces a validated program. For source input
// it also returns the source text.
func load(o *options, cfg *config.Config, stdin io.Reader, stderr io.Writer) (*vm.Program, []byte, error) {
	if o.input == "" || o.input == "-" {
		if f, ok := stdin.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
			fmt.Fprintf(stderr, "reading program from terminal; end it with Ctrl-D\n")
		}
	}

	if o.isImage {
		r := stdin
		if o.input != "" && o.input != "-" {
			f, err := os.Open(o.input)
			if err != nil {
				return nil, nil, fmt.Errorf("could not open file '%s': %w", o.input, err)
			}
			defer f.Close()
			r = f
		}
		prog, err := image.Read(r, image.MaxSize(cfg.Source.MaxSize))
		return prog, nil, err
	}

	var src []byte
	var err error
	if o.input == "" || o.input == "-" {
		src, err = source.Read(stdin, cfg.Source.MaxSize)
	} else {
		src, err = source.ReadFile(o.input, cfg.Source.MaxSize)
	}
	if err != nil {
		return nil, nil, err
	}

	cachePath := cfg.Cache.Path
	if o.cachePath != "" {
		cachePath = o.cachePath
	}
	if cachePath == "" {
		prog, err := compiler.Compile(src)
		return prog, src, err
	}

	prog, err := compileCached(cachePath, src)
	return prog, src, err
}

func compileCached(path string, src []byte) (*vm.Program, error) {
	c, err := cache.Open(path)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	prog, ok, err := c.Get(src)
	if err != nil {
		return nil, err
	}
	if ok {
		log.Debugf("cache hit %s in %s", cache.Key(src), c.Path())
		return prog, nil
	}

	prog, err = compiler.Compile(src)
	if err != nil {
		return nil, err
	}
	if err := c.Put(src, prog); err != nil {
		log.Warningf("could not cache program: %v", err)
	}
	return prog, nil
}

func writeImage(path string, prog *vm.Program, src []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create '%s': %w", path, err)
	}
	if err := image.Write(f, prog, src); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func dumpProgram(w io.Writer, prog *vm.Program, format string) error {
	if format == "yaml" {
		return prog.WriteYAML(w)
	}
	return prog.WriteListing(w)
}
