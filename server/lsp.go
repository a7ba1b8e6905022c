package server

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf16"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/brainfunc/compiler"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "brainfunc-lsp"

var log = commonlog.GetLogger("brainfunc.lsp")

// LSP serves editor features for brainfunc sources over the Language Server
// Protocol.
type LSP struct {
	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new language server.
func NewLSP(version string) *LSP {
	s := &LSP{
		docs:    make(map[string]string),
		version: version,
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion:     s.textDocumentCompletion,
		TextDocumentHover:          s.textDocumentHover,
		TextDocumentDefinition:     s.textDocumentDefinition,
		TextDocumentReferences:     s.textDocumentReferences,
		TextDocumentDocumentSymbol: s.textDocumentDocumentSymbol,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LSP) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LSP) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Info("brainfunc LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.ReferencesProvider = true
	capabilities.DocumentSymbolProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LSP) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LSP) shutdown(ctx *glsp.Context) error {
	return nil
}

func (s *LSP) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LSP) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LSP) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LSP) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *LSP) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

// --- Language features ---

func (s *LSP) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}
	return completions(text, prefix), nil
}

func (s *LSP) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}
	return hover(text, word), nil
}

func (s *LSP) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}
	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}
	locs := locations(uri, text, word, true, false)
	if len(locs) == 0 {
		return nil, nil
	}
	return locs, nil
}

func (s *LSP) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	uri := params.TextDocument.URI
	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}
	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}
	return locations(uri, text, word, params.Context.IncludeDeclaration, true), nil
}

func (s *LSP) textDocumentDocumentSymbol(ctx *glsp.Context, params *protocol.DocumentSymbolParams) (any, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	return documentSymbols(text), nil
}

// --- Analysis (pure functions over document text) ---

func completions(text, prefix string) []protocol.CompletionItem {
	seen := make(map[string]bool)
	var items []protocol.CompletionItem
	for _, occ := range compiler.Index([]byte(text)) {
		if !occ.Def || seen[occ.Name] || !strings.HasPrefix(occ.Name, prefix) {
			continue
		}
		seen[occ.Name] = true
		kind := protocol.CompletionItemKindFunction
		detail := "function"
		name := occ.Name
		items = append(items, protocol.CompletionItem{
			Label:      name,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &name,
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Label < items[j].Label })
	return items
}

func hover(text, word string) *protocol.Hover {
	var b strings.Builder

	unit, err := compiler.CompileUnit([]byte(text))
	if err == nil {
		sym, ok := unit.Symbol(word)
		if !ok {
			return nil
		}
		// Every symbol of a compiled unit is a defined function.
		start, end := functionSpan(unit, sym.Entry)
		fmt.Fprintf(&b, "**%s:**\n\n", word)
		fmt.Fprintf(&b, "entry offset %d, %d instructions", start, end-start)
		fmt.Fprintf(&b, "\n\ncalled from %d places", len(sym.Calls))
		if len(sym.Defs) > 1 {
			fmt.Fprintf(&b, "\n\ndefined %d times; the last definition wins", len(sym.Defs))
		}
	} else {
		defs, calls := 0, 0
		for _, occ := range compiler.Index([]byte(text)) {
			if occ.Name != word {
				continue
			}
			if occ.Def {
				defs++
			} else {
				calls++
			}
		}
		if defs+calls == 0 {
			return nil
		}
		fmt.Fprintf(&b, "**%s**\n\n%d definitions, %d calls (program does not compile)", word, defs, calls)
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

// functionSpan returns the instruction range of the function starting at
// entry, up to the next function's entry or the end of the program.
func functionSpan(unit *compiler.Unit, entry int) (int, int) {
	end := unit.Program.Len()
	for _, fn := range unit.Program.Functions {
		if fn.Entry > entry && fn.Entry < end {
			end = fn.Entry
		}
	}
	return entry, end
}

// locations returns the ranges where word occurs, filtered to definitions
// and/or calls.
func locations(uri protocol.DocumentUri, text, word string, defs, calls bool) []protocol.Location {
	var locs []protocol.Location
	for _, occ := range compiler.Index([]byte(text)) {
		if occ.Name != word || (occ.Def && !defs) || (!occ.Def && !calls) {
			continue
		}
		locs = append(locs, protocol.Location{
			URI:   uri,
			Range: rangeAt(text, occ.Offset, len(occ.Name)),
		})
	}
	return locs
}

func documentSymbols(text string) []protocol.DocumentSymbol {
	var syms []protocol.DocumentSymbol
	occs := compiler.Index([]byte(text))
	var defs []compiler.Occurrence
	for _, occ := range occs {
		if occ.Def {
			defs = append(defs, occ)
		}
	}
	for i, def := range defs {
		// A function's text runs to the next definition or end of document.
		end := len(text)
		if i+1 < len(defs) {
			end = defs[i+1].Offset
		}
		syms = append(syms, protocol.DocumentSymbol{
			Name:           def.Name,
			Kind:           protocol.SymbolKindFunction,
			Range:          rangeAt(text, def.Offset, end-def.Offset),
			SelectionRange: rangeAt(text, def.Offset, len(def.Name)),
		})
	}
	return syms
}

// --- Diagnostics ---

func (s *LSP) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	diagnostics := diagnose(text)
	if len(diagnostics) > 0 {
		log.Debugf("%s: %d diagnostics", uri, len(diagnostics))
	}
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// diagnose compiles text and converts the outcome into diagnostics: one
// error if compilation fails, otherwise any analysis warnings.
func diagnose(text string) []protocol.Diagnostic {
	source := lspName
	diagnostics := []protocol.Diagnostic{}

	unit, err := compiler.CompileUnit([]byte(text))
	if err != nil {
		severity := protocol.DiagnosticSeverityError
		rng := rangeAt(text, 0, 0)
		var cerr *compiler.Error
		if errors.As(err, &cerr) {
			length := 1
			if cerr.Name != "" {
				length = len(cerr.Name)
			}
			rng = rangeAt(text, cerr.Offset, length)
		}
		return append(diagnostics, protocol.Diagnostic{
			Range:    rng,
			Severity: &severity,
			Source:   &source,
			Message:  err.Error(),
		})
	}

	for _, w := range compiler.Analyze(unit) {
		severity := protocol.DiagnosticSeverityWarning
		if w.Kind == compiler.WarnUnused {
			severity = protocol.DiagnosticSeverityHint
		}
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    rangeAt(text, w.Offset, len(w.Name)),
			Severity: &severity,
			Source:   &source,
			Message:  w.Message,
		})
	}
	return diagnostics
}

// --- Text helpers ---

// positionAt converts a byte offset into an LSP position. Columns count
// UTF-16 code units.
func positionAt(text string, offset int) protocol.Position {
	if offset > len(text) {
		offset = len(text)
	}
	if offset < 0 {
		offset = 0
	}
	line := strings.Count(text[:offset], "\n")
	lineStart := strings.LastIndexByte(text[:offset], '\n') + 1
	return protocol.Position{
		Line:      protocol.UInteger(line),
		Character: protocol.UInteger(utf16Len(text[lineStart:offset])),
	}
}

func rangeAt(text string, offset, length int) protocol.Range {
	return protocol.Range{
		Start: positionAt(text, offset),
		End:   positionAt(text, offset+length),
	}
}

func isIdentChar(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// utf16Len returns the length of s in UTF-16 code units.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// byteColumn converts a UTF-16 column on line into a byte offset, clamped
// to the end of the line.
func byteColumn(line string, units int) int {
	n := 0
	for i, r := range line {
		if n >= units {
			return i
		}
		n += utf16.RuneLen(r)
	}
	return len(line)
}

// lineAt returns the text of the given line and the cursor's byte column
// clamped to it.
func lineAt(text string, pos protocol.Position) (string, int, bool) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return "", 0, false
	}
	line := lines[pos.Line]
	return line, byteColumn(line, int(pos.Character)), true
}

// extractPrefix returns the identifier fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return ""
	}

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 && isIdentChar(line[start-1]) {
		start--
	}
	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return ""
	}

	start := col
	for start > 0 && isIdentChar(line[start-1]) {
		start--
	}
	end := col
	for end < len(line) && isIdentChar(line[end]) {
		end++
	}
	// Identifiers cannot start with a digit.
	for start < end && line[start] >= '0' && line[start] <= '9' {
		start++
	}
	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}
