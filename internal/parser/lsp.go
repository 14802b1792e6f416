package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/jsonrpc2"
	"go.lsp.dev/protocol"

	"github.com/dgallion1/docoutline/internal/doctree"
	"github.com/dgallion1/docoutline/internal/textbuf"
)

const shutdownTimeout = 2 * time.Second

// LSPConfig describes a language server that reports document symbols.
type LSPConfig struct {
	Type       string   `yaml:"type" json:"type"`               // Document type tag served
	Command    string   `yaml:"command" json:"command"`
	Args       []string `yaml:"args" json:"args"`
	LanguageID string   `yaml:"language_id" json:"language_id"`
	Extensions []string `yaml:"extensions" json:"extensions"`
	RootDir    string   `yaml:"root_dir" json:"root_dir"`
}

// Validate checks the fields required to start the server.
func (c LSPConfig) Validate() error {
	if c.Type == "" {
		return errors.New("lsp server: type is required")
	}
	if c.Command == "" {
		return fmt.Errorf("lsp server %s: command is required", c.Type)
	}
	if c.LanguageID == "" {
		return fmt.Errorf("lsp server %s: language_id is required", c.Type)
	}
	return nil
}

// Dialer opens the JSON-RPC transport to a language server.
type Dialer func(ctx context.Context) (io.ReadWriteCloser, error)

// LSPSource asks a language server for textDocument/documentSymbol. The
// server is started on first use; until it has indexed a document it may
// answer with no symbols, which the dispatcher treats as "not ready".
type LSPSource struct {
	cfg  LSPConfig
	dial Dialer
	log  *slog.Logger

	mu       sync.Mutex
	conn     *jsonrpc2.Conn
	rwc      io.ReadWriteCloser
	versions map[protocol.DocumentURI]int32
}

// NewLSPSource creates a source that launches cfg.Command as a subprocess.
func NewLSPSource(cfg LSPConfig, log *slog.Logger) *LSPSource {
	return NewLSPSourceWithDialer(cfg, processDialer(cfg, log), log)
}

// NewLSPSourceWithDialer creates a source over a caller-provided transport.
func NewLSPSourceWithDialer(cfg LSPConfig, dial Dialer, log *slog.Logger) *LSPSource {
	if log == nil {
		log = slog.Default()
	}
	return &LSPSource{
		cfg:      cfg,
		dial:     dial,
		log:      log.With("lsp", cfg.Type),
		versions: make(map[protocol.DocumentURI]int32),
	}
}

// Symbols syncs the snapshot text to the server and returns its symbols.
func (s *LSPSource) Symbols(ctx context.Context, snap textbuf.Snapshot) ([]doctree.Symbol, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	uri := protocol.DocumentURI(snap.URI)
	if err := s.sync(ctx, conn, uri, snap.Text); err != nil {
		return nil, fmt.Errorf("sync %s: %w", snap.URI, err)
	}

	params := protocol.DocumentSymbolParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
	}
	var raw json.RawMessage
	if err := conn.Call(ctx, "textDocument/documentSymbol", params, &raw); err != nil {
		return nil, fmt.Errorf("documentSymbol: %w", err)
	}
	return decodeSymbols(raw)
}

// Close shuts the server down.
func (s *LSPSource) Close() error {
	s.mu.Lock()
	conn, rwc := s.conn, s.rwc
	s.conn, s.rwc = nil, nil
	s.versions = make(map[protocol.DocumentURI]int32)
	s.mu.Unlock()
	if conn == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := conn.Call(ctx, "shutdown", nil, nil); err != nil {
		s.log.Debug("lsp shutdown failed", "error", err)
	}
	_ = conn.Notify(ctx, "exit", nil)
	_ = conn.Close()
	return rwc.Close()
}

func (s *LSPSource) connect(ctx context.Context) (*jsonrpc2.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		select {
		case <-s.conn.DisconnectNotify():
			s.log.Warn("language server disconnected, restarting")
			s.conn = nil
			s.versions = make(map[protocol.DocumentURI]int32)
		default:
			return s.conn, nil
		}
	}

	rwc, err := s.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("start language server %s: %w", s.cfg.Command, err)
	}
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
	handler := jsonrpc2.HandlerWithError(func(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
		if !req.Notif {
			return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "method not handled"}
		}
		return nil, nil
	})
	// The connection outlives the request that started it.
	conn := jsonrpc2.NewConn(context.Background(), stream, handler)

	if err := s.initialize(ctx, conn); err != nil {
		_ = conn.Close()
		_ = rwc.Close()
		return nil, err
	}
	s.conn, s.rwc = conn, rwc
	s.log.Info("language server ready", "command", s.cfg.Command)
	return conn, nil
}

func (s *LSPSource) initialize(ctx context.Context, conn *jsonrpc2.Conn) error {
	root := s.cfg.RootDir
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	params := &protocol.InitializeParams{
		ProcessID: int32(os.Getpid()),
		RootURI:   protocol.DocumentURI("file://" + filepath.ToSlash(absRoot)),
		ClientInfo: &protocol.ClientInfo{
			Name: "docoutline",
		},
		Capabilities: protocol.ClientCapabilities{
			TextDocument: &protocol.TextDocumentClientCapabilities{
				DocumentSymbol: &protocol.DocumentSymbolClientCapabilities{
					HierarchicalDocumentSymbolSupport: true,
				},
			},
		},
	}
	var result protocol.InitializeResult
	if err := conn.Call(ctx, "initialize", params, &result); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	return conn.Notify(ctx, "initialized", &protocol.InitializedParams{})
}

// sync opens the document on first sight and sends full-text changes after.
func (s *LSPSource) sync(ctx context.Context, conn *jsonrpc2.Conn, uri protocol.DocumentURI, text string) error {
	s.mu.Lock()
	version, open := s.versions[uri]
	version++
	s.versions[uri] = version
	s.mu.Unlock()

	if !open {
		return conn.Notify(ctx, "textDocument/didOpen", protocol.DidOpenTextDocumentParams{
			TextDocument: protocol.TextDocumentItem{
				URI:        uri,
				LanguageID: protocol.LanguageIdentifier(s.cfg.LanguageID),
				Version:    version,
				Text:       text,
			},
		})
	}
	return conn.Notify(ctx, "textDocument/didChange", fullTextChange{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri},
			Version:                version,
		},
		ContentChanges: []fullTextEvent{{Text: text}},
	})
}

// fullTextChange is didChange with whole-document events. The protocol
// package's event type always serializes a range, which would make the
// server treat the text as a ranged edit.
type fullTextChange struct {
	TextDocument   protocol.VersionedTextDocumentIdentifier `json:"textDocument"`
	ContentChanges []fullTextEvent                          `json:"contentChanges"`
}

type fullTextEvent struct {
	Text string `json:"text"`
}

// decodeSymbols accepts either DocumentSymbol[] or SymbolInformation[].
func decodeSymbols(raw json.RawMessage) ([]doctree.Symbol, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var probe []struct {
		Location *json.RawMessage `json:"location"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("document symbol response not understood: %w", err)
	}
	if len(probe) == 0 {
		return nil, nil
	}

	if probe[0].Location == nil {
		var docSymbols []protocol.DocumentSymbol
		if err := json.Unmarshal(raw, &docSymbols); err != nil {
			return nil, fmt.Errorf("decode DocumentSymbol: %w", err)
		}
		return doctree.Flatten(nestDocumentSymbols(docSymbols)), nil
	}

	var infos []protocol.SymbolInformation
	if err := json.Unmarshal(raw, &infos); err != nil {
		return nil, fmt.Errorf("decode SymbolInformation: %w", err)
	}
	return levelByContainment(infos), nil
}

func nestDocumentSymbols(in []protocol.DocumentSymbol) []doctree.NestedSymbol {
	out := make([]doctree.NestedSymbol, 0, len(in))
	for _, ds := range in {
		r := doctree.Line(int(ds.Range.Start.Line))
		out = append(out, doctree.NestedSymbol{
			Symbol: doctree.Symbol{
				Name:   ds.Name,
				Kind:   symbolKind(ds.Kind),
				Header: &r,
			},
			Children: nestDocumentSymbols(ds.Children),
		})
	}
	return out
}

// levelByContainment derives levels for flat SymbolInformation results from
// how their ranges enclose each other.
func levelByContainment(infos []protocol.SymbolInformation) []doctree.Symbol {
	sort.SliceStable(infos, func(i, j int) bool {
		a, b := infos[i].Location.Range, infos[j].Location.Range
		if a.Start.Line != b.Start.Line {
			return a.Start.Line < b.Start.Line
		}
		return a.End.Line > b.End.Line
	})

	var stack []uint32 // End lines of enclosing symbols
	out := make([]doctree.Symbol, 0, len(infos))
	for _, si := range infos {
		rng := si.Location.Range
		for len(stack) > 0 && stack[len(stack)-1] < rng.Start.Line {
			stack = stack[:len(stack)-1]
		}
		r := doctree.Line(int(rng.Start.Line))
		out = append(out, doctree.Symbol{
			Name:   si.Name,
			Kind:   symbolKind(si.Kind),
			Level:  len(stack) + 1,
			Header: &r,
		})
		stack = append(stack, rng.End.Line)
	}
	return out
}

func symbolKind(k protocol.SymbolKind) doctree.Kind {
	switch k {
	case protocol.SymbolKindFile, protocol.SymbolKindModule, protocol.SymbolKindNamespace, protocol.SymbolKindPackage:
		return doctree.KindModule
	case protocol.SymbolKindClass:
		return doctree.KindClass
	case protocol.SymbolKindMethod, protocol.SymbolKindConstructor:
		return doctree.KindMethod
	case protocol.SymbolKindProperty, protocol.SymbolKindField, protocol.SymbolKindEnumMember:
		return doctree.KindField
	case protocol.SymbolKindEnum:
		return doctree.KindEnum
	case protocol.SymbolKindInterface:
		return doctree.KindInterface
	case protocol.SymbolKindFunction, protocol.SymbolKindOperator:
		return doctree.KindFunction
	case protocol.SymbolKindVariable:
		return doctree.KindVariable
	case protocol.SymbolKindConstant:
		return doctree.KindConstant
	case protocol.SymbolKindStruct:
		return doctree.KindStruct
	case protocol.SymbolKindTypeParameter:
		return doctree.KindType
	case protocol.SymbolKindString:
		// Markdown language servers report headings as strings.
		return doctree.KindHeading
	}
	return doctree.KindSection
}

// processDialer launches the configured command and talks over its stdio.
func processDialer(cfg LSPConfig, log *slog.Logger) Dialer {
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		cmd := exec.Command(cfg.Command, cfg.Args...)
		if cfg.RootDir != "" {
			cmd.Dir = cfg.RootDir
		}
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, err
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, err
		}
		cmd.Stderr = &stderrLog{log: log}
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		return &processRWC{cmd: cmd, reader: stdout, writer: stdin}, nil
	}
}

type processRWC struct {
	cmd    *exec.Cmd
	reader io.ReadCloser
	writer io.WriteCloser
}

func (p *processRWC) Read(b []byte) (int, error)  { return p.reader.Read(b) }
func (p *processRWC) Write(b []byte) (int, error) { return p.writer.Write(b) }
func (p *processRWC) Close() error {
	_ = p.writer.Close()
	_ = p.reader.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	_ = p.cmd.Wait()
	return nil
}

// stderrLog forwards server diagnostics to the logger line by line.
type stderrLog struct {
	log *slog.Logger
}

func (w *stderrLog) Write(b []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(b), "\n"), "\n") {
		if line != "" {
			w.log.Debug("language server stderr", "line", line)
		}
	}
	return len(b), nil
}
