package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dgallion1/docoutline/internal/config"
	"github.com/dgallion1/docoutline/internal/doctree"
	"github.com/dgallion1/docoutline/internal/logger"
	"github.com/dgallion1/docoutline/internal/provider"
	"github.com/dgallion1/docoutline/internal/workspace"
)

// app holds the state shared by every subcommand.
type app struct {
	configPath string
	format     string
	docType    string
	verbose    bool

	cfg config.Config
	log *slog.Logger
	ws  *workspace.Workspace
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "outline",
		Short: "Show and reorganize the section structure of documents",
		Long: `outline builds a hierarchical outline of a document's headings or
declarations and moves whole sections, subsections included, as one atomic
rewrite of the file.

Supported types: markdown, html, org, asciidoc, plain text, Go, Python, Rust
and TypeScript, plus any language server configured under lsp_servers.

Examples:
  outline show README.md             # Outline as YAML
  outline show --format text *.md    # Indented outline of several files
  outline locate README.md 42        # Section containing line 42
  outline move README.md 30 0        # Move the section at line 30 to the top
  outline mcp                        # Serve the tools over MCP stdio`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.ws != nil {
				a.ws.Stop()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to a YAML config file")
	root.PersistentFlags().StringVarP(&a.format, "format", "f", "yaml", "Output format: yaml | json | text")
	root.PersistentFlags().StringVarP(&a.docType, "type", "t", "", "Document type, overriding detection from the file extension")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Log debug output to stderr")

	root.AddCommand(
		newShowCmd(a),
		newLocateCmd(a),
		newMoveCmd(a),
		newMCPCmd(a),
	)
	return root
}

// setup loads configuration and builds the workspace. Logs go to stderr so
// stdout carries only command output.
func (a *app) setup(stderr io.Writer) error {
	switch a.format {
	case "yaml", "json", "text":
	default:
		return fmt.Errorf("unknown format %q (must be yaml, json, or text)", a.format)
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.ValidateLocal(); err != nil {
		return err
	}
	a.cfg = cfg

	level := cfg.Log.Level
	if !a.verbose && level == "info" {
		level = "warn"
	}
	a.log = logger.NewWithWriter(stderr, level, "text")

	reg := provider.DefaultRegistry(provider.RegistryOptions{
		LSPServers: cfg.LSPServers,
		Logger:     a.log,
	})
	a.ws = workspace.New(reg, workspace.Options{
		RetryBudget:  cfg.RetryBudget,
		RetryBackoff: cfg.RetryBackoff,
		MaxBytes:     cfg.MaxUploadBytes,
		PDFFallback:  cfg.PDFFallbackPdftotext,
	}, a.log)
	return nil
}

// render writes v in the selected format. text falls back to YAML for
// values without a text rendering.
func (a *app) render(w io.Writer, v any) error {
	switch a.format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "text":
		if tree, ok := v.(*doctree.DocTree); ok {
			writeTree(w, tree)
			return nil
		}
		if l, ok := v.(located); ok {
			writeLocated(w, l)
			return nil
		}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(v)
}

// writeTree prints one indented line per section with its line span.
func writeTree(w io.Writer, tree *doctree.DocTree) {
	if tree.Title != "" {
		fmt.Fprintln(w, tree.Title)
	}
	if tree.Empty() {
		fmt.Fprintln(w, "  (no sections)")
		return
	}
	doctree.Walk(tree, func(n *doctree.DocNode, depth int) bool {
		fmt.Fprintf(w, "%s%s  [%d-%d]\n", strings.Repeat("  ", depth+1), n.Label, n.Content.Start, n.Content.End)
		return true
	})
}

func writeLocated(w io.Writer, l located) {
	if !l.Found {
		fmt.Fprintf(w, "line %d: no section\n", l.Line)
		return
	}
	fmt.Fprintf(w, "line %d: %s  [%d-%d]\n", l.Line, strings.Join(l.Breadcrumb, " > "), l.Content.Start, l.Content.End)
}
