package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docoutline/internal/doctree"
)

// located is the innermost section containing a line.
type located struct {
	Path       string        `json:"path" yaml:"path"`
	Line       int           `json:"line" yaml:"line"`
	Found      bool          `json:"found" yaml:"found"`
	Label      string        `json:"label,omitempty" yaml:"label,omitempty"`
	Kind       doctree.Kind  `json:"kind,omitempty" yaml:"kind,omitempty"`
	Header     doctree.Range `json:"header" yaml:"header"`
	Content    doctree.Range `json:"content" yaml:"content"`
	Breadcrumb []string      `json:"breadcrumb,omitempty" yaml:"breadcrumb,omitempty"`
}

func newLocateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "locate FILE LINE",
		Short: "Show the innermost section containing a zero-based line",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("line must be an integer: %q", args[1])
			}
			doc, err := a.ws.OpenFile(args[0], a.docType)
			if err != nil {
				return err
			}
			defer doc.Close()

			n, found, err := doc.Locate(cmd.Context(), line)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), newLocated(args[0], line, n, found))
		},
	}
}

func newLocated(path string, line int, n *doctree.DocNode, found bool) located {
	l := located{Path: path, Line: line}
	if !found {
		return l
	}
	l.Found = true
	l.Label = n.Label
	l.Kind = n.Kind
	l.Header = n.Header
	l.Content = n.Content
	l.Breadcrumb = doctree.Breadcrumb(n)
	return l
}
