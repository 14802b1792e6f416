package main

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/docoutline/internal/doctree"
	"github.com/dgallion1/docoutline/internal/provider"
)

// fileOutline is one entry of a multi-file show.
type fileOutline struct {
	Path    string           `json:"path" yaml:"path"`
	Outline *doctree.DocTree `json:"outline,omitempty" yaml:"outline,omitempty"`
	Warning string           `json:"warning,omitempty" yaml:"warning,omitempty"`
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show FILE...",
		Short: "Print the outline of one or more documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := a.outlineAll(cmd.Context(), args)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(results) == 1 {
				if results[0].Warning != "" {
					fmt.Fprintln(cmd.ErrOrStderr(), "warning:", results[0].Warning)
				}
				return a.render(w, results[0].Outline)
			}
			if a.format == "text" {
				for _, r := range results {
					fmt.Fprintf(w, "== %s\n", r.Path)
					writeTree(w, r.Outline)
				}
				return nil
			}
			return a.render(w, results)
		},
	}
}

// outlineAll outlines files concurrently. A symbol source failure is
// reported as a warning on that file; any other error aborts the command.
func (a *app) outlineAll(ctx context.Context, paths []string) ([]fileOutline, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	results := make([]fileOutline, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			doc, err := a.ws.OpenFile(path, a.docType)
			if err != nil {
				return err
			}
			defer doc.Close()

			tree, err := doc.Outline(gctx)
			if tree == nil {
				return fmt.Errorf("outline %s: %w", path, err)
			}
			results[i] = fileOutline{Path: path, Outline: tree}
			if errors.Is(err, provider.ErrSourceFailed) {
				results[i].Warning = err.Error()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
