package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newMoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "move FILE SOURCE TARGET",
		Short: "Move the section whose header is on SOURCE to before line TARGET",
		Long: `Move relocates a whole section, subsections included, so that it begins
at TARGET. When TARGET falls inside another section the moved section is
inserted before the next header at or after TARGET. A TARGET past the end
of the document appends the section.

The file is rewritten in one step. Moving a section into itself is rejected
and leaves the file untouched.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("source must be an integer: %q", args[1])
			}
			target, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("target must be an integer: %q", args[2])
			}
			doc, err := a.ws.OpenFile(args[0], a.docType)
			if err != nil {
				return err
			}
			defer doc.Close()

			tree, err := doc.Move(cmd.Context(), source, target)
			if err != nil {
				return fmt.Errorf("move %s: %w", args[0], err)
			}
			a.log.Info("section moved", "path", args[0], "source", source, "target", target)
			return a.render(cmd.OutOrStdout(), tree)
		},
	}
}
