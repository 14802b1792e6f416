package main

import (
	"github.com/spf13/cobra"

	"github.com/dgallion1/docoutline/internal/mcp"
)

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve outline_show, outline_locate and outline_move over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.log.Info("starting MCP server", "version", Version, "types", a.ws.Types())
			return mcp.New(a.ws, Version, a.log).ServeStdio()
		},
	}
}
