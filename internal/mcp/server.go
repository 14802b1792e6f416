// Package mcp exposes document outlines to AI agents as MCP tools over stdio.
package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dgallion1/docoutline/internal/doctree"
	"github.com/dgallion1/docoutline/internal/mover"
	"github.com/dgallion1/docoutline/internal/workspace"
)

// Server wraps the MCP server with the outline tools.
type Server struct {
	mcpServer *server.MCPServer
	ws        *workspace.Workspace
	log       *slog.Logger
}

// New creates an MCP server whose tools operate on files through ws.
func New(ws *workspace.Workspace, version string, log *slog.Logger) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"docoutline",
			version,
			server.WithToolCapabilities(false),
		),
		ws:  ws,
		log: log,
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying server, for transports other than stdio.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves requests on stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("outline_show",
		mcp.WithDescription("Show the section outline of a document: headings or declarations with their line ranges."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path of the document"),
		),
		mcp.WithString("type",
			mcp.Description("Document type, overriding detection from the file extension"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleShow)

	s.mcpServer.AddTool(mcp.NewTool("outline_locate",
		mcp.WithDescription("Find the innermost section containing a zero-based line number."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path of the document"),
		),
		mcp.WithNumber("line",
			mcp.Required(),
			mcp.Description("Zero-based line number"),
		),
		mcp.WithString("type",
			mcp.Description("Document type, overriding detection from the file extension"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleLocate)

	s.mcpServer.AddTool(mcp.NewTool("outline_move",
		mcp.WithDescription("Move a whole section, with its subsections, so it starts before the section at the target line. The file is rewritten atomically."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path of the document"),
		),
		mcp.WithNumber("source",
			mcp.Required(),
			mcp.Description("Zero-based line where the section header to move starts"),
		),
		mcp.WithNumber("target",
			mcp.Required(),
			mcp.Description("Zero-based line to move the section to; past the end appends"),
		),
		mcp.WithString("type",
			mcp.Description("Document type, overriding detection from the file extension"),
		),
		mcp.WithDestructiveHintAnnotation(false),
	), s.handleMove)
}

func (s *Server) handleShow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.ws.OpenFile(path, req.GetString("type", ""))
	if err != nil {
		return mcp.NewToolResultErrorFromErr("cannot outline "+path, err), nil
	}
	defer doc.Close()

	tree, err := doc.Outline(ctx)
	if tree == nil {
		return mcp.NewToolResultErrorFromErr("cannot outline "+path, err), nil
	}
	if err != nil {
		s.log.Warn("outline built without symbol source", "path", path, "error", err)
	}
	return mcp.NewToolResultJSON(tree)
}

// located is the outline_locate answer.
type located struct {
	Line       int            `json:"line"`
	Found      bool           `json:"found"`
	Section    *sectionResult `json:"section,omitempty"`
	Breadcrumb []string       `json:"breadcrumb,omitempty"`
}

type sectionResult struct {
	Label   string        `json:"label"`
	Kind    doctree.Kind  `json:"kind"`
	Level   int           `json:"level"`
	Header  doctree.Range `json:"header"`
	Content doctree.Range `json:"content"`
}

func (s *Server) handleLocate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	line, err := req.RequireInt("line")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.ws.OpenFile(path, req.GetString("type", ""))
	if err != nil {
		return mcp.NewToolResultErrorFromErr("cannot outline "+path, err), nil
	}
	defer doc.Close()

	n, found, err := doc.Locate(ctx, line)
	if err != nil && !found {
		return mcp.NewToolResultErrorFromErr("cannot outline "+path, err), nil
	}
	res := located{Line: line, Found: found}
	if found {
		res.Section = &sectionResult{
			Label:   n.Label,
			Kind:    n.Kind,
			Level:   n.Level,
			Header:  n.Header,
			Content: n.Content,
		}
		res.Breadcrumb = doctree.Breadcrumb(n)
	}
	return mcp.NewToolResultJSON(res)
}

func (s *Server) handleMove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	source, err := req.RequireInt("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target, err := req.RequireInt("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.ws.OpenFile(path, req.GetString("type", ""))
	if err != nil {
		return mcp.NewToolResultErrorFromErr("cannot outline "+path, err), nil
	}
	defer doc.Close()

	tree, err := doc.Move(ctx, source, target)
	if err != nil {
		if !rejected(err) {
			s.log.Error("move failed", "path", path, "source", source, "target", target, "error", err)
		}
		return mcp.NewToolResultErrorFromErr("move rejected", err), nil
	}
	s.log.Info("section moved", "path", path, "source", source, "target", target)
	return mcp.NewToolResultJSON(tree)
}

// rejected reports whether err is a validation failure rather than a fault.
func rejected(err error) bool {
	return errors.Is(err, mover.ErrSourceNotFound) ||
		errors.Is(err, mover.ErrSelfNested) ||
		errors.Is(err, mover.ErrStaleTree) ||
		errors.Is(err, mover.ErrMoveInProgress)
}
