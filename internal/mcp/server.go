package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"notesim/internal/domain"
	"notesim/internal/port"
	"notesim/internal/usecase"
)

// Server exposes note similarity to MCP clients over stdio.
type Server struct {
	mcpServer *server.MCPServer
	query     *usecase.QueryEngine
	sync      *usecase.SyncEngine
	notes     port.NoteStore
	limit     int
	logger    *slog.Logger
}

// NewServer registers the similarity tools. defaultLimit applies when a
// call omits limit.
func NewServer(name, version string, query *usecase.QueryEngine, sync *usecase.SyncEngine, notes port.NoteStore, defaultLimit int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultLimit <= 0 {
		defaultLimit = 5
	}
	s := &Server{
		mcpServer: server.NewMCPServer(name, version, server.WithToolCapabilities(false)),
		query:     query,
		sync:      sync,
		notes:     notes,
		limit:     defaultLimit,
		logger:    logger,
	}

	s.mcpServer.AddTool(mcp.NewTool("find_similar",
		mcp.WithDescription("List the notes most similar to an existing note."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Vault-relative path of the note, e.g. projects/plan.md")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results"), mcp.Min(1)),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.findSimilar)

	s.mcpServer.AddTool(mcp.NewTool("query_notes",
		mcp.WithDescription("Search the vault for notes similar to free text."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Text to search for")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results"), mcp.Min(1)),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.queryNotes)

	s.mcpServer.AddTool(mcp.NewTool("refresh_index",
		mcp.WithDescription("Re-embed notes modified since the last sync."),
	), s.refresh)

	return s
}

// ServeStdio blocks serving requests on stdin and stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// Listen serves requests from in to out until ctx is done.
func (s *Server) Listen(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcpServer).Listen(ctx, in, out)
}

func (s *Server) findSimilar(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	note, err := s.notes.ReadNote(ctx, key)
	if err != nil {
		return toolError(err), nil
	}
	results, err := s.query.SimilarTo(ctx, note, req.GetInt("limit", s.limit))
	if err != nil {
		return toolError(err), nil
	}
	return resultsJSON(results)
}

func (s *Server) queryNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := req.GetString("query", "")
	results, err := s.query.QueryText(ctx, text, req.GetInt("limit", s.limit))
	if err != nil {
		return toolError(err), nil
	}
	return resultsJSON(results)
}

func (s *Server) refresh(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.sync.Refresh(ctx)
	if err != nil {
		return toolError(err), nil
	}
	s.logger.Info("refresh via mcp", "processed", report.Processed, "failed", report.Failed)
	return mcp.NewToolResultText(fmt.Sprintf("processed=%d skipped=%d failed=%d",
		report.Processed, report.Skipped, report.Failed)), nil
}

func resultsJSON(results []domain.SimilarityResult) (*mcp.CallToolResult, error) {
	if results == nil {
		results = []domain.SimilarityResult{}
	}
	data, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("failed to encode results: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func toolError(err error) *mcp.CallToolResult {
	if kind := domain.KindOf(err); kind != "" {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", kind, err))
	}
	return mcp.NewToolResultError(err.Error())
}
