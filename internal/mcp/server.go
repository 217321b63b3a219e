package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/ka/internal/models"
	"github.com/joescharf/ka/internal/session"
	"github.com/joescharf/ka/internal/view"
)

// Server exposes a single search session as MCP tools.
type Server struct {
	session *session.Controller
	version string
	log     *slog.Logger
}

// NewServer wraps c. The session lives as long as the MCP server process.
func NewServer(c *session.Controller, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{session: c, version: version, log: logger}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("ka", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.searchTool())
	srv.AddTool(s.followUpTool())
	srv.AddTool(s.switchModeTool())
	srv.AddTool(s.stateTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

type toolResult struct {
	Started        *bool           `json:"started,omitempty"`
	Changed        *bool           `json:"changed,omitempty"`
	State          session.State   `json:"state"`
	Display        view.Display    `json:"display"`
	Filter         view.Filter     `json:"filter"`
	VisibleSources []models.Source `json:"visible_sources"`
}

func (s *Server) result(f view.Filter) toolResult {
	st := s.session.Snapshot()
	return toolResult{
		State:          st,
		Display:        view.DisplayState(st),
		Filter:         f,
		VisibleSources: view.VisibleSources(st, f),
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ka_search
func (s *Server) searchTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ka_search",
		mcp.WithDescription("Run a new search. In internal mode the result replaces the previous one; in external mode it starts a new conversation. Returns the session state as JSON, including summary and sources. A failed search is reported in state.error."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The question to search for")),
		mcp.WithString("mode", mcp.Enum("internal", "external"), mcp.Description("Switch to this mode first. Switching clears the current results.")),
		mcp.WithString("filter", mcp.Enum("all", "jira", "confluence"), mcp.Description("Source filter applied to visible_sources (internal mode)")),
	)
	return tool, s.handleSearch
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f, err := view.ParseFilter(request.GetString("filter", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if m := request.GetString("mode", ""); m != "" {
		mode, err := models.ParseSearchMode(m)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if s.session.Snapshot().Mode != mode {
			s.session.SwitchMode(mode)
		}
	}

	started := s.session.SubmitQuery(ctx, query)
	s.log.Debug("mcp search", "started", started)
	out := s.result(f)
	out.Started = &started
	return jsonResult(out)
}

// ka_follow_up
func (s *Server) followUpTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ka_follow_up",
		mcp.WithDescription("Ask a follow-up question in the current external conversation. Prior turns are sent as context. Ignored (started=false) unless the session is in external mode with at least one completed turn."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The follow-up question")),
	)
	return tool, s.handleFollowUp
}

func (s *Server) handleFollowUp(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	started := s.session.SubmitFollowUp(ctx, query)
	out := s.result(view.FilterAll)
	out.Started = &started
	return jsonResult(out)
}

// ka_switch_mode
func (s *Server) switchModeTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ka_switch_mode",
		mcp.WithDescription("Switch the session between internal (single answer from Jira and Confluence) and external (multi-turn web conversation). Always clears results, errors and conversation history."),
		mcp.WithString("mode", mcp.Required(), mcp.Enum("internal", "external"), mcp.Description("Target mode")),
	)
	return tool, s.handleSwitchMode
}

func (s *Server) handleSwitchMode(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	m, err := request.RequireString("mode")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	mode, err := models.ParseSearchMode(m)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	changed := s.session.SwitchMode(mode)
	out := s.result(view.FilterAll)
	out.Changed = &changed
	return jsonResult(out)
}

// ka_state
func (s *Server) stateTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ka_state",
		mcp.WithDescription("Return the current session state, render case and visible sources without issuing a search."),
		mcp.WithString("filter", mcp.Enum("all", "jira", "confluence"), mcp.Description("Source filter applied to visible_sources")),
	)
	return tool, s.handleState
}

func (s *Server) handleState(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f, err := view.ParseFilter(request.GetString("filter", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.result(f))
}
