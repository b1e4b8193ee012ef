package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/nocturnelabs/coderag/internal/jobs"
	"github.com/nocturnelabs/coderag/internal/ragpipeline"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Server wraps an MCP server that exposes the RAG engine over stdio, a
// second transport alongside internal/api's HTTP routes for the same
// underlying Pipeline and Runner.
type Server struct {
	pipeline *ragpipeline.Pipeline
	runner   *jobs.Runner
	mcp      *server.MCPServer
}

// NewServer creates a new MCP server wired to the given pipeline and job
// runner.
func NewServer(pipeline *ragpipeline.Pipeline, runner *jobs.Runner) *Server {
	s := &Server{
		pipeline: pipeline,
		runner:   runner,
	}

	s.mcp = server.NewMCPServer(
		"coderag",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

// registerTools adds all tool definitions and their handlers to the MCP server.
func (s *Server) registerTools() {
	s.mcp.AddTool(ragQueryTool, s.handleRAGQuery)
	s.mcp.AddTool(ragIndexStatusTool, s.handleRAGIndexStatus)
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
