package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type MCPServer struct {
	Server *server.MCPServer
	tools  []string
}

func NewMCPServer(name, version string) *MCPServer {
	return &MCPServer{Server: server.NewMCPServer(name, version, server.WithToolCapabilities(false))}
}

func (s *MCPServer) AddTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.Server.AddTool(tool, handler)
	s.tools = append(s.tools, tool.Name)
}

// Tools returns the registered tool names in registration order.
func (s *MCPServer) Tools() []string {
	return append([]string(nil), s.tools...)
}

// Run serves MCP over stdin/stdout until the client closes the stream.
func (s *MCPServer) Run() error {
	slog.Info("Started stdio MCP server")
	defer func() {
		slog.Info("Shut down stdio MCP server")
	}()
	return server.ServeStdio(s.Server)
}
