// Package mcp connects to MCP tool servers over stdio, grounded on
// kadirpekel-hector's mcptoolset (pkg/tool/mcptoolset/mcptoolset.go), which
// wraps github.com/mark3labs/mcp-go for subprocess-based MCP transports.
// The registry treats a connected Server as an opaque collaborator; this
// package is the one concrete driver behind it.
package mcp

import (
	"context"
	"fmt"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/client"

	"github.com/jfcostello/universal-llm-adapter-sub001/internal/types"
)

// Config describes one registered MCP server (stdio transport only; the
// registry's MCPServerConfig carries these fields plus Transport and URL,
// which this package does not use).
type Config struct {
	ID string
	Command string
	Args []string
}

// Server is a live connection to one MCP server, lazily initialized on
// first use and reused for the process lifetime.
type Server struct {
	id string
	client *client.Client
}

// Connect starts the MCP subprocess and performs the protocol handshake.
func Connect(ctx context.Context, cfg Config) (*Server, error) {
	c, err := client.NewStdioMCPClient(cfg.Command, nil, cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("mcp: creating client for %q: %w", cfg.ID, err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("mcp: starting client for %q: %w", cfg.ID, err)
	}

	initReq := gomcp.InitializeRequest{}
	initReq.Params.ClientInfo = gomcp.Implementation{Name: "universal-llm-adapter", Version: "0.1.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, fmt.Errorf("mcp: initializing %q: %w", cfg.ID, err)
	}

	return &Server{id: cfg.ID, client: c}, nil
}

// Close terminates the MCP subprocess.
func (s *Server) Close() error { return s.client.Close() }

// ListTools returns every tool the server advertises, normalized to the
// adapter's Tool shape.
func (s *Server) ListTools(ctx context.Context) ([]types.Tool, error) {
	resp, err := s.client.ListTools(ctx, gomcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcp: listing tools on %q: %w", s.id, err)
	}
	out := make([]types.Tool, 0, len(resp.Tools))
	for _, t := range resp.Tools {
		schema := map[string]interface{}{
			"type": "object",
			"properties": t.InputSchema.Properties,
			"required": t.InputSchema.Required,
		}
		out = append(out, types.Tool{Name: t.Name, Description: t.Description, ParametersJSONSchema: schema})
	}
	return out, nil
}

// CallTool invokes one tool by name and renders its content blocks down to
// a plain string, the shape the tool loop appends as a tool-result part.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	req := gomcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	resp, err := s.client.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("mcp: calling tool %q on %q: %w", name, s.id, err)
	}
	if resp.IsError {
		return nil, fmt.Errorf("mcp: tool %q reported an error", name)
	}

	var text string
	for _, block := range resp.Content {
		if tc, ok := block.(gomcp.TextContent); ok {
			text += tc.Text
		}
	}
	return text, nil
}
