// Package mcpserver exposes the tutor's navigation tools over the Model
// Context Protocol so external assistants can drive the same shell the
// voice tutor drives.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/eimkon/eimkon/pkg/provider/s2s"
)

// Name is the implementation name announced to MCP clients.
const Name = "eimkon"

// Dispatcher executes tool calls.
type Dispatcher interface {
	Definitions() []s2s.ToolDefinition
	Dispatch(ctx context.Context, call s2s.ToolCall) s2s.ToolResponse
}

// New returns an MCP server with one tool per dispatcher definition. Every
// call is forwarded to d and its result returned as text.
func New(d Dispatcher, version string) *mcpsdk.Server {
	srv := mcpsdk.NewServer(&mcpsdk.Implementation{Name: Name, Version: version}, nil)
	for _, def := range d.Definitions() {
		srv.AddTool(&mcpsdk.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: inputSchema(def.Parameters),
		}, handler(d, def.Name))
	}
	return srv
}

// Handler serves srv over the streamable HTTP transport.
func Handler(srv *mcpsdk.Server) http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return srv }, nil)
}

func handler(d Dispatcher, name string) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var args map[string]any
		if raw := req.Params.Arguments; len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("mcpserver: decode %s arguments: %w", name, err)
			}
		}
		resp := d.Dispatch(ctx, s2s.ToolCall{Name: name, Args: args})
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: resp.Result}},
		}, nil
	}
}

// inputSchema returns params, or an empty object schema when params is nil.
func inputSchema(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{"type": "object"}
	}
	return params
}
