package mcphandler

import (
	"context"
	"encoding/json"
)

// MCPServer is the in-process MCP protocol engine bound to exactly one
// session's transport. Its tool/resource/prompt surface is outside
// this module's scope; mcphandler only owns the session's HTTP/relay
// lifecycle, not MCP method dispatch.
type MCPServer interface {
	HandleMessage(ctx context.Context, msg json.RawMessage) (json.RawMessage, error)
}

// MCPServerFactory constructs a fresh MCPServer for a newly initialized
// session.
type MCPServerFactory func(sid string) MCPServer
