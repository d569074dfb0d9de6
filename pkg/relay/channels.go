// Package relay implements the per-session MCP server-side transport,
// materialized over Redis pub/sub channels so any gateway replica can
// serve a request for a session regardless of which replica first
// created it.
package relay

import "fmt"

func toServerChannel(sid string) string {
	return fmt.Sprintf("mcp:shttp:toserver:%s", sid)
}

func toClientRequestChannel(sid string, requestID string) string {
	return fmt.Sprintf("mcp:shttp:toclient:%s:%s", sid, requestID)
}

func toClientStreamChannel(sid string) string {
	return fmt.Sprintf("mcp:shttp:toclient:%s:__GET_stream", sid)
}

func controlChannel(sid string) string {
	return fmt.Sprintf("mcp:control:%s", sid)
}

// shutdownAction is the only control-plane action this relay defines.
const shutdownAction = "SHUTDOWN"
