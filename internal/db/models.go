package db

import (
	"time"
)

// Client status values persisted in the mcp_clients table.
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)

// Client represents one row of the mcp_clients table: the lifecycle state of
// a named MCP client. DisplayName is the natural key and never changes;
// ClientID and LastSeenVersion are nil until a client reports them.
type Client struct {
	DisplayName     string
	ClientID        *string
	Status          string
	FirstSeen       time.Time
	LastSeen        time.Time
	LastSeenVersion *string
	Capabilities    map[string]any
}

// Connected reports whether the client is currently marked connected.
func (c *Client) Connected() bool {
	return c.Status == StatusConnected
}
