// Package registry implements the lifecycle bookkeeping contract for named
// MCP clients: record-connected, record-disconnected, list-all and exists.
//
// The registry is advisory to a UI feature and must never fail the
// connect/disconnect path it instruments, so backend errors are swallowed at
// this boundary and replaced by operation-specific safe defaults: a
// non-persisted fallback record for RecordConnected, nil for
// RecordDisconnected, an empty listing for ListAll and false for Exists.
// Callers that need durability must confirm it separately (Exists/ListAll)
// or check ConnectResult.Persisted.
package registry

import (
	"context"
	"time"

	"github.com/septivank/mcp-client-registry/internal/db"
	"go.uber.org/zap"
)

// Store is the backing-table access the registry needs. Implemented by
// repository.Repository; all atomicity (two concurrent connects for the same
// display_name never producing duplicate rows) is the store's responsibility.
type Store interface {
	UpsertConnected(ctx context.Context, displayName string, clientID, version *string, capabilities map[string]any) (*db.Client, error)
	MarkDisconnected(ctx context.Context, displayName string) (*db.Client, error)
	InsertDisconnected(ctx context.Context, displayName string) (*db.Client, error)
	ListClients(ctx context.Context) ([]db.Client, error)
	ClientExists(ctx context.Context, displayName string) (bool, error)
}

// ConnectParams carries the optional fields of a connect event. A nil
// pointer or nil map means "not provided": the stored value is retained. A
// non-nil value (a pointer to "" included) replaces the stored value
// wholesale; capabilities are never merged key-by-key.
type ConnectParams struct {
	ClientID     *string
	Version      *string
	Capabilities map[string]any
}

// ConnectResult is the outcome of RecordConnected. When Persisted is false
// the backend write failed and Client is a best-effort in-memory record
// built from the inputs; it may not survive a restart or appear in ListAll.
type ConnectResult struct {
	Client    *db.Client
	Persisted bool
}

// ClientRegistry owns all reads and writes of the mcp_clients table. It holds
// no in-process mutable state; every operation is a single round trip to the
// store and is safe for concurrent use.
type ClientRegistry struct {
	store  Store
	logger *zap.Logger
}

// NewClientRegistry creates a registry over the given store.
func NewClientRegistry(store Store, logger *zap.Logger) *ClientRegistry {
	return &ClientRegistry{store: store, logger: logger}
}

// RecordConnected upserts the client to status=connected and advances
// last_seen. first_seen is set once, on first observation. Repeated calls
// with no optional fields are idempotent apart from last_seen.
//
// On backend failure the event is still honored: a synthetic record built
// from the inputs is returned with Persisted=false.
func (r *ClientRegistry) RecordConnected(ctx context.Context, displayName string, params ConnectParams) ConnectResult {
	client, err := r.store.UpsertConnected(ctx, displayName, params.ClientID, params.Version, params.Capabilities)
	if err != nil {
		r.logger.Warn("connect upsert failed, returning non-persisted record",
			zap.String("display_name", displayName),
			zap.Error(err),
		)
		return ConnectResult{Client: fallbackConnected(displayName, params), Persisted: false}
	}
	return ConnectResult{Client: client, Persisted: true}
}

// RecordDisconnected sets the client to status=disconnected and advances
// last_seen. A disconnect for a name never seen before creates the record
// directly in disconnected state, so every referenced name becomes listable.
// Returns nil on backend failure: a lost disconnect is surfaced as "no prior
// record" rather than a synthetic one.
func (r *ClientRegistry) RecordDisconnected(ctx context.Context, displayName string) *db.Client {
	client, err := r.store.MarkDisconnected(ctx, displayName)
	if err != nil {
		r.logger.Warn("disconnect update failed",
			zap.String("display_name", displayName),
			zap.Error(err),
		)
		return nil
	}
	if client != nil {
		return client
	}

	client, err = r.store.InsertDisconnected(ctx, displayName)
	if err != nil {
		r.logger.Warn("disconnect insert failed",
			zap.String("display_name", displayName),
			zap.Error(err),
		)
		return nil
	}
	return client
}

// ListAll returns every known client, connected first, most recently seen
// first within each status group (display_name ascending breaks exact ties).
// Backend failure yields an empty slice; listing is presentation-only and
// must not crash a caller.
func (r *ClientRegistry) ListAll(ctx context.Context) []db.Client {
	clients, err := r.store.ListClients(ctx)
	if err != nil {
		r.logger.Warn("client listing failed, returning empty list", zap.Error(err))
		return []db.Client{}
	}
	if clients == nil {
		clients = []db.Client{}
	}
	return clients
}

// Exists reports whether a record with the exact display_name is stored,
// regardless of status. Backend failure reads as false (fail-closed), which
// conflates "genuinely absent" with "backend unreachable".
func (r *ClientRegistry) Exists(ctx context.Context, displayName string) bool {
	exists, err := r.store.ClientExists(ctx, displayName)
	if err != nil {
		r.logger.Warn("client existence check failed, treating as not found",
			zap.String("display_name", displayName),
			zap.Error(err),
		)
		return false
	}
	return exists
}

func fallbackConnected(displayName string, params ConnectParams) *db.Client {
	now := time.Now().UTC()
	caps := params.Capabilities
	if caps == nil {
		caps = map[string]any{}
	}
	return &db.Client{
		DisplayName:     displayName,
		ClientID:        params.ClientID,
		Status:          db.StatusConnected,
		FirstSeen:       now,
		LastSeen:        now,
		LastSeenVersion: params.Version,
		Capabilities:    caps,
	}
}
