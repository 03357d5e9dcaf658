package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/septivank/mcp-client-registry/internal/db"
)

// Repository handles all access to the mcp_clients table. Every method is a
// single statement, so same-name races resolve at the database's row-level
// atomicity (last commit wins per field) without any locking here.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const clientColumns = `display_name, client_id, status, first_seen, last_seen, last_seen_version, capabilities`

// UpsertConnected inserts or updates the row for displayName, marking it
// connected and advancing last_seen. Optional fields use coalesce semantics:
// a nil clientID/version or nil capabilities map leaves the stored value
// untouched, while a non-nil value (including a pointer to "" or a non-nil
// empty map) replaces it wholesale. first_seen is set only on insert.
func (r *Repository) UpsertConnected(ctx context.Context, displayName string, clientID, version *string, capabilities map[string]any) (*db.Client, error) {
	capsJSON, err := marshalCapabilities(capabilities)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO mcp_clients (display_name, client_id, status, first_seen, last_seen, last_seen_version, capabilities)
		VALUES ($1, $2, 'connected', $3, $3, $4, COALESCE($5::jsonb, '{}'::jsonb))
		ON CONFLICT (display_name) DO UPDATE SET
			status = 'connected',
			last_seen = EXCLUDED.last_seen,
			client_id = COALESCE(EXCLUDED.client_id, mcp_clients.client_id),
			last_seen_version = COALESCE(EXCLUDED.last_seen_version, mcp_clients.last_seen_version),
			capabilities = CASE WHEN $5::jsonb IS NULL THEN mcp_clients.capabilities ELSE EXCLUDED.capabilities END
		RETURNING ` + clientColumns

	now := time.Now().UTC()
	client, err := scanClient(r.pool.QueryRow(ctx, query, displayName, clientID, now, version, capsJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert client: %w", err)
	}
	return client, nil
}

// MarkDisconnected sets status=disconnected and advances last_seen for an
// existing row. Returns (nil, nil) when no row matched.
func (r *Repository) MarkDisconnected(ctx context.Context, displayName string) (*db.Client, error) {
	query := `
		UPDATE mcp_clients
		SET status = 'disconnected', last_seen = $2
		WHERE display_name = $1
		RETURNING ` + clientColumns

	client, err := scanClient(r.pool.QueryRow(ctx, query, displayName, time.Now().UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark client disconnected: %w", err)
	}
	return client, nil
}

// InsertDisconnected creates a row directly in disconnected state, used when
// a disconnect arrives for a name with no prior record. The conflict arm
// covers a concurrent connect inserting the row first.
func (r *Repository) InsertDisconnected(ctx context.Context, displayName string) (*db.Client, error) {
	query := `
		INSERT INTO mcp_clients (display_name, status, first_seen, last_seen)
		VALUES ($1, 'disconnected', $2, $2)
		ON CONFLICT (display_name) DO UPDATE SET
			status = 'disconnected',
			last_seen = EXCLUDED.last_seen
		RETURNING ` + clientColumns

	client, err := scanClient(r.pool.QueryRow(ctx, query, displayName, time.Now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("failed to insert disconnected client: %w", err)
	}
	return client, nil
}

// ListClients returns every row, connected clients first, most recently seen
// first within each status group, display_name ascending as the stable
// tie-break. This is the one deterministic ordering the listing contract
// guarantees.
func (r *Repository) ListClients(ctx context.Context) ([]db.Client, error) {
	query := `
		SELECT ` + clientColumns + `
		FROM mcp_clients
		ORDER BY (status = 'connected') DESC, last_seen DESC, display_name ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	var clients []db.Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client row: %w", err)
		}
		clients = append(clients, *client)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return clients, nil
}

// ClientExists reports whether a row with the given display_name is stored,
// regardless of status.
func (r *Repository) ClientExists(ctx context.Context, displayName string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM mcp_clients WHERE display_name = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, displayName).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check client existence: %w", err)
	}
	return exists, nil
}

// marshalCapabilities encodes a capabilities document for a jsonb parameter.
// A nil map becomes a NULL parameter, which the upsert treats as "not
// provided".
func marshalCapabilities(capabilities map[string]any) ([]byte, error) {
	if capabilities == nil {
		return nil, nil
	}
	data, err := json.Marshal(capabilities)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal capabilities: %w", err)
	}
	return data, nil
}

func scanClient(row pgx.Row) (*db.Client, error) {
	var client db.Client
	var capsJSON []byte

	err := row.Scan(
		&client.DisplayName,
		&client.ClientID,
		&client.Status,
		&client.FirstSeen,
		&client.LastSeen,
		&client.LastSeenVersion,
		&capsJSON,
	)
	if err != nil {
		return nil, err
	}

	if len(capsJSON) > 0 {
		if err := json.Unmarshal(capsJSON, &client.Capabilities); err != nil {
			return nil, fmt.Errorf("failed to unmarshal capabilities: %w", err)
		}
	}
	if client.Capabilities == nil {
		client.Capabilities = map[string]any{}
	}

	return &client, nil
}
