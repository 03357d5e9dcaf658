package registry_test

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/septivank/mcp-client-registry/internal/db"
	"github.com/septivank/mcp-client-registry/internal/registry"
	"go.uber.org/zap"
)

var errBackendDown = errors.New("backend unavailable")

// fakeStore implements registry.Store in memory with the same contract the
// repository provides: coalescing upsert, nil-on-missing point update, and
// connected-first listing. A fake clock advances one second per write so
// last_seen ordering is observable.
type fakeStore struct {
	clients map[string]*db.Client
	now     time.Time
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		clients: make(map[string]*db.Client),
		now:     time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *fakeStore) tick() time.Time {
	s.now = s.now.Add(time.Second)
	return s.now
}

func (s *fakeStore) UpsertConnected(_ context.Context, displayName string, clientID, version *string, capabilities map[string]any) (*db.Client, error) {
	if s.err != nil {
		return nil, s.err
	}
	now := s.tick()

	client, ok := s.clients[displayName]
	if !ok {
		caps := capabilities
		if caps == nil {
			caps = map[string]any{}
		}
		client = &db.Client{
			DisplayName:     displayName,
			ClientID:        clientID,
			Status:          db.StatusConnected,
			FirstSeen:       now,
			LastSeen:        now,
			LastSeenVersion: version,
			Capabilities:    caps,
		}
		s.clients[displayName] = client
	} else {
		client.Status = db.StatusConnected
		client.LastSeen = now
		if clientID != nil {
			client.ClientID = clientID
		}
		if version != nil {
			client.LastSeenVersion = version
		}
		if capabilities != nil {
			client.Capabilities = capabilities
		}
	}

	copied := *client
	return &copied, nil
}

func (s *fakeStore) MarkDisconnected(_ context.Context, displayName string) (*db.Client, error) {
	if s.err != nil {
		return nil, s.err
	}
	client, ok := s.clients[displayName]
	if !ok {
		return nil, nil
	}
	client.Status = db.StatusDisconnected
	client.LastSeen = s.tick()
	copied := *client
	return &copied, nil
}

func (s *fakeStore) InsertDisconnected(_ context.Context, displayName string) (*db.Client, error) {
	if s.err != nil {
		return nil, s.err
	}
	now := s.tick()
	client := &db.Client{
		DisplayName:  displayName,
		Status:       db.StatusDisconnected,
		FirstSeen:    now,
		LastSeen:     now,
		Capabilities: map[string]any{},
	}
	s.clients[displayName] = client
	copied := *client
	return &copied, nil
}

func (s *fakeStore) ListClients(_ context.Context) ([]db.Client, error) {
	if s.err != nil {
		return nil, s.err
	}
	clients := make([]db.Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, *c)
	}
	sort.Slice(clients, func(i, j int) bool {
		if clients[i].Connected() != clients[j].Connected() {
			return clients[i].Connected()
		}
		if !clients[i].LastSeen.Equal(clients[j].LastSeen) {
			return clients[i].LastSeen.After(clients[j].LastSeen)
		}
		return clients[i].DisplayName < clients[j].DisplayName
	})
	return clients, nil
}

func (s *fakeStore) ClientExists(_ context.Context, displayName string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	_, ok := s.clients[displayName]
	return ok, nil
}

func newRegistry(store *fakeStore) *registry.ClientRegistry {
	return registry.NewClientRegistry(store, zap.NewNop())
}

func strPtr(s string) *string { return &s }

func TestRecordConnected_CreatesConnectedRecord(t *testing.T) {
	store := newFakeStore()
	reg := newRegistry(store)
	ctx := context.Background()

	result := reg.RecordConnected(ctx, "agent1", registry.ConnectParams{})

	if !result.Persisted {
		t.Error("Expected persisted result")
	}
	if result.Client.Status != db.StatusConnected {
		t.Errorf("Expected status connected, got %s", result.Client.Status)
	}

	clients := reg.ListAll(ctx)
	if len(clients) != 1 {
		t.Fatalf("Expected 1 client, got %d", len(clients))
	}
	if clients[0].DisplayName != "agent1" {
		t.Errorf("Expected display_name agent1, got %s", clients[0].DisplayName)
	}
}

func TestRecordConnected_RepeatedKeepsFirstSeen(t *testing.T) {
	store := newFakeStore()
	reg := newRegistry(store)
	ctx := context.Background()

	first := reg.RecordConnected(ctx, "agent1", registry.ConnectParams{})
	second := reg.RecordConnected(ctx, "agent1", registry.ConnectParams{})

	if !second.Client.FirstSeen.Equal(first.Client.FirstSeen) {
		t.Errorf("Expected first_seen unchanged, got %v then %v",
			first.Client.FirstSeen, second.Client.FirstSeen)
	}
	if second.Client.LastSeen.Before(first.Client.LastSeen) {
		t.Errorf("Expected last_seen to advance, got %v then %v",
			first.Client.LastSeen, second.Client.LastSeen)
	}
	if second.Client.Status != db.StatusConnected {
		t.Errorf("Expected status connected, got %s", second.Client.Status)
	}
}

func TestRecordConnected_CoalescesOmittedFields(t *testing.T) {
	store := newFakeStore()
	reg := newRegistry(store)
	ctx := context.Background()

	reg.RecordConnected(ctx, "agent1", registry.ConnectParams{
		ClientID: strPtr("A"),
		Version:  strPtr("1.0"),
	})
	result := reg.RecordConnected(ctx, "agent1", registry.ConnectParams{})

	if result.Client.ClientID == nil || *result.Client.ClientID != "A" {
		t.Errorf("Expected client_id A retained, got %v", result.Client.ClientID)
	}
	if result.Client.LastSeenVersion == nil || *result.Client.LastSeenVersion != "1.0" {
		t.Errorf("Expected version 1.0 retained, got %v", result.Client.LastSeenVersion)
	}
}

func TestRecordConnected_ReplacesCapabilitiesWholesale(t *testing.T) {
	store := newFakeStore()
	reg := newRegistry(store)
	ctx := context.Background()

	reg.RecordConnected(ctx, "agent1", registry.ConnectParams{
		Capabilities: map[string]any{"tools": true, "sampling": true},
	})
	result := reg.RecordConnected(ctx, "agent1", registry.ConnectParams{
		Capabilities: map[string]any{"prompts": true},
	})

	if len(result.Client.Capabilities) != 1 {
		t.Fatalf("Expected capabilities replaced wholesale, got %v", result.Client.Capabilities)
	}
	if result.Client.Capabilities["prompts"] != true {
		t.Errorf("Expected prompts capability, got %v", result.Client.Capabilities)
	}
}

func TestRecordConnected_ExplicitEmptyClientIDOverwrites(t *testing.T) {
	store := newFakeStore()
	reg := newRegistry(store)
	ctx := context.Background()

	reg.RecordConnected(ctx, "agent1", registry.ConnectParams{ClientID: strPtr("A")})
	result := reg.RecordConnected(ctx, "agent1", registry.ConnectParams{ClientID: strPtr("")})

	if result.Client.ClientID == nil || *result.Client.ClientID != "" {
		t.Errorf("Expected explicit empty client_id to overwrite, got %v", result.Client.ClientID)
	}
}

func TestRecordConnected_BackendFailureReturnsFallback(t *testing.T) {
	store := newFakeStore()
	store.err = errBackendDown
	reg := newRegistry(store)
	ctx := context.Background()

	result := reg.RecordConnected(ctx, "agent1", registry.ConnectParams{
		ClientID: strPtr("sess-1"),
		Version:  strPtr("1.0"),
	})

	if result.Persisted {
		t.Error("Expected Persisted=false on backend failure")
	}
	if result.Client == nil {
		t.Fatal("Expected fallback record, got nil")
	}
	if result.Client.Status != db.StatusConnected {
		t.Errorf("Expected status connected, got %s", result.Client.Status)
	}
	if result.Client.ClientID == nil || *result.Client.ClientID != "sess-1" {
		t.Errorf("Expected client_id sess-1, got %v", result.Client.ClientID)
	}
	if !result.Client.FirstSeen.Equal(result.Client.LastSeen) {
		t.Error("Expected first_seen == last_seen on fallback record")
	}
	if result.Client.Capabilities == nil {
		t.Error("Expected non-nil capabilities on fallback record")
	}
}

func TestRecordDisconnected_ExistingRecord(t *testing.T) {
	store := newFakeStore()
	reg := newRegistry(store)
	ctx := context.Background()

	connected := reg.RecordConnected(ctx, "agent1", registry.ConnectParams{ClientID: strPtr("sess-1")})
	client := reg.RecordDisconnected(ctx, "agent1")

	if client == nil {
		t.Fatal("Expected updated record, got nil")
	}
	if client.Status != db.StatusDisconnected {
		t.Errorf("Expected status disconnected, got %s", client.Status)
	}
	if client.LastSeen.Before(connected.Client.LastSeen) {
		t.Error("Expected last_seen to advance on disconnect")
	}
	if client.ClientID == nil || *client.ClientID != "sess-1" {
		t.Errorf("Expected client_id retained across disconnect, got %v", client.ClientID)
	}
}

func TestRecordDisconnected_UnknownNameCreatesRecord(t *testing.T) {
	store := newFakeStore()
	reg := newRegistry(store)
	ctx := context.Background()

	client := reg.RecordDisconnected(ctx, "ghost")

	if client == nil {
		t.Fatal("Expected record created for unknown name, got nil")
	}
	if client.Status != db.StatusDisconnected {
		t.Errorf("Expected status disconnected, got %s", client.Status)
	}
	if !client.FirstSeen.Equal(client.LastSeen) {
		t.Errorf("Expected first_seen == last_seen, got %v and %v", client.FirstSeen, client.LastSeen)
	}
	if !reg.Exists(ctx, "ghost") {
		t.Error("Expected disconnect-of-unknown to make the name listable")
	}
}

func TestRecordDisconnected_BackendFailureReturnsNil(t *testing.T) {
	store := newFakeStore()
	store.err = errBackendDown
	reg := newRegistry(store)

	if client := reg.RecordDisconnected(context.Background(), "agent1"); client != nil {
		t.Errorf("Expected nil on backend failure, got %+v", client)
	}
}

func TestListAll_ConnectedBeforeDisconnected(t *testing.T) {
	store := newFakeStore()
	reg := newRegistry(store)
	ctx := context.Background()

	reg.RecordConnected(ctx, "A", registry.ConnectParams{})
	reg.RecordConnected(ctx, "B", registry.ConnectParams{})
	reg.RecordDisconnected(ctx, "B")
	reg.RecordConnected(ctx, "C", registry.ConnectParams{})

	clients := reg.ListAll(ctx)
	if len(clients) != 3 {
		t.Fatalf("Expected 3 clients, got %d", len(clients))
	}

	for i, c := range clients[:2] {
		if !c.Connected() {
			t.Errorf("Expected connected client at position %d, got %s (%s)", i, c.DisplayName, c.Status)
		}
	}
	if clients[2].DisplayName != "B" || clients[2].Connected() {
		t.Errorf("Expected disconnected B last, got %s (%s)", clients[2].DisplayName, clients[2].Status)
	}
}

func TestListAll_BackendFailureReturnsEmpty(t *testing.T) {
	store := newFakeStore()
	store.err = errBackendDown
	reg := newRegistry(store)

	clients := reg.ListAll(context.Background())
	if clients == nil {
		t.Fatal("Expected empty slice, got nil")
	}
	if len(clients) != 0 {
		t.Errorf("Expected empty listing on backend failure, got %d", len(clients))
	}
}

func TestExists(t *testing.T) {
	store := newFakeStore()
	reg := newRegistry(store)
	ctx := context.Background()

	reg.RecordConnected(ctx, "agent1", registry.ConnectParams{})
	reg.RecordDisconnected(ctx, "agent2")

	if !reg.Exists(ctx, "agent1") {
		t.Error("Expected exists=true after record-connected")
	}
	if !reg.Exists(ctx, "agent2") {
		t.Error("Expected exists=true after record-disconnected")
	}
	if reg.Exists(ctx, "never-seen") {
		t.Error("Expected exists=false for a name never referenced")
	}
}

func TestExists_BackendFailureReturnsFalse(t *testing.T) {
	store := newFakeStore()
	reg := newRegistry(store)
	ctx := context.Background()

	reg.RecordConnected(ctx, "agent1", registry.ConnectParams{})
	store.err = errBackendDown

	if reg.Exists(ctx, "agent1") {
		t.Error("Expected exists=false when the backend is unreachable")
	}
}

func TestConnectThenDisconnectEndToEnd(t *testing.T) {
	store := newFakeStore()
	reg := newRegistry(store)
	ctx := context.Background()

	reg.RecordConnected(ctx, "agent1", registry.ConnectParams{
		ClientID: strPtr("sess-1"),
		Version:  strPtr("1.0"),
	})
	reg.RecordDisconnected(ctx, "agent1")

	clients := reg.ListAll(ctx)
	if len(clients) != 1 {
		t.Fatalf("Expected 1 client, got %d", len(clients))
	}
	got := clients[0]
	if got.DisplayName != "agent1" {
		t.Errorf("Expected display_name agent1, got %s", got.DisplayName)
	}
	if got.Status != db.StatusDisconnected {
		t.Errorf("Expected status disconnected, got %s", got.Status)
	}
	if got.ClientID == nil || *got.ClientID != "sess-1" {
		t.Errorf("Expected client_id sess-1, got %v", got.ClientID)
	}
	if got.LastSeenVersion == nil || *got.LastSeenVersion != "1.0" {
		t.Errorf("Expected last_seen_version 1.0, got %v", got.LastSeenVersion)
	}
}

func TestListAll_RecencyWithinStatusGroup(t *testing.T) {
	store := newFakeStore()
	reg := newRegistry(store)
	ctx := context.Background()

	names := []string{"alpha", "beta", "gamma"}
	for _, name := range names {
		reg.RecordConnected(ctx, name, registry.ConnectParams{})
	}
	// Re-connect alpha so it is the most recently seen.
	reg.RecordConnected(ctx, "alpha", registry.ConnectParams{})

	clients := reg.ListAll(ctx)
	if len(clients) != 3 {
		t.Fatalf("Expected 3 clients, got %d", len(clients))
	}
	if clients[0].DisplayName != "alpha" {
		t.Errorf("Expected most recently seen client first, got %s", clients[0].DisplayName)
	}
}
