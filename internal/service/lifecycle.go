package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/septivank/mcp-client-registry/internal/db"
	"github.com/septivank/mcp-client-registry/internal/logging"
	"github.com/septivank/mcp-client-registry/internal/registry"
	"go.uber.org/zap"
)

// Lifecycle event types accepted on the queue.
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
)

// LifecycleEvent is the incoming message published by the session manager on
// client connect/disconnect. Only display_name and event are required; empty
// optional fields mean "not reported", never "clear".
type LifecycleEvent struct {
	RequestID    string         `json:"request_id"`
	DisplayName  string         `json:"display_name"`
	Event        string         `json:"event"`
	ClientID     string         `json:"client_id,omitempty"`
	Version      string         `json:"version,omitempty"`
	Capabilities map[string]any `json:"capabilities,omitempty"`
}

// Registry is the part of the client registry the lifecycle service drives.
type Registry interface {
	RecordConnected(ctx context.Context, displayName string, params registry.ConnectParams) registry.ConnectResult
	RecordDisconnected(ctx context.Context, displayName string) *db.Client
}

// LifecycleService dispatches lifecycle messages to the client registry.
type LifecycleService struct {
	registry Registry
	logger   *zap.Logger
}

// NewLifecycleService creates a new lifecycle service
func NewLifecycleService(reg Registry, logger *zap.Logger) *LifecycleService {
	return &LifecycleService{registry: reg, logger: logger}
}

// ProcessMessage handles one lifecycle message from the queue. A returned
// error means the message is malformed and should be dead-lettered; registry
// write failures never surface here because the registry swallows them.
func (s *LifecycleService) ProcessMessage(ctx context.Context, body []byte) error {
	var event LifecycleEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("failed to unmarshal lifecycle event: %w", err)
	}

	if event.RequestID == "" {
		event.RequestID = uuid.NewString()
	}
	reqLogger := logging.WithRequestID(s.logger, event.RequestID)

	if event.DisplayName == "" {
		return fmt.Errorf("lifecycle event missing display_name")
	}

	switch event.Event {
	case EventConnected:
		result := s.registry.RecordConnected(ctx, event.DisplayName, connectParams(event))
		if !result.Persisted {
			reqLogger.Warn("connect recorded without durable write",
				zap.String("display_name", event.DisplayName),
			)
			return nil
		}
		reqLogger.Info("client connected",
			zap.String("display_name", event.DisplayName),
			zap.Time("first_seen", result.Client.FirstSeen),
		)

	case EventDisconnected:
		client := s.registry.RecordDisconnected(ctx, event.DisplayName)
		if client == nil {
			reqLogger.Warn("disconnect not recorded",
				zap.String("display_name", event.DisplayName),
			)
			return nil
		}
		reqLogger.Info("client disconnected",
			zap.String("display_name", event.DisplayName),
			zap.Time("last_seen", client.LastSeen),
		)

	default:
		return fmt.Errorf("unknown lifecycle event %q", event.Event)
	}

	return nil
}

// connectParams maps message-level optionals (empty string = not reported)
// to the registry's pointer-based tri-state.
func connectParams(event LifecycleEvent) registry.ConnectParams {
	var params registry.ConnectParams
	if event.ClientID != "" {
		params.ClientID = &event.ClientID
	}
	if event.Version != "" {
		params.Version = &event.Version
	}
	params.Capabilities = event.Capabilities
	return params
}
