// Package httpapi exposes the registry to the UI: client listings for the
// assignee picker and a point existence check for assignment validation.
// Endpoints never surface backend errors; a broken backend reads as an empty
// listing or exists=false, per the registry's degradation contract.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/septivank/mcp-client-registry/internal/db"
	"go.uber.org/zap"
)

// Registry is the read side of the client registry the API serves.
type Registry interface {
	ListAll(ctx context.Context) []db.Client
	Exists(ctx context.Context, displayName string) bool
}

// Server wraps the echo instance serving the registry API.
type Server struct {
	echo     *echo.Echo
	registry Registry
	logger   *zap.Logger
}

// NewServer builds the echo server and registers all routes. Start/Shutdown
// are wired to the fx lifecycle by the caller.
func NewServer(registry Registry, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("http request",
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
			)
			return nil
		},
	}))

	s := &Server{echo: e, registry: registry, logger: logger}

	e.GET("/health", s.health)
	e.GET("/api/mcp/clients", s.listClients)
	e.GET("/api/mcp/clients/assignees", s.listAssignees)
	e.GET("/api/mcp/clients/:name/exists", s.clientExists)

	return s
}

// Start begins serving on addr and blocks until shutdown.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

type clientResponse struct {
	DisplayName     string         `json:"display_name"`
	Status          string         `json:"status"`
	ClientID        *string        `json:"client_id,omitempty"`
	FirstSeen       time.Time      `json:"first_seen"`
	LastSeen        time.Time      `json:"last_seen"`
	LastSeenVersion *string        `json:"last_seen_version,omitempty"`
	Capabilities    map[string]any `json:"capabilities,omitempty"`
}

type assigneeResponse struct {
	DisplayName string `json:"display_name"`
	Status      string `json:"status"`
	Connected   bool   `json:"connected"`
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// listClients returns every known client, connected first.
func (s *Server) listClients(c echo.Context) error {
	clients := s.registry.ListAll(c.Request().Context())

	resp := make([]clientResponse, 0, len(clients))
	for i := range clients {
		resp = append(resp, toClientResponse(&clients[i]))
	}
	return c.JSON(http.StatusOK, resp)
}

// listAssignees returns the trimmed listing the task-assignment picker
// renders: name and connection state only.
func (s *Server) listAssignees(c echo.Context) error {
	clients := s.registry.ListAll(c.Request().Context())

	assignees := make([]assigneeResponse, 0, len(clients))
	for i := range clients {
		assignees = append(assignees, assigneeResponse{
			DisplayName: clients[i].DisplayName,
			Status:      clients[i].Status,
			Connected:   clients[i].Connected(),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"assignees": assignees,
		"count":     len(assignees),
	})
}

// clientExists gates assignment validation: true iff the name has ever been
// recorded, regardless of current status.
func (s *Server) clientExists(c echo.Context) error {
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "display name is required"})
	}

	exists := s.registry.Exists(c.Request().Context(), name)
	return c.JSON(http.StatusOK, map[string]any{
		"display_name": name,
		"exists":       exists,
	})
}

func toClientResponse(client *db.Client) clientResponse {
	return clientResponse{
		DisplayName:     client.DisplayName,
		Status:          client.Status,
		ClientID:        client.ClientID,
		FirstSeen:       client.FirstSeen,
		LastSeen:        client.LastSeen,
		LastSeenVersion: client.LastSeenVersion,
		Capabilities:    client.Capabilities,
	}
}
