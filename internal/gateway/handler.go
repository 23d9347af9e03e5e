// Package gateway implements the single-shot streaming session that drives
// one workflow run per WebSocket connection and forwards its events to the
// client as ordered envelopes.
package gateway

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/gloveboxes/popupstore-agent-gateway/internal/store"
	"github.com/gloveboxes/popupstore-agent-gateway/internal/workflow"
	"github.com/google/uuid"
)

// Handler upgrades HTTP requests to WebSocket streaming sessions.
type Handler struct {
	factory       workflow.Factory
	repo          store.Repository
	metrics       *Metrics
	eventLog      *EventLogger
	logger        *slog.Logger
	cfg           SessionConfig
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a gateway handler. repo and eventLog may be nil, which
// disables session history and envelope logging respectively. Each session
// gets its own runner from factory.
func NewHandler(factory workflow.Factory, repo store.Repository, metrics *Metrics, eventLog *EventLogger, logger *slog.Logger, cfg SessionConfig, allowedOrigin string, isDev bool) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		factory:       factory,
		repo:          repo,
		metrics:       metrics,
		eventLog:      eventLog,
		logger:        logger,
		cfg:           cfg,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// RegisterRoutes registers the streaming endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/ai-agent/inventory", h.ServeHTTP)
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		// Handshake failed: nothing was accepted, so no envelope is owed.
		h.logger.Error("Failed to accept WebSocket", "error", err, "ip", r.RemoteAddr)
		return
	}

	sessionID := uuid.NewString()
	h.logger.Info("Streaming session accepted", "session_id", sessionID, "ip", r.RemoteAddr)

	session := newSession(sessionID, ws, h.factory(), h.repo, h.metrics, h.eventLog, h.logger, h.cfg)
	session.run(r.Context())
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
