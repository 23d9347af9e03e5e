package api

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gloveboxes/popupstore-agent-gateway/internal/store"
	"github.com/yuin/goldmark"
)

const (
	defaultSessionLimit = 50
	maxSessionLimit     = 500
)

// SessionHandler serves the recorded history of workflow runs.
type SessionHandler struct {
	repo     store.Repository
	markdown goldmark.Markdown
}

// NewSessionHandler creates a session history handler.
func NewSessionHandler(repo store.Repository) *SessionHandler {
	return &SessionHandler{
		repo:     repo,
		markdown: goldmark.New(),
	}
}

// RegisterRoutes registers session history routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/agent/sessions", h.List)
	r.Get("/api/agent/sessions/{id}", h.Get)
}

// List returns the most recent sessions, newest first.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultSessionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n > maxSessionLimit {
			n = maxSessionLimit
		}
		limit = n
	}

	recs, err := h.repo.ListSessions(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list sessions", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"sessions": recs})
}

// Get returns one session by ID. With an Accept header preferring text/html
// the stored markdown result is rendered to an HTML report.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.repo.GetSession(r.Context(), id)
	if err != nil {
		slog.Error("Failed to load session", "error", err, "session_id", id)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if rec == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	if wantsHTML(r) && rec.Result != "" {
		var buf bytes.Buffer
		if err := h.markdown.Convert([]byte(rec.Result), &buf); err != nil {
			slog.Error("Failed to render session result", "error", err, "session_id", id)
			Error(w, http.StatusInternalServerError, "failed to render result")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
		return
	}

	JSON(w, http.StatusOK, rec)
}

func wantsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html")
}
