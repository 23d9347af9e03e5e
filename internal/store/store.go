// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/gloveboxes/popupstore-agent-gateway/internal/domain"
)

// Repository defines the interface for persisting session history and
// serving company order policies.
type Repository interface {
	// CreateSession inserts the audit row for a newly running session.
	CreateSession(ctx context.Context, rec *domain.SessionRecord) error

	// FinishSession records a session's terminal state, result, and event
	// count. It is a no-op if the session was never created.
	FinishSession(ctx context.Context, rec *domain.SessionRecord) error

	// GetSession retrieves one session by ID; nil when not found.
	GetSession(ctx context.Context, id string) (*domain.SessionRecord, error)

	// ListSessions returns the most recent sessions, newest first.
	ListSessions(ctx context.Context, limit int) ([]*domain.SessionRecord, error)

	// DeleteSessionsBefore removes audit rows started before cutoff and
	// returns how many were deleted.
	DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// GetCompanyOrderPolicy returns the order policy for a department, or
	// the empty string when none is configured.
	GetCompanyOrderPolicy(ctx context.Context, department string) (string, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
