// Package domain holds the core entities shared across the gateway.
package domain

import "time"

// SessionState tracks where a streaming session is in its lifecycle.
type SessionState string

const (
	// StateAwaitingRequest means the transport is accepted and the session
	// is waiting for its single inbound request.
	StateAwaitingRequest SessionState = "awaiting_request"
	// StateRunning means the workflow runner is being driven.
	StateRunning SessionState = "running"
	// StateCompleted means the runner finished and the completed envelope
	// was sent.
	StateCompleted SessionState = "completed"
	// StateFailed means the runner or transport failed.
	StateFailed SessionState = "failed"
	// StateClosed means the transport is torn down.
	StateClosed SessionState = "closed"
)

// SessionRecord is the persisted audit row for one streaming session. It
// records outcomes for operators; it is not replay state and sessions are
// never resumed from it.
type SessionRecord struct {
	ID         string       `json:"id"`
	State      SessionState `json:"state"`
	Request    string       `json:"request"`
	StoreID    string       `json:"store_id,omitempty"`
	EventCount int          `json:"event_count"`
	Error      string       `json:"error,omitempty"`
	Result     string       `json:"result,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}
