package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gloveboxes/popupstore-agent-gateway/internal/domain"
	"github.com/gloveboxes/popupstore-agent-gateway/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS agent_sessions (
		session_id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		request TEXT NOT NULL,
		store_id TEXT NOT NULL DEFAULT '',
		event_count INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		result TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL,
		finished_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_agent_sessions_started ON agent_sessions(started_at);

	CREATE TABLE IF NOT EXISTS company_policies (
		department TEXT PRIMARY KEY,
		policy TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	// Seed the baseline policies once; operators can overwrite the rows.
	seed := `
	INSERT OR IGNORE INTO company_policies (department, policy) VALUES
		('electronics', 'Maximum $10,000 per order. Orders above $5,000 require finance approval.'),
		('apparel', 'Maximum $4,000 per order. Seasonal restocks must clear within 14 days.'),
		('accessories', 'Maximum $2,500 per order.'),
		('general', 'Standard limits apply: maximum $1,000 per order without approval.');
	`
	if _, err := s.db.Exec(seed); err != nil {
		return fmt.Errorf("seed policies: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession inserts the audit row for a newly running session.
func (s *SQLiteStore) CreateSession(ctx context.Context, rec *domain.SessionRecord) error {
	query := `
	INSERT INTO agent_sessions (session_id, state, request, store_id, started_at)
	VALUES (?, ?, ?, ?, ?)`

	err := shared.RetryOnSQLiteConflict(ctx, 3, 50*time.Millisecond, func() error {
		_, execErr := s.db.ExecContext(ctx, query,
			rec.ID, string(rec.State), rec.Request, rec.StoreID, rec.StartedAt.Unix())
		return execErr
	})
	if err != nil {
		return fmt.Errorf("insert session %s: %w", rec.ID, err)
	}
	return nil
}

// FinishSession records a session's terminal state.
func (s *SQLiteStore) FinishSession(ctx context.Context, rec *domain.SessionRecord) error {
	query := `
	UPDATE agent_sessions
	SET state = ?, event_count = ?, error = ?, result = ?, finished_at = ?
	WHERE session_id = ?`

	var finished int64
	if rec.FinishedAt != nil {
		finished = rec.FinishedAt.Unix()
	} else {
		finished = time.Now().Unix()
	}

	err := shared.RetryOnSQLiteConflict(ctx, 3, 50*time.Millisecond, func() error {
		_, execErr := s.db.ExecContext(ctx, query,
			string(rec.State), rec.EventCount, rec.Error, rec.Result, finished, rec.ID)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("finish session %s: %w", rec.ID, err)
	}
	return nil
}

// GetSession retrieves one session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*domain.SessionRecord, error) {
	query := `
	SELECT session_id, state, request, store_id, event_count, error, result, started_at, finished_at
	FROM agent_sessions WHERE session_id = ?`

	rec, err := scanSession(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return rec, nil
}

// ListSessions returns the most recent sessions, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]*domain.SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
	SELECT session_id, state, request, store_id, event_count, error, result, started_at, finished_at
	FROM agent_sessions ORDER BY started_at DESC, session_id LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var recs []*domain.SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// DeleteSessionsBefore removes audit rows started before cutoff.
func (s *SQLiteStore) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM agent_sessions WHERE started_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete old sessions: %w", err)
	}
	return res.RowsAffected()
}

// GetCompanyOrderPolicy returns the order policy for a department.
func (s *SQLiteStore) GetCompanyOrderPolicy(ctx context.Context, department string) (string, error) {
	var policy string
	err := s.db.QueryRowContext(ctx,
		`SELECT policy FROM company_policies WHERE department = ?`,
		strings.ToLower(strings.TrimSpace(department))).Scan(&policy)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query policy for %s: %w", department, err)
	}
	return policy, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.SessionRecord, error) {
	var rec domain.SessionRecord
	var state string
	var started int64
	var finished sql.NullInt64

	err := row.Scan(&rec.ID, &state, &rec.Request, &rec.StoreID,
		&rec.EventCount, &rec.Error, &rec.Result, &started, &finished)
	if err != nil {
		return nil, err
	}

	rec.State = domain.SessionState(state)
	rec.StartedAt = time.Unix(started, 0)
	if finished.Valid {
		t := time.Unix(finished.Int64, 0)
		rec.FinishedAt = &t
	}
	return &rec, nil
}
