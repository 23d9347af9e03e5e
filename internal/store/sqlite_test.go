package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gloveboxes/popupstore-agent-gateway/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "gateway.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSessionLifecycleRoundTrip(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	rec := &domain.SessionRecord{
		ID:        "sess-1",
		State:     domain.StateRunning,
		Request:   "Analyze inventory and recommend restocking priorities",
		StoreID:   "42",
		StartedAt: time.Now(),
	}
	if err := repo.CreateSession(ctx, rec); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	finished := time.Now()
	rec.State = domain.StateCompleted
	rec.EventCount = 7
	rec.Result = "# Restocking Plan"
	rec.FinishedAt = &finished
	if err := repo.FinishSession(ctx, rec); err != nil {
		t.Fatalf("FinishSession failed: %v", err)
	}

	got, err := repo.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected session, got nil")
	}
	if got.State != domain.StateCompleted {
		t.Errorf("Expected state completed, got %q", got.State)
	}
	if got.EventCount != 7 {
		t.Errorf("Expected 7 events, got %d", got.EventCount)
	}
	if got.Result != "# Restocking Plan" {
		t.Errorf("Unexpected result: %q", got.Result)
	}
	if got.FinishedAt == nil {
		t.Error("Expected finished_at to be set")
	}
}

func TestGetSessionMissing(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	got, err := repo.GetSession(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for missing session, got %+v", got)
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, id := range []string{"old", "mid", "new"} {
		rec := &domain.SessionRecord{
			ID:        id,
			State:     domain.StateCompleted,
			Request:   "r",
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.CreateSession(ctx, rec); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
	}

	recs, err := repo.ListSessions(ctx, 2)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(recs))
	}
	if recs[0].ID != "new" || recs[1].ID != "mid" {
		t.Errorf("Expected newest first, got %s, %s", recs[0].ID, recs[1].ID)
	}
}

func TestDeleteSessionsBefore(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	old := &domain.SessionRecord{ID: "old", State: domain.StateFailed, Request: "r", StartedAt: time.Now().Add(-48 * time.Hour)}
	fresh := &domain.SessionRecord{ID: "fresh", State: domain.StateCompleted, Request: "r", StartedAt: time.Now()}
	for _, rec := range []*domain.SessionRecord{old, fresh} {
		if err := repo.CreateSession(ctx, rec); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
	}

	deleted, err := repo.DeleteSessionsBefore(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteSessionsBefore failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted, got %d", deleted)
	}
	if got, _ := repo.GetSession(ctx, "fresh"); got == nil {
		t.Error("Fresh session must survive the sweep")
	}
}

func TestGetCompanyOrderPolicy(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	policy, err := repo.GetCompanyOrderPolicy(ctx, "Electronics")
	if err != nil {
		t.Fatalf("GetCompanyOrderPolicy failed: %v", err)
	}
	if policy == "" {
		t.Error("Expected seeded electronics policy")
	}

	policy, err = repo.GetCompanyOrderPolicy(ctx, "no-such-department")
	if err != nil {
		t.Fatalf("GetCompanyOrderPolicy failed: %v", err)
	}
	if policy != "" {
		t.Errorf("Expected empty policy for unknown department, got %q", policy)
	}
}
