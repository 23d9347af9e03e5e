package gateway

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gloveboxes/popupstore-agent-gateway/internal/protocol"
)

func newTestEventLogger(t *testing.T, queueSize int) (*EventLogger, string) {
	t.Helper()
	dir := t.TempDir()
	l, err := NewEventLogger(EventLogConfig{Enabled: true, Dir: dir, QueueSize: queueSize}, nil)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}
	return l, dir
}

func TestEventLoggerWritesPerSessionNDJSON(t *testing.T) {
	t.Parallel()

	l, dir := newTestEventLogger(t, 16)
	l.Log("s-1", protocol.NewEnvelope(protocol.TypeStarted, "AI Agent workflow initiated..."))
	l.Log("s-1", protocol.NewEnvelope(protocol.TypeEvent, "checking stock levels"))
	l.Log("s-2", protocol.NewEnvelope(protocol.TypeError, "Database connection lost"))
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "s-1.ndjson"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 entries for s-1, got %d: %q", len(lines), lines)
	}
	if !strings.Contains(lines[1], "checking stock levels") {
		t.Errorf("Unexpected second entry: %q", lines[1])
	}

	data, err = os.ReadFile(filepath.Join(dir, "s-2.ndjson"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(data), "Database connection lost") {
		t.Errorf("Unexpected s-2 content: %q", string(data))
	}
}

func TestEventLoggerLogAfterCloseIsSafe(t *testing.T) {
	t.Parallel()

	l, dir := newTestEventLogger(t, 16)
	l.Log("s-1", protocol.NewEnvelope(protocol.TypeStarted, "go"))
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// A session outliving shutdown may still log; it must not panic and
	// must not write.
	l.Log("s-1", protocol.NewEnvelope(protocol.TypeEvent, "late event"))
	if err := l.Close(); err != nil {
		t.Fatalf("Second Close failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "s-1.ndjson"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if strings.Contains(string(data), "late event") {
		t.Errorf("Entry logged after Close was written: %q", string(data))
	}
}

func TestEventLoggerNilIsSafe(t *testing.T) {
	t.Parallel()

	var l *EventLogger
	l.Log("s-1", protocol.NewEnvelope(protocol.TypeEvent, "ignored"))
	if err := l.Close(); err != nil {
		t.Fatalf("Close on nil logger failed: %v", err)
	}
	if l.Dropped() != 0 {
		t.Errorf("Expected zero drops on nil logger, got %d", l.Dropped())
	}
}
