package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gloveboxes/popupstore-agent-gateway/internal/protocol"
)

// EventLogConfig controls NDJSON envelope logging.
type EventLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

type eventLogEntry struct {
	SessionID string `json:"session_id"`
	Type      string `json:"type"`
	Payload   string `json:"payload"`
	Timestamp string `json:"timestamp"`
}

// EventLogger appends every envelope a session sends to a per-session NDJSON
// file. Writes happen on a background worker so a slow disk can never stall
// the envelope stream; when the queue is full, entries are dropped and
// counted, not blocked on.
type EventLogger struct {
	dir       string
	queue     chan eventLogEntry
	stop      chan struct{}
	done      chan struct{}
	logger    *slog.Logger
	dropped   atomic.Int64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewEventLogger creates the log directory and starts the writer worker.
// Returns nil when logging is disabled; a nil *EventLogger is safe to use.
func NewEventLogger(cfg EventLogConfig, logger *slog.Logger) (*EventLogger, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create event log directory: %w", err)
	}

	l := &EventLogger{
		dir:    cfg.Dir,
		queue:  make(chan eventLogEntry, cfg.QueueSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
	go l.worker()
	return l, nil
}

// Log enqueues one envelope for the given session. Never blocks, and is a
// no-op after Close: sessions can outlive server shutdown (the HTTP server
// does not wait for hijacked connections), so a late Log must stay safe.
func (l *EventLogger) Log(sessionID string, env protocol.Envelope) {
	if l == nil || l.closed.Load() {
		return
	}
	entry := eventLogEntry{
		SessionID: sessionID,
		Type:      string(env.Type),
		Payload:   env.Payload,
		Timestamp: env.Timestamp,
	}
	select {
	case l.queue <- entry:
	default:
		l.dropped.Add(1)
	}
}

// Dropped reports how many entries were discarded because the queue was full.
func (l *EventLogger) Dropped() int64 {
	if l == nil {
		return 0
	}
	return l.dropped.Load()
}

// Close drains the queue and stops the worker. Safe to call more than once.
// The queue channel itself is never closed: a producer racing Close would
// panic sending on it.
func (l *EventLogger) Close() error {
	if l == nil {
		return nil
	}
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.stop)
		<-l.done
	})
	return nil
}

func (l *EventLogger) worker() {
	defer close(l.done)
	for {
		select {
		case entry := <-l.queue:
			l.write(entry)
		case <-l.stop:
			// Drain whatever was enqueued before the closed flag flipped.
			for {
				select {
				case entry := <-l.queue:
					l.write(entry)
				default:
					return
				}
			}
		}
	}
}

// write appends one entry to its session's file. The file is opened and
// closed per entry so the worker holds no descriptor between envelopes; a
// long-running gateway must not keep one open fd per session ever served.
func (l *EventLogger) write(entry eventLogEntry) {
	path := filepath.Join(l.dir, entry.SessionID+".ndjson")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		l.logger.Warn("Failed to open event log file", "path", path, "error", err)
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			l.logger.Warn("Failed to close event log file", "path", path, "error", err)
		}
	}()

	line, err := json.Marshal(entry)
	if err != nil {
		l.logger.Warn("Failed to marshal event log entry", "error", err)
		return
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		l.logger.Warn("Failed to write event log entry", "error", err)
	}
}
