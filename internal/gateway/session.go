package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gloveboxes/popupstore-agent-gateway/internal/domain"
	"github.com/gloveboxes/popupstore-agent-gateway/internal/protocol"
	"github.com/gloveboxes/popupstore-agent-gateway/internal/store"
	"github.com/gloveboxes/popupstore-agent-gateway/internal/workflow"
)

// startedPayload is the fixed acknowledgment sent once a request is accepted.
const startedPayload = "AI Agent workflow initiated..."

const (
	envelopeWriteTimeout = 10 * time.Second
	drainTimeout         = 5 * time.Second
	historyWriteTimeout  = 5 * time.Second
)

// errRunnerStalled marks a run that produced no forward progress within the
// configured window.
var errRunnerStalled = errors.New("workflow made no forward progress")

// SessionConfig bounds one session's lifecycle.
type SessionConfig struct {
	// RequestIdleTimeout is how long an accepted connection may sit without
	// sending its request before it is closed.
	RequestIdleTimeout time.Duration
	// RunnerTimeout is the maximum gap between runner updates before the run
	// is treated as failed.
	RunnerTimeout time.Duration
	// SendQueueSize bounds the outbound envelope queue. A full queue blocks
	// the drive loop, which in turn pauses the runner (backpressure).
	SendQueueSize int
}

// DefaultSessionConfig returns the default lifecycle bounds.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		RequestIdleTimeout: 30 * time.Second,
		RunnerTimeout:      2 * time.Minute,
		SendQueueSize:      64,
	}
}

// Session owns one transport connection from accept to close. It accepts
// exactly one request, drives the workflow runner, and forwards each produced
// event as an envelope in production order. Exactly one terminal envelope is
// ever sent, and nothing follows it.
type Session struct {
	id        string
	startedAt time.Time
	conn      *websocket.Conn
	runner    workflow.Runner
	repo      store.Repository // nil disables history
	metrics   *Metrics
	eventLog  *EventLogger
	logger    *slog.Logger
	cfg       SessionConfig

	ctx    context.Context
	cancel context.CancelFunc

	out        chan protocol.Envelope
	stopWriter chan struct{}
	writerDone chan struct{}
	stopOnce   sync.Once
	closeOnce  sync.Once

	mu           sync.Mutex
	state        domain.SessionState
	terminalSent bool
}

func newSession(id string, conn *websocket.Conn, runner workflow.Runner, repo store.Repository, metrics *Metrics, eventLog *EventLogger, logger *slog.Logger, cfg SessionConfig) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = DefaultSessionConfig().SendQueueSize
	}
	return &Session{
		id:         id,
		startedAt:  time.Now(),
		conn:       conn,
		runner:     runner,
		repo:       repo,
		metrics:    metrics,
		eventLog:   eventLog,
		logger:     logger.With("session_id", id),
		cfg:        cfg,
		out:        make(chan protocol.Envelope, cfg.SendQueueSize),
		stopWriter: make(chan struct{}),
		writerDone: make(chan struct{}),
		state:      domain.StateAwaitingRequest,
	}
}

// Close cancels any in-flight run and tears the session down. Safe to call
// multiple times and concurrently with run.
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.teardown(websocket.StatusNormalClosure, "session closed")
}

// State returns the session's current lifecycle state.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state domain.SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// run executes the full session lifecycle. It returns once the transport is
// closed and the runner, if started, has been cancelled.
func (s *Session) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.ctx = ctx
	s.cancel = cancel
	defer cancel()

	// teardown moves the state to closed, so the terminal state the metric
	// reports is captured here as it is decided.
	s.metrics.sessionStarted()
	endState := domain.StateClosed
	defer func() {
		s.metrics.sessionEnded(string(endState), s.startedAt)
	}()

	go s.writeLoop(ctx)

	// Await the single request. Clients that never send one are shed after
	// the idle window to protect against connection exhaustion.
	readCtx, readCancel := context.WithTimeout(ctx, s.cfg.RequestIdleTimeout)
	_, raw, err := s.conn.Read(readCtx)
	readCancel()
	if err != nil {
		s.logger.Info("Session closed before a request arrived", "error", err)
		s.setState(domain.StateClosed)
		s.teardown(websocket.StatusNormalClosure, "no request received")
		return
	}

	req, err := protocol.ParseRequest(raw)
	if err != nil {
		// Malformed request: one error envelope, no started, close.
		s.logger.Warn("Rejecting malformed request", "error", err)
		s.setState(domain.StateFailed)
		endState = domain.StateFailed
		s.sendTerminal(protocol.NewEnvelope(protocol.TypeError, fmt.Sprintf("invalid request: %v", err)))
		s.teardown(websocket.StatusNormalClosure, "invalid request")
		return
	}

	s.setState(domain.StateRunning)
	s.logger.Info("Workflow request accepted", "store_id", req.StoreID, "request_length", len(req.Text))
	s.recordStart(req)

	if err := s.send(protocol.NewEnvelope(protocol.TypeStarted, startedPayload)); err != nil {
		s.setState(domain.StateFailed)
		endState = domain.StateFailed
		s.teardown(websocket.StatusNormalClosure, "transport failed")
		return
	}

	// Any further inbound traffic is ignored; a read error is the client
	// disconnecting, which cancels the in-flight run.
	go s.rejectLoop(ctx, cancel)

	result, eventCount, driveErr := s.drive(ctx, req.RunnerInput())

	rec := &domain.SessionRecord{ID: s.id, Request: req.Text, StoreID: req.StoreID, EventCount: eventCount}
	switch {
	case driveErr == nil:
		s.setState(domain.StateCompleted)
		endState = domain.StateCompleted
		rec.State = domain.StateCompleted
		rec.Result = result
		s.sendTerminal(protocol.NewEnvelope(protocol.TypeCompleted, result))
		s.logger.Info("Workflow completed", "events", eventCount)
	case ctx.Err() != nil:
		// Client disconnect or transport failure: the transport is assumed
		// dead, so no envelope is attempted. The runner has been cancelled.
		s.setState(domain.StateFailed)
		endState = domain.StateFailed
		rec.State = domain.StateFailed
		rec.Error = "session cancelled: " + ctx.Err().Error()
		s.logger.Info("Workflow cancelled", "events", eventCount, "error", driveErr)
	default:
		s.setState(domain.StateFailed)
		endState = domain.StateFailed
		rec.State = domain.StateFailed
		rec.Error = driveErr.Error()
		s.sendTerminal(protocol.NewEnvelope(protocol.TypeError, driveErr.Error()))
		s.logger.Warn("Workflow failed", "events", eventCount, "error", driveErr)
	}
	s.recordFinish(rec)

	s.teardown(websocket.StatusNormalClosure, "session ended")
}

// drive consumes the runner's lazy sequence, forwarding each event in
// production order. It returns the final result on success, or the first
// runner, transport, or stall error.
func (s *Session) drive(ctx context.Context, input string) (string, int, error) {
	type item struct {
		update workflow.Update
		err    error
	}
	updates := make(chan item)

	// The runner gets its own context so a stalled run can be cancelled
	// while the session stays alive to report the failure.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	// The pump is the only goroutine touching the runner's sequence, so
	// channel FIFO order is exactly production order.
	go func() {
		defer close(updates)
		for u, err := range s.runner.Run(runCtx, input) {
			select {
			case updates <- item{u, err}:
			case <-runCtx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	stall := time.NewTimer(s.cfg.RunnerTimeout)
	defer stall.Stop()

	var result string
	eventCount := 0
	for {
		select {
		case <-ctx.Done():
			return "", eventCount, ctx.Err()
		case <-stall.C:
			cancelRun()
			return "", eventCount, fmt.Errorf("%w within %s", errRunnerStalled, s.cfg.RunnerTimeout)
		case it, ok := <-updates:
			if !ok {
				return result, eventCount, nil
			}
			if it.err != nil {
				return "", eventCount, it.err
			}
			if !stall.Stop() {
				select {
				case <-stall.C:
				default:
				}
			}
			stall.Reset(s.cfg.RunnerTimeout)

			if it.update.Final {
				result = it.update.Result
				continue
			}
			if err := s.send(protocol.NewEnvelope(protocol.TypeEvent, it.update.Event)); err != nil {
				return "", eventCount, err
			}
			eventCount++
		}
	}
}

// send enqueues one envelope for the writer. It blocks when the queue is
// full, which is what propagates backpressure to the runner.
func (s *Session) send(env protocol.Envelope) error {
	select {
	case s.out <- env:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

// sendTerminal enqueues the session's single terminal envelope. Later calls
// are no-ops, so completion racing a disconnect can never produce two.
func (s *Session) sendTerminal(env protocol.Envelope) {
	s.mu.Lock()
	if s.terminalSent {
		s.mu.Unlock()
		return
	}
	s.terminalSent = true
	s.mu.Unlock()

	if err := s.send(env); err != nil {
		s.logger.Debug("Terminal envelope dropped, transport gone", "type", env.Type)
	}
}

// teardown flushes queued envelopes and closes the transport. Idempotent and
// safe to call concurrently with drive.
func (s *Session) teardown(status websocket.StatusCode, reason string) {
	s.stopOnce.Do(func() {
		close(s.stopWriter)
	})

	select {
	case <-s.writerDone:
	case <-time.After(drainTimeout):
		s.logger.Warn("Timed out draining envelope queue")
	}

	s.closeOnce.Do(func() {
		if err := s.conn.Close(status, reason); err != nil {
			s.logger.Debug("Transport close failed", "error", err)
		}
		s.setState(domain.StateClosed)
		s.logger.Info("Session closed")
	})
}

// writeLoop is the single writer for the transport. A write failure cancels
// the session, which aborts the runner; no further writes are attempted.
func (s *Session) writeLoop(ctx context.Context) {
	defer close(s.writerDone)
	for {
		select {
		case env := <-s.out:
			if !s.writeEnvelope(ctx, env) {
				return
			}
		case <-s.stopWriter:
			// Drain whatever the drive loop enqueued before stopping.
			for {
				select {
				case env := <-s.out:
					if !s.writeEnvelope(ctx, env) {
						return
					}
				default:
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) writeEnvelope(ctx context.Context, env protocol.Envelope) bool {
	data, err := env.Encode()
	if err != nil {
		s.logger.Error("Failed to encode envelope", "type", env.Type, "error", err)
		return true
	}

	writeCtx, cancel := context.WithTimeout(ctx, envelopeWriteTimeout)
	err = s.conn.Write(writeCtx, websocket.MessageText, data)
	cancel()
	if err != nil {
		s.logger.Debug("Transport write failed, cancelling session", "error", err)
		s.cancel()
		return false
	}

	s.metrics.envelopeSent(string(env.Type))
	s.eventLog.Log(s.id, env)
	return true
}

// rejectLoop discards inbound messages after the session is running. The
// single-request invariant means a second request must not restart the run;
// it is logged and dropped. A read error is the client going away.
func (s *Session) rejectLoop(ctx context.Context, cancel context.CancelFunc) {
	for {
		_, raw, err := s.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				s.logger.Debug("Client closed connection")
			} else if ctx.Err() == nil {
				s.logger.Debug("Transport read failed", "error", err)
			}
			cancel()
			return
		}
		s.logger.Warn("Ignoring message received outside awaiting_request state", "bytes", len(raw))
	}
}

func (s *Session) recordStart(req protocol.Request) {
	if s.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
	defer cancel()
	rec := &domain.SessionRecord{
		ID:        s.id,
		State:     domain.StateRunning,
		Request:   req.Text,
		StoreID:   req.StoreID,
		StartedAt: s.startedAt,
	}
	if err := s.repo.CreateSession(ctx, rec); err != nil {
		s.logger.Warn("Failed to record session start", "error", err)
	}
}

func (s *Session) recordFinish(rec *domain.SessionRecord) {
	if s.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
	defer cancel()
	now := time.Now()
	rec.FinishedAt = &now
	if err := s.repo.FinishSession(ctx, rec); err != nil {
		s.logger.Warn("Failed to record session finish", "error", err)
	}
}
