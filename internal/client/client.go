package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/coder/websocket"
	"github.com/gloveboxes/popupstore-agent-gateway/internal/protocol"
)

// maxEnvelopeBytes bounds one inbound frame. Completed payloads carry whole
// markdown reports, so the default 32 KiB read limit is too small.
const maxEnvelopeBytes = 4 << 20

// Outcome is the final state of one workflow run.
type Outcome struct {
	// Success is true when the run ended with a completed envelope.
	Success bool
	// Result holds the completed payload, usually a markdown report.
	Result string
	// ErrMessage holds the error payload when the run failed server-side.
	ErrMessage string
	// Disconnected is true when the connection dropped before any terminal
	// envelope arrived. The run's real outcome is unknown.
	Disconnected bool
}

// Client runs workflow requests against a gateway.
type Client struct {
	baseURL string
}

// New creates a client for the gateway at baseURL, e.g. "ws://localhost:8000".
func New(baseURL string) *Client {
	return &Client{baseURL: baseURL}
}

// Run opens a connection, sends req, and consumes envelopes until a terminal
// one arrives or the connection drops. onProgress, if non-nil, is invoked
// after each envelope is folded into the classifier.
//
// An envelope with an unknown type aborts the run: the connection is closed
// with a protocol error status and the wrapped parse error is returned.
func (c *Client) Run(ctx context.Context, req protocol.Request, onProgress func([]Step)) (Outcome, error) {
	endpoint, err := url.JoinPath(c.baseURL, "/ws/ai-agent/inventory")
	if err != nil {
		return Outcome{}, fmt.Errorf("invalid gateway URL: %w", err)
	}

	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to connect to gateway: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	conn.SetReadLimit(maxEnvelopeBytes)

	body, err := req.Encode()
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to encode request: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, body); err != nil {
		return Outcome{}, fmt.Errorf("failed to send request: %w", err)
	}

	classifier := NewClassifier()
	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{Disconnected: true}, ctx.Err()
			}
			// The stream ended without a terminal envelope. Whether the run
			// completed server-side is unknowable from here.
			return Outcome{Disconnected: true}, nil
		}

		env, perr := protocol.ParseEnvelope(raw)
		if perr != nil {
			if errors.Is(perr, protocol.ErrUnknownType) {
				conn.Close(websocket.StatusProtocolError, "unknown envelope type")
				return Outcome{}, fmt.Errorf("gateway sent unrecognized envelope: %w", perr)
			}
			return Outcome{}, fmt.Errorf("malformed envelope: %w", perr)
		}

		classifier.Apply(env)
		if onProgress != nil {
			onProgress(classifier.Steps())
		}

		switch env.Type {
		case protocol.TypeCompleted:
			return Outcome{Success: true, Result: env.Payload}, nil
		case protocol.TypeError:
			return Outcome{ErrMessage: env.Payload}, nil
		}
	}
}
