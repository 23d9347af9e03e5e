// Package protocol defines the wire contract between the AI agent gateway
// and its clients: the outbound event Envelope stream and the single inbound
// analysis Request.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EnvelopeType identifies the kind of message carried by an Envelope.
// The set is closed; anything else is a protocol error on receipt.
type EnvelopeType string

const (
	// TypeStarted acknowledges that the workflow run has begun.
	TypeStarted EnvelopeType = "started"
	// TypeEvent carries one opaque workflow event.
	TypeEvent EnvelopeType = "event"
	// TypeCompleted carries the final Markdown result and ends the stream.
	TypeCompleted EnvelopeType = "completed"
	// TypeError carries a failure message and ends the stream.
	TypeError EnvelopeType = "error"
)

// ErrUnknownType is returned when an inbound envelope carries a type outside
// the closed set. Callers must reject the session rather than guess.
var ErrUnknownType = errors.New("unknown envelope type")

// Envelope is the unit of outbound communication for one session.
//
// The canonical payload key on the wire is "payload". Older producers spread
// the payload across per-type keys ("message", "event", "output", and
// "error" for error envelopes); Parse accepts those as deprecated input and
// normalizes them, so only the canonical form exists past this package.
type Envelope struct {
	Type      EnvelopeType `json:"type"`
	Payload   string       `json:"payload"`
	Timestamp string       `json:"timestamp,omitempty"`
}

// NewEnvelope builds an Envelope stamped with the current UTC time. The
// timestamp is always assigned here, server-side; workflow-produced times are
// not trusted to be monotonic or well formed.
func NewEnvelope(t EnvelopeType, payload string) Envelope {
	return Envelope{
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// Terminal reports whether the envelope ends the session's event stream.
func (e Envelope) Terminal() bool {
	return e.Type == TypeCompleted || e.Type == TypeError
}

// Encode serializes the envelope in its canonical wire form.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// rawEnvelope mirrors every payload spelling ever observed on the wire.
// Pointers distinguish "absent" from "present but empty".
type rawEnvelope struct {
	Type      string  `json:"type"`
	Payload   *string `json:"payload"`
	Message   *string `json:"message"`
	Event     *string `json:"event"`
	Output    *string `json:"output"`
	Error     *string `json:"error"`
	Timestamp string  `json:"timestamp"`
}

// legacyPayloadKeys lists, per envelope type, the deprecated keys a payload
// may arrive under, in precedence order after the canonical "payload" key.
var legacyPayloadKeys = map[EnvelopeType][]string{
	TypeStarted:   {"message"},
	TypeEvent:     {"event", "message"},
	TypeCompleted: {"output", "message"},
	TypeError:     {"message", "error"},
}

// ParseEnvelope decodes an inbound envelope and normalizes legacy payload
// keys into the canonical field. An unrecognized type yields ErrUnknownType.
func ParseEnvelope(data []byte) (Envelope, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}

	t := EnvelopeType(raw.Type)
	switch t {
	case TypeStarted, TypeEvent, TypeCompleted, TypeError:
	default:
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownType, raw.Type)
	}

	payload := ""
	if raw.Payload != nil {
		payload = *raw.Payload
	} else {
		for _, key := range legacyPayloadKeys[t] {
			if v := raw.legacyValue(key); v != nil {
				payload = *v
				break
			}
		}
	}

	return Envelope{Type: t, Payload: payload, Timestamp: raw.Timestamp}, nil
}

func (r *rawEnvelope) legacyValue(key string) *string {
	switch key {
	case "message":
		return r.Message
	case "event":
		return r.Event
	case "output":
		return r.Output
	case "error":
		return r.Error
	}
	return nil
}
