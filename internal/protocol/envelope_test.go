package protocol

import (
	"errors"
	"testing"
	"time"
)

func TestParseEnvelopeCanonicalPayload(t *testing.T) {
	t.Parallel()

	env, err := ParseEnvelope([]byte(`{"type":"event","payload":"checking stock levels","timestamp":"2025-01-02T03:04:05Z"}`))
	if err != nil {
		t.Fatalf("ParseEnvelope failed: %v", err)
	}
	if env.Type != TypeEvent {
		t.Errorf("Expected type event, got %q", env.Type)
	}
	if env.Payload != "checking stock levels" {
		t.Errorf("Unexpected payload: %q", env.Payload)
	}
	if env.Timestamp != "2025-01-02T03:04:05Z" {
		t.Errorf("Unexpected timestamp: %q", env.Timestamp)
	}
}

func TestParseEnvelopeLegacyKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    EnvelopeType
		payload string
	}{
		{"started under message", `{"type":"started","message":"AI Agent workflow initiated..."}`, TypeStarted, "AI Agent workflow initiated..."},
		{"event under event", `{"type":"event","event":"querying department budget"}`, TypeEvent, "querying department budget"},
		{"completed under output", `{"type":"completed","output":"# Restocking Plan"}`, TypeCompleted, "# Restocking Plan"},
		{"error under message", `{"type":"error","message":"Database connection lost"}`, TypeError, "Database connection lost"},
		{"error under error", `{"type":"error","error":"Database connection lost"}`, TypeError, "Database connection lost"},
		{"canonical wins over legacy", `{"type":"error","payload":"canonical","message":"legacy"}`, TypeError, "canonical"},
		{"message preferred over error key", `{"type":"error","message":"from message","error":"from error"}`, TypeError, "from message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := ParseEnvelope([]byte(tt.raw))
			if err != nil {
				t.Fatalf("ParseEnvelope failed: %v", err)
			}
			if env.Type != tt.want {
				t.Errorf("Expected type %q, got %q", tt.want, env.Type)
			}
			if env.Payload != tt.payload {
				t.Errorf("Expected payload %q, got %q", tt.payload, env.Payload)
			}
		})
	}
}

func TestParseEnvelopeRejectsUnknownType(t *testing.T) {
	t.Parallel()

	_, err := ParseEnvelope([]byte(`{"type":"workflow_paused","payload":"x"}`))
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("Expected ErrUnknownType, got %v", err)
	}
}

func TestParseEnvelopeRejectsMalformedJSON(t *testing.T) {
	t.Parallel()

	if _, err := ParseEnvelope([]byte(`{"type":`)); err == nil {
		t.Fatal("Expected error for malformed JSON")
	}
}

func TestNewEnvelopeStampsUTCTimestamp(t *testing.T) {
	t.Parallel()

	env := NewEnvelope(TypeStarted, "hi")
	ts, err := time.Parse(time.RFC3339Nano, env.Timestamp)
	if err != nil {
		t.Fatalf("Timestamp not RFC3339: %v", err)
	}
	if time.Since(ts) > time.Minute {
		t.Errorf("Timestamp too far in the past: %v", ts)
	}
}

func TestTerminal(t *testing.T) {
	t.Parallel()

	if NewEnvelope(TypeEvent, "").Terminal() || NewEnvelope(TypeStarted, "").Terminal() {
		t.Error("started/event must not be terminal")
	}
	if !NewEnvelope(TypeCompleted, "").Terminal() || !NewEnvelope(TypeError, "").Terminal() {
		t.Error("completed/error must be terminal")
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	t.Parallel()

	env := NewEnvelope(TypeCompleted, "## Summary")
	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := ParseEnvelope(data)
	if err != nil {
		t.Fatalf("ParseEnvelope failed: %v", err)
	}
	if got != env {
		t.Errorf("Round trip mismatch: %+v != %+v", got, env)
	}
}
