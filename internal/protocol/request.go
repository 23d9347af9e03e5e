package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrEmptyRequest is returned when an inbound request carries no text under
// any accepted key.
var ErrEmptyRequest = errors.New("request text is empty")

// Request is the single inbound message a session accepts.
//
// The canonical field is "request". The original client also sent the text
// under "message"; that spelling is accepted as deprecated input. An optional
// "store_id" narrows the analysis to one store.
type Request struct {
	Text    string
	StoreID string
}

// ParseRequest decodes and normalizes an inbound request message.
func ParseRequest(data []byte) (Request, error) {
	var raw struct {
		Request string `json:"request"`
		Message string `json:"message"`
		StoreID any    `json:"store_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}

	text := strings.TrimSpace(raw.Request)
	if text == "" {
		text = strings.TrimSpace(raw.Message)
	}
	if text == "" {
		return Request{}, ErrEmptyRequest
	}

	return Request{Text: text, StoreID: storeIDString(raw.StoreID)}, nil
}

// RunnerInput returns the text handed to the workflow runner. A store ID, if
// present, is appended the way the original producer did.
func (r Request) RunnerInput() string {
	if r.StoreID == "" {
		return r.Text
	}
	return r.Text + "\n\nStore ID: " + r.StoreID
}

// Encode serializes the request in its canonical wire form.
func (r Request) Encode() ([]byte, error) {
	msg := map[string]any{"request": r.Text}
	if r.StoreID != "" {
		msg["store_id"] = r.StoreID
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return data, nil
}

// storeIDString renders a store_id that may arrive as a JSON string or
// number; integral numbers round-trip without a decimal point.
func storeIDString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(id)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", id)
	}
}
