package protocol

import (
	"errors"
	"testing"
)

func TestParseRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		text    string
		storeID string
		wantErr error
	}{
		{"canonical field", `{"request":"Analyze inventory"}`, "Analyze inventory", "", nil},
		{"legacy message field", `{"message":"Analyze inventory"}`, "Analyze inventory", "", nil},
		{"canonical wins", `{"request":"from request","message":"from message"}`, "from request", "", nil},
		{"numeric store id", `{"request":"check stock","store_id":42}`, "check stock", "42", nil},
		{"string store id", `{"request":"check stock","store_id":"seattle-01"}`, "check stock", "seattle-01", nil},
		{"missing field", `{"foo":"bar"}`, "", "", ErrEmptyRequest},
		{"whitespace only", `{"request":"   "}`, "", "", ErrEmptyRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequest([]byte(tt.raw))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRequest failed: %v", err)
			}
			if req.Text != tt.text {
				t.Errorf("Expected text %q, got %q", tt.text, req.Text)
			}
			if req.StoreID != tt.storeID {
				t.Errorf("Expected store ID %q, got %q", tt.storeID, req.StoreID)
			}
		})
	}
}

func TestParseRequestMalformedJSON(t *testing.T) {
	t.Parallel()

	if _, err := ParseRequest([]byte(`not json`)); err == nil {
		t.Fatal("Expected error for malformed JSON")
	}
}

func TestRunnerInputAppendsStoreID(t *testing.T) {
	t.Parallel()

	req := Request{Text: "Analyze inventory", StoreID: "7"}
	want := "Analyze inventory\n\nStore ID: 7"
	if got := req.RunnerInput(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}

	req.StoreID = ""
	if got := req.RunnerInput(); got != "Analyze inventory" {
		t.Errorf("Expected bare text, got %q", got)
	}
}
