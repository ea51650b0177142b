package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/souvenir/internal/model"
)

func TestWriteErrorResponse(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		apiErr    *model.APIError
		requestID string
	}{
		{"image too large", http.StatusRequestEntityTooLarge, model.NewImageTooLargeError(5 << 20), "req-1"},
		{"unknown resource", http.StatusNotFound, model.NewUnknownResourceError("widgets"), ""},
		{"prediction timeout", http.StatusGatewayTimeout, model.NewPredictionTimeoutError(), "req-2"},
		{"upstream failed", http.StatusBadGateway, model.NewUpstreamFailedError(), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			if tt.requestID != "" {
				w.Header().Set(RequestIDHeader, tt.requestID)
			}

			WriteErrorResponse(w, tt.status, tt.apiErr)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			if cc := w.Header().Get("Cache-Control"); cc != "no-store" {
				t.Errorf("Cache-Control = %q, want no-store", cc)
			}

			var body ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			want := ErrorResponseBody{
				Code:      tt.apiErr.Code,
				Message:   tt.apiErr.Message,
				Category:  tt.apiErr.Category,
				Action:    tt.apiErr.Action,
				RequestID: tt.requestID,
			}
			if body != want {
				t.Errorf("body = %+v, want %+v", body, want)
			}
		})
	}
}

func TestWriteErrorResponse_OmitsEmptyRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())

	var raw map[string]any
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if _, ok := raw["request_id"]; ok {
		t.Error("request_id should be omitted when no id is set")
	}
	for _, field := range []string{"code", "message", "category", "action"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("missing field: %s", field)
		}
	}
}

func TestWriteInternalServerError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternalServerError(w)

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if w.Code != http.StatusInternalServerError || body.Code != "INTERNAL_ERROR" || body.Category != "system" {
		t.Errorf("got %d %+v", w.Code, body)
	}
}
