package errors

import (
	"encoding/json"
	stdErrors "errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPErrorAdapter_StatusCodeFor(t *testing.T) {
	adapter := NewHTTPErrorAdapter(slog.Default())

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil error", nil, http.StatusOK},
		{"validation", ValidationError("invalid input").Build(), http.StatusBadRequest},
		{"auth", AuthError("unauthorized").Build(), http.StatusUnauthorized},
		{"content", ContentError("cms failed").Build(), http.StatusBadGateway},
		{"page", PageError("route failed").Build(), http.StatusUnprocessableEntity},
		{"daemon", DaemonError("busy").Build(), http.StatusServiceUnavailable},
		{"unclassified", stdErrors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := adapter.StatusCodeFor(tt.err); got != tt.expected {
				t.Errorf("expected status %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestHTTPErrorAdapter_WriteErrorResponse(t *testing.T) {
	adapter := NewHTTPErrorAdapter(slog.Default())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/rebuild", http.NoBody)

	err := NetworkError("content source unavailable").WithContext("kind", "service").Build()
	adapter.WriteErrorResponse(rec, req, err)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	var payload HTTPErrorResponse
	if jerr := json.Unmarshal(rec.Body.Bytes(), &payload); jerr != nil {
		t.Fatalf("decode response: %v", jerr)
	}
	if payload.Code != "network" || !payload.Retryable {
		t.Errorf("unexpected payload: %+v", payload)
	}
	if payload.Details["kind"] != "service" {
		t.Errorf("expected kind detail, got %+v", payload.Details)
	}
}
