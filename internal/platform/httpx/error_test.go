package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"unicode/utf8"

	"github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := requestctx.WithTrace(context.Background(), requestctx.TraceInfo{TraceID: "trace-1"})
	rec := httptest.NewRecorder()

	err := NewError("invalid_request", "zip <b>606</b> rejected\n", http.StatusBadRequest).
		WithRequestID("req-1").
		WithFields(FieldError{Field: "destination.zipCode", Message: "required"}).
		WithDetails(map[string]any{"status": 999, "hint": "check address"})
	WriteError(ctx, rec, err)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["message"] != "zip 606 rejected" {
		t.Fatalf("expected sanitised message, got %q", body["message"])
	}
	if body["request_id"] != "req-1" || body["trace_id"] != "trace-1" {
		t.Fatalf("missing identifiers: %v", body)
	}
	if body["status"] != float64(http.StatusBadRequest) {
		t.Fatalf("details must not override status, got %v", body["status"])
	}
	if body["hint"] != "check address" {
		t.Fatalf("expected detail passthrough, got %v", body["hint"])
	}
	fields, ok := body["fields"].([]any)
	if !ok || len(fields) != 1 {
		t.Fatalf("expected one field error, got %v", body["fields"])
	}
}

func TestNewErrorDefaultsStatus(t *testing.T) {
	if got := NewError("x", "y", 0).Status; got != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", got)
	}
}

func TestCleanTruncates(t *testing.T) {
	if got := Clean("<script>alert(1)</script>abcdef", 3); got != "abc" {
		t.Fatalf("unexpected clean result %q", got)
	}
}

func TestCleanTruncatesOnRuneBoundaries(t *testing.T) {
	got := Clean("São Paulo", 3)
	if got != "São" {
		t.Fatalf("unexpected clean result %q", got)
	}
	if got := Clean("東京都港区", 2); got != "東京" || !utf8.ValidString(got) {
		t.Fatalf("expected two whole runes, got %q", got)
	}
	if got := Clean("Zürich", 6); got != "Zürich" {
		t.Fatalf("expected untouched value, got %q", got)
	}
}

func TestCleanKeepsPunctuation(t *testing.T) {
	if got := Clean("O'Hare & Sons", 0); got != "O'Hare & Sons" {
		t.Fatalf("unexpected clean result %q", got)
	}
}
