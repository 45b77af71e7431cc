// Package httpx holds the JSON response helpers shared by every HTTP handler.
package httpx

import (
	"context"
	"encoding/json"
	"html"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/microcosm-cc/bluemonday"

	"github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/platform/requestctx"
)

var textPolicy = bluemonday.StrictPolicy()

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the JSON error envelope returned by the API.
type Error struct {
	Code      string
	Message   string
	Status    int
	RequestID string
	Fields    []FieldError
	Details   map[string]any
}

// NewError builds an Error. Messages may echo caller input, so markup is stripped.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    Clean(code, 80),
		Message: Clean(message, 512),
		Status:  status,
	}
}

func (e Error) WithRequestID(id string) Error {
	e.RequestID = Clean(id, 80)
	return e
}

// WithFields attaches per-field validation failures.
func (e Error) WithFields(fields ...FieldError) Error {
	for _, f := range fields {
		e.Fields = append(e.Fields, FieldError{Field: Clean(f.Field, 120), Message: Clean(f.Message, 256)})
	}
	return e
}

func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	e.Details = merged
	return e
}

// WriteError writes err as JSON, filling request and trace identifiers from ctx.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	requestID := err.RequestID
	if requestID == "" {
		requestID = Clean(middleware.GetReqID(ctx), 80)
	}

	payload := map[string]any{
		"error":   err.Code,
		"message": err.Message,
		"status":  status,
	}
	if requestID != "" {
		payload["request_id"] = requestID
	}
	if traceID := requestctx.TraceID(ctx); traceID != "" {
		payload["trace_id"] = traceID
	}
	if len(err.Fields) > 0 {
		payload["fields"] = err.Fields
	}
	for k, v := range err.Details {
		if _, reserved := payload[k]; !reserved {
			payload[k] = v
		}
	}
	WriteJSON(w, status, payload)
}

// WriteJSON encodes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Clean strips markup and line breaks from caller-supplied text and caps it at
// limit runes.
func Clean(value string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	value = html.UnescapeString(textPolicy.Sanitize(value))
	value = strings.NewReplacer("\n", " ", "\r", " ", "\t", " ").Replace(value)
	value = strings.TrimSpace(value)
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	n := 0
	for i := range value {
		if n == limit {
			return value[:i]
		}
		n++
	}
	return value
}
