// Package httpx writes the storefront's JSON responses and error envelope.
package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/Lakyn80/naramkova-moda/internal/platform/requestctx"
)

const (
	codeLimit    = 80
	messageLimit = 512
	idLimit      = 80

	// retryAfterSeconds is advertised on retryable errors.
	retryAfterSeconds = 5
)

// Error is the envelope the storefront answers failures with:
//
//	{"error": code, "message": text, "status": n, "retryable": bool, "request_id": ..., "trace_id": ...}
//
// Messages may be Czech and are shown to the shopper as-is.
type Error struct {
	Code      string
	Message   string
	Status    int
	Retry     bool
	Details   map[string]any
	RequestID string
	TraceID   string
}

// NewError builds an envelope. A zero status means 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    clip(code, codeLimit),
		Message: clip(message, messageLimit),
		Status:  status,
	}
}

// Retryable marks the failure as transient: the client may resend the same
// request, and a Retry-After header is sent.
func (e Error) Retryable() Error {
	e.Retry = true
	return e
}

// WithDetails merges extra fields into the envelope, e.g. per-field
// validation problems. Keys of the envelope itself cannot be overridden.
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

// WriteError writes err, filling request and trace ids from ctx.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	if err.Status == 0 {
		err.Status = http.StatusInternalServerError
	}
	if err.RequestID == "" {
		err.RequestID = clip(middleware.GetReqID(ctx), idLimit)
	}
	if err.TraceID == "" {
		err.TraceID = clip(requestctx.TraceID(ctx), idLimit)
	}

	payload := make(map[string]any, len(err.Details)+6)
	for k, v := range err.Details {
		payload[k] = v
	}
	payload["error"] = err.Code
	payload["message"] = err.Message
	payload["status"] = err.Status
	payload["retryable"] = err.Retry
	if err.RequestID != "" {
		payload["request_id"] = err.RequestID
	}
	if err.TraceID != "" {
		payload["trace_id"] = err.TraceID
	}

	if err.Retry {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	WriteJSON(w, err.Status, payload)
}

// WriteJSON encodes payload with the given status. Cart and checkout state is
// per session, so responses are never cacheable.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// clip folds line breaks, drops other control runes, and keeps at most limit
// runes so multi-byte Czech letters are never split.
func clip(value string, limit int) string {
	value = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, value)
	value = strings.TrimSpace(value)
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	return strings.TrimSpace(string([]rune(value)[:limit]))
}
