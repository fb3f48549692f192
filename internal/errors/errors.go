// Package errors maps application errors onto the HTTP surface's stable
// JSON error envelope.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	gferrors "github.com/fulmenhq/gofulmen/errors"

	"github.com/webhaul/webhaul/pkg/jobqueue"
)

// Stable error codes used in HTTP responses.
const (
	CodeInvalidInput     = "INVALID_INPUT"
	CodeNoSuchJob        = "NO_SUCH_JOB"
	CodeNotAwaitingInput = "NOT_AWAITING_INPUT"
	CodeAlreadyAwaiting  = "ALREADY_AWAITING"
	CodeAlreadyTerminal  = "ALREADY_TERMINAL"
	CodeRateLimited      = "RATE_LIMITED"
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeInternal         = "INTERNAL_ERROR"
)

// HTTPErrorResponse is the JSON wire shape for every error response.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

// HTTPError is the inner error object.
type HTTPError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Classify maps err to an error code and HTTP status.
func Classify(err error) (code string, status int) {
	switch {
	case stderrors.Is(err, jobqueue.ErrInvalidInput):
		return CodeInvalidInput, http.StatusBadRequest
	case stderrors.Is(err, jobqueue.ErrNoSuchJob):
		return CodeNoSuchJob, http.StatusNotFound
	case stderrors.Is(err, jobqueue.ErrNotAwaitingInput):
		return CodeNotAwaitingInput, http.StatusConflict
	case stderrors.Is(err, jobqueue.ErrAlreadyAwaiting):
		return CodeAlreadyAwaiting, http.StatusConflict
	default:
		return CodeInternal, http.StatusInternalServerError
	}
}

// NewEnvelope builds an error envelope carrying the code, message, the
// request id as the correlation id, and optional detail context.
func NewEnvelope(code, message, reqID string, details map[string]any) *gferrors.ErrorEnvelope {
	env := gferrors.NewErrorEnvelope(code, message)
	if reqID != "" {
		env = env.WithCorrelationID(reqID)
	}
	if len(details) > 0 {
		if enriched, err := env.WithContext(details); err == nil {
			env = enriched
		}
	}
	return env
}

// WriteEnvelope serializes env onto the wire shape with the given status.
func WriteEnvelope(w http.ResponseWriter, env *gferrors.ErrorEnvelope, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{
		Error: HTTPError{
			Code:      env.Code,
			Message:   env.Message,
			RequestID: env.CorrelationID,
			Details:   env.Context,
		},
	})
}

// RespondWithError writes the standard envelope for err, classifying it to
// a code and status. The request id is taken from the X-Request-ID header
// when present.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	code, status := Classify(err)
	msg := "internal error"
	if status != http.StatusInternalServerError && err != nil {
		msg = err.Error()
	}
	WriteEnvelope(w, NewEnvelope(code, msg, requestID(r), nil), status)
}

// WriteError writes an explicit error envelope.
func WriteError(w http.ResponseWriter, reqID, code, message string, status int, details map[string]any) {
	WriteEnvelope(w, NewEnvelope(code, message, reqID, details), status)
}

func requestID(r *http.Request) string {
	if r == nil {
		return ""
	}
	return r.Header.Get("X-Request-ID")
}
