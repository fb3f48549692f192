package middleware

import (
	"fmt"
	"net/http"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	apperrors "github.com/webhaul/webhaul/internal/errors"
	"github.com/webhaul/webhaul/internal/observability"
)

// ErrorResponse is the JSON envelope written for errors caught by this
// middleware. It is the same wire shape the handlers use.
type ErrorResponse = apperrors.HTTPErrorResponse

// Recovery converts handler panics into a 500 response with the standard
// error envelope instead of tearing down the connection.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				reqID := GetRequestID(r.Context())
				observability.ServerLogger.Error("handler panicked",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
					zap.String("request_id", reqID))
				envelope := gferrors.NewErrorEnvelope(apperrors.CodeInternal,
					fmt.Sprintf("panic: %v", rec))
				if reqID != "" {
					envelope = envelope.WithCorrelationID(reqID)
				}
				writeErrorResponse(w, envelope, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ErrorHandler is an alias for Recovery kept for callers that think of this
// as the error boundary rather than a panic net.
func ErrorHandler(next http.Handler) http.Handler {
	return Recovery(next)
}

func writeErrorResponse(w http.ResponseWriter, envelope *gferrors.ErrorEnvelope, statusCode int) {
	apperrors.WriteEnvelope(w, envelope, statusCode)
}
