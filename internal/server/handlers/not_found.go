package handlers

import (
	"fmt"
	"net/http"

	apperrors "github.com/webhaul/webhaul/internal/errors"
	"github.com/webhaul/webhaul/internal/server/middleware"
)

// NotFound is the router fallback for unknown paths.
func NotFound(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteError(w, middleware.GetRequestID(r.Context()),
		apperrors.CodeNotFound,
		fmt.Sprintf("no route for %s", r.URL.Path),
		http.StatusNotFound, nil)
}

// MethodNotAllowed is the router fallback for known paths with the wrong
// method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteError(w, middleware.GetRequestID(r.Context()),
		apperrors.CodeMethodNotAllowed,
		fmt.Sprintf("method %s not allowed for %s", r.Method, r.URL.Path),
		http.StatusMethodNotAllowed, nil)
}
