package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webhaul/webhaul/pkg/jobqueue"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   string
		wantStatus int
	}{
		{"invalid input", jobqueue.ErrInvalidInput, CodeInvalidInput, http.StatusBadRequest},
		{"wrapped invalid input", fmt.Errorf("%w: target is required", jobqueue.ErrInvalidInput), CodeInvalidInput, http.StatusBadRequest},
		{"no such job", jobqueue.ErrNoSuchJob, CodeNoSuchJob, http.StatusNotFound},
		{"not awaiting input", jobqueue.ErrNotAwaitingInput, CodeNotAwaitingInput, http.StatusConflict},
		{"already awaiting", jobqueue.ErrAlreadyAwaiting, CodeAlreadyAwaiting, http.StatusConflict},
		{"unclassified", fmt.Errorf("disk on fire"), CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, status := Classify(tt.err)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}

func TestRespondWithError(t *testing.T) {
	t.Run("classified error carries its message", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("X-Request-ID", "req-1")
		rec := httptest.NewRecorder()

		RespondWithError(rec, req, fmt.Errorf("%w: job-9", jobqueue.ErrNoSuchJob))

		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body HTTPErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, CodeNoSuchJob, body.Error.Code)
		assert.Contains(t, body.Error.Message, "job-9")
		assert.Equal(t, "req-1", body.Error.RequestID)
	})

	t.Run("internal errors never leak their message", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		rec := httptest.NewRecorder()

		RespondWithError(rec, req, fmt.Errorf("pq: password authentication failed"))

		require.Equal(t, http.StatusInternalServerError, rec.Code)

		var body HTTPErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, CodeInternal, body.Error.Code)
		assert.NotContains(t, body.Error.Message, "password")
	})
}

func TestNewEnvelope(t *testing.T) {
	t.Run("correlation id and context carried onto the wire", func(t *testing.T) {
		env := NewEnvelope(CodeAlreadyAwaiting, "input wait already pending", "req-7",
			map[string]any{"job_id": "job-3"})

		rec := httptest.NewRecorder()
		WriteEnvelope(rec, env, http.StatusConflict)

		require.Equal(t, http.StatusConflict, rec.Code)

		var body HTTPErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, CodeAlreadyAwaiting, body.Error.Code)
		assert.Equal(t, "input wait already pending", body.Error.Message)
		assert.Equal(t, "req-7", body.Error.RequestID)
		assert.Equal(t, "job-3", body.Error.Details["job_id"])
	})

	t.Run("empty correlation id omitted", func(t *testing.T) {
		env := NewEnvelope(CodeInternal, "internal error", "", nil)

		rec := httptest.NewRecorder()
		WriteEnvelope(rec, env, http.StatusInternalServerError)

		var body HTTPErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Empty(t, body.Error.RequestID)
		assert.Nil(t, body.Error.Details)
	})
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, "req-2", CodeRateLimited, "slow down", http.StatusTooManyRequests,
		map[string]any{"client_id": "c1"})

	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var body HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, CodeRateLimited, body.Error.Code)
	assert.Equal(t, "slow down", body.Error.Message)
	assert.Equal(t, "req-2", body.Error.RequestID)
	assert.Equal(t, "c1", body.Error.Details["client_id"])
}
