package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	apperrors "github.com/webhaul/webhaul/internal/errors"
	"github.com/webhaul/webhaul/internal/server/middleware"
	"github.com/webhaul/webhaul/pkg/jobqueue"
)

// JobService is the scheduler surface the HTTP handlers need.
type JobService interface {
	Admit(target, clientID string, config map[string]any) (string, error)
	Cancel(jobID string) bool
	SubmitHumanInput(jobID, value string) error
	GetStatus(jobID string) (jobqueue.JobRecord, error)
	ListActive() []jobqueue.JobRecord
}

// ScrapeHandler serves the job lifecycle endpoints. When RatePerSecond is
// positive, admissions are rate limited per client id.
type ScrapeHandler struct {
	svc JobService

	limitMu  sync.Mutex
	limiters map[string]*rate.Limiter
	perSec   rate.Limit
	burst    int
}

// NewScrapeHandler builds the handler. ratePerSecond <= 0 disables
// admission rate limiting.
func NewScrapeHandler(svc JobService, ratePerSecond float64, burst int) *ScrapeHandler {
	h := &ScrapeHandler{
		svc:      svc,
		limiters: make(map[string]*rate.Limiter),
		perSec:   rate.Limit(ratePerSecond),
		burst:    burst,
	}
	if h.burst < 1 {
		h.burst = 1
	}
	return h
}

func (h *ScrapeHandler) allowAdmit(clientID string) bool {
	if h.perSec <= 0 {
		return true
	}
	h.limitMu.Lock()
	lim, ok := h.limiters[clientID]
	if !ok {
		lim = rate.NewLimiter(h.perSec, h.burst)
		h.limiters[clientID] = lim
	}
	h.limitMu.Unlock()
	return lim.Allow()
}

// startRequest is the body of POST /api/v1/scrape/start. "url" is accepted
// as an alias for "target".
type startRequest struct {
	Target   string         `json:"target"`
	URL      string         `json:"url"`
	ClientID string         `json:"client_id"`
	Config   map[string]any `json:"config"`
}

type startResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// Start admits a new job.
func (h *ScrapeHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, middleware.GetRequestID(r.Context()),
			apperrors.CodeInvalidInput, "invalid JSON body",
			http.StatusBadRequest, nil)
		return
	}
	target := req.Target
	if target == "" {
		target = req.URL
	}
	if !h.allowAdmit(req.ClientID) {
		apperrors.WriteError(w, middleware.GetRequestID(r.Context()),
			apperrors.CodeRateLimited,
			fmt.Sprintf("client %q exceeded admission rate", req.ClientID),
			http.StatusTooManyRequests, nil)
		return
	}
	jobID, err := h.svc.Admit(target, req.ClientID, req.Config)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(startResponse{
		JobID:  jobID,
		Status: string(jobqueue.StatusQueued),
	})
}

// Status returns the full record of one job.
func (h *ScrapeHandler) Status(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	rec, err := h.svc.GetStatus(jobID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rec)
}

// humanInputRequest is the body of POST /api/v1/scrape/human-input.
// "user_input" is accepted as an alias for "value".
type humanInputRequest struct {
	JobID     string `json:"job_id"`
	Value     string `json:"value"`
	UserInput string `json:"user_input"`
}

// HumanInput forwards a human-supplied value to a suspended job.
func (h *ScrapeHandler) HumanInput(w http.ResponseWriter, r *http.Request) {
	var req humanInputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, middleware.GetRequestID(r.Context()),
			apperrors.CodeInvalidInput, "invalid JSON body",
			http.StatusBadRequest, nil)
		return
	}
	value := req.Value
	if value == "" {
		value = req.UserInput
	}
	if req.JobID == "" {
		apperrors.WriteError(w, middleware.GetRequestID(r.Context()),
			apperrors.CodeInvalidInput, "job_id is required",
			http.StatusBadRequest, nil)
		return
	}
	if err := h.svc.SubmitHumanInput(req.JobID, value); err != nil {
		respondWithError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"job_id": req.JobID,
		"status": "input_received",
	})
}

// Stop requests cancellation of a job. Unknown jobs get 404; jobs already
// in a terminal state get 409.
func (h *ScrapeHandler) Stop(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if h.svc.Cancel(jobID) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"job_id": jobID,
			"status": "cancellation_requested",
		})
		return
	}
	rec, err := h.svc.GetStatus(jobID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	apperrors.WriteError(w, middleware.GetRequestID(r.Context()),
		apperrors.CodeAlreadyTerminal,
		fmt.Sprintf("job %s already %s", jobID, rec.Status),
		http.StatusConflict, nil)
}

type listResponse struct {
	Jobs  []jobqueue.JobRecord `json:"jobs"`
	Count int                  `json:"count"`
}

// List returns all non-terminal jobs in admission order.
func (h *ScrapeHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.svc.ListActive()
	if jobs == nil {
		jobs = []jobqueue.JobRecord{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(listResponse{Jobs: jobs, Count: len(jobs)})
}
