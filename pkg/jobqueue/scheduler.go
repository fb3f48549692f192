// Package jobqueue implements the in-process job queue for long-running
// automation jobs: FIFO admission, a bounded-concurrency dispatch loop, the
// job lifecycle state machine, and the human-in-the-loop rendezvous that
// lets a running task suspend until a human responds.
//
// The scheduler is a single-process, in-memory component intended for one
// worker instance. Cancellation is cooperative: marking a job cancelled is
// immediate and observable via GetStatus, but the task terminates at its
// next suspension point or cooperative check, not instantly.
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/webhaul/webhaul/pkg/notify"
	"github.com/webhaul/webhaul/pkg/task"
)

// TargetPolicy vets an admission target beyond basic well-formedness.
type TargetPolicy interface {
	Validate(target string) error
}

// RecordStore receives write-behind copies of job records as jobs reach
// terminal states, and deletion notices on eviction. Store errors are
// logged, never propagated; the in-memory table is authoritative.
type RecordStore interface {
	Write(rec *JobRecord) error
	Delete(jobID string) error
}

// ResultSink receives the result payload of completed jobs.
type ResultSink interface {
	Archive(ctx context.Context, jobID string, result any) error
}

// Config configures a Scheduler.
type Config struct {
	// Runner executes admitted jobs. Required.
	Runner task.Runner

	// Hub receives per-client notification events. Required.
	Hub *notify.Hub

	// Concurrency is the maximum number of in-flight jobs. A limit of 1
	// reproduces strict one-job-at-a-time execution.
	// Default: 1
	Concurrency int

	// PollInterval is the loop cadence. It bounds worst-case
	// queue-to-start latency and eviction latency; this is not a
	// low-latency path and seconds are acceptable.
	// Default: 1s
	PollInterval time.Duration

	// Retention is how long terminal job records stay queryable before
	// eviction.
	// Default: 1h
	Retention time.Duration

	// Policy optionally vets admission targets. Nil means scheme
	// validation only.
	Policy TargetPolicy

	// Store is the optional write-behind record store.
	Store RecordStore

	// Archive is the optional sink for completed job results.
	Archive ResultSink

	// Logger may be nil.
	Logger *zap.Logger
}

const (
	DefaultConcurrency  = 1
	DefaultPollInterval = time.Second
	DefaultRetention    = time.Hour
)

// job pairs a record with its runtime plumbing. The record is guarded by
// the scheduler mutex; the mailbox has its own lock.
type job struct {
	rec     JobRecord
	seq     uint64
	mailbox *mailbox

	// Set when the job is dispatched; nil while queued.
	ctx    context.Context
	cancel context.CancelFunc
}

// Scheduler owns the FIFO admission queue and the job table, and runs the
// background loop that dispatches jobs and evicts old terminal records.
//
// Construct with New, then Start. All public operations return quickly and
// never wait on task execution.
type Scheduler struct {
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	jobs    map[string]*job
	fifo    []*job
	running int
	nextSeq uint64
	started bool

	wake     chan struct{}
	loopCtx  context.Context
	loopStop context.CancelFunc
	loopDone chan struct{}
	tasks    sync.WaitGroup
}

// New creates a Scheduler. The scheduler is idle until Start is called.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("jobqueue: runner is required")
	}
	if cfg.Hub == nil {
		return nil, fmt.Errorf("jobqueue: notification hub is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:    cfg,
		logger: cfg.Logger,
		jobs:   make(map[string]*job),
		wake:   make(chan struct{}, 1),
	}, nil
}

// Start launches the background loop. The loop (and every job it
// dispatches) stops when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("jobqueue: scheduler already started")
	}
	s.started = true
	s.loopCtx, s.loopStop = context.WithCancel(ctx)
	s.loopDone = make(chan struct{})
	go s.loop()
	s.logger.Info("scheduler started",
		zap.Int("concurrency", s.cfg.Concurrency),
		zap.Duration("poll_interval", s.cfg.PollInterval),
		zap.Duration("retention", s.cfg.Retention))
	return nil
}

// Stop cancels the loop and all in-flight jobs, then waits for them up to
// ctx's deadline. Jobs observe cancellation at their next suspension point.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	stop := s.loopStop
	done := s.loopDone
	s.mu.Unlock()

	stop()

	finished := make(chan struct{})
	go func() {
		s.tasks.Wait()
		<-done
		close(finished)
	}()

	select {
	case <-finished:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out; some tasks may still be running")
		return ctx.Err()
	}
}

// Admit validates the request, creates a queued JobRecord, and wakes the
// loop. It returns the new job id immediately and never blocks on
// execution.
func (s *Scheduler) Admit(target, clientID string, config map[string]any) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", fmt.Errorf("%w: target is required", ErrInvalidInput)
	}
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		return "", fmt.Errorf("%w: target must be an http(s) URL", ErrInvalidInput)
	}
	if strings.TrimSpace(clientID) == "" {
		return "", fmt.Errorf("%w: client_id is required", ErrInvalidInput)
	}
	if s.cfg.Policy != nil {
		if err := s.cfg.Policy.Validate(target); err != nil {
			return "", fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
		}
	}

	j := &job{
		rec: JobRecord{
			JobID:     uuid.New().String(),
			ClientID:  clientID,
			Target:    target,
			Config:    config,
			Status:    StatusQueued,
			CreatedAt: time.Now().UTC(),
		},
		mailbox: newMailbox(),
	}

	s.mu.Lock()
	j.seq = s.nextSeq
	s.nextSeq++
	s.jobs[j.rec.JobID] = j
	s.fifo = append(s.fifo, j)
	s.mu.Unlock()

	s.logger.Info("job admitted",
		zap.String("job_id", j.rec.JobID),
		zap.String("client_id", clientID),
		zap.String("target", target))
	s.wakeLoop()
	return j.rec.JobID, nil
}

// Cancel cancels a job. A queued job is removed without ever starting its
// task. An in-flight job is marked cancelled immediately and its context is
// cancelled; the task terminates at its next suspension point. Returns
// false for unknown or already-terminal jobs.
func (s *Scheduler) Cancel(jobID string) bool {
	s.mu.Lock()
	j, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return false
	}

	switch j.rec.Status {
	case StatusQueued:
		for i, q := range s.fifo {
			if q == j {
				s.fifo = append(s.fifo[:i], s.fifo[i+1:]...)
				break
			}
		}
		now := time.Now().UTC()
		j.rec.Status = StatusCancelled
		j.rec.CompletedAt = &now
		rec := j.rec
		s.mu.Unlock()

		// No task owns this job; the cancelling caller emits the event.
		s.cfg.Hub.Send(rec.ClientID, notify.JobCancelled(rec.JobID))
		s.writeBehind(&rec)
		s.logger.Info("queued job cancelled", zap.String("job_id", jobID))
		return true

	case StatusRunning, StatusAwaitingInput:
		j.rec.Status = StatusCancelled
		cancel := j.cancel
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		s.logger.Info("in-flight job cancelled", zap.String("job_id", jobID))
		return true

	default:
		s.mu.Unlock()
		return false
	}
}

// SubmitHumanInput routes value to the job's input slot. The job must
// currently be suspended for input.
func (s *Scheduler) SubmitHumanInput(jobID, value string) error {
	s.mu.Lock()
	j, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoSuchJob, jobID)
	}
	if j.rec.Status != StatusAwaitingInput {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrNotAwaitingInput, jobID, j.rec.Status)
	}
	mb := j.mailbox
	s.mu.Unlock()

	if err := mb.deliver(value); err != nil {
		return fmt.Errorf("%w: %s", err, jobID)
	}
	s.logger.Info("human input submitted", zap.String("job_id", jobID))
	return nil
}

// GetStatus returns a snapshot copy of the job record.
func (s *Scheduler) GetStatus(jobID string) (JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return JobRecord{}, fmt.Errorf("%w: %s", ErrNoSuchJob, jobID)
	}
	return j.rec, nil
}

// ListActive returns snapshots of every job not yet evicted, in admission
// order.
func (s *Scheduler) ListActive() []JobRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	// Admission sequence, not CreatedAt: timestamps can collide.
	for i := 1; i < len(out); i++ {
		for k := i; k > 0 && out[k].seq < out[k-1].seq; k-- {
			out[k], out[k-1] = out[k-1], out[k]
		}
	}
	recs := make([]JobRecord, len(out))
	for i, j := range out {
		recs[i] = j.rec
	}
	return recs
}

// QueueDepth returns the number of jobs waiting in the FIFO.
func (s *Scheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fifo)
}

func (s *Scheduler) wakeLoop() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// loop is the single background scheduling goroutine. It dispatches queued
// jobs up to the concurrency limit, sweeps old terminal records, and
// suspends on its poll interval or an explicit wake. Each iteration is
// fault-isolated: a panic is logged and the loop continues.
func (s *Scheduler) loop() {
	defer close(s.loopDone)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		s.tick()
		select {
		case <-s.loopCtx.Done():
			return
		case <-s.wake:
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) tick() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler tick panicked", zap.Any("panic", r))
		}
	}()
	s.dispatch()
	s.sweep()
}

// dispatch pops queue heads while below the concurrency limit and launches
// their tasks. Launching is fire-and-forget; the loop never blocks on task
// execution.
func (s *Scheduler) dispatch() {
	for {
		s.mu.Lock()
		if s.running >= s.cfg.Concurrency || len(s.fifo) == 0 {
			s.mu.Unlock()
			return
		}
		j := s.fifo[0]
		s.fifo = s.fifo[1:]

		now := time.Now().UTC()
		j.rec.Status = StatusRunning
		j.rec.StartedAt = &now
		j.ctx, j.cancel = context.WithCancel(s.loopCtx)
		s.running++
		s.tasks.Add(1)
		jobID := j.rec.JobID
		s.mu.Unlock()

		s.logger.Info("job dispatched", zap.String("job_id", jobID))
		go s.runJob(j)
	}
}

// runJob executes one job on its own goroutine. It is the single writer of
// the job's notification events from here to termination, which preserves
// per-job event ordering on the client channel.
func (s *Scheduler) runJob(j *job) {
	defer s.tasks.Done()
	defer j.cancel()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task panicked",
				zap.String("job_id", j.rec.JobID),
				zap.Any("panic", r))
			s.finalize(j, nil, fmt.Errorf("task panic: %v", r))
		}
	}()

	s.mu.Lock()
	jobID := j.rec.JobID
	clientID := j.rec.ClientID
	s.mu.Unlock()

	s.cfg.Hub.Send(clientID, notify.JobStarted(jobID))

	result, err := s.cfg.Runner.Run(&runContext{s: s, j: j})
	s.finalize(j, result, err)
}

// finalize moves the job to its terminal status, emits the terminal
// notification, and hands the record to the write-behind store and result
// sink. Record ownership returns from the task to the scheduler here.
func (s *Scheduler) finalize(j *job, result any, err error) {
	s.mu.Lock()
	if j.rec.Status.Terminal() && j.rec.CompletedAt != nil {
		// Already finalized (panic after finalize).
		s.mu.Unlock()
		return
	}

	now := time.Now().UTC()
	switch {
	case j.rec.Status == StatusCancelled:
		// Cancel won the race; keep the terminal status it set.
	case err != nil && errors.Is(err, context.Canceled):
		j.rec.Status = StatusCancelled
	case err != nil:
		j.rec.Status = StatusFailed
		j.rec.Error = err.Error()
	default:
		j.rec.Status = StatusCompleted
		j.rec.Result = result
	}
	j.rec.CompletedAt = &now
	j.rec.RequiresHumanInput = false
	j.rec.HumanInputPrompt = ""
	s.running--
	rec := j.rec
	s.mu.Unlock()

	switch rec.Status {
	case StatusCompleted:
		s.cfg.Hub.Send(rec.ClientID, notify.JobCompleted(rec.JobID, rec.Result))
		s.logger.Info("job completed", zap.String("job_id", rec.JobID))
	case StatusFailed:
		s.cfg.Hub.Send(rec.ClientID, notify.JobError(rec.JobID, rec.Error))
		s.logger.Warn("job failed",
			zap.String("job_id", rec.JobID),
			zap.String("error", rec.Error))
	case StatusCancelled:
		s.cfg.Hub.Send(rec.ClientID, notify.JobCancelled(rec.JobID))
		s.logger.Info("job cancelled", zap.String("job_id", rec.JobID))
	}

	s.writeBehind(&rec)
	if s.cfg.Archive != nil && rec.Status == StatusCompleted {
		if aerr := s.cfg.Archive.Archive(context.Background(), rec.JobID, rec.Result); aerr != nil {
			s.logger.Warn("result archive failed",
				zap.String("job_id", rec.JobID),
				zap.Error(aerr))
		}
	}
	s.wakeLoop()
}

func (s *Scheduler) writeBehind(rec *JobRecord) {
	if s.cfg.Store == nil {
		return
	}
	if err := s.cfg.Store.Write(rec); err != nil {
		s.logger.Warn("write-behind store failed",
			zap.String("job_id", rec.JobID),
			zap.Error(err))
	}
}

// sweep evicts terminal records older than the retention window. Queued and
// in-flight jobs are never evicted.
func (s *Scheduler) sweep() {
	now := time.Now().UTC()

	s.mu.Lock()
	var evicted []string
	for jobID, j := range s.jobs {
		if !j.rec.Status.Terminal() || j.rec.CompletedAt == nil {
			continue
		}
		if now.Sub(j.rec.CompletedAt.UTC()) > s.cfg.Retention {
			delete(s.jobs, jobID)
			evicted = append(evicted, jobID)
		}
	}
	s.mu.Unlock()

	for _, jobID := range evicted {
		if s.cfg.Store != nil {
			if err := s.cfg.Store.Delete(jobID); err != nil {
				s.logger.Warn("store delete failed",
					zap.String("job_id", jobID),
					zap.Error(err))
			}
		}
		s.logger.Debug("job evicted", zap.String("job_id", jobID))
	}
}

// runContext implements task.RunContext for one dispatched job.
type runContext struct {
	s *Scheduler
	j *job
}

var _ task.RunContext = (*runContext)(nil)

func (rc *runContext) Context() context.Context { return rc.j.ctx }

func (rc *runContext) JobID() string { return rc.j.rec.JobID }

func (rc *runContext) Target() string { return rc.j.rec.Target }

func (rc *runContext) Config() map[string]any { return rc.j.rec.Config }

func (rc *runContext) ReportProgress(message string, percent int, data map[string]any) {
	s := rc.s
	s.mu.Lock()
	rc.j.rec.CurrentAction = message
	if percent >= 0 {
		rc.j.rec.ProgressPercent = percent
	}
	clientID := rc.j.rec.ClientID
	jobID := rc.j.rec.JobID
	s.mu.Unlock()

	s.cfg.Hub.Send(clientID, notify.AgentProgress(jobID, message, data))
}

// AwaitHumanInput is the blocking HITL primitive: it marks the job
// awaiting_input, notifies the owning client what is needed, and suspends
// on the mailbox until a value is delivered or the job is cancelled. This
// is a genuine blocking wait, not a poll, so cancellation and delivery are
// both observed immediately.
func (rc *runContext) AwaitHumanInput(prompt, inputType string) (string, error) {
	s, j := rc.s, rc.j

	if err := j.mailbox.beginWait(); err != nil {
		return "", err
	}
	defer j.mailbox.endWait()

	if err := j.ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	if j.rec.Status == StatusCancelled {
		s.mu.Unlock()
		return "", context.Canceled
	}
	j.rec.Status = StatusAwaitingInput
	j.rec.RequiresHumanInput = true
	j.rec.HumanInputPrompt = prompt
	clientID := j.rec.ClientID
	jobID := j.rec.JobID
	s.mu.Unlock()

	s.cfg.Hub.Send(clientID, notify.HumanInputRequired(jobID, prompt, inputType))
	s.logger.Info("job awaiting human input",
		zap.String("job_id", jobID),
		zap.String("input_type", inputType))

	select {
	case value := <-j.mailbox.values():
		s.mu.Lock()
		if j.rec.Status == StatusAwaitingInput {
			j.rec.Status = StatusRunning
		}
		j.rec.RequiresHumanInput = false
		j.rec.HumanInputPrompt = ""
		s.mu.Unlock()
		return value, nil
	case <-j.ctx.Done():
		return "", j.ctx.Err()
	}
}
