// Package task defines the boundary between the job core and the
// automation engine that actually drives a job.
//
// The scheduler knows nothing about what a task does. It hands the engine a
// RunContext bound to one job and waits for Run to return. Everything the
// engine needs from the core (progress reporting, human-in-the-loop input,
// cancellation) flows through that context.
package task

import "context"

// Runner executes the automation work for a single job.
//
// Implementations must treat the RunContext as single-use: it is bound to
// exactly one job and is invalid after Run returns. Run is called on its own
// goroutine; returning an error marks the job failed, returning a nil error
// marks it completed with the returned result.
type Runner interface {
	Run(rc RunContext) (result any, err error)
}

// RunContext is the per-job view the core exposes to a Runner.
type RunContext interface {
	// Context carries the job's cancellation signal. Runners should observe
	// it between steps; AwaitHumanInput observes it while suspended.
	Context() context.Context

	// JobID is the opaque id assigned at admission.
	JobID() string

	// Target is the caller-supplied target for this job.
	Target() string

	// Config is the caller-supplied opaque configuration, passed through
	// unmodified from admission.
	Config() map[string]any

	// ReportProgress emits an agent_progress notification to the owning
	// client and updates the job's last-known progress for status queries.
	// percent < 0 leaves the recorded percentage unchanged.
	ReportProgress(message string, percent int, data map[string]any)

	// AwaitHumanInput suspends the task until a human submits a value for
	// this job or the job is cancelled. The job is observable as
	// awaiting_input for the duration of the wait. Returns the submitted
	// value, or an error if the job was cancelled while suspended.
	//
	// At most one wait may be outstanding per job; a second concurrent call
	// is a Runner defect and fails immediately.
	AwaitHumanInput(prompt, inputType string) (string, error)
}

// RunnerFunc adapts a plain function to the Runner interface.
type RunnerFunc func(rc RunContext) (any, error)

func (f RunnerFunc) Run(rc RunContext) (any, error) { return f(rc) }
