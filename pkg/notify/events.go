package notify

// EventType tags a notification event.
//
// NOTE: These values are part of the client-facing wire contract and must
// stay stable.
type EventType string

const (
	EventJobStarted         EventType = "job_started"
	EventAgentProgress      EventType = "agent_progress"
	EventHumanInputRequired EventType = "human_input_required"
	EventJobCompleted       EventType = "job_completed"
	EventJobError           EventType = "job_error"
	EventJobCancelled       EventType = "job_cancelled"
	EventPong               EventType = "pong"
)

// Event is one notification delivered to a client channel.
//
// The hub treats events as opaque; only Type and JobID are meaningful to it.
// Field presence depends on Type (additive schema, omitempty throughout).
type Event struct {
	Type      EventType      `json:"type"`
	JobID     string         `json:"job_id,omitempty"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Prompt    string         `json:"prompt,omitempty"`
	InputType string         `json:"input_type,omitempty"`
	Result    any            `json:"result,omitempty"`
}

// JobStarted announces that a job left the queue and began executing.
func JobStarted(jobID string) Event {
	return Event{Type: EventJobStarted, JobID: jobID}
}

// AgentProgress carries a free-form progress update from the running task.
func AgentProgress(jobID, message string, data map[string]any) Event {
	return Event{Type: EventAgentProgress, JobID: jobID, Message: message, Data: data}
}

// HumanInputRequired asks the client to supply a value for a suspended job.
func HumanInputRequired(jobID, prompt, inputType string) Event {
	return Event{Type: EventHumanInputRequired, JobID: jobID, Prompt: prompt, InputType: inputType}
}

// JobCompleted carries the final result of a successful job.
func JobCompleted(jobID string, result any) Event {
	return Event{Type: EventJobCompleted, JobID: jobID, Result: result}
}

// JobError reports a failed job.
func JobError(jobID, message string) Event {
	return Event{Type: EventJobError, JobID: jobID, Message: message}
}

// JobCancelled reports a cancelled job.
func JobCancelled(jobID string) Event {
	return Event{Type: EventJobCancelled, JobID: jobID}
}

// Pong answers a client-level ping on the notification channel.
func Pong() Event {
	return Event{Type: EventPong}
}
