package jobqueue

import "sync"

// mailbox is the per-job human-input slot: a rendezvous between one
// suspended task and one out-of-band submitter.
//
// The channel buffers exactly one value so a fast human response is not
// lost in the window between the job being marked awaiting_input and the
// task reaching its receive. A submission while a value is already buffered
// is rejected rather than overwriting or queueing further.
//
// Each mailbox has its own lock so input submission for one job never
// contends with another job's.
type mailbox struct {
	mu      sync.Mutex
	ch      chan string
	waiting bool
}

func newMailbox() *mailbox {
	return &mailbox{ch: make(chan string, 1)}
}

// beginWait claims the slot for a blocking wait. At most one wait may be
// outstanding; a second concurrent claim returns ErrAlreadyAwaiting.
func (m *mailbox) beginWait() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.waiting {
		return ErrAlreadyAwaiting
	}
	m.waiting = true
	return nil
}

func (m *mailbox) endWait() {
	m.mu.Lock()
	m.waiting = false
	m.mu.Unlock()
}

// deliver hands a value to the slot without blocking. Returns
// ErrNotAwaitingInput when a value is already buffered.
func (m *mailbox) deliver(value string) error {
	select {
	case m.ch <- value:
		return nil
	default:
		return ErrNotAwaitingInput
	}
}

// values returns the receive side of the slot.
func (m *mailbox) values() <-chan string {
	return m.ch
}
