package notify

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubSendPreservesOrder(t *testing.T) {
	hub := NewHub(nil)
	ch := hub.Connect("client-1")

	hub.Send("client-1", JobStarted("job-1"))
	hub.Send("client-1", AgentProgress("job-1", "working", nil))
	hub.Send("client-1", JobCompleted("job-1", "done"))

	assert.Equal(t, EventJobStarted, (<-ch).Type)
	assert.Equal(t, EventAgentProgress, (<-ch).Type)

	ev := <-ch
	assert.Equal(t, EventJobCompleted, ev.Type)
	assert.Equal(t, "job-1", ev.JobID)
	assert.Equal(t, "done", ev.Result)
}

func TestHubSendUnknownClientIsNoop(t *testing.T) {
	hub := NewHub(nil)
	hub.Send("nobody", JobStarted("job-1"))
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHubReconnectReplacesChannel(t *testing.T) {
	hub := NewHub(nil)
	old := hub.Connect("client-1")
	fresh := hub.Connect("client-1")

	// The stale channel is closed so its consumer unblocks.
	_, open := <-old
	assert.False(t, open)

	hub.Send("client-1", JobStarted("job-1"))
	ev := <-fresh
	assert.Equal(t, EventJobStarted, ev.Type)
	assert.Equal(t, 1, hub.ClientCount())
}

func TestHubDisconnect(t *testing.T) {
	hub := NewHub(nil)
	ch := hub.Connect("client-1")
	require.True(t, hub.Connected("client-1"))

	hub.Disconnect("client-1")
	assert.False(t, hub.Connected("client-1"))

	_, open := <-ch
	assert.False(t, open)

	// Disconnecting again is a no-op.
	hub.Disconnect("client-1")
}

func TestHubDropsStalledClient(t *testing.T) {
	hub := NewHub(nil)
	hub.Connect("stalled")

	// Nobody consumes; fill the buffer, then one more.
	for i := 0; i < DefaultChannelBuffer; i++ {
		hub.Send("stalled", AgentProgress("job-1", fmt.Sprintf("step %d", i), nil))
	}
	require.True(t, hub.Connected("stalled"))

	hub.Send("stalled", AgentProgress("job-1", "overflow", nil))
	assert.False(t, hub.Connected("stalled"))
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(nil)
	a := hub.Connect("client-a")
	b := hub.Connect("client-b")

	hub.Broadcast(JobError("job-9", "upstream gone"))

	for _, ch := range []<-chan Event{a, b} {
		ev := <-ch
		assert.Equal(t, EventJobError, ev.Type)
		assert.Equal(t, "upstream gone", ev.Message)
	}
}

func TestHubBroadcastDropsStalledClients(t *testing.T) {
	hub := NewHub(nil)
	hub.Connect("stalled")
	live := hub.Connect("live")

	for i := 0; i < DefaultChannelBuffer; i++ {
		hub.Send("stalled", AgentProgress("job-1", "fill", nil))
	}

	hub.Broadcast(JobCancelled("job-1"))

	assert.False(t, hub.Connected("stalled"))
	require.True(t, hub.Connected("live"))
	ev := <-live
	assert.Equal(t, EventJobCancelled, ev.Type)
}
