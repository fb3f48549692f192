package handlers

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webhaul/webhaul/pkg/jobqueue"
	"github.com/webhaul/webhaul/pkg/notify"
)

// wsJobService records human input submissions from the socket.
type wsJobService struct {
	mu     sync.Mutex
	inputs map[string]string
}

func (s *wsJobService) Admit(target, clientID string, config map[string]any) (string, error) {
	return "", nil
}
func (s *wsJobService) Cancel(jobID string) bool { return false }
func (s *wsJobService) SubmitHumanInput(jobID, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inputs == nil {
		s.inputs = make(map[string]string)
	}
	s.inputs[jobID] = value
	return nil
}
func (s *wsJobService) GetStatus(jobID string) (jobqueue.JobRecord, error) {
	return jobqueue.JobRecord{}, jobqueue.ErrNoSuchJob
}
func (s *wsJobService) ListActive() []jobqueue.JobRecord { return nil }

func (s *wsJobService) input(jobID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.inputs[jobID]
	return v, ok
}

func dialWS(t *testing.T, srv *httptest.Server, clientID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + clientID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func newWSServer(t *testing.T, hub *notify.Hub, svc JobService) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/ws/{client_id}", NewWSHandler(hub, svc, nil).Serve)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestWSDeliversHubEvents(t *testing.T) {
	hub := notify.NewHub(nil)
	srv := newWSServer(t, hub, &wsJobService{})

	conn := dialWS(t, srv, "client-1")

	require.Eventually(t, func() bool {
		return hub.Connected("client-1")
	}, 2*time.Second, 5*time.Millisecond)

	hub.Send("client-1", notify.JobStarted("job-1"))
	hub.Send("client-1", notify.AgentProgress("job-1", "working", map[string]any{"page": float64(1)}))

	var ev notify.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, notify.EventJobStarted, ev.Type)
	assert.Equal(t, "job-1", ev.JobID)

	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, notify.EventAgentProgress, ev.Type)
	assert.Equal(t, "working", ev.Message)
	assert.Equal(t, map[string]any{"page": float64(1)}, ev.Data)
}

func TestWSPingPong(t *testing.T) {
	hub := notify.NewHub(nil)
	srv := newWSServer(t, hub, &wsJobService{})

	conn := dialWS(t, srv, "client-1")
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))

	var ev notify.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, notify.EventPong, ev.Type)
}

func TestWSHumanInputFrame(t *testing.T) {
	hub := notify.NewHub(nil)
	svc := &wsJobService{}
	srv := newWSServer(t, hub, svc)

	conn := dialWS(t, srv, "client-1")
	require.NoError(t, conn.WriteJSON(map[string]string{
		"type":   "human_input",
		"job_id": "job-7",
		"input":  "the answer",
	}))

	require.Eventually(t, func() bool {
		v, ok := svc.input("job-7")
		return ok && v == "the answer"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWSDisconnectCleansUp(t *testing.T) {
	hub := notify.NewHub(nil)
	srv := newWSServer(t, hub, &wsJobService{})

	conn := dialWS(t, srv, "client-1")
	require.Eventually(t, func() bool {
		return hub.Connected("client-1")
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return !hub.Connected("client-1")
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWSMalformedFramesIgnored(t *testing.T) {
	hub := notify.NewHub(nil)
	srv := newWSServer(t, hub, &wsJobService{})

	conn := dialWS(t, srv, "client-1")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	// Connection survives the garbage frame.
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	var ev notify.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, notify.EventPong, ev.Type)
}
