package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/webhaul/webhaul/pkg/notify"
)

const wsWriteTimeout = 10 * time.Second

// WSHandler bridges the notification hub onto websocket connections. Each
// client holds at most one connection; a reconnect displaces the old one.
type WSHandler struct {
	hub      *notify.Hub
	svc      JobService
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler builds the websocket handler. A nil logger disables logging.
func NewWSHandler(hub *notify.Hub, svc JobService, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		hub:    hub,
		svc:    svc,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// clientMessage is an inbound websocket frame from the client.
type clientMessage struct {
	Type  string `json:"type"`
	JobID string `json:"job_id,omitempty"`
	Input string `json:"input,omitempty"`
}

// Serve upgrades GET /ws/{client_id} and pumps hub events to the socket
// until either side goes away.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "client_id")
	if clientID == "" {
		http.Error(w, "client_id is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.String("client_id", clientID), zap.Error(err))
		return
	}

	events := h.hub.Connect(clientID)
	h.logger.Info("client connected", zap.String("client_id", clientID))

	done := make(chan struct{})
	go h.writePump(conn, events, done)

	h.readPump(conn, clientID)

	// Reader is gone. Drop the hub registration so the writer's channel
	// closes, then wait for it to finish before closing the socket.
	h.hub.Disconnect(clientID)
	<-done
	_ = conn.Close()
	h.logger.Info("client disconnected", zap.String("client_id", clientID))
}

func (h *WSHandler) writePump(conn *websocket.Conn, events <-chan notify.Event, done chan<- struct{}) {
	defer close(done)
	for ev := range events {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(ev); err != nil {
			// Drain remaining events so the hub's disconnect close
			// does not block anyone.
			for range events {
			}
			return
		}
	}
}

func (h *WSHandler) readPump(conn *websocket.Conn, clientID string) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("ignoring malformed client frame",
				zap.String("client_id", clientID), zap.Error(err))
			continue
		}
		switch msg.Type {
		case "ping":
			h.hub.Send(clientID, notify.Pong())
		case "human_input":
			if err := h.svc.SubmitHumanInput(msg.JobID, msg.Input); err != nil {
				h.logger.Warn("human input over websocket rejected",
					zap.String("client_id", clientID),
					zap.String("job_id", msg.JobID),
					zap.Error(err))
			}
		default:
			h.logger.Debug("ignoring unknown client frame",
				zap.String("client_id", clientID),
				zap.String("type", msg.Type))
		}
	}
}
