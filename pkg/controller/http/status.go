package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/catapult-sh/catapult/pkg/domain/types"
	"github.com/catapult-sh/catapult/pkg/utils/broker"
)

const statusWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Status streams are read-only progress feeds; any origin may watch
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StatusHandler streams a job's lifecycle events to the caller, over
// WebSocket when the client upgrades and server-sent events otherwise.
// The stream ends at the job's terminal event or client disconnect.
type StatusHandler struct {
	events *broker.Broker
}

// NewStatusHandler creates a StatusHandler over the broker
func NewStatusHandler(events *broker.Broker) *StatusHandler {
	return &StatusHandler{events: events}
}

// Handle serves GET /launcher/status/{uuid}
func (h *StatusHandler) Handle(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "uuid"))
	if err != nil {
		writeError(w, goerr.Wrap(types.ErrInvalidArgument, "job identifier must be a UUID"), http.StatusBadRequest)
		return
	}

	if websocket.IsWebSocketUpgrade(r) {
		h.serveWebSocket(w, r, id)
		return
	}
	h.serveSSE(w, r, id)
}

func (h *StatusHandler) serveWebSocket(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	logger := ctxlog.From(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch, cancel := h.events.Subscribe(id)
	defer cancel()

	// Reader loop exists only to observe the peer closing
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(statusWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				logger.Debug("status stream write failed", "job_id", id, "error", err)
				return
			}
			if ev.Kind.IsTerminal() {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(ev.Kind)))
				return
			}
		case <-disconnected:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (h *StatusHandler) serveSSE(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, goerr.New("streaming is not supported"), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, cancel := h.events.Subscribe(id)
	defer cancel()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				ctxlog.From(r.Context()).Error("failed to encode status event", "error", err)
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
			if ev.Kind.IsTerminal() {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
