package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Event types pushed to WebSocket subscribers.
const (
	EventText   = "text"   // a chunk finished transcribing with non-empty text
	EventError  = "error"  // a chunk failed; its audio is not recoverable
	EventState  = "state"  // the session state machine moved
	EventDevice = "device" // the capture device failed mid-session
)

// Event is a single message pushed over the /ws stream. Text events arrive in
// completion order; the Seq field lets clients reorder them if needed.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Seq       int       `json:"seq,omitempty"`
	Text      string    `json:"text,omitempty"`
	Error     string    `json:"error,omitempty"`
	State     string    `json:"state,omitempty"`
	Time      time.Time `json:"time"`
}

// writeTimeout bounds a single WebSocket write so one stalled client cannot
// block its writer goroutine forever.
const writeTimeout = 5 * time.Second

// subscriberBuffer is the per-client event buffer. Clients that fall this far
// behind are disconnected rather than slowing down the pipeline.
const subscriberBuffer = 64

type subscriber struct {
	events chan Event
	closed chan struct{}
}

// Hub fans transcript events out to connected WebSocket clients. Broadcast
// never blocks: slow subscribers are dropped.
type Hub struct {
	log *slog.Logger

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

// NewHub creates an empty Hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:  log,
		subs: make(map[*subscriber]struct{}),
	}
}

// Broadcast sends ev to every connected subscriber. Subscribers whose buffer
// is full are marked for disconnect.
func (h *Hub) Broadcast(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.events <- ev:
		default:
			// Buffer full: drop the client instead of the event stream.
			close(s.closed)
			delete(h.subs, s)
			h.log.Warn("dropping slow websocket subscriber")
		}
	}
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[s] = struct{}{}
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, s)
}

// ServeHTTP upgrades the request to a WebSocket connection and streams events
// until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	s := &subscriber{
		events: make(chan Event, subscriberBuffer),
		closed: make(chan struct{}),
	}
	h.add(s)
	defer h.remove(s)

	// We never expect client messages; CloseRead watches for disconnect.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closed:
			conn.Close(websocket.StatusPolicyViolation, "too slow")
			return
		case ev := <-s.events:
			if err := writeEvent(ctx, conn, ev); err != nil {
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}
