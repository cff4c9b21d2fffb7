package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/kozaktomas/carecam/internal/constants"
	"github.com/kozaktomas/carecam/internal/database"
	"github.com/kozaktomas/carecam/internal/logger"
	"github.com/kozaktomas/carecam/internal/recognition"
)

// Event types pushed to websocket clients.
const (
	EventIdentity  = "identity"
	EventReminders = "reminders"
)

const wsWriteTimeout = 5 * time.Second

// Event is one message on the /events websocket.
type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

// Hub fans events out to websocket subscribers. Publishing never blocks:
// a subscriber whose buffer is full misses the event.
type Hub struct {
	mu        sync.RWMutex
	listeners []chan Event
	origins   []string
	log       *logger.Logger
}

// NewHub creates a hub accepting websocket handshakes from the given host
// patterns.
func NewHub(originPatterns []string, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{origins: originPatterns, log: log.With("component", "events")}
}

// AddListener adds an event listener.
func (h *Hub) AddListener() chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan Event, constants.EventChannelBuffer)
	h.listeners = append(h.listeners, ch)
	return ch
}

// RemoveListener removes an event listener and closes its channel.
func (h *Hub) RemoveListener(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, listener := range h.listeners {
		if listener == ch {
			h.listeners = append(h.listeners[:i], h.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// Listeners returns the number of connected subscribers.
func (h *Hub) Listeners() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Publish sends an event to all listeners.
func (h *Hub) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, listener := range h.listeners {
		select {
		case listener <- ev:
		default:
			// Listener buffer full, skip.
		}
	}
}

// IdentityChanged matches recognition.Options.OnChange.
func (h *Hub) IdentityChanged(prev, cur recognition.Identity) {
	h.Publish(Event{
		Type: EventIdentity,
		Time: cur.UpdatedAt,
		Data: map[string]any{
			"name":     cur.Name,
			"previous": prev.Name,
			"known":    cur.Known(),
		},
	})
}

// RemindersDue matches reminder.Options.Notify.
func (h *Hub) RemindersDue(_ context.Context, due []database.Reminder) {
	h.Publish(Event{Type: EventReminders, Data: toReminderDTOs(due)})
}

// ServeWS upgrades the request and streams events until either side closes.
// Messages from the client are ignored.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	// Clear the server deadlines before the connection is hijacked.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.log.Warn("websocket handshake failed", "remote", sanitizeForLog(r.RemoteAddr), "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())
	ch := h.AddListener()
	defer h.RemoveListener(ch)

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev := <-ch:
			wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(wctx, conn, ev)
			cancel()
			if err != nil {
				h.log.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}
