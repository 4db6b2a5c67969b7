// Package ui holds the application-shell side of the tutor: the current
// route and scroll position, spoken page and focus announcements, and a
// WebSocket hub that pushes every shell change to connected front ends.
package ui

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/eimkon/eimkon/internal/observe"
)

// EventType names the kind of change carried by an [Event].
type EventType string

const (
	EventNavigate EventType = "navigate"
	EventScroll   EventType = "scroll"
	EventTutor    EventType = "tutor"
	EventNotify   EventType = "notify"
	EventLesson   EventType = "lesson"
	EventPrefs    EventType = "preferences"
	EventQuiz     EventType = "quiz"
)

// Event is one message pushed to front ends.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data,omitempty"`
}

// Publisher accepts shell events.
type Publisher interface {
	Publish(Event)
}

const (
	subscriberBuffer = 32
	writeTimeout     = 5 * time.Second
)

// Hub fans events out to WebSocket subscribers. The latest event of each
// sticky type (navigation, tutor, lesson, quiz, preferences) is replayed to
// new subscribers so a freshly opened page starts in sync.
//
// A subscriber that cannot keep up is disconnected rather than allowed to
// block publishers.
type Hub struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	sticky map[EventType]Event

	metrics *observe.Metrics
}

type subscriber struct {
	events    chan Event
	closeSlow func()
}

// NewHub returns an empty hub. m may be nil.
func NewHub(m *observe.Metrics) *Hub {
	return &Hub{
		subs:    make(map[*subscriber]struct{}),
		sticky:  make(map[EventType]Event),
		metrics: m,
	}
}

// Publish implements [Publisher].
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch ev.Type {
	case EventNavigate, EventTutor, EventLesson, EventQuiz, EventPrefs:
		h.sticky[ev.Type] = ev
	}
	for s := range h.subs {
		select {
		case s.events <- ev:
		default:
			go s.closeSlow()
		}
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeHTTP upgrades the request to a WebSocket and streams events until the
// client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("ui: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	err = h.serve(r.Context(), conn)
	switch {
	case err == nil,
		errors.Is(err, context.Canceled),
		websocket.CloseStatus(err) == websocket.StatusNormalClosure,
		websocket.CloseStatus(err) == websocket.StatusGoingAway:
		return
	default:
		slog.Debug("ui: event subscriber ended", "err", err)
	}
}

func (h *Hub) serve(ctx context.Context, conn *websocket.Conn) error {
	// The client never sends; CloseRead handles control frames and cancels
	// ctx once the peer closes.
	ctx = conn.CloseRead(ctx)

	s := &subscriber{
		events: make(chan Event, subscriberBuffer),
		closeSlow: func() {
			conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
		},
	}
	h.add(s)
	defer h.remove(s)

	for {
		select {
		case ev := <-s.events:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, ev)
			cancel()
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	for _, t := range []EventType{EventNavigate, EventTutor, EventLesson, EventQuiz, EventPrefs} {
		if ev, ok := h.sticky[t]; ok {
			s.events <- ev
		}
	}
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.EventSubscribers.Add(context.Background(), 1)
	}
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.EventSubscribers.Add(context.Background(), -1)
	}
}
