// Package hub fans render calls out to any number of local subscribers.
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/atikulmunna/logterm/internal/model"
	"github.com/atikulmunna/logterm/internal/output"
)

const (
	inputBuffer      = 4096
	subscriberBuffer = 1024
)

// Frame kinds.
const (
	KindEntry  = "entry"
	KindNotice = "notice"
	KindClear  = "clear"
)

// Frame is one render call as seen by subscribers.
type Frame struct {
	Kind  string          `json:"kind"`
	At    time.Time       `json:"at"`
	Entry *model.LogEntry `json:"entry,omitempty"`
	Line  string          `json:"line,omitempty"`
	Tone  string          `json:"tone,omitempty"`
	Text  string          `json:"text,omitempty"`
}

// Subscription is a subscriber's receive side.
type Subscription struct {
	ID string
	C  <-chan Frame
}

// Hub is an output.Renderer that broadcasts every call to its subscribers.
// Render calls never block; frames are queued and delivered by Start.
type Hub struct {
	input  chan Frame
	logger zerolog.Logger

	mu          sync.RWMutex
	subscribers map[string]chan Frame
	dropped     int64
	closed      bool
}

var _ output.Renderer = (*Hub)(nil)

// New creates a Hub.
func New(logger zerolog.Logger) *Hub {
	return &Hub{
		input:       make(chan Frame, inputBuffer),
		logger:      logger.With().Str("component", "hub").Logger(),
		subscribers: make(map[string]chan Frame),
	}
}

// Subscribe returns a buffered channel that will receive every frame.
// Multiple consumers can subscribe; each gets a copy of every frame.
func (h *Hub) Subscribe() Subscription {
	id := uuid.NewString()
	ch := make(chan Frame, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
	} else {
		h.subscribers[id] = ch
	}
	h.logger.Debug().Str("subscriber", id).Msg("subscribed")
	return Subscription{ID: id, C: ch}
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(ch)
		h.logger.Debug().Str("subscriber", id).Msg("unsubscribed")
	}
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Dropped returns the total number of frames dropped due to slow consumers
// or a full input queue.
func (h *Hub) Dropped() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

func (h *Hub) Render(entry model.LogEntry) error {
	e := entry
	h.enqueue(Frame{Kind: KindEntry, Entry: &e, Line: output.Format(entry).String()})
	return nil
}

func (h *Hub) Notice(n output.Notice) error {
	h.enqueue(Frame{Kind: KindNotice, Tone: n.Tone.String(), Text: n.Text})
	return nil
}

func (h *Hub) Clear() error {
	h.enqueue(Frame{Kind: KindClear})
	return nil
}

func (h *Hub) enqueue(f Frame) {
	f.At = time.Now()
	select {
	case h.input <- f:
	default:
		h.mu.Lock()
		h.dropped++
		h.mu.Unlock()
	}
}

// Start broadcasts queued frames until the context is cancelled, then closes
// all subscriber channels.
func (h *Hub) Start(ctx context.Context) {
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case f := <-h.input:
			h.broadcast(f)
		}
	}
}

// broadcast sends a frame to all subscribers.
// If a subscriber's channel is full, the frame is dropped for that subscriber.
func (h *Hub) broadcast(f Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subscribers {
		select {
		case ch <- f:
		default:
			h.dropped++
			h.logger.Debug().Str("subscriber", id).Int64("dropped", h.dropped).Msg("dropped frame for slow consumer")
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
	h.closed = true
}
