// Package notify fans event change notifications out to in-process
// subscribers. Delivery is best effort: a slow subscriber loses messages
// rather than blocking the writer.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Kind names what happened to an event.
type Kind string

const (
	KindCreated       Kind = "event.created"
	KindProposed      Kind = "slots.proposed"
	KindSlotApproved  Kind = "slot.approved"
	KindSlotRejected  Kind = "slot.rejected"
	KindSlotsApproved Kind = "slots.approved"
	KindSlotsRejected Kind = "slots.rejected"
	KindStateChanged  Kind = "event.state_changed"
)

// Notification describes a committed change to an event.
type Notification struct {
	EventID string    `json:"event_id"`
	Kind    Kind      `json:"kind"`
	ActorID string    `json:"actor_id"`
	OwnerID string    `json:"owner_id"`
	State   string    `json:"state"`
	Version int64     `json:"version"`
	At      time.Time `json:"at"`
}

// Dispatcher delivers notifications.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// ErrClosed is returned by Dispatch after the hub was closed.
var ErrClosed = errors.New("notify: hub closed")

// Hub is a per-process subscriber registry. It is owned by the server process
// and must be closed on shutdown.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[uint64]chan Notification
	nextID      uint64
	closed      bool
	dropped     atomic.Uint64
}

// NewHub returns an empty registry.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[uint64]chan Notification)}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// function unregisters it and closes the channel; calling it twice is safe.
func (h *Hub) Subscribe(buffer int) (<-chan Notification, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Notification, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subscribers[id]; ok {
				delete(h.subscribers, id)
				close(sub)
			}
		})
	}
}

// Dispatch hands n to every subscriber without blocking.
func (h *Hub) Dispatch(ctx context.Context, n Notification) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrClosed
	}
	for _, ch := range h.subscribers {
		select {
		case ch <- n:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Len returns the number of registered subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Dropped returns how many deliveries were skipped because a subscriber
// buffer was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close unregisters every subscriber and rejects further dispatches.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subscribers {
		delete(h.subscribers, id)
		close(ch)
	}
}

// LogDispatcher writes notifications to a structured logger.
type LogDispatcher struct {
	Logger *slog.Logger
}

// Dispatch logs n at info level.
func (d LogDispatcher) Dispatch(ctx context.Context, n Notification) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "event notification",
		"event_id", n.EventID,
		"kind", string(n.Kind),
		"actor_id", n.ActorID,
		"state", n.State,
		"version", n.Version,
	)
	return nil
}

// Multi dispatches to every target and joins their errors.
type Multi []Dispatcher

// Dispatch implements Dispatcher.
func (m Multi) Dispatch(ctx context.Context, n Notification) error {
	var errs []error
	for _, d := range m {
		if d == nil {
			continue
		}
		if err := d.Dispatch(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
