// Package memory keeps events and users in process memory. It mirrors the
// semantics of the SQLite repositories and backs tests and the "memory"
// storage mode.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/lims-calendar/internal/persistence"
)

// Storage implements persistence.EventRepository and persistence.UserRepository.
type Storage struct {
	mu     sync.RWMutex
	events map[string]persistence.Event
	users  map[string]persistence.User
}

// New returns an empty Storage.
func New() *Storage {
	return &Storage{
		events: make(map[string]persistence.Event),
		users:  make(map[string]persistence.User),
	}
}

// Close is a no-op.
func (s *Storage) Close() error {
	return nil
}

// Migrate is a no-op.
func (s *Storage) Migrate(context.Context) error {
	return nil
}

// CreateEvent stores a new event at its initial version.
func (s *Storage) CreateEvent(ctx context.Context, event persistence.Event) error {
	if event.ID == "" {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[event.ID]; ok {
		return fmt.Errorf("memory: event %s: %w", event.ID, persistence.ErrDuplicate)
	}
	if event.Version <= 0 {
		event.Version = 1
	}

	s.events[event.ID] = cloneEvent(event)
	return nil
}

// GetEvent retrieves an event by ID.
func (s *Storage) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.events[id]
	if !ok {
		return persistence.Event{}, persistence.ErrNotFound
	}
	return cloneEvent(event), nil
}

// UpdateEvent replaces the stored event when its version still matches.
func (s *Storage) UpdateEvent(ctx context.Context, event persistence.Event, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.events[event.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	if existing.Version != expectedVersion {
		return fmt.Errorf("memory: event %s at version %d, expected %d: %w", event.ID, existing.Version, expectedVersion, persistence.ErrVersionConflict)
	}
	if event.Version <= expectedVersion {
		event.Version = expectedVersion + 1
	}

	event.CreatedBy = existing.CreatedBy
	event.CreatedAt = existing.CreatedAt
	s.events[event.ID] = cloneEvent(event)
	return nil
}

// ListEvents returns events matching filter ordered by start date then id.
func (s *Storage) ListEvents(ctx context.Context, filter persistence.EventFilter) ([]persistence.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]persistence.Event, 0, len(s.events))
	for _, event := range s.events {
		if !matchesEventFilter(event, filter) {
			continue
		}
		events = append(events, cloneEvent(event))
	}

	sort.Slice(events, func(i, j int) bool {
		a, b := sortKey(events[i]), sortKey(events[j])
		if a.Equal(b) {
			return events[i].ID < events[j].ID
		}
		return a.Before(b)
	})

	return events, nil
}

// CreateUser stores a new directory user.
func (s *Storage) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return fmt.Errorf("memory: user %s: %w", user.ID, persistence.ErrDuplicate)
	}
	s.users[user.ID] = user
	return nil
}

// GetUser retrieves a user by ID.
func (s *Storage) GetUser(ctx context.Context, id string) (persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return persistence.User{}, persistence.ErrNotFound
	}
	return user, nil
}

func matchesEventFilter(event persistence.Event, filter persistence.EventFilter) bool {
	if filter.CreatedBy != "" && event.CreatedBy != filter.CreatedBy {
		return false
	}
	if filter.Discipline != "" && event.Discipline != filter.Discipline {
		return false
	}
	if filter.State != "" && event.State != filter.State {
		return false
	}
	return true
}

func sortKey(event persistence.Event) time.Time {
	if event.StartDate != nil {
		return *event.StartDate
	}
	return event.CreatedAt
}

func cloneEvent(event persistence.Event) persistence.Event {
	out := event
	out.StartDate = cloneTime(event.StartDate)
	out.EndDate = cloneTime(event.EndDate)
	out.TimeSlots = cloneSlots(event.TimeSlots)
	out.ActualSlots = cloneSlots(event.ActualSlots)
	if event.LastStateChange != nil {
		change := *event.LastStateChange
		out.LastStateChange = &change
	}
	return out
}

func cloneSlots(slots []persistence.Slot) []persistence.Slot {
	out := make([]persistence.Slot, len(slots))
	for i, slot := range slots {
		out[i] = slot
		if slot.ReferentActuelTimeID != nil {
			ref := *slot.ReferentActuelTimeID
			out[i].ReferentActuelTimeID = &ref
		}
		out[i].ModifiedBy = make([]persistence.SlotModification, len(slot.ModifiedBy))
		copy(out[i].ModifiedBy, slot.ModifiedBy)
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	out := *t
	return &out
}
