package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/lims-calendar/internal/application"
	"github.com/example/lims-calendar/internal/eventstate"
	"github.com/example/lims-calendar/internal/persistence"
	"github.com/example/lims-calendar/internal/timeslot"
)

var (
	userCounter  uint64
	eventCounter uint64
	slotCounter  uint64
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// LabDay returns a wall-clock slot time on the given March 2024 day.
func LabDay(day, hour int) time.Time {
	return time.Date(2024, time.March, day, hour, 0, 0, 0, time.Local)
}

// ----------------------------- User fixtures -----------------------------

// UserFixture represents a deterministic directory user.
type UserFixture struct {
	ID            string
	DisplayName   string
	Role          application.Role
	AccessKeyHash string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UserOption configures the generated user fixture.
type UserOption func(*UserFixture)

// NewUserFixture returns a deterministic member fixture with optional overrides.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := UserFixture{
		ID:            id,
		DisplayName:   fmt.Sprintf("User %03d", idx),
		Role:          application.RoleMember,
		AccessKeyHash: fmt.Sprintf("hash-%03d", idx),
		CreatedAt:     created,
		UpdatedAt:     created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUserID overrides the generated user ID.
func WithUserID(id string) UserOption {
	return func(f *UserFixture) {
		f.ID = id
	}
}

// WithUserRole sets the directory role.
func WithUserRole(role application.Role) UserOption {
	return func(f *UserFixture) {
		f.Role = role
	}
}

// WithUserAccessKeyHash overrides the generated access key hash.
func WithUserAccessKeyHash(hash string) UserOption {
	return func(f *UserFixture) {
		f.AccessKeyHash = hash
	}
}

// Application returns the fixture as an application.User value.
func (f UserFixture) Application() application.User {
	return application.User{
		ID:            f.ID,
		DisplayName:   f.DisplayName,
		Role:          f.Role,
		AccessKeyHash: f.AccessKeyHash,
		CreatedAt:     f.CreatedAt,
		UpdatedAt:     f.UpdatedAt,
	}
}

// Persistence returns the fixture as a persistence.User value.
func (f UserFixture) Persistence() persistence.User {
	return persistence.User{
		ID:            f.ID,
		DisplayName:   f.DisplayName,
		Role:          string(f.Role),
		AccessKeyHash: f.AccessKeyHash,
		CreatedAt:     f.CreatedAt,
		UpdatedAt:     f.UpdatedAt,
	}
}

// Principal returns an application.Principal derived from the fixture.
func (f UserFixture) Principal() application.Principal {
	return application.Principal{UserID: f.ID, Role: f.Role}
}

// ----------------------------- Slot fixtures -----------------------------

// SlotOption configures a generated time slot.
type SlotOption func(*timeslot.TimeSlot)

// NewSlot returns an active one hour slot created by "user-000" with one
// created history entry. Each call starts one day after the previous one.
func NewSlot(opts ...SlotOption) timeslot.TimeSlot {
	idx := atomic.AddUint64(&slotCounter, 1)
	start := LabDay(4, 9).Add(time.Duration(idx) * 24 * time.Hour)
	slot := timeslot.TimeSlot{
		ID:        fmt.Sprintf("slot-%03d", idx),
		StartDate: start,
		EndDate:   start.Add(time.Hour),
		Status:    timeslot.StatusActive,
		CreatedBy: "user-000",
		ModifiedBy: []timeslot.Modification{
			{UserID: "user-000", Date: referenceTime, Action: timeslot.ActionCreated},
		},
	}
	for _, opt := range opts {
		opt(&slot)
	}
	return slot
}

// WithSlotID overrides the generated slot ID.
func WithSlotID(id string) SlotOption {
	return func(s *timeslot.TimeSlot) {
		s.ID = id
	}
}

// WithSlotTimes sets the slot interval.
func WithSlotTimes(start, end time.Time) SlotOption {
	return func(s *timeslot.TimeSlot) {
		s.StartDate = start
		s.EndDate = end
	}
}

// WithSlotStatus sets the slot status without stamping history.
func WithSlotStatus(status timeslot.Status) SlotOption {
	return func(s *timeslot.TimeSlot) {
		s.Status = status
	}
}

// WithSlotRoom sets the room.
func WithSlotRoom(room string) SlotOption {
	return func(s *timeslot.TimeSlot) {
		s.Room = room
	}
}

// WithSlotReferent points the slot at an in-force slot it supersedes.
func WithSlotReferent(id string) SlotOption {
	return func(s *timeslot.TimeSlot) {
		s.ReferentActuelTimeID = &id
	}
}

// WithSlotCreator sets the creator of the slot and its first history entry.
func WithSlotCreator(userID string) SlotOption {
	return func(s *timeslot.TimeSlot) {
		s.CreatedBy = userID
		if len(s.ModifiedBy) > 0 {
			s.ModifiedBy[0].UserID = userID
		}
	}
}

// ----------------------------- Event fixtures -----------------------------

// EventFixture represents a deterministic calendar event.
type EventFixture struct {
	ID              string
	Title           string
	Discipline      string
	State           eventstate.State
	CreatedBy       string
	TimeSlots       []timeslot.TimeSlot
	ActualSlots     []timeslot.TimeSlot
	LastStateChange *eventstate.StateChange
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EventOption configures the generated event fixture.
type EventOption func(*EventFixture)

// NewEventFixture returns a pending event with one slot that is both proposed
// and in force, like a freshly created event.
func NewEventFixture(opts ...EventOption) EventFixture {
	idx := atomic.AddUint64(&eventCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Hour)
	fixture := EventFixture{
		ID:         fmt.Sprintf("event-%03d", idx),
		Title:      fmt.Sprintf("Session %03d", idx),
		Discipline: "physics",
		State:      eventstate.Pending,
		CreatedBy:  "user-000",
		Version:    1,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
	slot := NewSlot()
	fixture.TimeSlots = []timeslot.TimeSlot{slot}
	fixture.ActualSlots = []timeslot.TimeSlot{slot.Clone()}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithEventID overrides the generated event ID.
func WithEventID(id string) EventOption {
	return func(f *EventFixture) {
		f.ID = id
	}
}

// WithEventOwner sets the creating user.
func WithEventOwner(userID string) EventOption {
	return func(f *EventFixture) {
		f.CreatedBy = userID
	}
}

// WithEventState sets the lifecycle state without recording a change.
func WithEventState(state eventstate.State) EventOption {
	return func(f *EventFixture) {
		f.State = state
	}
}

// WithEventDiscipline sets the discipline.
func WithEventDiscipline(discipline string) EventOption {
	return func(f *EventFixture) {
		f.Discipline = discipline
	}
}

// WithEventSlots sets the proposal collection.
func WithEventSlots(slots ...timeslot.TimeSlot) EventOption {
	return func(f *EventFixture) {
		f.TimeSlots = timeslot.CloneAll(slots)
	}
}

// WithEventActualSlots sets the in-force collection.
func WithEventActualSlots(slots ...timeslot.TimeSlot) EventOption {
	return func(f *EventFixture) {
		f.ActualSlots = timeslot.CloneAll(slots)
	}
}

// WithEventVersion sets the optimistic concurrency version.
func WithEventVersion(version int64) EventOption {
	return func(f *EventFixture) {
		f.Version = version
	}
}

// Application returns the fixture as an application.CalendarEvent with bounds
// derived from the in-force slots.
func (f EventFixture) Application() application.CalendarEvent {
	event := application.CalendarEvent{
		ID:          f.ID,
		Title:       f.Title,
		Discipline:  f.Discipline,
		State:       f.State,
		CreatedBy:   f.CreatedBy,
		TimeSlots:   timeslot.CloneAll(f.TimeSlots),
		ActualSlots: timeslot.CloneAll(f.ActualSlots),
		Version:     f.Version,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
	if f.LastStateChange != nil {
		change := *f.LastStateChange
		event.LastStateChange = &change
	}
	if start, end, ok := timeslot.Bounds(f.ActualSlots); ok {
		event.StartDate = &start
		event.EndDate = &end
	}
	return event
}

// Owner returns a member principal for the event creator.
func (f EventFixture) Owner() application.Principal {
	return application.Principal{UserID: f.CreatedBy, Role: application.RoleMember}
}
