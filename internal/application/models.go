package application

import (
	"time"

	"github.com/example/lims-calendar/internal/eventstate"
	"github.com/example/lims-calendar/internal/timeslot"
)

// Role is the directory role of a user.
type Role string

const (
	// RoleMember books lab time for their own events.
	RoleMember Role = "member"
	// RoleOperator is lab staff allowed to drive event lifecycle transitions.
	RoleOperator Role = "operator"
	// RoleAdmin has every operator right.
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleMember, RoleOperator, RoleAdmin:
		return true
	}
	return false
}

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID string
	Role   Role
}

// IsOperator reports whether the principal holds an operator-class role.
func (p Principal) IsOperator() bool {
	return p.Role == RoleOperator || p.Role == RoleAdmin
}

// CalendarEvent is a lab session with its proposed and in-force slot collections.
type CalendarEvent struct {
	ID              string
	Title           string
	Discipline      string
	State           eventstate.State
	CreatedBy       string
	StartDate       *time.Time
	EndDate         *time.Time
	TimeSlots       []timeslot.TimeSlot
	ActualSlots     []timeslot.TimeSlot
	LastStateChange *eventstate.StateChange
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Clone returns a deep copy of the event.
func (e CalendarEvent) Clone() CalendarEvent {
	out := e
	out.StartDate = cloneTime(e.StartDate)
	out.EndDate = cloneTime(e.EndDate)
	out.TimeSlots = timeslot.CloneAll(e.TimeSlots)
	out.ActualSlots = timeslot.CloneAll(e.ActualSlots)
	if e.LastStateChange != nil {
		change := *e.LastStateChange
		out.LastStateChange = &change
	}
	return out
}

// SlotInput captures caller provided slot fields. Audit fields are never
// accepted from callers.
type SlotInput struct {
	ID                   string
	StartDate            time.Time
	EndDate              time.Time
	Status               timeslot.Status
	Room                 string
	Notes                string
	ReferentActuelTimeID *string
}

// EventInput captures the fields of a new event and its initial slot.
type EventInput struct {
	Title      string
	Discipline string
	Slot       SlotInput
}

// CreateEventParams wraps the data required to create an event.
type CreateEventParams struct {
	Principal Principal
	Input     EventInput
}

// ListEventsParams narrows an event listing. Members only ever see their own events.
type ListEventsParams struct {
	Principal  Principal
	CreatedBy  string
	Discipline string
	State      eventstate.State
}

// EventFilter is the repository side of ListEventsParams.
type EventFilter struct {
	CreatedBy  string
	Discipline string
	State      eventstate.State
}

// ProposeSlotsParams carries a full replacement proposal set.
type ProposeSlotsParams struct {
	Principal       Principal
	EventID         string
	Slots           []SlotInput
	ExpectedVersion int64
}

// SlotDecisionParams identifies a single slot to approve or reject.
type SlotDecisionParams struct {
	Principal       Principal
	EventID         string
	SlotID          string
	Reason          string
	ExpectedVersion int64
}

// BatchDecisionParams identifies a batch of slots to approve or reject.
// Reason is an optional note on approval and mandatory on rejection.
type BatchDecisionParams struct {
	Principal       Principal
	EventID         string
	SlotIDs         []string
	Reason          string
	ExpectedVersion int64
}

// OperatorActionParams requests a lifecycle transition.
type OperatorActionParams struct {
	Principal       Principal
	EventID         string
	Action          eventstate.Transition
	Reason          string
	Slots           []SlotInput
	ExpectedVersion int64
}

// SlotStatus classifies one proposed slot against the in-force schedule.
type SlotStatus struct {
	EventID string
	SlotID  string
	State   timeslot.SlotState
}

// User is a directory entry able to authenticate with an access key.
type User struct {
	ID            string
	DisplayName   string
	Role          Role
	AccessKeyHash string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	out := *t
	return &out
}
