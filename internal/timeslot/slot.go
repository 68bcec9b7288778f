// Package timeslot implements the proposal/approval bookkeeping for calendar
// time slots: change detection, audit stamping and reconciliation of the
// proposed and in-force slot collections of an event.
//
// Everything in this package is pure. Callers own persistence and clocks.
package timeslot

import "time"

// Status is the lifecycle status of a single time slot.
type Status string

const (
	// StatusActive marks a slot that is currently proposed or in force.
	StatusActive Status = "active"
	// StatusInvalid marks a slot that was explicitly rejected.
	StatusInvalid Status = "invalid"
	// StatusDeleted marks a slot that was superseded or removed.
	StatusDeleted Status = "deleted"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInvalid, StatusDeleted:
		return true
	}
	return false
}

// Action labels an entry of a slot's modification history.
type Action string

const (
	ActionCreated     Action = "created"
	ActionModified    Action = "modified"
	ActionApproved    Action = "approved"
	ActionRejected    Action = "rejected"
	ActionInvalidated Action = "invalidated"
	ActionDeleted     Action = "deleted"
	ActionRestored    Action = "restored"
)

// Modification is one audit trail entry. Entries are appended, never edited.
type Modification struct {
	UserID string    `json:"userId"`
	Date   time.Time `json:"date"`
	Action Action    `json:"action"`
	Note   string    `json:"note,omitempty"`
}

// TimeSlot is a single scheduled interval proposed or confirmed for an event.
type TimeSlot struct {
	ID                   string         `json:"id"`
	StartDate            time.Time      `json:"startDate"`
	EndDate              time.Time      `json:"endDate"`
	Status               Status         `json:"status"`
	Room                 string         `json:"room,omitempty"`
	Notes                string         `json:"notes,omitempty"`
	ReferentActuelTimeID *string        `json:"referentActuelTimeID,omitempty"`
	CreatedBy            string         `json:"createdBy,omitempty"`
	ModifiedBy           []Modification `json:"modifiedBy"`
}

// IsActive reports whether the slot is currently proposed or in force.
func (s TimeSlot) IsActive() bool {
	return s.Status == StatusActive
}

// Referent returns the referenced actual slot id, or "" when unset.
func (s TimeSlot) Referent() string {
	if s.ReferentActuelTimeID == nil {
		return ""
	}
	return *s.ReferentActuelTimeID
}

// LastModification returns the most recent history entry.
func (s TimeSlot) LastModification() (Modification, bool) {
	if len(s.ModifiedBy) == 0 {
		return Modification{}, false
	}
	return s.ModifiedBy[len(s.ModifiedBy)-1], true
}

// Clone returns a deep copy of the slot.
func (s TimeSlot) Clone() TimeSlot {
	out := s
	if s.ReferentActuelTimeID != nil {
		ref := *s.ReferentActuelTimeID
		out.ReferentActuelTimeID = &ref
	}
	if s.ModifiedBy != nil {
		out.ModifiedBy = make([]Modification, len(s.ModifiedBy))
		copy(out.ModifiedBy, s.ModifiedBy)
	}
	return out
}

// CloneAll deep copies a slot collection. A nil input yields an empty slice.
func CloneAll(slots []TimeSlot) []TimeSlot {
	out := make([]TimeSlot, len(slots))
	for i, slot := range slots {
		out[i] = slot.Clone()
	}
	return out
}

// Stamp appends a history entry to the slot.
func Stamp(slot *TimeSlot, actorID string, action Action, note string, now time.Time) {
	if slot == nil {
		return
	}
	slot.ModifiedBy = append(slot.ModifiedBy, Modification{
		UserID: actorID,
		Date:   now,
		Action: action,
		Note:   note,
	})
}

// SetStatus changes the status and stamps the slot, but only when the status
// actually differs. It reports whether a change was recorded.
func SetStatus(slot *TimeSlot, status Status, actorID string, action Action, note string, now time.Time) bool {
	if slot == nil {
		return false
	}
	before := slot.Clone()
	slot.Status = status
	if !HasChanged(&before, *slot) {
		return false
	}
	Stamp(slot, actorID, action, note, now)
	return true
}

// IndexOf returns the position of the slot with the given id, or -1.
func IndexOf(slots []TimeSlot, id string) int {
	if id == "" {
		return -1
	}
	for i := range slots {
		if slots[i].ID == id {
			return i
		}
	}
	return -1
}

// Bounds returns the earliest start and latest end across active slots.
func Bounds(slots []TimeSlot) (start, end time.Time, ok bool) {
	for _, slot := range slots {
		if !slot.IsActive() {
			continue
		}
		if !ok || slot.StartDate.Before(start) {
			start = slot.StartDate
		}
		if !ok || slot.EndDate.After(end) {
			end = slot.EndDate
		}
		ok = true
	}
	return start, end, ok
}
