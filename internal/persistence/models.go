package persistence

import "time"

// SlotKind distinguishes the two slot collections attached to an event.
type SlotKind string

const (
	// SlotKindProposed rows make up the event's proposal set.
	SlotKindProposed SlotKind = "proposed"
	// SlotKindActual rows make up the in-force schedule.
	SlotKindActual SlotKind = "actual"
)

// SlotModification is one persisted audit entry of a slot.
type SlotModification struct {
	UserID string    `json:"userId"`
	Date   time.Time `json:"date"`
	Action string    `json:"action"`
	Note   string    `json:"note,omitempty"`
}

// Slot is a time slot row keyed by (event id, kind, id).
type Slot struct {
	ID                   string
	Kind                 SlotKind
	Position             int
	StartDate            time.Time
	EndDate              time.Time
	Status               string
	Room                 string
	Notes                string
	ReferentActuelTimeID *string
	CreatedBy            string
	ModifiedBy           []SlotModification
}

// StateChange is the most recent lifecycle change of an event.
type StateChange struct {
	From   string    `json:"from"`
	To     string    `json:"to"`
	Date   time.Time `json:"date"`
	UserID string    `json:"userId"`
	Reason string    `json:"reason,omitempty"`
}

// Event is a calendar event together with both slot collections.
type Event struct {
	ID              string
	Title           string
	Discipline      string
	State           string
	CreatedBy       string
	StartDate       *time.Time
	EndDate         *time.Time
	TimeSlots       []Slot
	ActualSlots     []Slot
	LastStateChange *StateChange
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// User is a directory entry used to resolve principals.
type User struct {
	ID            string
	DisplayName   string
	Role          string
	AccessKeyHash string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
