// Package eventstate holds the coarse lifecycle of a calendar event.
package eventstate

import (
	"errors"
	"fmt"
	"time"
)

// State is the coarse lifecycle state of an event.
type State string

const (
	Pending    State = "PENDING"
	Validated  State = "VALIDATED"
	Cancelled  State = "CANCELLED"
	Moved      State = "MOVED"
	InProgress State = "IN_PROGRESS"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case Pending, Validated, Cancelled, Moved, InProgress:
		return true
	}
	return false
}

// Transition is an operator-driven state change.
type Transition string

const (
	Validate Transition = "VALIDATE"
	Cancel   Transition = "CANCEL"
	Move     Transition = "MOVE"
	Reopen   Transition = "REOPEN"
	Start    Transition = "START"
)

// ParseTransition maps a raw action name onto a Transition.
func ParseTransition(value string) (Transition, bool) {
	switch t := Transition(value); t {
	case Validate, Cancel, Move, Reopen, Start:
		return t, true
	}
	return "", false
}

var (
	// ErrForbidden is returned when the actor may not perform a transition.
	ErrForbidden = errors.New("eventstate: forbidden")
	// ErrInvalidTransition is returned when a transition is not allowed from the current state.
	ErrInvalidTransition = errors.New("eventstate: invalid transition")
)

// Actor describes who is asking for a transition.
type Actor struct {
	UserID   string
	Operator bool
	Owner    bool
}

// StateChange points at the most recent lifecycle change of an event.
type StateChange struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	Date   time.Time `json:"date"`
	UserID string    `json:"userId"`
	Reason string    `json:"reason,omitempty"`
}

// Authorize checks that actor may perform t. CANCEL is open to the owner and
// operators; every other transition needs an operator.
func Authorize(t Transition, actor Actor) error {
	switch t {
	case Cancel:
		if actor.Operator || actor.Owner {
			return nil
		}
	case Validate, Move, Reopen, Start:
		if actor.Operator {
			return nil
		}
	default:
		return fmt.Errorf("%w: unknown transition %q", ErrInvalidTransition, t)
	}
	return fmt.Errorf("%w: %s requires operator role", ErrForbidden, t)
}

// Next returns the state reached by applying t to current.
//
// A cancelled event only leaves CANCELLED through an explicit REOPEN, which
// lands in PENDING so the schedule is reviewed again.
func Next(current State, t Transition) (State, error) {
	if current == Cancelled {
		if t == Reopen {
			return Pending, nil
		}
		return current, fmt.Errorf("%w: %s on cancelled event, reopen it first", ErrInvalidTransition, t)
	}

	switch t {
	case Validate:
		return Validated, nil
	case Cancel:
		return Cancelled, nil
	case Move:
		return Moved, nil
	case Start:
		if current == InProgress {
			return current, fmt.Errorf("%w: event already in progress", ErrInvalidTransition)
		}
		if current != Validated && current != Moved {
			return current, fmt.Errorf("%w: only scheduled events can start", ErrInvalidTransition)
		}
		return InProgress, nil
	case Reopen:
		return current, fmt.Errorf("%w: only cancelled events can be reopened", ErrInvalidTransition)
	}
	return current, fmt.Errorf("%w: unknown transition %q", ErrInvalidTransition, t)
}

// OnProposal returns the state after a proposal was submitted. A validated or
// moved event goes back to PENDING when the proposal changed anything.
func OnProposal(current State, changed bool) (State, bool) {
	if !changed {
		return current, false
	}
	switch current {
	case Validated, Moved:
		return Pending, true
	}
	return current, false
}

// Record builds the last-change pointer for a transition.
func Record(from, to State, userID, reason string, now time.Time) StateChange {
	return StateChange{
		From:   from,
		To:     to,
		Date:   now,
		UserID: userID,
		Reason: reason,
	}
}
