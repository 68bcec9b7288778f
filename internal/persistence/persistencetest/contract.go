// Package persistencetest holds behaviour checks shared by every repository
// implementation.
package persistencetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/lims-calendar/internal/persistence"
)

// Store is the repository surface under test.
type Store interface {
	persistence.EventRepository
	persistence.UserRepository
}

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) Store

// RunContract exercises the repository semantics the services rely on.
func RunContract(t *testing.T, newStore Factory) {
	t.Run("create and get round trip", func(t *testing.T) {
		t.Parallel()
		store := newStore(t)
		ctx := context.Background()

		event := SampleEvent("evt-1", "owner-1")
		if err := store.CreateEvent(ctx, event); err != nil {
			t.Fatalf("CreateEvent failed: %v", err)
		}
		got, err := store.GetEvent(ctx, "evt-1")
		if err != nil {
			t.Fatalf("GetEvent failed: %v", err)
		}
		if got.Version != 1 {
			t.Fatalf("expected version 1, got %d", got.Version)
		}
		if got.Title != event.Title || got.CreatedBy != "owner-1" || got.State != "PENDING" {
			t.Fatalf("unexpected event %#v", got)
		}
		if len(got.TimeSlots) != 2 || got.TimeSlots[0].ID != "slot-b" || got.TimeSlots[1].ID != "slot-a" {
			t.Fatalf("proposed slots lost their order: %#v", got.TimeSlots)
		}
		if len(got.ActualSlots) != 1 || got.ActualSlots[0].ID != "slot-a" {
			t.Fatalf("unexpected actual slots %#v", got.ActualSlots)
		}
		proposed := got.TimeSlots[0]
		if proposed.ReferentActuelTimeID == nil || *proposed.ReferentActuelTimeID != "slot-a" {
			t.Fatalf("referent not preserved: %#v", proposed.ReferentActuelTimeID)
		}
		if !proposed.StartDate.Equal(event.TimeSlots[0].StartDate) || !proposed.EndDate.Equal(event.TimeSlots[0].EndDate) {
			t.Fatalf("slot bounds changed: %v-%v", proposed.StartDate, proposed.EndDate)
		}
		if len(proposed.ModifiedBy) != 1 || proposed.ModifiedBy[0].Action != "created" || proposed.ModifiedBy[0].UserID != "owner-1" {
			t.Fatalf("history not preserved: %#v", proposed.ModifiedBy)
		}
		if got.StartDate == nil || !got.StartDate.Equal(*event.StartDate) {
			t.Fatalf("event start not preserved: %v", got.StartDate)
		}
		if got.LastStateChange == nil || got.LastStateChange.To != "PENDING" {
			t.Fatalf("state change not preserved: %#v", got.LastStateChange)
		}
	})

	t.Run("duplicate create", func(t *testing.T) {
		t.Parallel()
		store := newStore(t)
		ctx := context.Background()

		event := SampleEvent("evt-dup", "owner-1")
		if err := store.CreateEvent(ctx, event); err != nil {
			t.Fatalf("CreateEvent failed: %v", err)
		}
		if err := store.CreateEvent(ctx, event); !errors.Is(err, persistence.ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("missing event", func(t *testing.T) {
		t.Parallel()
		store := newStore(t)
		if _, err := store.GetEvent(context.Background(), "nope"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		err := store.UpdateEvent(context.Background(), SampleEvent("nope", "owner-1"), 1)
		if !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound on update, got %v", err)
		}
	})

	t.Run("conditional update", func(t *testing.T) {
		t.Parallel()
		store := newStore(t)
		ctx := context.Background()

		event := SampleEvent("evt-upd", "owner-1")
		if err := store.CreateEvent(ctx, event); err != nil {
			t.Fatalf("CreateEvent failed: %v", err)
		}

		updated := event
		updated.State = "VALIDATED"
		updated.CreatedBy = "someone-else"
		updated.TimeSlots = event.TimeSlots[:1]
		updated.ActualSlots = []persistence.Slot{}
		if err := store.UpdateEvent(ctx, updated, 1); err != nil {
			t.Fatalf("UpdateEvent failed: %v", err)
		}

		got, err := store.GetEvent(ctx, "evt-upd")
		if err != nil {
			t.Fatalf("GetEvent failed: %v", err)
		}
		if got.Version != 2 || got.State != "VALIDATED" {
			t.Fatalf("unexpected version/state %d/%s", got.Version, got.State)
		}
		if got.CreatedBy != "owner-1" {
			t.Fatalf("owner must not change, got %q", got.CreatedBy)
		}
		if len(got.TimeSlots) != 1 || len(got.ActualSlots) != 0 {
			t.Fatalf("slot collections were not replaced: %d/%d", len(got.TimeSlots), len(got.ActualSlots))
		}

		if err := store.UpdateEvent(ctx, updated, 1); !errors.Is(err, persistence.ErrVersionConflict) {
			t.Fatalf("expected ErrVersionConflict for stale version, got %v", err)
		}
	})

	t.Run("list filters and orders", func(t *testing.T) {
		t.Parallel()
		store := newStore(t)
		ctx := context.Background()

		late := SampleEvent("evt-late", "owner-1")
		lateStart := late.StartDate.Add(48 * time.Hour)
		late.StartDate = &lateStart
		early := SampleEvent("evt-early", "owner-1")
		other := SampleEvent("evt-other", "owner-2")
		other.Discipline = "chemistry"

		for _, event := range []persistence.Event{late, early, other} {
			if err := store.CreateEvent(ctx, event); err != nil {
				t.Fatalf("CreateEvent(%s) failed: %v", event.ID, err)
			}
		}

		mine, err := store.ListEvents(ctx, persistence.EventFilter{CreatedBy: "owner-1"})
		if err != nil {
			t.Fatalf("ListEvents failed: %v", err)
		}
		if len(mine) != 2 || mine[0].ID != "evt-early" || mine[1].ID != "evt-late" {
			t.Fatalf("unexpected listing %#v", ids(mine))
		}
		if len(mine[0].TimeSlots) != 2 {
			t.Fatalf("listed events must carry their slots")
		}

		chemistry, err := store.ListEvents(ctx, persistence.EventFilter{Discipline: "chemistry"})
		if err != nil {
			t.Fatalf("ListEvents failed: %v", err)
		}
		if len(chemistry) != 1 || chemistry[0].ID != "evt-other" {
			t.Fatalf("unexpected discipline listing %#v", ids(chemistry))
		}

		none, err := store.ListEvents(ctx, persistence.EventFilter{State: "CANCELLED"})
		if err != nil {
			t.Fatalf("ListEvents failed: %v", err)
		}
		if none == nil || len(none) != 0 {
			t.Fatalf("expected empty non-nil listing, got %#v", none)
		}
	})

	t.Run("users", func(t *testing.T) {
		t.Parallel()
		store := newStore(t)
		ctx := context.Background()

		user := persistence.User{ID: "user-1", DisplayName: "Ada", Role: "operator", AccessKeyHash: "hash"}
		if err := store.CreateUser(ctx, user); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
		got, err := store.GetUser(ctx, "user-1")
		if err != nil {
			t.Fatalf("GetUser failed: %v", err)
		}
		if got.DisplayName != "Ada" || got.Role != "operator" || got.AccessKeyHash != "hash" {
			t.Fatalf("unexpected user %#v", got)
		}
		if err := store.CreateUser(ctx, user); !errors.Is(err, persistence.ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
		if _, err := store.GetUser(ctx, "ghost"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

// SampleEvent returns a pending event with two proposed slots, the second of
// which is also in force.
func SampleEvent(id, owner string) persistence.Event {
	start := time.Date(2024, time.March, 4, 9, 0, 0, 0, time.Local)
	end := start.Add(3 * time.Hour)
	created := []persistence.SlotModification{{UserID: owner, Date: start.Add(-24 * time.Hour), Action: "created"}}
	referent := "slot-a"

	slotA := persistence.Slot{
		ID:         "slot-a",
		StartDate:  start,
		EndDate:    start.Add(time.Hour),
		Status:     "active",
		Room:       "lab-1",
		CreatedBy:  owner,
		ModifiedBy: created,
	}
	slotB := persistence.Slot{
		ID:                   "slot-b",
		StartDate:            start.Add(2 * time.Hour),
		EndDate:              end,
		Status:               "active",
		Notes:                "bring samples",
		ReferentActuelTimeID: &referent,
		CreatedBy:            owner,
		ModifiedBy:           created,
	}

	return persistence.Event{
		ID:          id,
		Title:       "Spectrometry run",
		Discipline:  "physics",
		State:       "PENDING",
		CreatedBy:   owner,
		StartDate:   &start,
		EndDate:     &end,
		TimeSlots:   []persistence.Slot{slotB, slotA},
		ActualSlots: []persistence.Slot{slotA},
		LastStateChange: &persistence.StateChange{
			To:     "PENDING",
			Date:   start.Add(-24 * time.Hour).UTC(),
			UserID: owner,
		},
	}
}

func ids(events []persistence.Event) []string {
	out := make([]string, len(events))
	for i, event := range events {
		out[i] = event.ID
	}
	return out
}
