package memory

import (
	"context"
	"testing"

	"github.com/example/lims-calendar/internal/persistence/persistencetest"
)

func TestStorageContract(t *testing.T) {
	t.Parallel()

	persistencetest.RunContract(t, func(t *testing.T) persistencetest.Store {
		return New()
	})
}

func TestStorageReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := New()
	if err := store.CreateEvent(ctx, persistencetest.SampleEvent("evt-1", "owner-1")); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}

	first, err := store.GetEvent(ctx, "evt-1")
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	first.TimeSlots[0].Status = "deleted"
	first.TimeSlots[0].ModifiedBy[0].Action = "tampered"

	second, err := store.GetEvent(ctx, "evt-1")
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if second.TimeSlots[0].Status != "active" || second.TimeSlots[0].ModifiedBy[0].Action != "created" {
		t.Fatalf("stored event was mutated through a returned copy: %#v", second.TimeSlots[0])
	}
}
