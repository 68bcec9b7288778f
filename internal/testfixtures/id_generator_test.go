package testfixtures

import (
	"context"
	"testing"
	"time"

	"github.com/example/lims-calendar/internal/application"
)

func TestIDGeneratorProducesSequentialIDs(t *testing.T) {
	gen := NewIDGenerator("slot")

	first := gen.Next()
	second := gen.Next()

	if first != "slot-1" || second != "slot-2" {
		t.Fatalf("unexpected identifiers: %q, %q", first, second)
	}
	if issued := gen.Issued(); len(issued) != 2 || issued[1] != "slot-2" {
		t.Fatalf("unexpected issued ids %v", issued)
	}
}

func TestIDGeneratorReset(t *testing.T) {
	gen := NewIDGenerator("")
	_ = gen.Next()

	gen.Reset("evt")
	if next := gen.Next(); next != "evt-1" {
		t.Fatalf("expected evt-1 after reset, got %q", next)
	}
	gen.Reset("")
	if next := gen.Next(); next != "evt-1" {
		t.Fatalf("expected prefix to survive an empty reset, got %q", next)
	}
}

func TestIDGeneratorTracksSlotAndEventIDs(t *testing.T) {
	gen := NewIDGenerator("lab")
	factory := NewServiceFactory(WithIDGenerator(gen))
	svc := factory.NewEventService(EventServiceDeps{Events: &eventStore{}, Notifier: nopNotifier{}})

	event, err := svc.CreateEvent(context.Background(), application.CreateEventParams{
		Principal: application.Principal{UserID: "owner-1", Role: application.RoleMember},
		Input: application.EventInput{
			Title: "NMR run",
			Slot:  application.SlotInput{StartDate: LabDay(6, 9), EndDate: LabDay(6, 9).Add(time.Hour)},
		},
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	issued := gen.Issued()
	if len(issued) != 2 || issued[0] != event.TimeSlots[0].ID || issued[1] != event.ID {
		t.Fatalf("issued %v, slot %q, event %q", issued, event.TimeSlots[0].ID, event.ID)
	}
}
