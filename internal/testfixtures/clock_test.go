package testfixtures

import (
	"context"
	"testing"
	"time"

	"github.com/example/lims-calendar/internal/application"
)

func TestClockDefaultsToReferenceTime(t *testing.T) {
	clock := NewClock(time.Time{})
	if !clock.Now().Equal(ReferenceTime()) {
		t.Fatalf("expected ReferenceTime, got %v", clock.Now())
	}
	if !clock.Now().Equal(clock.Peek()) {
		t.Fatalf("frozen clock must not move")
	}
}

func TestSteppingClockGivesDistinctReadings(t *testing.T) {
	start := time.Date(2024, time.March, 4, 8, 0, 0, 0, time.UTC)
	clock := NewSteppingClock(start, time.Minute)

	first, second := clock.Now(), clock.Now()
	if !first.Equal(start.Add(time.Minute)) || !second.Equal(start.Add(2*time.Minute)) {
		t.Fatalf("unexpected readings %v, %v", first, second)
	}
	if !clock.Peek().Equal(second) {
		t.Fatalf("Peek = %v, want %v", clock.Peek(), second)
	}
}

func TestClockAdvanceThroughNowFunc(t *testing.T) {
	clock := NewClock(LabDay(4, 9))
	nowFn := clock.NowFunc()

	clock.Advance(3 * time.Hour)
	if got := nowFn(); !got.Equal(LabDay(4, 12)) {
		t.Fatalf("expected end of the morning session, got %v", got)
	}

	var nilClock *Clock
	if nilClock.NowFunc() == nil {
		t.Fatalf("nil clock must fall back to time.Now")
	}
}

func TestSteppingClockSeparatesEventTimestamps(t *testing.T) {
	factory := NewServiceFactory(WithClock(NewSteppingClock(time.Time{}, time.Second)))
	svc := factory.NewEventService(EventServiceDeps{Events: &eventStore{}, Notifier: nopNotifier{}})

	create := func(title string) application.CalendarEvent {
		t.Helper()
		event, err := svc.CreateEvent(context.Background(), application.CreateEventParams{
			Principal: application.Principal{UserID: "owner-1", Role: application.RoleMember},
			Input: application.EventInput{
				Title: title,
				Slot:  application.SlotInput{StartDate: LabDay(4, 9), EndDate: LabDay(4, 10)},
			},
		})
		if err != nil {
			t.Fatalf("CreateEvent: %v", err)
		}
		return event
	}

	first, second := create("XRD"), create("SEM")
	if !second.CreatedAt.After(first.CreatedAt) {
		t.Fatalf("expected increasing timestamps, got %v then %v", first.CreatedAt, second.CreatedAt)
	}
	if got := first.TimeSlots[0].ModifiedBy[0].Date; !got.Equal(first.CreatedAt) {
		t.Fatalf("creation history dated %v, event created %v", got, first.CreatedAt)
	}
}
