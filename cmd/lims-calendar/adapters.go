package main

import (
	"context"
	"time"

	"github.com/example/lims-calendar/internal/application"
	"github.com/example/lims-calendar/internal/eventstate"
	"github.com/example/lims-calendar/internal/persistence"
	"github.com/example/lims-calendar/internal/timeslot"
)

type eventRepositoryAdapter struct {
	repo persistence.EventRepository
}

func newEventRepositoryAdapter(repo persistence.EventRepository) *eventRepositoryAdapter {
	return &eventRepositoryAdapter{repo: repo}
}

func (a *eventRepositoryAdapter) CreateEvent(ctx context.Context, event application.CalendarEvent) error {
	return a.repo.CreateEvent(ctx, toPersistenceEvent(event))
}

func (a *eventRepositoryAdapter) GetEvent(ctx context.Context, id string) (application.CalendarEvent, error) {
	stored, err := a.repo.GetEvent(ctx, id)
	if err != nil {
		return application.CalendarEvent{}, err
	}
	return toApplicationEvent(stored), nil
}

func (a *eventRepositoryAdapter) UpdateEvent(ctx context.Context, event application.CalendarEvent, expectedVersion int64) error {
	return a.repo.UpdateEvent(ctx, toPersistenceEvent(event), expectedVersion)
}

func (a *eventRepositoryAdapter) ListEvents(ctx context.Context, filter application.EventFilter) ([]application.CalendarEvent, error) {
	models, err := a.repo.ListEvents(ctx, persistence.EventFilter{
		CreatedBy:  filter.CreatedBy,
		Discipline: filter.Discipline,
		State:      string(filter.State),
	})
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	events := make([]application.CalendarEvent, 0, len(models))
	for _, model := range models {
		events = append(events, toApplicationEvent(model))
	}
	return events, nil
}

type userStoreAdapter struct {
	repo persistence.UserRepository
}

func newUserStoreAdapter(repo persistence.UserRepository) *userStoreAdapter {
	return &userStoreAdapter{repo: repo}
}

func (a *userStoreAdapter) CreateUser(ctx context.Context, user application.User) error {
	return a.repo.CreateUser(ctx, persistence.User{
		ID:            user.ID,
		DisplayName:   user.DisplayName,
		Role:          string(user.Role),
		AccessKeyHash: user.AccessKeyHash,
		CreatedAt:     user.CreatedAt,
		UpdatedAt:     user.UpdatedAt,
	})
}

func (a *userStoreAdapter) GetUser(ctx context.Context, id string) (application.User, error) {
	stored, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return application.User{}, err
	}
	return application.User{
		ID:            stored.ID,
		DisplayName:   stored.DisplayName,
		Role:          application.Role(stored.Role),
		AccessKeyHash: stored.AccessKeyHash,
		CreatedAt:     stored.CreatedAt,
		UpdatedAt:     stored.UpdatedAt,
	}, nil
}

func toPersistenceEvent(event application.CalendarEvent) persistence.Event {
	model := persistence.Event{
		ID:          event.ID,
		Title:       event.Title,
		Discipline:  event.Discipline,
		State:       string(event.State),
		CreatedBy:   event.CreatedBy,
		StartDate:   cloneTime(event.StartDate),
		EndDate:     cloneTime(event.EndDate),
		TimeSlots:   toPersistenceSlots(event.TimeSlots, persistence.SlotKindProposed),
		ActualSlots: toPersistenceSlots(event.ActualSlots, persistence.SlotKindActual),
		Version:     event.Version,
		CreatedAt:   event.CreatedAt,
		UpdatedAt:   event.UpdatedAt,
	}
	if change := event.LastStateChange; change != nil {
		model.LastStateChange = &persistence.StateChange{
			From:   string(change.From),
			To:     string(change.To),
			Date:   change.Date,
			UserID: change.UserID,
			Reason: change.Reason,
		}
	}
	return model
}

func toApplicationEvent(model persistence.Event) application.CalendarEvent {
	event := application.CalendarEvent{
		ID:          model.ID,
		Title:       model.Title,
		Discipline:  model.Discipline,
		State:       eventstate.State(model.State),
		CreatedBy:   model.CreatedBy,
		StartDate:   cloneTime(model.StartDate),
		EndDate:     cloneTime(model.EndDate),
		TimeSlots:   toApplicationSlots(model.TimeSlots),
		ActualSlots: toApplicationSlots(model.ActualSlots),
		Version:     model.Version,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
	if change := model.LastStateChange; change != nil {
		event.LastStateChange = &eventstate.StateChange{
			From:   eventstate.State(change.From),
			To:     eventstate.State(change.To),
			Date:   change.Date,
			UserID: change.UserID,
			Reason: change.Reason,
		}
	}
	return event
}

func toPersistenceSlots(slots []timeslot.TimeSlot, kind persistence.SlotKind) []persistence.Slot {
	if len(slots) == 0 {
		return nil
	}
	models := make([]persistence.Slot, 0, len(slots))
	for i, slot := range slots {
		model := persistence.Slot{
			ID:         slot.ID,
			Kind:       kind,
			Position:   i,
			StartDate:  slot.StartDate,
			EndDate:    slot.EndDate,
			Status:     string(slot.Status),
			Room:       slot.Room,
			Notes:      slot.Notes,
			CreatedBy:  slot.CreatedBy,
			ModifiedBy: make([]persistence.SlotModification, 0, len(slot.ModifiedBy)),
		}
		if slot.ReferentActuelTimeID != nil {
			ref := *slot.ReferentActuelTimeID
			model.ReferentActuelTimeID = &ref
		}
		for _, entry := range slot.ModifiedBy {
			model.ModifiedBy = append(model.ModifiedBy, persistence.SlotModification{
				UserID: entry.UserID,
				Date:   entry.Date,
				Action: string(entry.Action),
				Note:   entry.Note,
			})
		}
		models = append(models, model)
	}
	return models
}

func toApplicationSlots(models []persistence.Slot) []timeslot.TimeSlot {
	if len(models) == 0 {
		return nil
	}
	slots := make([]timeslot.TimeSlot, 0, len(models))
	for _, model := range models {
		slot := timeslot.TimeSlot{
			ID:         model.ID,
			StartDate:  model.StartDate,
			EndDate:    model.EndDate,
			Status:     timeslot.Status(model.Status),
			Room:       model.Room,
			Notes:      model.Notes,
			CreatedBy:  model.CreatedBy,
			ModifiedBy: make([]timeslot.Modification, 0, len(model.ModifiedBy)),
		}
		if model.ReferentActuelTimeID != nil {
			ref := *model.ReferentActuelTimeID
			slot.ReferentActuelTimeID = &ref
		}
		for _, entry := range model.ModifiedBy {
			slot.ModifiedBy = append(slot.ModifiedBy, timeslot.Modification{
				UserID: entry.UserID,
				Date:   entry.Date,
				Action: timeslot.Action(entry.Action),
				Note:   entry.Note,
			})
		}
		slots = append(slots, slot)
	}
	return slots
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	copied := *t
	return &copied
}
