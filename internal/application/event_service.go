package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/lims-calendar/internal/eventstate"
	"github.com/example/lims-calendar/internal/notify"
	"github.com/example/lims-calendar/internal/persistence"
	"github.com/example/lims-calendar/internal/timeslot"
)

// EventRepository captures the persistence operations needed by the service.
type EventRepository interface {
	CreateEvent(ctx context.Context, event CalendarEvent) error
	GetEvent(ctx context.Context, id string) (CalendarEvent, error)
	// UpdateEvent must fail with a conflict when the stored version differs
	// from expectedVersion.
	UpdateEvent(ctx context.Context, event CalendarEvent, expectedVersion int64) error
	ListEvents(ctx context.Context, filter EventFilter) ([]CalendarEvent, error)
}

// Notifier delivers change notifications. Delivery failures are logged and
// never fail the operation that triggered them.
type Notifier interface {
	Dispatch(ctx context.Context, n notify.Notification) error
}

// EventService orchestrates slot proposals, owner decisions and operator
// lifecycle actions on calendar events.
type EventService struct {
	events      EventRepository
	notifier    Notifier
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewEventService constructs an event service with the provided dependencies.
func NewEventService(events EventRepository, notifier Notifier, idGenerator func() string, now func() time.Time) *EventService {
	return NewEventServiceWithLogger(events, notifier, idGenerator, now, nil)
}

// NewEventServiceWithLogger constructs an event service with a specified logger.
func NewEventServiceWithLogger(events EventRepository, notifier Notifier, idGenerator func() string, now func() time.Time, logger *slog.Logger) *EventService {
	if idGenerator == nil {
		idGenerator = timeslot.NewID
	}
	if now == nil {
		now = time.Now
	}
	return &EventService{
		events:      events,
		notifier:    notifier,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *EventService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	var base *slog.Logger
	if s != nil {
		base = s.logger
	}
	return serviceLogger(ctx, base, "EventService", operation, attrs...)
}

// CreateEvent persists a new pending event with one initial slot, which is
// mirrored into the in-force schedule.
func (s *EventService) CreateEvent(ctx context.Context, params CreateEventParams) (event CalendarEvent, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}
	if s.events == nil {
		err = fmt.Errorf("event repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "CreateEvent", "principal_id", params.Principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create event", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("event_id", event.ID).InfoContext(ctx, "event created")
	}()

	if params.Principal.UserID == "" {
		err = ErrUnauthorized
		return
	}

	vErr := &ValidationError{}
	title := strings.TrimSpace(params.Input.Title)
	if title == "" {
		vErr.add("title", "title is required")
	}
	vErr.merge(validateSlotInputs("slots", []SlotInput{params.Input.Slot}))
	if vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.now()
	initial := toTimeSlots([]SlotInput{params.Input.Slot})
	initial[0].ReferentActuelTimeID = nil
	slots := timeslot.BuildRecords(initial, nil, params.Principal.UserID, timeslot.ActionCreated, now, s.idGenerator)

	event = CalendarEvent{
		ID:          s.idGenerator(),
		Title:       title,
		Discipline:  strings.TrimSpace(params.Input.Discipline),
		State:       eventstate.Pending,
		CreatedBy:   params.Principal.UserID,
		TimeSlots:   slots,
		ActualSlots: timeslot.Synchronize(slots),
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	refreshBounds(&event)

	if err = s.events.CreateEvent(ctx, event); err != nil {
		err = fmt.Errorf("event %s: %w", event.ID, mapEventRepoError(err))
		return
	}

	s.dispatch(ctx, logger, event, notify.KindCreated, params.Principal.UserID)
	return
}

// GetEvent returns one event. Any authenticated principal may read events.
func (s *EventService) GetEvent(ctx context.Context, principal Principal, eventID string) (CalendarEvent, error) {
	if s == nil {
		return CalendarEvent{}, fmt.Errorf("EventService is nil")
	}
	if s.events == nil {
		return CalendarEvent{}, fmt.Errorf("event repository not configured")
	}
	if principal.UserID == "" {
		return CalendarEvent{}, ErrUnauthorized
	}

	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		err = fmt.Errorf("event %s: %w", eventID, mapEventRepoError(err))
		s.loggerWith(ctx, "GetEvent", "principal_id", principal.UserID, "event_id", eventID).
			ErrorContext(ctx, "failed to load event", "error", err, "error_kind", ErrorKind(err))
		return CalendarEvent{}, err
	}
	return event, nil
}

// ListEvents returns events matching params. Members only see their own
// events; operators may list everything.
func (s *EventService) ListEvents(ctx context.Context, params ListEventsParams) (events []CalendarEvent, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}
	if s.events == nil {
		return nil, nil
	}
	if params.Principal.UserID == "" {
		err = ErrUnauthorized
		return
	}

	logger := s.loggerWith(ctx, "ListEvents", "principal_id", params.Principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list events", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "events listed", "count", len(events))
	}()

	filter := EventFilter{
		CreatedBy:  strings.TrimSpace(params.CreatedBy),
		Discipline: strings.TrimSpace(params.Discipline),
		State:      params.State,
	}
	if filter.State != "" && !filter.State.Valid() {
		err = invalid("state", "unknown event state")
		return
	}
	if !params.Principal.IsOperator() {
		if filter.CreatedBy != "" && filter.CreatedBy != params.Principal.UserID {
			err = fmt.Errorf("listing events of another user: %w", ErrForbidden)
			return
		}
		filter.CreatedBy = params.Principal.UserID
	}

	events, err = s.events.ListEvents(ctx, filter)
	if err != nil {
		err = mapEventRepoError(err)
		return
	}
	return
}

// ProposeSlots replaces the pending proposal of an event with a full
// submitted set. The owner and operators may propose.
func (s *EventService) ProposeSlots(ctx context.Context, params ProposeSlotsParams) (event CalendarEvent, err error) {
	logger := s.loggerWith(ctx, "ProposeSlots",
		"principal_id", params.Principal.UserID,
		"event_id", params.EventID,
		"slot_count", len(params.Slots),
	)
	defer s.logOutcome(ctx, logger, "slots proposed", &err)

	event, err = s.apply(ctx, logger, params.Principal, params.EventID, params.ExpectedVersion, func(event *CalendarEvent, now time.Time) (notify.Kind, error) {
		actorID := params.Principal.UserID
		if actorID != event.CreatedBy && !params.Principal.IsOperator() {
			return "", fmt.Errorf("only the owner or an operator may propose slots: %w", ErrForbidden)
		}
		if err := requireOpen(*event); err != nil {
			return "", err
		}

		changed, err := proposeSlots(event, params.Slots, actorID, now, s.idGenerator)
		if err != nil {
			return "", err
		}
		if !changed {
			return "", nil
		}
		if next, moved := eventstate.OnProposal(event.State, changed); moved {
			change := eventstate.Record(event.State, next, actorID, "proposal changed", now)
			event.State = next
			event.LastStateChange = &change
		}
		return notify.KindProposed, nil
	})
	return
}

// ApproveSlot confirms one proposed slot. Only the owner may approve.
func (s *EventService) ApproveSlot(ctx context.Context, params SlotDecisionParams) (event CalendarEvent, err error) {
	logger := s.loggerWith(ctx, "ApproveSlot",
		"principal_id", params.Principal.UserID,
		"event_id", params.EventID,
		"slot_id", params.SlotID,
	)
	defer s.logOutcome(ctx, logger, "slot approved", &err)

	event, err = s.apply(ctx, logger, params.Principal, params.EventID, params.ExpectedVersion, func(event *CalendarEvent, now time.Time) (notify.Kind, error) {
		if err := requireOwner(*event, params.Principal); err != nil {
			return "", err
		}
		if err := requireOpen(*event); err != nil {
			return "", err
		}
		if err := approveSlot(event, params.SlotID, params.Principal.UserID, now); err != nil {
			return "", err
		}
		return notify.KindSlotApproved, nil
	})
	return
}

// RejectSlot invalidates one pending proposal. Only the owner may reject.
func (s *EventService) RejectSlot(ctx context.Context, params SlotDecisionParams) (event CalendarEvent, err error) {
	logger := s.loggerWith(ctx, "RejectSlot",
		"principal_id", params.Principal.UserID,
		"event_id", params.EventID,
		"slot_id", params.SlotID,
	)
	defer s.logOutcome(ctx, logger, "slot rejected", &err)

	event, err = s.apply(ctx, logger, params.Principal, params.EventID, params.ExpectedVersion, func(event *CalendarEvent, now time.Time) (notify.Kind, error) {
		if err := requireOwner(*event, params.Principal); err != nil {
			return "", err
		}
		if err := requireOpen(*event); err != nil {
			return "", err
		}
		if err := rejectSlot(event, params.SlotID, strings.TrimSpace(params.Reason), params.Principal.UserID, now); err != nil {
			return "", err
		}
		return notify.KindSlotRejected, nil
	})
	return
}

// ApproveSlots approves a batch of slots. Every other active slot, in force or
// pending, is invalidated.
func (s *EventService) ApproveSlots(ctx context.Context, params BatchDecisionParams) (event CalendarEvent, err error) {
	logger := s.loggerWith(ctx, "ApproveSlots",
		"principal_id", params.Principal.UserID,
		"event_id", params.EventID,
		"slot_count", len(params.SlotIDs),
	)
	defer s.logOutcome(ctx, logger, "slots approved", &err)

	event, err = s.apply(ctx, logger, params.Principal, params.EventID, params.ExpectedVersion, func(event *CalendarEvent, now time.Time) (notify.Kind, error) {
		if err := requireOwner(*event, params.Principal); err != nil {
			return "", err
		}
		if err := requireOpen(*event); err != nil {
			return "", err
		}
		changed, err := approveSlots(event, params.SlotIDs, strings.TrimSpace(params.Reason), params.Principal.UserID, now)
		if err != nil || !changed {
			return "", err
		}
		return notify.KindSlotsApproved, nil
	})
	return
}

// RejectSlots rejects a batch of slots and removes them from force. When no
// active in-force slot remains the event is cancelled.
func (s *EventService) RejectSlots(ctx context.Context, params BatchDecisionParams) (event CalendarEvent, err error) {
	logger := s.loggerWith(ctx, "RejectSlots",
		"principal_id", params.Principal.UserID,
		"event_id", params.EventID,
		"slot_count", len(params.SlotIDs),
	)
	defer s.logOutcome(ctx, logger, "slots rejected", &err)

	event, err = s.apply(ctx, logger, params.Principal, params.EventID, params.ExpectedVersion, func(event *CalendarEvent, now time.Time) (notify.Kind, error) {
		if err := requireOwner(*event, params.Principal); err != nil {
			return "", err
		}
		if err := requireOpen(*event); err != nil {
			return "", err
		}
		changed, err := rejectSlots(event, params.SlotIDs, params.Reason, params.Principal.UserID, now)
		if err != nil {
			return "", err
		}

		if !hasActive(event.ActualSlots) {
			reason := "all time slots rejected: " + strings.TrimSpace(params.Reason)
			change := eventstate.Record(event.State, eventstate.Cancelled, params.Principal.UserID, reason, now)
			event.State = eventstate.Cancelled
			event.LastStateChange = &change
			return notify.KindStateChanged, nil
		}
		if !changed {
			return "", nil
		}
		return notify.KindSlotsRejected, nil
	})
	return
}

// OperatorAction applies a lifecycle transition to an event.
func (s *EventService) OperatorAction(ctx context.Context, params OperatorActionParams) (event CalendarEvent, err error) {
	logger := s.loggerWith(ctx, "OperatorAction",
		"principal_id", params.Principal.UserID,
		"event_id", params.EventID,
		"action", string(params.Action),
	)
	defer s.logOutcome(ctx, logger, "operator action applied", &err)

	event, err = s.apply(ctx, logger, params.Principal, params.EventID, params.ExpectedVersion, func(event *CalendarEvent, now time.Time) (notify.Kind, error) {
		actorID := params.Principal.UserID
		actor := eventstate.Actor{
			UserID:   actorID,
			Operator: params.Principal.IsOperator(),
			Owner:    actorID != "" && actorID == event.CreatedBy,
		}
		if err := eventstate.Authorize(params.Action, actor); err != nil {
			return "", mapStateError(err)
		}
		if params.Action == eventstate.Move && len(params.Slots) == 0 {
			return "", invalid("slots", "at least one replacement slot is required")
		}

		from := event.State
		to, err := eventstate.Next(from, params.Action)
		if err != nil {
			return "", mapStateError(err)
		}

		reason := strings.TrimSpace(params.Reason)
		switch params.Action {
		case eventstate.Validate:
			validateEvent(event, reason, actorID, now)
		case eventstate.Cancel:
			cancelEvent(event, reason, actorID, now)
		case eventstate.Move:
			if err := moveEvent(event, params.Slots, actorID, now, s.idGenerator); err != nil {
				return "", err
			}
		case eventstate.Reopen:
			reopenEvent(event, reason, actorID, now)
		}

		change := eventstate.Record(from, to, actorID, reason, now)
		event.State = to
		event.LastStateChange = &change
		return notify.KindStateChanged, nil
	})
	return
}

// SlotStatus classifies a proposed slot as new, approved or pending.
func (s *EventService) SlotStatus(ctx context.Context, principal Principal, eventID, slotID string) (SlotStatus, error) {
	event, err := s.GetEvent(ctx, principal, eventID)
	if err != nil {
		return SlotStatus{}, err
	}
	idx := timeslot.IndexOf(event.TimeSlots, slotID)
	if idx < 0 {
		return SlotStatus{}, fmt.Errorf("event %s: slot %s: %w", eventID, slotID, ErrNotFound)
	}
	return SlotStatus{
		EventID: eventID,
		SlotID:  slotID,
		State:   timeslot.GetSlotStatus(event.TimeSlots[idx], event.ActualSlots),
	}, nil
}

type mutation func(event *CalendarEvent, now time.Time) (notify.Kind, error)

// apply runs one read-modify-write cycle. fn works on a private copy and
// returns the notification kind to emit, or "" when nothing changed and no
// write is needed. The write is conditional on the version that was read.
func (s *EventService) apply(ctx context.Context, logger *slog.Logger, principal Principal, eventID string, expectedVersion int64, fn mutation) (CalendarEvent, error) {
	if s == nil {
		return CalendarEvent{}, fmt.Errorf("EventService is nil")
	}
	if s.events == nil {
		return CalendarEvent{}, fmt.Errorf("event repository not configured")
	}
	if principal.UserID == "" {
		return CalendarEvent{}, ErrUnauthorized
	}

	current, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return CalendarEvent{}, fmt.Errorf("event %s: %w", eventID, mapEventRepoError(err))
	}
	if expectedVersion > 0 && current.Version != expectedVersion {
		return CalendarEvent{}, fmt.Errorf("event %s is at version %d, expected %d: %w", eventID, current.Version, expectedVersion, ErrConflict)
	}

	now := s.now()
	next := current.Clone()
	kind, err := fn(&next, now)
	if err != nil {
		return CalendarEvent{}, fmt.Errorf("event %s: %w", eventID, err)
	}
	if kind == "" {
		return current, nil
	}

	refreshBounds(&next)
	next.Version = current.Version + 1
	next.UpdatedAt = now
	if err := s.events.UpdateEvent(ctx, next, current.Version); err != nil {
		return CalendarEvent{}, fmt.Errorf("event %s: %w", eventID, mapEventRepoError(err))
	}

	s.dispatch(ctx, logger, next, kind, principal.UserID)
	return next, nil
}

func (s *EventService) logOutcome(ctx context.Context, logger *slog.Logger, message string, errp *error) {
	if err := *errp; err != nil {
		logger.ErrorContext(ctx, "operation failed", "error", err, "error_kind", ErrorKind(err))
		return
	}
	logger.InfoContext(ctx, message)
}

func (s *EventService) dispatch(ctx context.Context, logger *slog.Logger, event CalendarEvent, kind notify.Kind, actorID string) {
	if s.notifier == nil {
		return
	}
	n := notify.Notification{
		EventID: event.ID,
		Kind:    kind,
		ActorID: actorID,
		OwnerID: event.CreatedBy,
		State:   string(event.State),
		Version: event.Version,
		At:      event.UpdatedAt,
	}
	if err := s.notifier.Dispatch(ctx, n); err != nil {
		logger.WarnContext(ctx, "notification dispatch failed", "kind", string(kind), "error", err)
	}
}

func mapEventRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, persistence.ErrVersionConflict):
		return ErrConflict
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	}
	return err
}

func mapStateError(err error) error {
	switch {
	case errors.Is(err, eventstate.ErrForbidden):
		return fmt.Errorf("%v: %w", err, ErrForbidden)
	case errors.Is(err, eventstate.ErrInvalidTransition):
		return fmt.Errorf("%v: %w", err, ErrInvalidTransition)
	}
	return err
}
