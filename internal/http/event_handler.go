package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/lims-calendar/internal/application"
	"github.com/example/lims-calendar/internal/eventstate"
	"github.com/example/lims-calendar/internal/timeslot"
	"github.com/go-playground/validator/v10"
)

type eventService interface {
	CreateEvent(ctx context.Context, params application.CreateEventParams) (application.CalendarEvent, error)
	GetEvent(ctx context.Context, principal application.Principal, eventID string) (application.CalendarEvent, error)
	ListEvents(ctx context.Context, params application.ListEventsParams) ([]application.CalendarEvent, error)
	ProposeSlots(ctx context.Context, params application.ProposeSlotsParams) (application.CalendarEvent, error)
	ApproveSlot(ctx context.Context, params application.SlotDecisionParams) (application.CalendarEvent, error)
	RejectSlot(ctx context.Context, params application.SlotDecisionParams) (application.CalendarEvent, error)
	ApproveSlots(ctx context.Context, params application.BatchDecisionParams) (application.CalendarEvent, error)
	RejectSlots(ctx context.Context, params application.BatchDecisionParams) (application.CalendarEvent, error)
	OperatorAction(ctx context.Context, params application.OperatorActionParams) (application.CalendarEvent, error)
	SlotStatus(ctx context.Context, principal application.Principal, eventID, slotID string) (application.SlotStatus, error)
}

type EventHandler struct {
	service   eventService
	responder responder
	validate  *validator.Validate
	logger    *slog.Logger
}

func NewEventHandler(service eventService, logger *slog.Logger) *EventHandler {
	logger = defaultLogger(logger)
	return &EventHandler{
		service:   service,
		responder: newResponder(logger),
		validate:  newValidator(),
		logger:    logger,
	}
}

func (h *EventHandler) available(w http.ResponseWriter) bool {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	var req createEventRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	slot, fields := req.Slot.toInput("slot")
	if len(fields) > 0 {
		h.responder.writeValidation(r.Context(), w, fields)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	event, err := h.service.CreateEvent(r.Context(), application.CreateEventParams{
		Principal: principal,
		Input: application.EventInput{
			Title:      req.Title,
			Discipline: req.Discipline,
			Slot:       slot,
		},
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	w.Header().Set("Location", "/events/"+event.ID)
	h.renderEvent(r.Context(), w, event, http.StatusCreated)
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	event, err := h.service.GetEvent(r.Context(), principal, r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.renderEvent(r.Context(), w, event, http.StatusOK)
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	query := r.URL.Query()
	events, err := h.service.ListEvents(r.Context(), application.ListEventsParams{
		Principal:  principal,
		CreatedBy:  query.Get("createdBy"),
		Discipline: query.Get("discipline"),
		State:      eventstate.State(strings.ToUpper(strings.TrimSpace(query.Get("state")))),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	response := listEventsResponse{Events: make([]eventDTO, len(events))}
	for i, event := range events {
		response.Events[i] = toEventDTO(event)
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, response)
}

func (h *EventHandler) ProposeSlots(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	version, ok := h.expectedVersion(w, r)
	if !ok {
		return
	}
	var req proposeSlotsRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	slots, fields := toSlotInputs("slots", req.Slots)
	if len(fields) > 0 {
		h.responder.writeValidation(r.Context(), w, fields)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	event, err := h.service.ProposeSlots(r.Context(), application.ProposeSlotsParams{
		Principal:       principal,
		EventID:         r.PathValue("id"),
		Slots:           slots,
		ExpectedVersion: version,
	})
	h.respond(w, r, "ProposeSlots", event, err)
}

func (h *EventHandler) ApproveSlot(w http.ResponseWriter, r *http.Request) {
	h.decideSlot(w, r, true)
}

func (h *EventHandler) RejectSlot(w http.ResponseWriter, r *http.Request) {
	h.decideSlot(w, r, false)
}

func (h *EventHandler) ApproveSlots(w http.ResponseWriter, r *http.Request) {
	h.decideBatch(w, r, true)
}

func (h *EventHandler) RejectSlots(w http.ResponseWriter, r *http.Request) {
	h.decideBatch(w, r, false)
}

func (h *EventHandler) OperatorAction(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	version, ok := h.expectedVersion(w, r)
	if !ok {
		return
	}
	var req operatorActionRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	action, _ := eventstate.ParseTransition(req.Action)
	slots, fields := toSlotInputs("slots", req.Slots)
	if len(fields) > 0 {
		h.responder.writeValidation(r.Context(), w, fields)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	event, err := h.service.OperatorAction(r.Context(), application.OperatorActionParams{
		Principal:       principal,
		EventID:         r.PathValue("id"),
		Action:          action,
		Reason:          req.Reason,
		Slots:           slots,
		ExpectedVersion: version,
	})
	h.respond(w, r, "OperatorAction", event, err)
}

func (h *EventHandler) SlotStatus(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	status, err := h.service.SlotStatus(r.Context(), principal, r.PathValue("id"), r.PathValue("slotID"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, slotStatusDTO{
		EventID: status.EventID,
		SlotID:  status.SlotID,
		Status:  string(status.State),
	})
}

func (h *EventHandler) decideSlot(w http.ResponseWriter, r *http.Request, approve bool) {
	if !h.available(w) {
		return
	}
	operation, decide := "RejectSlot", h.service.RejectSlot
	if approve {
		operation, decide = "ApproveSlot", h.service.ApproveSlot
	}

	version, ok := h.expectedVersion(w, r)
	if !ok {
		return
	}
	var req slotDecisionRequest
	if !h.decode(w, r, &req, true) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	event, err := decide(r.Context(), application.SlotDecisionParams{
		Principal:       principal,
		EventID:         r.PathValue("id"),
		SlotID:          r.PathValue("slotID"),
		Reason:          req.Reason,
		ExpectedVersion: version,
	})
	h.respond(w, r, operation, event, err)
}

func (h *EventHandler) decideBatch(w http.ResponseWriter, r *http.Request, approve bool) {
	if !h.available(w) {
		return
	}
	operation, decide := "RejectSlots", h.service.RejectSlots
	if approve {
		operation, decide = "ApproveSlots", h.service.ApproveSlots
	}

	version, ok := h.expectedVersion(w, r)
	if !ok {
		return
	}
	var req batchDecisionRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	event, err := decide(r.Context(), application.BatchDecisionParams{
		Principal:       principal,
		EventID:         r.PathValue("id"),
		SlotIDs:         req.SlotIDs,
		Reason:          req.Reason,
		ExpectedVersion: version,
	})
	h.respond(w, r, operation, event, err)
}

func (h *EventHandler) respond(w http.ResponseWriter, r *http.Request, operation string, event application.CalendarEvent, err error) {
	if err != nil {
		handlerLogger(r.Context(), h.logger, "EventHandler", operation, "event_id", r.PathValue("id")).
			DebugContext(r.Context(), "request rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.renderEvent(r.Context(), w, event, http.StatusOK)
}

// decode reads and validates a JSON body. An empty body is accepted when optional.
func (h *EventHandler) decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if !optional || !errors.Is(err, io.EOF) {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
			return false
		}
	}
	if err := h.validate.Struct(dst); err != nil {
		if fields, ok := fieldErrors(err); ok {
			h.responder.writeValidation(r.Context(), w, fields)
			return false
		}
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return false
	}
	return true
}

// expectedVersion parses If-Match. A missing header or "*" means no precondition.
func (h *EventHandler) expectedVersion(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" || raw == "*" {
		return 0, true
	}
	raw = strings.TrimPrefix(raw, "W/")
	raw = strings.Trim(raw, `"`)
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || version <= 0 {
		h.responder.writeValidation(r.Context(), w, map[string]string{"If-Match": "must be a quoted event version"})
		return 0, false
	}
	return version, true
}

func (h *EventHandler) renderEvent(ctx context.Context, w http.ResponseWriter, event application.CalendarEvent, status int) {
	w.Header().Set("ETag", etag(event.Version))
	h.responder.writeJSON(ctx, w, status, eventResponse{Event: toEventDTO(event)})
}

func etag(version int64) string {
	return fmt.Sprintf("%q", strconv.FormatInt(version, 10))
}

type slotRequest struct {
	ID                   string  `json:"id" validate:"max=128"`
	StartDate            string  `json:"startDate" validate:"required"`
	EndDate              string  `json:"endDate" validate:"required"`
	Status               string  `json:"status" validate:"omitempty,oneof=active"`
	Room                 string  `json:"room" validate:"max=120"`
	Notes                string  `json:"notes" validate:"max=2000"`
	ReferentActuelTimeID *string `json:"referentActuelTimeID" validate:"omitempty,max=128"`
}

// toInput parses the wall-clock fields. Field errors are keyed under prefix.
func (s slotRequest) toInput(prefix string) (application.SlotInput, map[string]string) {
	fields := make(map[string]string)
	start, err := timeslot.ParseWallClock(strings.TrimSpace(s.StartDate))
	if err != nil {
		fields[prefix+".startDate"] = "must use the layout " + timeslot.WallClockLayout
	}
	end, err := timeslot.ParseWallClock(strings.TrimSpace(s.EndDate))
	if err != nil {
		fields[prefix+".endDate"] = "must use the layout " + timeslot.WallClockLayout
	}
	return application.SlotInput{
		ID:                   s.ID,
		StartDate:            start,
		EndDate:              end,
		Status:               timeslot.Status(s.Status),
		Room:                 s.Room,
		Notes:                s.Notes,
		ReferentActuelTimeID: s.ReferentActuelTimeID,
	}, fields
}

func toSlotInputs(field string, requests []slotRequest) ([]application.SlotInput, map[string]string) {
	out := make([]application.SlotInput, len(requests))
	fields := make(map[string]string)
	for i, req := range requests {
		input, errs := req.toInput(fmt.Sprintf("%s[%d]", field, i))
		out[i] = input
		for k, v := range errs {
			fields[k] = v
		}
	}
	return out, fields
}

type createEventRequest struct {
	Title      string      `json:"title" validate:"required,max=200"`
	Discipline string      `json:"discipline" validate:"max=100"`
	Slot       slotRequest `json:"slot"`
}

type proposeSlotsRequest struct {
	Slots []slotRequest `json:"slots" validate:"dive"`
}

type slotDecisionRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

type batchDecisionRequest struct {
	SlotIDs []string `json:"slotIds" validate:"required,min=1,dive,required"`
	Reason  string   `json:"reason" validate:"max=2000"`
}

type operatorActionRequest struct {
	Action string        `json:"action" validate:"required,oneof=VALIDATE CANCEL MOVE REOPEN START"`
	Reason string        `json:"reason" validate:"max=2000"`
	Slots  []slotRequest `json:"slots" validate:"dive"`
}

type eventResponse struct {
	Event eventDTO `json:"event"`
}

type listEventsResponse struct {
	Events []eventDTO `json:"events"`
}

type eventDTO struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Discipline      string          `json:"discipline,omitempty"`
	State           string          `json:"state"`
	CreatedBy       string          `json:"createdBy"`
	StartDate       *string         `json:"startDate,omitempty"`
	EndDate         *string         `json:"endDate,omitempty"`
	TimeSlots       []slotDTO       `json:"timeSlots"`
	ActualSlots     []slotDTO       `json:"actuelTimeSlots"`
	LastStateChange *stateChangeDTO `json:"lastStateChange,omitempty"`
	Version         int64           `json:"version"`
	CreatedAt       string          `json:"createdAt"`
	UpdatedAt       string          `json:"updatedAt"`
}

type slotDTO struct {
	ID                   string            `json:"id"`
	StartDate            string            `json:"startDate"`
	EndDate              string            `json:"endDate"`
	Status               string            `json:"status"`
	Room                 string            `json:"room,omitempty"`
	Notes                string            `json:"notes,omitempty"`
	ReferentActuelTimeID *string           `json:"referentActuelTimeID,omitempty"`
	CreatedBy            string            `json:"createdBy,omitempty"`
	ModifiedBy           []modificationDTO `json:"modifiedBy"`
}

type modificationDTO struct {
	UserID string `json:"userId"`
	Date   string `json:"date"`
	Action string `json:"action"`
	Note   string `json:"note,omitempty"`
}

type stateChangeDTO struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Date   string `json:"date"`
	UserID string `json:"userId"`
	Reason string `json:"reason,omitempty"`
}

type slotStatusDTO struct {
	EventID string `json:"eventId"`
	SlotID  string `json:"slotId"`
	Status  string `json:"status"`
}

func toEventDTO(event application.CalendarEvent) eventDTO {
	dto := eventDTO{
		ID:          event.ID,
		Title:       event.Title,
		Discipline:  event.Discipline,
		State:       string(event.State),
		CreatedBy:   event.CreatedBy,
		TimeSlots:   toSlotDTOs(event.TimeSlots),
		ActualSlots: toSlotDTOs(event.ActualSlots),
		Version:     event.Version,
		CreatedAt:   formatInstant(event.CreatedAt),
		UpdatedAt:   formatInstant(event.UpdatedAt),
	}
	if event.StartDate != nil {
		start := timeslot.FormatWallClock(*event.StartDate)
		dto.StartDate = &start
	}
	if event.EndDate != nil {
		end := timeslot.FormatWallClock(*event.EndDate)
		dto.EndDate = &end
	}
	if change := event.LastStateChange; change != nil {
		dto.LastStateChange = &stateChangeDTO{
			From:   string(change.From),
			To:     string(change.To),
			Date:   formatInstant(change.Date),
			UserID: change.UserID,
			Reason: change.Reason,
		}
	}
	return dto
}

func toSlotDTOs(slots []timeslot.TimeSlot) []slotDTO {
	out := make([]slotDTO, len(slots))
	for i, slot := range slots {
		history := make([]modificationDTO, len(slot.ModifiedBy))
		for j, entry := range slot.ModifiedBy {
			history[j] = modificationDTO{
				UserID: entry.UserID,
				Date:   formatInstant(entry.Date),
				Action: string(entry.Action),
				Note:   entry.Note,
			}
		}
		out[i] = slotDTO{
			ID:                   slot.ID,
			StartDate:            timeslot.FormatWallClock(slot.StartDate),
			EndDate:              timeslot.FormatWallClock(slot.EndDate),
			Status:               string(slot.Status),
			Room:                 slot.Room,
			Notes:                slot.Notes,
			ReferentActuelTimeID: slot.ReferentActuelTimeID,
			CreatedBy:            slot.CreatedBy,
			ModifiedBy:           history,
		}
	}
	return out
}

func formatInstant(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
