package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/lims-calendar/internal/application"
	"github.com/example/lims-calendar/internal/eventstate"
	"github.com/example/lims-calendar/internal/notify"
	"github.com/example/lims-calendar/internal/timeslot"
)

type eventServiceStub struct {
	event application.CalendarEvent
	err   error

	created  application.CreateEventParams
	proposed application.ProposeSlotsParams
	decision application.SlotDecisionParams
	batch    application.BatchDecisionParams
	action   application.OperatorActionParams
	listed   application.ListEventsParams
	calls    []string
}

func (s *eventServiceStub) CreateEvent(ctx context.Context, params application.CreateEventParams) (application.CalendarEvent, error) {
	s.calls = append(s.calls, "CreateEvent")
	s.created = params
	return s.event, s.err
}

func (s *eventServiceStub) GetEvent(ctx context.Context, principal application.Principal, eventID string) (application.CalendarEvent, error) {
	s.calls = append(s.calls, "GetEvent:"+eventID)
	return s.event, s.err
}

func (s *eventServiceStub) ListEvents(ctx context.Context, params application.ListEventsParams) ([]application.CalendarEvent, error) {
	s.calls = append(s.calls, "ListEvents")
	s.listed = params
	if s.err != nil {
		return nil, s.err
	}
	return []application.CalendarEvent{s.event}, nil
}

func (s *eventServiceStub) ProposeSlots(ctx context.Context, params application.ProposeSlotsParams) (application.CalendarEvent, error) {
	s.calls = append(s.calls, "ProposeSlots")
	s.proposed = params
	return s.event, s.err
}

func (s *eventServiceStub) ApproveSlot(ctx context.Context, params application.SlotDecisionParams) (application.CalendarEvent, error) {
	s.calls = append(s.calls, "ApproveSlot")
	s.decision = params
	return s.event, s.err
}

func (s *eventServiceStub) RejectSlot(ctx context.Context, params application.SlotDecisionParams) (application.CalendarEvent, error) {
	s.calls = append(s.calls, "RejectSlot")
	s.decision = params
	return s.event, s.err
}

func (s *eventServiceStub) ApproveSlots(ctx context.Context, params application.BatchDecisionParams) (application.CalendarEvent, error) {
	s.calls = append(s.calls, "ApproveSlots")
	s.batch = params
	return s.event, s.err
}

func (s *eventServiceStub) RejectSlots(ctx context.Context, params application.BatchDecisionParams) (application.CalendarEvent, error) {
	s.calls = append(s.calls, "RejectSlots")
	s.batch = params
	return s.event, s.err
}

func (s *eventServiceStub) OperatorAction(ctx context.Context, params application.OperatorActionParams) (application.CalendarEvent, error) {
	s.calls = append(s.calls, "OperatorAction")
	s.action = params
	return s.event, s.err
}

func (s *eventServiceStub) SlotStatus(ctx context.Context, principal application.Principal, eventID, slotID string) (application.SlotStatus, error) {
	s.calls = append(s.calls, "SlotStatus")
	if s.err != nil {
		return application.SlotStatus{}, s.err
	}
	return application.SlotStatus{EventID: eventID, SlotID: slotID, State: timeslot.SlotPending}, nil
}

type sessionStub struct {
	principals map[string]application.Principal
	err        error
}

func (s sessionStub) ValidateSession(ctx context.Context, token string) (application.Principal, error) {
	if s.err != nil {
		return application.Principal{}, s.err
	}
	principal, ok := s.principals[token]
	if !ok {
		return application.Principal{}, application.ErrUnauthorized
	}
	return principal, nil
}

var testSessions = sessionStub{principals: map[string]application.Principal{
	"owner.key":    {UserID: "owner-1", Role: application.RoleMember},
	"operator.key": {UserID: "op-1", Role: application.RoleOperator},
}}

func sampleEvent() application.CalendarEvent {
	start := time.Date(2024, time.March, 4, 9, 0, 0, 0, time.Local)
	end := start.Add(3 * time.Hour)
	created := time.Date(2024, time.February, 1, 8, 0, 0, 0, time.UTC)
	slot := timeslot.TimeSlot{
		ID:        "slot-1",
		StartDate: start,
		EndDate:   end,
		Status:    timeslot.StatusActive,
		Room:      "B12",
		CreatedBy: "owner-1",
		ModifiedBy: []timeslot.Modification{
			{UserID: "owner-1", Date: created, Action: timeslot.ActionCreated},
		},
	}
	return application.CalendarEvent{
		ID:          "evt-1",
		Title:       "XRD session",
		State:       eventstate.Pending,
		CreatedBy:   "owner-1",
		StartDate:   &start,
		EndDate:     &end,
		TimeSlots:   []timeslot.TimeSlot{slot},
		ActualSlots: []timeslot.TimeSlot{slot},
		Version:     3,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func newTestRouter(svc *eventServiceStub) http.Handler {
	return NewRouter(RouterConfig{
		Events:       NewEventHandler(svc, nil),
		Authenticate: RequireSession(testSessions, nil),
		Middleware:   []func(http.Handler) http.Handler{RequestLogger(nil)},
	})
}

func doRequest(t *testing.T, handler http.Handler, method, path, token, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

func decodeError(t *testing.T, recorder *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v (body %q)", err, recorder.Body.String())
	}
	return resp
}

func TestRequireSession(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		header     string
		validator  SessionValidator
		wantStatus int
	}{
		{name: "missing header", wantStatus: http.StatusUnauthorized},
		{name: "non bearer scheme", header: "Basic abc", validator: testSessions, wantStatus: http.StatusUnauthorized},
		{name: "unknown token", header: "Bearer nope", validator: testSessions, wantStatus: http.StatusUnauthorized},
		{name: "validator failure", header: "Bearer owner.key", validator: sessionStub{err: errors.New("db down")}, wantStatus: http.StatusInternalServerError},
		{name: "valid token", header: "bearer owner.key", validator: testSessions, wantStatus: http.StatusNoContent},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			validator := tc.validator
			if validator == nil {
				validator = testSessions
			}
			var seen application.Principal
			handler := RequireSession(validator, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen, _ = PrincipalFromContext(r.Context())
				w.WriteHeader(http.StatusNoContent)
			}))

			req := httptest.NewRequest(http.MethodGet, "/events", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, req)

			if recorder.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", recorder.Code, tc.wantStatus)
			}
			if tc.wantStatus == http.StatusNoContent && seen.UserID != "owner-1" {
				t.Fatalf("principal not propagated, got %#v", seen)
			}
		})
	}
}

func TestRouter_HealthzSkipsAuthentication(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&eventServiceStub{})
	if rec := doRequest(t, router, http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
	if rec := doRequest(t, router, http.MethodGet, "/events/evt-1", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("events without token status = %d", rec.Code)
	}
}

func TestEventHandler_Create(t *testing.T) {
	t.Parallel()

	svc := &eventServiceStub{event: sampleEvent()}
	router := newTestRouter(svc)

	rec := doRequest(t, router, http.MethodPost, "/events", "owner.key",
		`{"title":"XRD session","discipline":"physics","slot":{"startDate":"2024-03-04T09:00:00","endDate":"2024-03-04T12:00:00","room":"B12"}}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("ETag"); got != `"3"` {
		t.Fatalf("ETag = %q", got)
	}
	if got := rec.Header().Get("Location"); got != "/events/evt-1" {
		t.Fatalf("Location = %q", got)
	}
	if svc.created.Principal.UserID != "owner-1" || svc.created.Input.Title != "XRD session" {
		t.Fatalf("unexpected params %#v", svc.created)
	}
	wantStart := time.Date(2024, time.March, 4, 9, 0, 0, 0, time.Local)
	if !svc.created.Input.Slot.StartDate.Equal(wantStart) {
		t.Fatalf("slot start = %v, want %v", svc.created.Input.Slot.StartDate, wantStart)
	}

	var resp eventResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Event.ID != "evt-1" || len(resp.Event.ActualSlots) != 1 || resp.Event.TimeSlots[0].StartDate != "2024-03-04T09:00:00" {
		t.Fatalf("unexpected response %#v", resp.Event)
	}
	if resp.Event.StartDate == nil || *resp.Event.StartDate != "2024-03-04T09:00:00" {
		t.Fatalf("unexpected event start %v", resp.Event.StartDate)
	}
	if resp.Event.TimeSlots[0].ModifiedBy[0].Date != "2024-02-01T08:00:00Z" {
		t.Fatalf("history dates must be RFC 3339 UTC, got %q", resp.Event.TimeSlots[0].ModifiedBy[0].Date)
	}
}

func TestEventHandler_CreateValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		body   string
		fields []string
	}{
		{name: "missing fields", body: `{"slot":{}}`, fields: []string{"title", "slot.startDate", "slot.endDate"}},
		{name: "bad timestamp", body: `{"title":"x","slot":{"startDate":"tomorrow","endDate":"2024-03-04T12:00:00"}}`, fields: []string{"slot.startDate"}},
		{name: "bad status", body: `{"title":"x","slot":{"startDate":"2024-03-04T09:00:00","endDate":"2024-03-04T12:00:00","status":"deleted"}}`, fields: []string{"slot.status"}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			svc := &eventServiceStub{}
			rec := doRequest(t, newTestRouter(svc), http.MethodPost, "/events", "owner.key", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			resp := decodeError(t, rec)
			for _, field := range tc.fields {
				if _, ok := resp.Errors[field]; !ok {
					t.Fatalf("expected %s error, got %#v", field, resp.Errors)
				}
			}
			if len(svc.calls) != 0 {
				t.Fatalf("service must not be called, got %v", svc.calls)
			}
		})
	}

	rec := doRequest(t, newTestRouter(&eventServiceStub{}), http.MethodPost, "/events", "owner.key", `{"title":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed JSON status = %d", rec.Code)
	}
}

func TestEventHandler_ProposeSlotsPassesVersion(t *testing.T) {
	t.Parallel()

	svc := &eventServiceStub{event: sampleEvent()}
	router := newTestRouter(svc)

	rec := doRequest(t, router, http.MethodPut, "/events/evt-1/slots", "owner.key",
		`{"slots":[{"id":"slot-1","startDate":"2024-03-04T09:00:00","endDate":"2024-03-04T12:00:00"},{"startDate":"2024-03-05T09:00:00","endDate":"2024-03-05T10:00:00","referentActuelTimeID":"slot-1"}]}`,
		"If-Match", `"3"`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if svc.proposed.EventID != "evt-1" || svc.proposed.ExpectedVersion != 3 || len(svc.proposed.Slots) != 2 {
		t.Fatalf("unexpected params %#v", svc.proposed)
	}
	if ref := svc.proposed.Slots[1].ReferentActuelTimeID; ref == nil || *ref != "slot-1" {
		t.Fatalf("referent not passed through, got %v", ref)
	}

	rec = doRequest(t, router, http.MethodPut, "/events/evt-1/slots", "owner.key", `{"slots":[]}`, "If-Match", "abc")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad If-Match status = %d", rec.Code)
	}
	if _, ok := decodeError(t, rec).Errors["If-Match"]; !ok {
		t.Fatalf("expected If-Match field error")
	}
}

func TestEventHandler_Decisions(t *testing.T) {
	t.Parallel()

	svc := &eventServiceStub{event: sampleEvent()}
	router := newTestRouter(svc)

	if rec := doRequest(t, router, http.MethodPost, "/events/evt-1/slots/slot-1/approve", "owner.key", ""); rec.Code != http.StatusOK {
		t.Fatalf("approve status = %d, body %s", rec.Code, rec.Body.String())
	}
	if svc.decision.SlotID != "slot-1" || svc.decision.EventID != "evt-1" {
		t.Fatalf("unexpected decision %#v", svc.decision)
	}

	if rec := doRequest(t, router, http.MethodPost, "/events/evt-1/slots/slot-1/reject", "owner.key", `{"reason":"room busy"}`); rec.Code != http.StatusOK {
		t.Fatalf("reject status = %d", rec.Code)
	}
	if svc.decision.Reason != "room busy" {
		t.Fatalf("reason not passed, got %#v", svc.decision)
	}

	if rec := doRequest(t, router, http.MethodPost, "/events/evt-1/slots/reject", "owner.key", `{"slotIds":["a","b"],"reason":"conflict"}`, "If-Match", `W/"7"`); rec.Code != http.StatusOK {
		t.Fatalf("batch reject status = %d", rec.Code)
	}
	if len(svc.batch.SlotIDs) != 2 || svc.batch.Reason != "conflict" || svc.batch.ExpectedVersion != 7 {
		t.Fatalf("unexpected batch %#v", svc.batch)
	}

	rec := doRequest(t, router, http.MethodPost, "/events/evt-1/slots/approve", "owner.key", `{"slotIds":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty batch status = %d", rec.Code)
	}
	if _, ok := decodeError(t, rec).Errors["slotIds"]; !ok {
		t.Fatalf("expected slotIds field error")
	}

	want := []string{"ApproveSlot", "RejectSlot", "RejectSlots"}
	if fmt.Sprint(svc.calls) != fmt.Sprint(want) {
		t.Fatalf("calls = %v, want %v", svc.calls, want)
	}
}

func TestEventHandler_OperatorAction(t *testing.T) {
	t.Parallel()

	svc := &eventServiceStub{event: sampleEvent()}
	router := newTestRouter(svc)

	rec := doRequest(t, router, http.MethodPost, "/events/evt-1/actions", "operator.key",
		`{"action":"MOVE","reason":"maintenance","slots":[{"startDate":"2024-03-06T13:00:00","endDate":"2024-03-06T17:00:00"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if svc.action.Action != eventstate.Move || svc.action.Reason != "maintenance" || len(svc.action.Slots) != 1 || !svc.action.Principal.IsOperator() {
		t.Fatalf("unexpected params %#v", svc.action)
	}

	rec = doRequest(t, router, http.MethodPost, "/events/evt-1/actions", "operator.key", `{"action":"EXPLODE"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown action status = %d", rec.Code)
	}
	if _, ok := decodeError(t, rec).Errors["action"]; !ok {
		t.Fatalf("expected action field error")
	}
}

func TestEventHandler_ListAndStatus(t *testing.T) {
	t.Parallel()

	svc := &eventServiceStub{event: sampleEvent()}
	router := newTestRouter(svc)

	rec := doRequest(t, router, http.MethodGet, "/events?discipline=physics&state=pending", "operator.key", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if svc.listed.Discipline != "physics" || svc.listed.State != eventstate.Pending {
		t.Fatalf("unexpected list params %#v", svc.listed)
	}
	var list listEventsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list.Events) != 1 {
		t.Fatalf("unexpected list body %s (%v)", rec.Body.String(), err)
	}

	rec = doRequest(t, router, http.MethodGet, "/events/evt-1/slots/slot-1/status", "owner.key", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status endpoint = %d", rec.Code)
	}
	var status slotStatusDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Status != "pending" || status.SlotID != "slot-1" {
		t.Fatalf("unexpected status %#v", status)
	}
}

func TestResponder_ServiceErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "not found", err: fmt.Errorf("event evt-1: %w", application.ErrNotFound), wantStatus: http.StatusNotFound, wantCode: "NOT_FOUND"},
		{name: "forbidden", err: application.ErrForbidden, wantStatus: http.StatusForbidden, wantCode: "FORBIDDEN"},
		{name: "conflict", err: application.ErrConflict, wantStatus: http.StatusConflict, wantCode: "VERSION_CONFLICT"},
		{name: "invalid transition", err: application.ErrInvalidTransition, wantStatus: http.StatusConflict, wantCode: "INVALID_TRANSITION"},
		{name: "unauthorized", err: application.ErrUnauthorized, wantStatus: http.StatusUnauthorized, wantCode: "UNAUTHORIZED"},
		{name: "validation", err: &application.ValidationError{FieldErrors: map[string]string{"slots": "at least one replacement slot is required"}}, wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_FAILED"},
		{name: "unexpected", err: errors.New("disk full"), wantStatus: http.StatusInternalServerError, wantCode: "INTERNAL"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			svc := &eventServiceStub{err: tc.err}
			rec := doRequest(t, newTestRouter(svc), http.MethodGet, "/events/evt-1", "owner.key", "")
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			resp := decodeError(t, rec)
			if resp.ErrorCode != tc.wantCode {
				t.Fatalf("error_code = %q, want %q", resp.ErrorCode, tc.wantCode)
			}
			if tc.wantCode == "VALIDATION_FAILED" && resp.Errors["slots"] == "" {
				t.Fatalf("expected field map, got %#v", resp.Errors)
			}
		})
	}
}

type notificationSourceStub struct {
	ch           chan notify.Notification
	unsubscribed chan struct{}
}

func (s *notificationSourceStub) Subscribe(buffer int) (<-chan notify.Notification, func()) {
	return s.ch, func() { close(s.unsubscribed) }
}

func TestNotificationHandler_StreamsVisibleNotifications(t *testing.T) {
	t.Parallel()

	source := &notificationSourceStub{ch: make(chan notify.Notification, 2), unsubscribed: make(chan struct{})}
	source.ch <- notify.Notification{EventID: "evt-other", Kind: notify.KindProposed, OwnerID: "member-2"}
	source.ch <- notify.Notification{EventID: "evt-1", Kind: notify.KindSlotApproved, OwnerID: "owner-1"}
	close(source.ch)

	handler := NewNotificationHandler(source, 4, nil)
	req := httptest.NewRequest(http.MethodGet, "/notifications", nil)
	req = req.WithContext(ContextWithPrincipal(req.Context(), application.Principal{UserID: "owner-1", Role: application.RoleMember}))
	rec := httptest.NewRecorder()
	handler.Stream(rec, req)

	body := rec.Body.String()
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("Content-Type = %q", got)
	}
	if !strings.Contains(body, "event: slot.approved") || !strings.Contains(body, `"event_id":"evt-1"`) {
		t.Fatalf("own notification missing from stream: %q", body)
	}
	if strings.Contains(body, "evt-other") {
		t.Fatalf("member must not see other owners' notifications: %q", body)
	}
	select {
	case <-source.unsubscribed:
	default:
		t.Fatalf("stream must unsubscribe on exit")
	}
}
