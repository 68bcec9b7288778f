package application

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/lims-calendar/internal/eventstate"
	"github.com/example/lims-calendar/internal/timeslot"
)

// The functions in this file mutate a working copy of an event. They never
// touch storage; EventService persists the result.

func requireOwner(event CalendarEvent, principal Principal) error {
	if principal.UserID == "" || principal.UserID != event.CreatedBy {
		return fmt.Errorf("only the event owner may decide on slots: %w", ErrForbidden)
	}
	return nil
}

func requireOpen(event CalendarEvent) error {
	if event.State == eventstate.Cancelled {
		return invalid("state", "event is cancelled")
	}
	return nil
}

// isPending reports whether slot is an active proposal that is not already in
// force with identical values.
func isPending(slot timeslot.TimeSlot, actual []timeslot.TimeSlot) bool {
	if !slot.IsActive() {
		return false
	}
	idx := timeslot.IndexOf(actual, slot.ID)
	if idx < 0 {
		return true
	}
	return timeslot.HasChanged(&actual[idx], slot)
}

func hasActive(slots []timeslot.TimeSlot) bool {
	for _, slot := range slots {
		if slot.IsActive() {
			return true
		}
	}
	return false
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func validateSlotInputs(field string, inputs []SlotInput) *ValidationError {
	vErr := &ValidationError{}
	seen := make(map[string]struct{}, len(inputs))
	for i, input := range inputs {
		prefix := fmt.Sprintf("%s[%d]", field, i)
		if input.StartDate.IsZero() {
			vErr.add(prefix+".startDate", "start date is required")
		}
		if input.EndDate.IsZero() {
			vErr.add(prefix+".endDate", "end date is required")
		}
		if !input.StartDate.IsZero() && !input.EndDate.IsZero() &&
			!timeslot.WallClock(input.StartDate).Before(timeslot.WallClock(input.EndDate)) {
			vErr.add(prefix+".endDate", "end date must be after start date")
		}
		if input.Status != "" && input.Status != timeslot.StatusActive {
			vErr.add(prefix+".status", "only active slots can be proposed")
		}
		if id := strings.TrimSpace(input.ID); id != "" {
			if _, dup := seen[id]; dup {
				vErr.add(prefix+".id", "duplicate slot id")
			}
			seen[id] = struct{}{}
		}
	}
	return vErr
}

func toTimeSlots(inputs []SlotInput) []timeslot.TimeSlot {
	out := make([]timeslot.TimeSlot, len(inputs))
	for i, input := range inputs {
		out[i] = timeslot.TimeSlot{
			ID:        strings.TrimSpace(input.ID),
			StartDate: timeslot.WallClock(input.StartDate),
			EndDate:   timeslot.WallClock(input.EndDate),
			Status:    input.Status,
			Room:      strings.TrimSpace(input.Room),
			Notes:     strings.TrimSpace(input.Notes),
		}
		if ref := input.ReferentActuelTimeID; ref != nil && strings.TrimSpace(*ref) != "" {
			value := strings.TrimSpace(*ref)
			out[i].ReferentActuelTimeID = &value
		}
	}
	return out
}

// refreshBounds recomputes the event summary from its active in-force slots.
// The previous bounds are kept when none remain.
func refreshBounds(event *CalendarEvent) {
	start, end, ok := timeslot.Bounds(event.ActualSlots)
	if !ok {
		return
	}
	event.StartDate = &start
	event.EndDate = &end
}

// promote places slot in force and retires the proposal it supersedes.
func promote(event *CalendarEvent, slot timeslot.TimeSlot, actorID string, now time.Time) {
	actual, superseded := timeslot.Promote(event.ActualSlots, slot)
	event.ActualSlots = actual
	if superseded == "" {
		return
	}
	if idx := timeslot.IndexOf(event.TimeSlots, superseded); idx >= 0 {
		timeslot.SetStatus(&event.TimeSlots[idx], timeslot.StatusDeleted, actorID, timeslot.ActionDeleted, "superseded by "+slot.ID, now)
	}
}

// proposeSlots merges a full replacement proposal into the event. Pending
// proposals missing from the submission are withdrawn; in-force slots are
// never withdrawn implicitly. It reports whether anything changed.
func proposeSlots(event *CalendarEvent, inputs []SlotInput, actorID string, now time.Time, newID func() string) (bool, error) {
	vErr := validateSlotInputs("slots", inputs)
	for i, input := range inputs {
		prefix := fmt.Sprintf("slots[%d]", i)
		if ref := input.ReferentActuelTimeID; ref != nil && strings.TrimSpace(*ref) != "" {
			if timeslot.IndexOf(event.ActualSlots, strings.TrimSpace(*ref)) < 0 {
				vErr.add(prefix+".referentActuelTimeID", "does not name an in-force slot")
			}
		}
		if id := strings.TrimSpace(input.ID); id != "" &&
			timeslot.IndexOf(event.TimeSlots, id) < 0 && timeslot.IndexOf(event.ActualSlots, id) >= 0 {
			vErr.add(prefix+".id", "collides with an in-force slot")
		}
	}
	if vErr.HasErrors() {
		return false, vErr
	}

	records := timeslot.BuildRecords(toTimeSlots(inputs), event.TimeSlots, actorID, timeslot.ActionModified, now, newID)
	byID := make(map[string]timeslot.TimeSlot, len(records))
	for _, record := range records {
		byID[record.ID] = record
	}

	changed := false
	merged := make([]timeslot.TimeSlot, 0, len(event.TimeSlots)+len(records))
	placed := make(map[string]struct{}, len(records))
	for _, previous := range event.TimeSlots {
		if record, ok := byID[previous.ID]; ok {
			if len(record.ModifiedBy) != len(previous.ModifiedBy) {
				changed = true
			}
			merged = append(merged, record)
			placed[record.ID] = struct{}{}
			continue
		}
		if previous.IsActive() && timeslot.IndexOf(event.ActualSlots, previous.ID) < 0 {
			if timeslot.SetStatus(&previous, timeslot.StatusDeleted, actorID, timeslot.ActionDeleted, "withdrawn from proposal", now) {
				changed = true
			}
		}
		merged = append(merged, previous)
	}
	for _, record := range records {
		if _, ok := placed[record.ID]; ok {
			continue
		}
		merged = append(merged, record)
		changed = true
	}

	event.TimeSlots = merged
	event.ActualSlots = timeslot.Reconcile(event.ActualSlots, event.TimeSlots)
	return changed, nil
}

// approveSlot confirms one active proposal and puts it in force.
func approveSlot(event *CalendarEvent, slotID, actorID string, now time.Time) error {
	idx := timeslot.IndexOf(event.TimeSlots, slotID)
	if idx < 0 || !event.TimeSlots[idx].IsActive() {
		return fmt.Errorf("no active proposed slot %s: %w", slotID, ErrNotFound)
	}
	timeslot.Stamp(&event.TimeSlots[idx], actorID, timeslot.ActionModified, "approved", now)
	promote(event, event.TimeSlots[idx], actorID, now)
	event.ActualSlots = timeslot.Reconcile(event.ActualSlots, event.TimeSlots)
	return nil
}

// rejectSlot invalidates one pending proposal. The in-force schedule is
// untouched: a pending change to an in-force slot is recorded as invalidated
// and the proposal falls back to the in-force values.
func rejectSlot(event *CalendarEvent, slotID, reason, actorID string, now time.Time) error {
	idx := timeslot.IndexOf(event.TimeSlots, slotID)
	if idx < 0 || !event.TimeSlots[idx].IsActive() {
		return fmt.Errorf("no active proposed slot %s: %w", slotID, ErrNotFound)
	}
	slot := &event.TimeSlots[idx]
	actualIdx := timeslot.IndexOf(event.ActualSlots, slotID)
	if actualIdx < 0 {
		timeslot.SetStatus(slot, timeslot.StatusInvalid, actorID, timeslot.ActionInvalidated, reason, now)
		return nil
	}

	inForce := event.ActualSlots[actualIdx]
	if !timeslot.HasChanged(&inForce, *slot) {
		return fmt.Errorf("slot %s: %w", slotID, invalid("slotId", "slot is in force with no pending change; reject it as part of a batch"))
	}
	timeslot.Stamp(slot, actorID, timeslot.ActionInvalidated, reason, now)
	slot.StartDate = inForce.StartDate
	slot.EndDate = inForce.EndDate
	slot.Room = inForce.Room
	slot.Notes = inForce.Notes
	timeslot.Stamp(slot, actorID, timeslot.ActionRestored, "reverted to in-force values", now)
	return nil
}

// approveSlots approves the selected slots and invalidates every other active
// slot, including ones already in force. Selected slots already in force and
// unchanged are left alone.
func approveSlots(event *CalendarEvent, ids []string, note, actorID string, now time.Time) (bool, error) {
	selected := uniqueIDs(ids)
	if len(selected) == 0 {
		return false, invalid("slotIds", "at least one slot id is required")
	}
	set := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		idx := timeslot.IndexOf(event.TimeSlots, id)
		if idx < 0 {
			return false, fmt.Errorf("slot %s: %w", id, ErrNotFound)
		}
		if event.TimeSlots[idx].Status == timeslot.StatusDeleted {
			return false, fmt.Errorf("slot %s: %w", id, invalid("slotIds", "slot "+id+" was deleted"))
		}
		set[id] = struct{}{}
	}

	changed := false
	var approved []string
	for i := range event.TimeSlots {
		slot := &event.TimeSlots[i]
		if _, ok := set[slot.ID]; !ok {
			if slot.IsActive() {
				timeslot.SetStatus(slot, timeslot.StatusInvalid, actorID, timeslot.ActionInvalidated, note, now)
				changed = true
			}
			continue
		}
		if slot.IsActive() && !isPending(*slot, event.ActualSlots) {
			continue
		}
		slot.Status = timeslot.StatusActive
		timeslot.Stamp(slot, actorID, timeslot.ActionModified, note, now)
		approved = append(approved, slot.ID)
		changed = true
	}

	for _, id := range approved {
		idx := timeslot.IndexOf(event.TimeSlots, id)
		if idx < 0 || !event.TimeSlots[idx].IsActive() {
			continue
		}
		promote(event, event.TimeSlots[idx], actorID, now)
	}
	event.ActualSlots = timeslot.Reconcile(event.ActualSlots, event.TimeSlots)
	return changed, nil
}

// rejectSlots invalidates the selected slots and removes them from force. Ids
// may name proposals or in-force slots that have no proposal, such as
// operator counter-proposals.
func rejectSlots(event *CalendarEvent, ids []string, reason, actorID string, now time.Time) (bool, error) {
	vErr := &ValidationError{}
	if strings.TrimSpace(reason) == "" {
		vErr.add("reason", "a rejection reason is required")
	}
	selected := uniqueIDs(ids)
	if len(selected) == 0 {
		vErr.add("slotIds", "at least one slot id is required")
	}
	if vErr.HasErrors() {
		return false, vErr
	}
	reason = strings.TrimSpace(reason)

	for _, id := range selected {
		if timeslot.IndexOf(event.TimeSlots, id) < 0 && timeslot.IndexOf(event.ActualSlots, id) < 0 {
			return false, fmt.Errorf("slot %s: %w", id, ErrNotFound)
		}
	}

	changed := false
	for _, id := range selected {
		if idx := timeslot.IndexOf(event.TimeSlots, id); idx >= 0 && event.TimeSlots[idx].IsActive() {
			timeslot.SetStatus(&event.TimeSlots[idx], timeslot.StatusInvalid, actorID, timeslot.ActionRejected, reason, now)
			changed = true
		}
		if idx := timeslot.IndexOf(event.ActualSlots, id); idx >= 0 {
			event.ActualSlots = append(event.ActualSlots[:idx], event.ActualSlots[idx+1:]...)
			changed = true
		}
	}
	event.ActualSlots = timeslot.Reconcile(event.ActualSlots, event.TimeSlots)
	return changed, nil
}

// validateEvent puts the whole active proposal in force, replacing the
// in-force schedule.
func validateEvent(event *CalendarEvent, reason, actorID string, now time.Time) {
	for i := range event.TimeSlots {
		slot := event.TimeSlots[i]
		ref := slot.Referent()
		if !slot.IsActive() || ref == "" || ref == slot.ID {
			continue
		}
		if j := timeslot.IndexOf(event.TimeSlots, ref); j >= 0 && event.TimeSlots[j].IsActive() {
			timeslot.SetStatus(&event.TimeSlots[j], timeslot.StatusDeleted, actorID, timeslot.ActionDeleted, "superseded by "+slot.ID, now)
		}
	}
	for i := range event.TimeSlots {
		if isPending(event.TimeSlots[i], event.ActualSlots) {
			timeslot.Stamp(&event.TimeSlots[i], actorID, timeslot.ActionApproved, reason, now)
		}
	}
	event.ActualSlots = timeslot.Synchronize(event.TimeSlots)
}

// cancelEvent deletes every slot of both collections.
func cancelEvent(event *CalendarEvent, reason, actorID string, now time.Time) {
	note := reason
	if note == "" {
		note = "event cancelled"
	}
	for i := range event.TimeSlots {
		timeslot.SetStatus(&event.TimeSlots[i], timeslot.StatusDeleted, actorID, timeslot.ActionDeleted, note, now)
	}
	for i := range event.ActualSlots {
		timeslot.SetStatus(&event.ActualSlots[i], timeslot.StatusDeleted, actorID, timeslot.ActionDeleted, note, now)
	}
}

// reopenEvent restores the slots deleted by the cancellation recorded in the
// event's last state change, back to the status they had before it.
func reopenEvent(event *CalendarEvent, reason, actorID string, now time.Time) {
	change := event.LastStateChange
	if change == nil || change.To != eventstate.Cancelled {
		return
	}
	note := reason
	if note == "" {
		note = "event reopened"
	}
	restore := func(slot *timeslot.TimeSlot) {
		last, ok := slot.LastModification()
		if !ok || last.Action != timeslot.ActionDeleted || !last.Date.Equal(change.Date) {
			return
		}
		if statusBefore(slot.ModifiedBy[:len(slot.ModifiedBy)-1]) != timeslot.StatusActive {
			return
		}
		timeslot.SetStatus(slot, timeslot.StatusActive, actorID, timeslot.ActionRestored, note, now)
	}
	for i := range event.TimeSlots {
		restore(&event.TimeSlots[i])
	}
	for i := range event.ActualSlots {
		restore(&event.ActualSlots[i])
	}
	event.ActualSlots = timeslot.Reconcile(event.ActualSlots, event.TimeSlots)
}

// statusBefore derives a slot status from its history. Every status change is
// stamped, so the newest entry determines the status.
func statusBefore(history []timeslot.Modification) timeslot.Status {
	if len(history) == 0 {
		return timeslot.StatusActive
	}
	switch history[len(history)-1].Action {
	case timeslot.ActionRejected, timeslot.ActionInvalidated:
		return timeslot.StatusInvalid
	case timeslot.ActionDeleted:
		return timeslot.StatusDeleted
	}
	return timeslot.StatusActive
}

// moveEvent replaces the in-force schedule with operator-issued slots. The
// owner's proposal collection is left as it is.
func moveEvent(event *CalendarEvent, inputs []SlotInput, actorID string, now time.Time, newID func() string) error {
	if len(inputs) == 0 {
		return invalid("slots", "at least one replacement slot is required")
	}
	if vErr := validateSlotInputs("slots", inputs); vErr.HasErrors() {
		return vErr
	}
	fresh := toTimeSlots(inputs)
	for i := range fresh {
		fresh[i].ID = ""
		fresh[i].Status = timeslot.StatusActive
		fresh[i].ReferentActuelTimeID = nil
	}
	event.ActualSlots = timeslot.BuildRecords(fresh, nil, actorID, timeslot.ActionCreated, now, newID)
	return nil
}
