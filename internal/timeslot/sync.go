package timeslot

// SlotState classifies a proposed slot against the in-force schedule.
type SlotState string

const (
	// SlotNew means no in-force slot corresponds to the proposal.
	SlotNew SlotState = "new"
	// SlotApproved means the corresponding in-force slot has the same interval.
	SlotApproved SlotState = "approved"
	// SlotPending means a corresponding in-force slot exists but differs.
	SlotPending SlotState = "pending"
)

// Synchronize derives an in-force collection from a proposal collection by
// keeping the active slots.
func Synchronize(proposed []TimeSlot) []TimeSlot {
	out := make([]TimeSlot, 0, len(proposed))
	for _, slot := range proposed {
		if slot.IsActive() {
			out = append(out, slot.Clone())
		}
	}
	return out
}

// FindCorrespondingActualSlot resolves which in-force slot a proposal
// supersedes: the referent id first, then the proposal's own id. It returns
// nil when the proposal is a brand-new addition.
func FindCorrespondingActualSlot(proposed TimeSlot, actual []TimeSlot) *TimeSlot {
	if ref := proposed.Referent(); ref != "" {
		if idx := IndexOf(actual, ref); idx >= 0 {
			match := actual[idx].Clone()
			return &match
		}
	}
	if idx := IndexOf(actual, proposed.ID); idx >= 0 {
		match := actual[idx].Clone()
		return &match
	}
	return nil
}

// GetSlotStatus classifies a proposed slot as new, approved or pending.
func GetSlotStatus(proposed TimeSlot, actual []TimeSlot) SlotState {
	match := FindCorrespondingActualSlot(proposed, actual)
	if match == nil {
		return SlotNew
	}
	if match.StartDate.Equal(proposed.StartDate) && match.EndDate.Equal(proposed.EndDate) {
		return SlotApproved
	}
	return SlotPending
}

// Reconcile removes from actual every slot whose same-id proposal exists and
// is no longer active. Actual slots with no proposal counterpart, such as
// operator counter-proposals, are kept. Order is preserved.
func Reconcile(actual, proposed []TimeSlot) []TimeSlot {
	status := make(map[string]Status, len(proposed))
	for _, slot := range proposed {
		status[slot.ID] = slot.Status
	}

	out := make([]TimeSlot, 0, len(actual))
	for _, slot := range actual {
		if st, ok := status[slot.ID]; ok && st != StatusActive {
			continue
		}
		if !slot.IsActive() {
			continue
		}
		out = append(out, slot.Clone())
	}
	return out
}

// Promote places an approved proposal into the in-force collection. When the
// proposal supersedes an existing in-force slot it takes that slot's position;
// otherwise it is appended. The id of the superseded slot is returned when it
// differs from the proposal's own id, so callers can retire it.
func Promote(actual []TimeSlot, proposed TimeSlot) ([]TimeSlot, string) {
	out := CloneAll(actual)
	match := FindCorrespondingActualSlot(proposed, out)
	if match == nil {
		return append(out, proposed.Clone()), ""
	}

	idx := IndexOf(out, match.ID)
	out[idx] = proposed.Clone()

	// The proposal may also already sit in force under its own id elsewhere.
	if match.ID != proposed.ID {
		for i := len(out) - 1; i >= 0; i-- {
			if i != idx && out[i].ID == proposed.ID {
				out = append(out[:i], out[i+1:]...)
			}
		}
		return out, match.ID
	}
	return out, ""
}
