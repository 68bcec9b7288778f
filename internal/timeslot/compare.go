package timeslot

// HasChanged reports whether candidate differs from previous in any of the
// fields that are worth an audit entry: start, end, status, room and notes.
// A nil previous means the slot is new and always counts as changed.
//
// Identity and history fields are never compared, otherwise stamping a slot
// would make it look changed again.
func HasChanged(previous *TimeSlot, candidate TimeSlot) bool {
	if previous == nil {
		return true
	}
	if !previous.StartDate.Equal(candidate.StartDate) {
		return true
	}
	if !previous.EndDate.Equal(candidate.EndDate) {
		return true
	}
	if previous.Status != candidate.Status {
		return true
	}
	if previous.Room != candidate.Room {
		return true
	}
	return previous.Notes != candidate.Notes
}
