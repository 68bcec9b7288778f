package timeslot

import "time"

// BuildRecords stamps a freshly submitted slot set against the previous one.
//
// Each submitted slot is matched to the previous slot with the same id. Slots
// without an id get one from newID. A slot receives exactly one new history
// entry, and only when HasChanged says so; an identical resubmission leaves the
// history untouched. The stored history and creator always come from the
// previous version, so a submitter cannot rewrite the audit trail.
//
// When action is ActionModified, slots with no previous counterpart are
// stamped ActionCreated instead. Brand-new slots without a status default to
// active. Output order matches the submitted order.
func BuildRecords(submitted, previous []TimeSlot, actorID string, action Action, now time.Time, newID func() string) []TimeSlot {
	if newID == nil {
		newID = NewID
	}

	byID := make(map[string]TimeSlot, len(previous))
	for _, slot := range previous {
		if slot.ID != "" {
			byID[slot.ID] = slot
		}
	}

	records := make([]TimeSlot, 0, len(submitted))
	for _, candidate := range submitted {
		record := candidate.Clone()

		var prior *TimeSlot
		if record.ID != "" {
			if found, ok := byID[record.ID]; ok {
				found = found.Clone()
				prior = &found
			}
		}

		if record.ID == "" {
			record.ID = newID()
		}

		entryAction := action
		if prior == nil {
			record.ModifiedBy = nil
			if record.Status == "" {
				record.Status = StatusActive
			}
			if record.CreatedBy == "" {
				record.CreatedBy = actorID
			}
			if action == ActionModified {
				entryAction = ActionCreated
			}
		} else {
			record.ModifiedBy = prior.ModifiedBy
			record.CreatedBy = prior.CreatedBy
			if record.Status == "" {
				record.Status = prior.Status
			}
		}

		if HasChanged(prior, record) {
			Stamp(&record, actorID, entryAction, "", now)
		}

		records = append(records, record)
	}

	return records
}
