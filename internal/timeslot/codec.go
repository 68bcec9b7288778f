package timeslot

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// WallClockLayout is the persisted timestamp layout. Slot times carry local
// wall-clock semantics, so no zone is written.
const WallClockLayout = "2006-01-02T15:04:05"

// WallClock reinterprets the wall-clock fields of t in time.Local without
// converting the instant. 10:00 in any zone stays 10:00.
func WallClock(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.Local)
}

// FormatWallClock renders t using WallClockLayout.
func FormatWallClock(t time.Time) string {
	return WallClock(t).Format(WallClockLayout)
}

// ParseWallClock accepts WallClockLayout or RFC 3339 input and returns the
// wall-clock value in time.Local.
func ParseWallClock(value string) (time.Time, error) {
	if ts, err := time.ParseInLocation(WallClockLayout, value, time.Local); err == nil {
		return ts, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("timeslot: invalid timestamp %q: %w", value, err)
	}
	return WallClock(ts), nil
}

// NewID returns a collision-resistant slot identifier made of a millisecond
// timestamp and a random suffix. Uniqueness is advisory.
func NewID() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + uuid.NewString()
}
