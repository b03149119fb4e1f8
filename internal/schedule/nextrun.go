package schedule

import (
	"fmt"
	"time"
)

// Schedule frequencies.
const (
	FreqOnce       = "once"
	FreqHourly     = "hourly"
	FreqTwiceDaily = "twice-daily"
	FreqDaily      = "daily"
	FreqWeekly     = "weekly"
	FreqMonthly    = "monthly"
	FreqCustom     = "custom"
)

// staleThreshold is how far past due a schedule may be before its cadence
// anchor resets. A schedule 3 days overdue runs once and then continues from
// now instead of burning through every missed slot.
const staleThreshold = 24 * time.Hour

// NextRun computes the run following `from` for the given frequency. For
// custom schedules runAt is the daily HH:MM in UTC; for `once` the caller
// retires the schedule and the returned time is unused.
func NextRun(frequency, runAt string, from time.Time) (time.Time, error) {
	switch frequency {
	case FreqOnce:
		return from, nil
	case FreqHourly:
		return from.Add(time.Hour), nil
	case FreqTwiceDaily:
		return from.Add(12 * time.Hour), nil
	case FreqDaily:
		return from.Add(24 * time.Hour), nil
	case FreqWeekly:
		return from.Add(7 * 24 * time.Hour), nil
	case FreqMonthly:
		return from.AddDate(0, 1, 0), nil
	case FreqCustom:
		return nextCustom(runAt, from)
	}
	return time.Time{}, fmt.Errorf("unknown frequency %q", frequency)
}

// InitialNextRun computes the first due time for a newly created schedule.
// Recurring schedules are due immediately; custom schedules wait for their
// next HH:MM slot.
func InitialNextRun(frequency, runAt string, now time.Time) (time.Time, error) {
	if frequency == FreqCustom {
		return nextCustom(runAt, now)
	}
	return now, nil
}

// nextCustom returns the next occurrence of the HH:MM time strictly after
// `from`, rolling over to the following day when the slot has passed.
func nextCustom(runAt string, from time.Time) (time.Time, error) {
	t, err := time.Parse("15:04", runAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid run time %q: %w", runAt, err)
	}

	from = from.UTC()
	next := time.Date(from.Year(), from.Month(), from.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next, nil
}
