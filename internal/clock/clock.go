// Package clock defines the time source used by quota evaluation and the
// UTC calendar-day window arithmetic that drives quota resets.
package clock

import "time"

// Clock supplies the current time. Components that care about time take a
// Clock so tests can substitute a deterministic source.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns a Clock backed by the wall clock.
func System() Clock { return systemClock{} }

// WindowDate returns the UTC calendar date of t as "YYYY-MM-DD".
// It is the date component of counter keys, so two instants map to the
// same window iff they fall on the same UTC day.
func WindowDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// NextReset returns the start of the next UTC calendar day after t
// (00:00:00 UTC of tomorrow). Quotas roll over at this instant; there is
// no other reset mechanism.
func NextReset(t time.Time) time.Time {
	u := t.UTC()
	midnight := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.AddDate(0, 0, 1)
}

// UntilReset returns the duration from t until the next UTC day boundary.
// Counter entries are stored with this TTL so they expire with their window.
func UntilReset(t time.Time) time.Duration {
	return NextReset(t).Sub(t)
}
