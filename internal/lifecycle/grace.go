package lifecycle

import "time"

// GracePeriod is the tolerance applied to every deadline before it counts as missed.
const GracePeriod = 10 * time.Minute

// Elapsed reports whether t lies more than GracePeriod before now.
func Elapsed(t, now time.Time) bool {
	return t.Before(now.Add(-GracePeriod))
}

// ElapsedPtr is Elapsed for optional timestamps; nil never elapses.
func ElapsedPtr(t *time.Time, now time.Time) bool {
	return t != nil && Elapsed(*t, now)
}
