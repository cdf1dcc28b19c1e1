package auction

import "time"

// AntiSnipePolicy extends the end time of an auction when a bid lands within
// Window of the end. Disabled by default.
type AntiSnipePolicy struct {
	Enabled   bool
	Window    time.Duration
	Extension time.Duration
}

// Extend returns the new end time for a bid placed at placedAt. The result is
// never earlier than end; ok is false when no extension applies.
func (p AntiSnipePolicy) Extend(end, placedAt time.Time) (time.Time, bool) {
	if !p.Enabled || p.Extension <= 0 {
		return end, false
	}
	if !placedAt.Before(end) || end.Sub(placedAt) > p.Window {
		return end, false
	}
	return end.Add(p.Extension), true
}
