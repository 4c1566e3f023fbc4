package timeutil

import "time"

func NowMilli() int64 {
	return time.Now().UnixMilli()
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DaysUntil counts whole calendar days from `from` until `deadline`,
// inclusive of the deadline day. Never returns less than zero.
func DaysUntil(from, deadline time.Time) int {
	a := StartOfDay(from)
	b := StartOfDay(deadline)
	if b.Before(a) {
		return 0
	}
	return int(b.Sub(a)/(24*time.Hour)) + 1
}
