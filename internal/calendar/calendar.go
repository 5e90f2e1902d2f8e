package calendar

import "time"

// Day clamps t to local midnight. All day arithmetic in the planning core
// runs on normalized days so intra-day drift cannot leak into comparisons.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// WorkingDays counts the days in [a, b] (inclusive) that are neither
// Saturday nor Sunday. Zero when b < a after normalization. Public holidays
// are not modeled.
func WorkingDays(a, b time.Time) int {
	a, b = Day(a), Day(b)
	if b.Before(a) {
		return 0
	}
	n := 0
	for d := a; !d.After(b); d = d.AddDate(0, 0, 1) {
		if !IsWeekend(d) {
			n++
		}
	}
	return n
}

// Overlap intersects the closed day ranges [aStart, aEnd] and
// [bStart, bEnd]. ok is false when they are disjoint.
func Overlap(aStart, aEnd, bStart, bEnd time.Time) (start, end time.Time, ok bool) {
	aStart, aEnd = Day(aStart), Day(aEnd)
	bStart, bEnd = Day(bStart), Day(bEnd)
	start = aStart
	if bStart.After(start) {
		start = bStart
	}
	end = aEnd
	if bEnd.Before(end) {
		end = bEnd
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// WeekStart returns the Monday midnight of t's week. Forecast weeks are
// Monday-anchored throughout.
func WeekStart(t time.Time) time.Time {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	day := t.AddDate(0, 0, -(weekday - 1))
	return Day(day)
}
