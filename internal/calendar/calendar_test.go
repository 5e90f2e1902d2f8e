package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

func TestWorkingDays(t *testing.T) {
	tests := []struct {
		name string
		a, b time.Time
		want int
	}{
		{"two full weeks", day(2025, 3, 3), day(2025, 3, 14), 10},
		{"single monday", day(2025, 3, 3), day(2025, 3, 3), 1},
		{"weekend only", day(2025, 3, 8), day(2025, 3, 9), 0},
		{"wraps a weekend", day(2025, 3, 7), day(2025, 3, 10), 2},
		{"reversed range", day(2025, 3, 14), day(2025, 3, 3), 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, WorkingDays(tc.a, tc.b))
		})
	}
}

func TestWorkingDaysIgnoresTimeOfDay(t *testing.T) {
	a := time.Date(2025, 3, 3, 23, 59, 0, 0, time.Local)
	b := time.Date(2025, 3, 14, 0, 1, 0, 0, time.Local)
	assert.Equal(t, 10, WorkingDays(a, b))
}

// WorkingDays(a, c) = WorkingDays(a, b) + WorkingDays(b+1, c) for a <= b <= c.
func TestWorkingDaysSplitProperty(t *testing.T) {
	a := day(2025, 1, 1)
	c := day(2025, 3, 31)
	total := WorkingDays(a, c)
	for b := a; !b.After(c); b = b.AddDate(0, 0, 1) {
		left := WorkingDays(a, b)
		right := WorkingDays(b.AddDate(0, 0, 1), c)
		require.Equal(t, total, left+right, "split at %s", b.Format("2006-01-02"))
	}
}

func TestOverlap(t *testing.T) {
	s, e, ok := Overlap(day(2025, 3, 3), day(2025, 3, 14), day(2025, 3, 10), day(2025, 3, 20))
	require.True(t, ok)
	assert.Equal(t, day(2025, 3, 10), s)
	assert.Equal(t, day(2025, 3, 14), e)

	// touching endpoints still intersect (closed intervals)
	s, e, ok = Overlap(day(2025, 3, 3), day(2025, 3, 10), day(2025, 3, 10), day(2025, 3, 20))
	require.True(t, ok)
	assert.Equal(t, day(2025, 3, 10), s)
	assert.Equal(t, day(2025, 3, 10), e)

	_, _, ok = Overlap(day(2025, 3, 3), day(2025, 3, 7), day(2025, 3, 10), day(2025, 3, 20))
	assert.False(t, ok)
}

func TestWeekStart(t *testing.T) {
	// Wednesday 2025-03-05 -> Monday 2025-03-03
	assert.Equal(t, day(2025, 3, 3), WeekStart(day(2025, 3, 5)))
	// Sunday belongs to the week that started the previous Monday
	assert.Equal(t, day(2025, 3, 3), WeekStart(day(2025, 3, 9)))
	// Monday maps to itself
	assert.Equal(t, day(2025, 3, 3), WeekStart(day(2025, 3, 3)))
}
