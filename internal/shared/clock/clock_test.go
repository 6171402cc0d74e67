package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ist(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, IST)
}

func TestIST_Offset(t *testing.T) {
	_, offset := ist(2026, 1, 1, 0, 0).Zone()
	assert.Equal(t, 19800, offset)

	// 2026-03-01T20:00Z is already 2 March in IST
	utc := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-02", FormatDate(utc))
	assert.Equal(t, "2026-03-02", FixedClock{At: utc}.Now().Format(DateLayout))
}

func TestDayWindow(t *testing.T) {
	w := DayWindow(ist(2026, 3, 2, 14, 0))

	assert.Equal(t, ist(2026, 3, 2, 0, 0), w.Start)
	assert.Equal(t, ist(2026, 3, 3, 0, 0), w.End)
	assert.Equal(t, "2026-03-02", w.Label)
	assert.Equal(t, time.Date(2026, 3, 2, 23, 59, 59, 999_000_000, IST), w.Last())

	assert.True(t, w.Contains(w.Start))
	assert.True(t, w.Contains(w.Last()))
	assert.False(t, w.Contains(w.End))
}

func TestWeekWindow_StartsMonday(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
	}{
		{"monday", ist(2026, 3, 2, 9, 0)},
		{"wednesday", ist(2026, 3, 4, 9, 0)},
		{"sunday late", ist(2026, 3, 8, 23, 59)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := WeekWindow(tt.at)
			assert.Equal(t, time.Monday, w.Start.Weekday())
			assert.Equal(t, ist(2026, 3, 2, 0, 0), w.Start)
			assert.Equal(t, ist(2026, 3, 9, 0, 0), w.End)
			assert.Equal(t, "2026-W10", w.Label)
		})
	}
}

func TestMonthWindow(t *testing.T) {
	w := MonthWindow(ist(2026, 2, 17, 8, 0))
	assert.Equal(t, ist(2026, 2, 1, 0, 0), w.Start)
	assert.Equal(t, ist(2026, 3, 1, 0, 0), w.End)
	assert.Len(t, w.Days(), 28)
	assert.Equal(t, "2026-02", w.Label)
}

func TestEarlyMorningWindow(t *testing.T) {
	w := EarlyMorningWindow(ist(2026, 3, 2, 16, 0))
	assert.True(t, w.Contains(ist(2026, 3, 2, 4, 59)))
	assert.False(t, w.Contains(ist(2026, 3, 2, 5, 0)))
	assert.False(t, w.Contains(ist(2026, 3, 1, 23, 0)))
}

func TestPreviousDaysWindow_ExcludesToday(t *testing.T) {
	w := PreviousDaysWindow(ist(2026, 3, 9, 10, 0), 7)
	assert.Equal(t, ist(2026, 3, 2, 0, 0), w.Start)
	assert.Equal(t, ist(2026, 3, 9, 0, 0), w.End)
	assert.False(t, w.Contains(ist(2026, 3, 9, 0, 0)))
	assert.True(t, w.Contains(ist(2026, 3, 8, 23, 0)))
	assert.Len(t, w.Days(), 7)
}

func TestRangeWindow(t *testing.T) {
	w := RangeWindow(ist(2026, 3, 1, 0, 0), ist(2026, 3, 3, 0, 0))
	assert.Len(t, w.Days(), 3)
	assert.True(t, w.Contains(ist(2026, 3, 3, 23, 0)))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, ist(2026, 3, 2, 0, 0), d)

	for _, bad := range []string{"", "02-03-2026", "2026-13-01", "2026-02-30", "yesterday"} {
		_, err := ParseDate(bad)
		assert.ErrorIs(t, err, ErrInvalidDate, bad)
	}
}

func TestWindow_Clamp(t *testing.T) {
	w := DayWindow(ist(2026, 3, 2, 0, 0))
	assert.Equal(t, w.Start, w.Clamp(ist(2026, 3, 1, 22, 0)))
	assert.Equal(t, w.End, w.Clamp(ist(2026, 3, 3, 2, 0)))
	mid := ist(2026, 3, 2, 12, 0)
	assert.Equal(t, mid, w.Clamp(mid))
	assert.True(t, IsSameDay(mid, w.Start))
}
