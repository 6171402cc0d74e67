// Package clock pins every calendar computation to India Standard Time.
//
// Offices run on IST regardless of where the server or the agent runs, so
// day, week and month boundaries are always taken at UTC+05:30. Windows are
// half-open [Start, End); at millisecond precision that is the same set of
// instants as the inclusive range ending at 23:59:59.999.
package clock

import (
	"errors"
	"fmt"
	"time"
)

// IST has no daylight saving, a fixed zone is exact.
var IST = time.FixedZone("IST", 5*60*60+30*60)

const DateLayout = "2006-01-02"

var ErrInvalidDate = errors.New("invalid date, expected YYYY-MM-DD")

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now().In(IST)
}

// FixedClock always returns the same instant. Used by tests and replays.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time {
	return c.At.In(IST)
}

type Window struct {
	Start time.Time
	End   time.Time
	Label string
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Last is the final millisecond that still belongs to the window.
func (w Window) Last() time.Time {
	return w.End.Add(-time.Millisecond)
}

// Clamp limits t to [Start, End].
func (w Window) Clamp(t time.Time) time.Time {
	if t.Before(w.Start) {
		return w.Start
	}
	if t.After(w.End) {
		return w.End
	}
	return t
}

// Days returns the start of each civil day covered by the window.
func (w Window) Days() []time.Time {
	var days []time.Time
	for d := StartOfDay(w.Start); d.Before(w.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func StartOfDay(t time.Time) time.Time {
	t = t.In(IST)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, IST)
}

func FormatDate(t time.Time) string {
	return t.In(IST).Format(DateLayout)
}

func DayWindow(t time.Time) Window {
	start := StartOfDay(t)
	return Window{Start: start, End: start.AddDate(0, 0, 1), Label: FormatDate(start)}
}

// WeekWindow is the Monday to Sunday week containing t.
func WeekWindow(t time.Time) Window {
	start := StartOfDay(t)
	offset := (int(start.Weekday()) + 6) % 7
	start = start.AddDate(0, 0, -offset)
	year, week := start.ISOWeek()
	return Window{
		Start: start,
		End:   start.AddDate(0, 0, 7),
		Label: fmt.Sprintf("%04d-W%02d", year, week),
	}
}

func MonthWindow(t time.Time) Window {
	t = t.In(IST)
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, IST)
	return Window{Start: start, End: start.AddDate(0, 1, 0), Label: start.Format("2006-01")}
}

// EarlyMorningWindow is [00:00, 05:00) of the civil day containing t.
func EarlyMorningWindow(t time.Time) Window {
	start := StartOfDay(t)
	return Window{Start: start, End: start.Add(5 * time.Hour), Label: FormatDate(start) + "-early"}
}

// PreviousDaysWindow covers the n whole days before the day containing t,
// excluding that day.
func PreviousDaysWindow(t time.Time, n int) Window {
	end := StartOfDay(t)
	start := end.AddDate(0, 0, -n)
	return Window{
		Start: start,
		End:   end,
		Label: FormatDate(start) + ".." + FormatDate(end.AddDate(0, 0, -1)),
	}
}

// RangeWindow covers whole days from through to, both inclusive.
func RangeWindow(from, to time.Time) Window {
	start := StartOfDay(from)
	end := StartOfDay(to).AddDate(0, 0, 1)
	return Window{Start: start, End: end, Label: FormatDate(start) + ".." + FormatDate(to)}
}

// ParseDate reads a YYYY-MM-DD civil date as midnight IST.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, IST)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

func IsSameDay(a, b time.Time) bool {
	return FormatDate(a) == FormatDate(b)
}
