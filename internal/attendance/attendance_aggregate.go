package attendance

import (
	"math"
	"time"

	"tn-work/internal/shared/clock"
)

type Granularity string

const (
	GranularityDay        Granularity = "day"
	GranularityWeekOfDays Granularity = "week_of_days"
)

type Bucket struct {
	Label string
	Date  time.Time
	Hours float64
}

// SessionDuration is min(checkOut, now) - checkIn, never negative.
// An open session counts up to now.
func SessionDuration(s Session, now time.Time) time.Duration {
	end := now
	if s.CheckOut != nil && s.CheckOut.Before(now) {
		end = *s.CheckOut
	}
	d := end.Sub(s.CheckIn)
	if d < 0 {
		return 0
	}
	return d
}

func RoundHours(d time.Duration) float64 {
	return math.Round(d.Hours()*100) / 100
}

// TotalHours sums the sessions whose check-in lies in w. A session belongs
// wholly to its check-in day even when it runs past midnight.
func TotalHours(sessions []Session, w clock.Window, now time.Time) float64 {
	var total time.Duration
	for _, s := range sessions {
		if w.Contains(s.CheckIn) {
			total += SessionDuration(s, now)
		}
	}
	return RoundHours(total)
}

// Bucketed returns one bucket per civil day of w, zero days included.
func Bucketed(sessions []Session, w clock.Window, g Granularity, now time.Time) []Bucket {
	perDay := make(map[string]time.Duration)
	for _, s := range sessions {
		if w.Contains(s.CheckIn) {
			perDay[clock.FormatDate(s.CheckIn)] += SessionDuration(s, now)
		}
	}

	days := w.Days()
	buckets := make([]Bucket, 0, len(days))
	for _, day := range days {
		label := clock.FormatDate(day)
		if g == GranularityWeekOfDays {
			label = day.Weekday().String()[:3]
		}
		buckets = append(buckets, Bucket{
			Label: label,
			Date:  day,
			Hours: RoundHours(perDay[clock.FormatDate(day)]),
		})
	}
	return buckets
}
