// Package occurrence resolves a habit's recurrence rule against an instant
// into the eligibility window the completion ledger must check.
package occurrence

import "time"

const (
	Daily       = "daily"
	Weekly      = "weekly"
	Weekdays    = "weekdays"
	Weekends    = "weekends"
	OnceWeekly  = "once_weekly"
	Biweekly    = "biweekly"
	TwiceWeekly = "twice_weekly"
)

// Known reports whether occ is a recognized occurrence value. Unrecognized
// values still resolve (as daily), so Known is only for validating input on
// habit creation.
func Known(occ string) bool {
	switch occ {
	case Daily, Weekly, Weekdays, Weekends, OnceWeekly, Biweekly, TwiceWeekly:
		return true
	}
	return false
}

// Window is a half-open interval [Start, End) together with the number of
// completions allowed inside it.
type Window struct {
	Start time.Time
	End   time.Time
	// Max is how many completions the window admits: 1 for every rule except
	// twice_weekly, where it is 2 and eligibility is count-based.
	Max int
}

// Resolve maps an occurrence rule and the current instant to the window a
// new completion must be checked against. The second return value is false
// when the rule does not apply to the current day at all (weekdays on a
// weekend, weekends on a weekday); callers must reject such attempts without
// consulting storage, and with a different reason than "already completed".
//
// Day and week boundaries follow now's location; weeks start on Monday.
func Resolve(occ string, now time.Time) (Window, bool) {
	switch occ {
	case Weekly, OnceWeekly:
		start := startOfWeek(now)
		return Window{Start: start, End: start.AddDate(0, 0, 7), Max: 1}, true

	case Weekdays:
		if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return Window{}, false
		}
		return dayWindow(now), true

	case Weekends:
		if wd := now.Weekday(); wd != time.Saturday && wd != time.Sunday {
			return Window{}, false
		}
		return dayWindow(now), true

	case Biweekly:
		// Sliding 14-day lookback, not an aligned calendar window. The end
		// is the upcoming midnight so the current instant is always inside.
		start := startOfDay(now).AddDate(0, 0, -14)
		return Window{Start: start, End: startOfDay(now).AddDate(0, 0, 1), Max: 1}, true

	case TwiceWeekly:
		start := startOfWeek(now)
		return Window{Start: start, End: start.AddDate(0, 0, 7), Max: 2}, true

	default:
		// daily, and anything unrecognized.
		return dayWindow(now), true
	}
}

func dayWindow(now time.Time) Window {
	start := startOfDay(now)
	return Window{Start: start, End: start.AddDate(0, 0, 1), Max: 1}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// startOfWeek returns midnight of the most recent Monday. On a Sunday the
// week still starts on the Monday six days prior.
func startOfWeek(t time.Time) time.Time {
	daysToMonday := int(t.Weekday()) - 1
	if t.Weekday() == time.Sunday {
		daysToMonday = 6
	}
	return startOfDay(t).AddDate(0, 0, -daysToMonday)
}
