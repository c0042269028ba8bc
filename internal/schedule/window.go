// Package schedule decides whether and how fast a campaign may send.
// All civil-time arithmetic lives here: callers pass absolute instants and
// get absolute instants back, with the configured timezone applied only
// inside this package.
package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mcanepa/sendero/internal/models"
)

// ErrNoWindows is returned when the weekly schedule has no send window at
// all within the next 7 days. A fully closed schedule is a configuration
// error for anything that needs a future window.
var ErrNoWindows = errors.New("no hay ninguna ventana de envío en los próximos 7 días")

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	hours, err := strconv.Atoi(hh)
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	minutes, err := strconv.Atoi(mm)
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return hours*60 + minutes, nil
}

func location(st models.Settings) (*time.Location, error) {
	loc, err := time.LoadLocation(st.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", st.Timezone, err)
	}
	return loc, nil
}

func minutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// IsWithinSendWindow reports whether now falls inside any window configured
// for the local weekday. Intervals are half-open: an instant exactly at the
// end is outside.
func IsWithinSendWindow(st models.Settings, now time.Time) (bool, error) {
	loc, err := location(st)
	if err != nil {
		return false, err
	}
	local := now.In(loc)
	current := minutesOfDay(local)

	for _, w := range st.SendWindows.ForWeekday(int(local.Weekday())) {
		start, err := parseClock(w.Start)
		if err != nil {
			return false, err
		}
		end, err := parseClock(w.End)
		if err != nil {
			return false, err
		}
		if current >= start && current < end {
			return true, nil
		}
	}
	return false, nil
}

// SecondsRemainingInWindow returns how many seconds are left in the window
// containing now, or 0 when now is outside every window.
func SecondsRemainingInWindow(st models.Settings, now time.Time) (int, error) {
	loc, err := location(st)
	if err != nil {
		return 0, err
	}
	local := now.In(loc)
	current := minutesOfDay(local)

	for _, w := range st.SendWindows.ForWeekday(int(local.Weekday())) {
		start, err := parseClock(w.Start)
		if err != nil {
			return 0, err
		}
		end, err := parseClock(w.End)
		if err != nil {
			return 0, err
		}
		if current >= start && current < end {
			return (end-current)*60 - local.Second(), nil
		}
	}
	return 0, nil
}

// NextWindowStart scans the next 7 calendar days, today included, and
// returns the absolute instant of the first window start strictly after
// now's local wall clock. Window lists need not be sorted; the earliest
// qualifying start of each day wins.
func NextWindowStart(st models.Settings, now time.Time) (time.Time, error) {
	loc, err := location(st)
	if err != nil {
		return time.Time{}, err
	}
	local := now.In(loc)
	current := minutesOfDay(local)

	for offset := 0; offset < 7; offset++ {
		day := local.AddDate(0, 0, offset)

		best := -1
		for _, w := range st.SendWindows.ForWeekday(int(day.Weekday())) {
			start, err := parseClock(w.Start)
			if err != nil {
				return time.Time{}, err
			}
			if offset == 0 && start <= current {
				continue
			}
			if best < 0 || start < best {
				best = start
			}
		}
		if best < 0 {
			continue
		}
		return time.Date(day.Year(), day.Month(), day.Day(), best/60, best%60, 0, 0, loc), nil
	}

	return time.Time{}, ErrNoWindows
}

// DayKey returns the local calendar date of now in the configured timezone,
// the key the daily quota counter resets on.
func DayKey(st models.Settings, now time.Time) (string, error) {
	loc, err := location(st)
	if err != nil {
		return "", err
	}
	return now.In(loc).Format("2006-01-02"), nil
}
