package models

import "time"

// SendWindow is a daily wall-clock interval during which sending is
// permitted. Start and End are "HH:MM" strings; the interval is half-open,
// an instant exactly at End is outside. Windows never wrap past midnight.
type SendWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// SendWindows maps each weekday to its list of send windows. A day with an
// empty list is closed all day.
type SendWindows struct {
	Monday    []SendWindow `json:"monday"`
	Tuesday   []SendWindow `json:"tuesday"`
	Wednesday []SendWindow `json:"wednesday"`
	Thursday  []SendWindow `json:"thursday"`
	Friday    []SendWindow `json:"friday"`
	Saturday  []SendWindow `json:"saturday"`
	Sunday    []SendWindow `json:"sunday"`
}

// ForWeekday returns the window list for a Go time.Weekday (Sunday == 0).
func (w SendWindows) ForWeekday(day int) []SendWindow {
	switch day {
	case 0:
		return w.Sunday
	case 1:
		return w.Monday
	case 2:
		return w.Tuesday
	case 3:
		return w.Wednesday
	case 4:
		return w.Thursday
	case 5:
		return w.Friday
	case 6:
		return w.Saturday
	}
	return nil
}

// Settings is the process-wide sending configuration, a singleton mutated
// only through the admin update endpoint.
type Settings struct {
	Timezone        string      `json:"timezone"`
	DailyQuota      int         `json:"daily_quota"`
	MinDelaySeconds int         `json:"min_delay_seconds"`
	SendWindows     SendWindows `json:"send_windows"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// DefaultSettings mirrors the seed row installed by the migration.
func DefaultSettings() Settings {
	weekday := []SendWindow{{Start: "09:00", End: "20:00"}}
	weekend := []SendWindow{{Start: "09:00", End: "13:00"}}
	return Settings{
		Timezone:        "America/Argentina/Buenos_Aires",
		DailyQuota:      1490,
		MinDelaySeconds: 30,
		SendWindows: SendWindows{
			Monday:    weekday,
			Tuesday:   weekday,
			Wednesday: weekday,
			Thursday:  weekday,
			Friday:    weekday,
			Saturday:  weekend,
			Sunday:    weekend,
		},
	}
}
