package schedule

import (
	"fmt"
	"time"

	"github.com/mcanepa/sendero/internal/models"
)

var weekdayNames = []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// ValidateSettings checks that settings can actually drive the scheduler:
// the timezone must load, the quota and minimum delay must be sane, and
// every window must parse with start strictly before end.
func ValidateSettings(st models.Settings) error {
	if _, err := time.LoadLocation(st.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q", st.Timezone)
	}
	if st.DailyQuota <= 0 {
		return fmt.Errorf("daily_quota must be positive, got %d", st.DailyQuota)
	}
	if st.MinDelaySeconds < 0 {
		return fmt.Errorf("min_delay_seconds must not be negative, got %d", st.MinDelaySeconds)
	}
	for day := 0; day < 7; day++ {
		for _, w := range st.SendWindows.ForWeekday(day) {
			start, err := parseClock(w.Start)
			if err != nil {
				return fmt.Errorf("%s: %w", weekdayNames[day], err)
			}
			end, err := parseClock(w.End)
			if err != nil {
				return fmt.Errorf("%s: %w", weekdayNames[day], err)
			}
			if start >= end {
				return fmt.Errorf("%s: window %s-%s is empty", weekdayNames[day], w.Start, w.End)
			}
		}
	}
	return nil
}
