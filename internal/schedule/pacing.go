package schedule

import (
	"fmt"
	"time"

	"github.com/mcanepa/sendero/internal/models"
)

// DecisionType classifies the outcome of a pacing evaluation.
type DecisionType string

const (
	// Immediate means a draft may be sent now; DelaySeconds spaces the
	// following tick.
	Immediate DecisionType = "immediate"
	// NextWindow means now is outside every send window; resume at NotBefore.
	NextWindow DecisionType = "next_window"
	// QuotaExceeded means the daily quota is spent; resume at NotBefore.
	QuotaExceeded DecisionType = "quota_exceeded"
)

// Decision is the pacing verdict for one tick.
type Decision struct {
	Type         DecisionType
	DelaySeconds int
	NotBefore    time.Time
	Reason       string
}

// NextTick evaluates quota, window and pacing, in that priority order.
//
// When the quota is spent and the raw next window would still fall on
// today's local date, the true resume point is local midnight of the next
// day: the quota resets daily, not per window. Inside a window with quota
// available, the remaining sends are spread evenly across the remaining
// window time, with MinDelaySeconds as a hard floor.
func NextTick(st models.Settings, now time.Time, pendingCount, todaySentCount int) (Decision, error) {
	if todaySentCount >= st.DailyQuota {
		nextWindow, err := NextWindowStart(st, now)
		if err != nil {
			return Decision{}, err
		}

		loc, err := location(st)
		if err != nil {
			return Decision{}, err
		}
		local := now.In(loc)
		windowLocal := nextWindow.In(loc)

		if windowLocal.Year() == local.Year() && windowLocal.YearDay() == local.YearDay() {
			midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
			return Decision{
				Type:      QuotaExceeded,
				NotBefore: midnight,
				Reason:    fmt.Sprintf("Cuota diaria alcanzada (%d). Continuará mañana.", st.DailyQuota),
			}, nil
		}

		return Decision{
			Type:      QuotaExceeded,
			NotBefore: nextWindow,
			Reason:    fmt.Sprintf("Cuota diaria alcanzada (%d). Continuará en la próxima ventana.", st.DailyQuota),
		}, nil
	}

	within, err := IsWithinSendWindow(st, now)
	if err != nil {
		return Decision{}, err
	}
	if !within {
		nextWindow, err := NextWindowStart(st, now)
		if err != nil {
			return Decision{}, err
		}
		return Decision{
			Type:      NextWindow,
			NotBefore: nextWindow,
			Reason:    "Fuera de ventana de envío. Esperando próxima ventana.",
		}, nil
	}

	remainingSeconds, err := SecondsRemainingInWindow(st, now)
	if err != nil {
		return Decision{}, err
	}
	remainingQuota := st.DailyQuota - todaySentCount
	toSend := pendingCount
	if remainingQuota < toSend {
		toSend = remainingQuota
	}

	delaySeconds := st.MinDelaySeconds
	if toSend > 0 && remainingSeconds > 0 {
		ideal := remainingSeconds / toSend
		if ideal > delaySeconds {
			delaySeconds = ideal
		}
	}

	return Decision{Type: Immediate, DelaySeconds: delaySeconds}, nil
}
