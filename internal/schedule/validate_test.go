package schedule

import (
	"strings"
	"testing"

	"github.com/mcanepa/sendero/internal/models"
)

func TestValidateSettings(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.Settings)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(st *models.Settings) {},
		},
		{
			name:    "bad timezone",
			mutate:  func(st *models.Settings) { st.Timezone = "America/Nowhere" },
			wantErr: "invalid timezone",
		},
		{
			name:    "zero quota",
			mutate:  func(st *models.Settings) { st.DailyQuota = 0 },
			wantErr: "daily_quota",
		},
		{
			name:    "negative min delay",
			mutate:  func(st *models.Settings) { st.MinDelaySeconds = -1 },
			wantErr: "min_delay_seconds",
		},
		{
			name: "unparseable window",
			mutate: func(st *models.Settings) {
				st.SendWindows.Tuesday = []models.SendWindow{{Start: "9am", End: "17:00"}}
			},
			wantErr: "tuesday",
		},
		{
			name: "inverted window",
			mutate: func(st *models.Settings) {
				st.SendWindows.Friday = []models.SendWindow{{Start: "18:00", End: "09:00"}}
			},
			wantErr: "friday",
		},
		{
			name: "fully closed schedule is allowed",
			mutate: func(st *models.Settings) {
				st.SendWindows = models.SendWindows{}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := models.DefaultSettings()
			tt.mutate(&st)

			err := ValidateSettings(st)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidateSettings() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("ValidateSettings() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateSettings() error = %v, want contains %q", err, tt.wantErr)
			}
		})
	}
}
