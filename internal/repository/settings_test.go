package repository

import (
	"testing"

	"github.com/mcanepa/sendero/internal/models"
)

func TestSettingsRepository_GetDefaults(t *testing.T) {
	d := setupTestDB(t)
	repo := NewSettingsRepository(d)

	// No row written yet: defaults apply
	st, err := repo.Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if st.Timezone != "America/Argentina/Buenos_Aires" {
		t.Errorf("default timezone = %v", st.Timezone)
	}
	if st.DailyQuota != 1490 {
		t.Errorf("default quota = %d, want 1490", st.DailyQuota)
	}
	if len(st.SendWindows.ForWeekday(1)) == 0 {
		t.Error("default settings have no Monday windows")
	}
}

func TestSettingsRepository_UpdateRoundTrip(t *testing.T) {
	d := setupTestDB(t)
	repo := NewSettingsRepository(d)

	st := models.DefaultSettings()
	st.Timezone = "Europe/Madrid"
	st.DailyQuota = 200
	st.MinDelaySeconds = 60
	st.SendWindows = models.SendWindows{
		Monday: []models.SendWindow{{Start: "10:00", End: "12:00"}},
	}

	if err := repo.Update(&st); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := repo.Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Timezone != "Europe/Madrid" {
		t.Errorf("timezone = %v, want Europe/Madrid", got.Timezone)
	}
	if got.DailyQuota != 200 || got.MinDelaySeconds != 60 {
		t.Errorf("quota/delay = %d/%d, want 200/60", got.DailyQuota, got.MinDelaySeconds)
	}
	windows := got.SendWindows.ForWeekday(1)
	if len(windows) != 1 || windows[0].Start != "10:00" {
		t.Errorf("monday windows = %+v", windows)
	}
	if len(got.SendWindows.ForWeekday(2)) != 0 {
		t.Error("tuesday windows should be empty")
	}

	// Second update overwrites the same row
	st.DailyQuota = 300
	if err := repo.Update(&st); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, err = repo.Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.DailyQuota != 300 {
		t.Errorf("quota after second update = %d, want 300", got.DailyQuota)
	}
}

func TestCounterRepository(t *testing.T) {
	d := setupTestDB(t)
	repo := NewCounterRepository(d)

	// Unknown day reads as zero
	sent, err := repo.SentOn("2025-01-15")
	if err != nil {
		t.Fatalf("SentOn() error = %v", err)
	}
	if sent != 0 {
		t.Errorf("SentOn(unknown) = %d, want 0", sent)
	}

	for i := 0; i < 3; i++ {
		if err := repo.Increment("2025-01-15"); err != nil {
			t.Fatalf("Increment() error = %v", err)
		}
	}
	if err := repo.Increment("2025-01-16"); err != nil {
		t.Fatalf("Increment() error = %v", err)
	}

	sent, err = repo.SentOn("2025-01-15")
	if err != nil {
		t.Fatalf("SentOn() error = %v", err)
	}
	if sent != 3 {
		t.Errorf("SentOn() = %d, want 3", sent)
	}

	// Counters are per-day
	sent, err = repo.SentOn("2025-01-16")
	if err != nil {
		t.Fatalf("SentOn() error = %v", err)
	}
	if sent != 1 {
		t.Errorf("SentOn(next day) = %d, want 1", sent)
	}
}
