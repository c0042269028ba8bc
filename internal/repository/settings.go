package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcanepa/sendero/internal/models"
)

type SettingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the account settings, falling back to defaults when the
// settings row has never been written.
func (r *SettingsRepository) Get() (*models.Settings, error) {
	var timezone string
	var quota, minDelay int
	var windowsJSON string
	var updatedAt time.Time

	err := r.db.QueryRow(`
		SELECT timezone, daily_quota, min_delay_seconds, send_windows, updated_at
		FROM settings WHERE id = 1`,
	).Scan(&timezone, &quota, &minDelay, &windowsJSON, &updatedAt)
	if err == sql.ErrNoRows {
		defaults := models.DefaultSettings()
		return &defaults, nil
	}
	if err != nil {
		return nil, err
	}

	st := &models.Settings{
		Timezone:        timezone,
		DailyQuota:      quota,
		MinDelaySeconds: minDelay,
		UpdatedAt:       updatedAt,
	}
	if err := json.Unmarshal([]byte(windowsJSON), &st.SendWindows); err != nil {
		return nil, fmt.Errorf("failed to parse send windows: %w", err)
	}

	return st, nil
}

// Update upserts the single settings row
func (r *SettingsRepository) Update(st *models.Settings) error {
	windowsJSON, err := json.Marshal(st.SendWindows)
	if err != nil {
		return fmt.Errorf("failed to serialize send windows: %w", err)
	}

	st.UpdatedAt = time.Now()
	_, err = r.db.Exec(`
		INSERT INTO settings (id, timezone, daily_quota, min_delay_seconds, send_windows, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			timezone = excluded.timezone,
			daily_quota = excluded.daily_quota,
			min_delay_seconds = excluded.min_delay_seconds,
			send_windows = excluded.send_windows,
			updated_at = excluded.updated_at`,
		st.Timezone, st.DailyQuota, st.MinDelaySeconds, string(windowsJSON), st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	return nil
}
