package repository

import (
	"database/sql"
)

// CounterRepository tracks account-wide sent counts per local calendar day.
// The day key is computed in the account timezone, so the quota resets at
// local midnight rather than UTC midnight.
type CounterRepository struct {
	db *sql.DB
}

func NewCounterRepository(db *sql.DB) *CounterRepository {
	return &CounterRepository{db: db}
}

// Increment adds one to the sent counter for the given day key
func (r *CounterRepository) Increment(day string) error {
	_, err := r.db.Exec(`
		INSERT INTO send_counters (day, sent) VALUES (?, 1)
		ON CONFLICT(day) DO UPDATE SET sent = sent + 1`, day)
	return err
}

// SentOn returns the number of emails sent on the given day key
func (r *CounterRepository) SentOn(day string) (int, error) {
	var sent int
	err := r.db.QueryRow("SELECT sent FROM send_counters WHERE day = ?", day).Scan(&sent)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return sent, err
}
