package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/mcanepa/sendero/internal/models"
)

type BounceRepository struct {
	db *sql.DB
}

func NewBounceRepository(db *sql.DB) *BounceRepository {
	return &BounceRepository{db: db}
}

// Record stores a bounce event, deduplicating on the provider message id.
// Returns true when the event was new.
func (r *BounceRepository) Record(ev *models.BounceEvent) (bool, error) {
	ev.ID = uuid.New().String()
	ev.CreatedAt = time.Now()

	res, err := r.db.Exec(`
		INSERT INTO bounce_events (id, provider_msg_id, bounced_email, reason, permalink, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider_msg_id) DO NOTHING`,
		ev.ID, ev.ProviderMsgID, ev.BouncedEmail, ev.Reason, ev.Permalink, ev.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// List returns bounce events, newest first
func (r *BounceRepository) List(filter models.BounceListFilter) ([]models.BounceEvent, int, error) {
	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM bounce_events").Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, provider_msg_id, bounced_email, reason, permalink, created_at
		FROM bounce_events ORDER BY created_at DESC`
	args := []any{}

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	events := []models.BounceEvent{}
	for rows.Next() {
		ev := models.BounceEvent{}
		var email, reason, permalink sql.NullString
		err := rows.Scan(&ev.ID, &ev.ProviderMsgID, &email, &reason, &permalink, &ev.CreatedAt)
		if err != nil {
			return nil, 0, err
		}
		if email.Valid {
			ev.BouncedEmail = email.String
		}
		if reason.Valid {
			ev.Reason = reason.String
		}
		if permalink.Valid {
			ev.Permalink = permalink.String
		}
		events = append(events, ev)
	}

	return events, total, nil
}
