package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/mcanepa/sendero/internal/models"
)

type UnsubscribeEventRepository struct {
	db *sql.DB
}

func NewUnsubscribeEventRepository(db *sql.DB) *UnsubscribeEventRepository {
	return &UnsubscribeEventRepository{db: db}
}

// Record stores an opt-out event, deduplicating on the token hash.
// Returns true when the event was new.
func (r *UnsubscribeEventRepository) Record(ev *models.UnsubscribeEvent) (bool, error) {
	ev.ID = uuid.New().String()
	ev.CreatedAt = time.Now()

	res, err := r.db.Exec(`
		INSERT INTO unsubscribe_events (id, contact_id, campaign_id, token_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(token_hash) DO NOTHING`,
		ev.ID, ev.ContactID, nullable(ev.CampaignID), ev.TokenHash, ev.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// ListByContact returns a contact's opt-out events, newest first
func (r *UnsubscribeEventRepository) ListByContact(contactID string) ([]models.UnsubscribeEvent, error) {
	rows, err := r.db.Query(`
		SELECT id, contact_id, campaign_id, token_hash, created_at
		FROM unsubscribe_events WHERE contact_id = ? ORDER BY created_at DESC`, contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []models.UnsubscribeEvent{}
	for rows.Next() {
		ev := models.UnsubscribeEvent{}
		var campaignID sql.NullString
		if err := rows.Scan(&ev.ID, &ev.ContactID, &campaignID, &ev.TokenHash, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if campaignID.Valid {
			ev.CampaignID = campaignID.String
		}
		events = append(events, ev)
	}

	return events, nil
}
