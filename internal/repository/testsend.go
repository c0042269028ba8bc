package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/mcanepa/sendero/internal/models"
)

type TestSendRepository struct {
	db *sql.DB
}

func NewTestSendRepository(db *sql.DB) *TestSendRepository {
	return &TestSendRepository{db: db}
}

// Record stores a test-send audit event. Test sends never touch draft
// state or the daily counters.
func (r *TestSendRepository) Record(ev *models.TestSendEvent) error {
	ev.ID = uuid.New().String()
	ev.CreatedAt = time.Now()

	_, err := r.db.Exec(`
		INSERT INTO test_send_events (id, campaign_id, contact_id, to_email, rendered_subject, rendered_html, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.CampaignID, nullable(ev.ContactID), ev.ToEmail, ev.RenderedSubject, ev.RenderedHTML, ev.CreatedAt,
	)
	return err
}

// ListForCampaign returns test-send events for a campaign, newest first
func (r *TestSendRepository) ListForCampaign(campaignID string) ([]models.TestSendEvent, error) {
	rows, err := r.db.Query(`
		SELECT id, campaign_id, contact_id, to_email, rendered_subject, rendered_html, created_at
		FROM test_send_events WHERE campaign_id = ?
		ORDER BY created_at DESC`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []models.TestSendEvent{}
	for rows.Next() {
		ev := models.TestSendEvent{}
		var contactID sql.NullString
		err := rows.Scan(&ev.ID, &ev.CampaignID, &contactID, &ev.ToEmail,
			&ev.RenderedSubject, &ev.RenderedHTML, &ev.CreatedAt)
		if err != nil {
			return nil, err
		}
		if contactID.Valid {
			ev.ContactID = contactID.String
		}
		events = append(events, ev)
	}

	return events, nil
}
