package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcanepa/sendero/internal/models"
)

type DraftRepository struct {
	db *sql.DB
}

func NewDraftRepository(db *sql.DB) *DraftRepository {
	return &DraftRepository{db: db}
}

const draftColumns = `
	id, campaign_id, contact_id, to_email, rendered_subject, rendered_html,
	state, included_manually, excluded_manually, error, message_id, permalink,
	sent_at, created_at, updated_at`

func scanDraft(row interface{ Scan(...any) error }) (*models.DraftItem, error) {
	item := &models.DraftItem{}
	var contactID, errMsg, messageID, permalink sql.NullString
	var included, excluded int
	var sentAt sql.NullTime

	err := row.Scan(&item.ID, &item.CampaignID, &contactID, &item.ToEmail,
		&item.RenderedSubject, &item.RenderedHTML, &item.State,
		&included, &excluded, &errMsg, &messageID, &permalink,
		&sentAt, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if contactID.Valid {
		item.ContactID = contactID.String
	}
	if errMsg.Valid {
		item.Error = errMsg.String
	}
	if messageID.Valid {
		item.MessageID = messageID.String
	}
	if permalink.Valid {
		item.Permalink = permalink.String
	}
	if sentAt.Valid {
		item.SentAt = &sentAt.Time
	}
	item.IncludedManually = included != 0
	item.ExcludedManually = excluded != 0

	return item, nil
}

// Create inserts a single pending draft
func (r *DraftRepository) Create(item *models.DraftItem) error {
	item.ID = uuid.New().String()
	item.State = models.DraftPending
	item.CreatedAt = time.Now()
	item.UpdatedAt = item.CreatedAt

	_, err := r.db.Exec(`
		INSERT INTO draft_items (id, campaign_id, contact_id, to_email, rendered_subject, rendered_html, state, included_manually, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.CampaignID, nullable(item.ContactID), item.ToEmail,
		item.RenderedSubject, item.RenderedHTML, item.State,
		item.IncludedManually, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create draft item: %w", err)
	}
	return nil
}

// CreateBatch inserts drafts in one transaction and returns the number
// created. Insertion order is preserved for oldest-first processing.
func (r *DraftRepository) CreateBatch(items []models.DraftItem) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO draft_items (id, campaign_id, contact_id, to_email, rendered_subject, rendered_html, state, included_manually, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now()
	for i := range items {
		items[i].ID = uuid.New().String()
		items[i].State = models.DraftPending
		items[i].CreatedAt = now
		items[i].UpdatedAt = now

		_, err := stmt.Exec(items[i].ID, items[i].CampaignID, nullable(items[i].ContactID),
			items[i].ToEmail, items[i].RenderedSubject, items[i].RenderedHTML,
			items[i].State, items[i].IncludedManually, now, now)
		if err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(items), nil
}

// DeleteForCampaign removes every draft of a campaign
func (r *DraftRepository) DeleteForCampaign(campaignID string) error {
	_, err := r.db.Exec("DELETE FROM draft_items WHERE campaign_id = ?", campaignID)
	return err
}

// Count returns the total number of drafts for a campaign
func (r *DraftRepository) Count(campaignID string) (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM draft_items WHERE campaign_id = ?", campaignID).Scan(&count)
	return count, err
}

// CountPending returns the number of drafts still waiting to be sent
func (r *DraftRepository) CountPending(campaignID string) (int, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM draft_items WHERE campaign_id = ? AND state = 'pending'",
		campaignID).Scan(&count)
	return count, err
}

// GetByID returns a draft by ID, or nil when it does not exist
func (r *DraftRepository) GetByID(id string) (*models.DraftItem, error) {
	item, err := scanDraft(r.db.QueryRow(
		"SELECT"+draftColumns+" FROM draft_items WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return item, err
}

// FindByEmail returns the campaign's draft for an email, or nil
func (r *DraftRepository) FindByEmail(campaignID, email string) (*models.DraftItem, error) {
	item, err := scanDraft(r.db.QueryRow(
		"SELECT"+draftColumns+" FROM draft_items WHERE campaign_id = ? AND to_email = ?",
		campaignID, email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return item, err
}

// NextPending returns the oldest pending draft of a campaign, or nil when
// none remain. rowid keeps the order stable for drafts created in the same
// batch.
func (r *DraftRepository) NextPending(campaignID string) (*models.DraftItem, error) {
	item, err := scanDraft(r.db.QueryRow(
		"SELECT"+draftColumns+` FROM draft_items
		WHERE campaign_id = ? AND state = 'pending'
		ORDER BY created_at, rowid LIMIT 1`, campaignID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return item, err
}

// List returns drafts with filtering and pagination
func (r *DraftRepository) List(filter models.DraftListFilter) ([]models.DraftItem, int, error) {
	countQuery := "SELECT COUNT(*) FROM draft_items WHERE campaign_id = ?"
	args := []any{filter.CampaignID}

	if filter.State != "" {
		countQuery += " AND state = ?"
		args = append(args, filter.State)
	}
	if filter.Query != "" {
		countQuery += " AND to_email LIKE ?"
		args = append(args, "%"+filter.Query+"%")
	}

	var total int
	if err := r.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := "SELECT" + draftColumns + " FROM draft_items WHERE campaign_id = ?"
	args = []any{filter.CampaignID}

	if filter.State != "" {
		query += " AND state = ?"
		args = append(args, filter.State)
	}
	if filter.Query != "" {
		query += " AND to_email LIKE ?"
		args = append(args, "%"+filter.Query+"%")
	}

	query += " ORDER BY created_at, rowid"

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

	items := []models.DraftItem{}
	for rows.Next() {
		item, err := scanDraft(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, *item)
	}

	return items, total, nil
}

// MarkSent transitions a pending draft to sent, recording the provider
// message id and permalink. Returns false when the draft was not pending.
func (r *DraftRepository) MarkSent(id, messageID, permalink string) (bool, error) {
	now := time.Now()
	res, err := r.db.Exec(`
		UPDATE draft_items
		SET state = 'sent', message_id = ?, permalink = ?, sent_at = ?, updated_at = ?
		WHERE id = ? AND state = 'pending'`,
		messageID, permalink, now, now, id,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// MarkFailed transitions a pending draft to failed with the transport
// error. Failed drafts are terminal and never retried automatically.
func (r *DraftRepository) MarkFailed(id, errMsg string) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE draft_items SET state = 'failed', error = ?, updated_at = ?
		WHERE id = ? AND state = 'pending'`,
		errMsg, time.Now(), id,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// Exclude flips a pending draft to excluded. Sent and failed drafts are
// untouched; returns false when no transition happened.
func (r *DraftRepository) Exclude(id string) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE draft_items SET state = 'excluded', excluded_manually = 1, updated_at = ?
		WHERE id = ? AND state = 'pending'`,
		time.Now(), id,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// Include re-activates an excluded draft back to pending.
func (r *DraftRepository) Include(id string) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE draft_items SET state = 'pending', excluded_manually = 0, updated_at = ?
		WHERE id = ? AND state = 'excluded'`,
		time.Now(), id,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}
