package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcanepa/sendero/internal/models"
)

type CampaignRepository struct {
	db *sql.DB
}

func NewCampaignRepository(db *sql.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// nullable maps the empty string to NULL so optional foreign keys stay
// unset instead of violating the reference.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Create creates a new campaign in draft state
func (r *CampaignRepository) Create(c *models.Campaign) error {
	c.ID = uuid.New().String()
	c.Status = models.CampaignDraft
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt

	filters, err := json.Marshal(c.FiltersSnapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal filters: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO campaigns (id, name, status, template_id, filters_snapshot, from_alias, active_lock, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		c.ID, c.Name, c.Status, nullable(c.TemplateID), string(filters), c.FromAlias, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

// GetByID returns a campaign by ID, or nil when it does not exist
func (r *CampaignRepository) GetByID(id string) (*models.Campaign, error) {
	c := &models.Campaign{}
	var templateID, templateName, fromAlias, runID sql.NullString
	var filters string
	var lock int

	err := r.db.QueryRow(`
		SELECT c.id, c.name, c.status, c.template_id, t.name,
			COALESCE(c.filters_snapshot, '{}'), c.from_alias, c.active_lock,
			c.current_run_id, c.created_at, c.updated_at
		FROM campaigns c
		LEFT JOIN templates t ON c.template_id = t.id
		WHERE c.id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.Status, &templateID, &templateName,
		&filters, &fromAlias, &lock, &runID, &c.CreatedAt, &c.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if templateID.Valid {
		c.TemplateID = templateID.String
	}
	if templateName.Valid {
		c.TemplateName = templateName.String
	}
	if fromAlias.Valid {
		c.FromAlias = fromAlias.String
	}
	if runID.Valid {
		c.CurrentRunID = runID.String
	}
	c.ActiveLock = lock != 0

	if err := json.Unmarshal([]byte(filters), &c.FiltersSnapshot); err != nil {
		return nil, fmt.Errorf("failed to parse filters: %w", err)
	}

	return c, nil
}

// List returns campaigns with optional filtering
func (r *CampaignRepository) List(filter models.CampaignListFilter) ([]models.Campaign, int, error) {
	countQuery := "SELECT COUNT(*) FROM campaigns WHERE 1=1"
	args := []any{}

	if filter.Query != "" {
		countQuery += " AND name LIKE ?"
		args = append(args, "%"+filter.Query+"%")
	}
	if filter.Status != "" {
		countQuery += " AND status = ?"
		args = append(args, filter.Status)
	}

	var total int
	if err := r.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT c.id, c.name, c.status, c.template_id, t.name,
			COALESCE(c.filters_snapshot, '{}'), c.from_alias, c.active_lock,
			c.current_run_id, c.created_at, c.updated_at
		FROM campaigns c
		LEFT JOIN templates t ON c.template_id = t.id
		WHERE 1=1`

	args = []any{}
	if filter.Query != "" {
		query += " AND c.name LIKE ?"
		args = append(args, "%"+filter.Query+"%")
	}
	if filter.Status != "" {
		query += " AND c.status = ?"
		args = append(args, filter.Status)
	}

	query += " ORDER BY c.created_at DESC"

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

	campaigns := []models.Campaign{}
	for rows.Next() {
		var c models.Campaign
		var templateID, templateName, fromAlias, runID sql.NullString
		var filters string
		var lock int

		err := rows.Scan(&c.ID, &c.Name, &c.Status, &templateID, &templateName,
			&filters, &fromAlias, &lock, &runID, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, 0, err
		}

		if templateID.Valid {
			c.TemplateID = templateID.String
		}
		if templateName.Valid {
			c.TemplateName = templateName.String
		}
		if fromAlias.Valid {
			c.FromAlias = fromAlias.String
		}
		if runID.Valid {
			c.CurrentRunID = runID.String
		}
		c.ActiveLock = lock != 0

		if err := json.Unmarshal([]byte(filters), &c.FiltersSnapshot); err != nil {
			return nil, 0, fmt.Errorf("failed to parse filters: %w", err)
		}

		campaigns = append(campaigns, c)
	}

	return campaigns, total, nil
}

// Update rewrites the editable fields of a campaign. State guards live in
// the service layer.
func (r *CampaignRepository) Update(c *models.Campaign) error {
	filters, err := json.Marshal(c.FiltersSnapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal filters: %w", err)
	}

	_, err = r.db.Exec(`
		UPDATE campaigns SET name = ?, template_id = ?, filters_snapshot = ?, from_alias = ?, updated_at = ?
		WHERE id = ?`,
		c.Name, nullable(c.TemplateID), string(filters), c.FromAlias, time.Now(), c.ID,
	)
	return err
}

// UpdateStatus updates campaign status
func (r *CampaignRepository) UpdateStatus(id string, status models.CampaignStatus) error {
	_, err := r.db.Exec("UPDATE campaigns SET status = ?, updated_at = ? WHERE id = ?",
		status, time.Now(), id)
	return err
}

// Delete deletes a campaign and, by cascade, its draft items
func (r *CampaignRepository) Delete(id string) error {
	_, err := r.db.Exec("DELETE FROM campaigns WHERE id = ?", id)
	return err
}

// HasActiveLock reports whether any campaign currently holds the send lock.
func (r *CampaignRepository) HasActiveLock() (bool, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM campaigns WHERE active_lock = 1").Scan(&count)
	return count > 0, err
}

// AcquireSendLock atomically moves a ready campaign to sending, grabs the
// system-wide exclusivity lock and opens a new send run. The guard and the
// write happen in one UPDATE so concurrent start attempts serialize on the
// database; exactly one caller observes acquired=true.
func (r *CampaignRepository) AcquireSendLock(campaignID, runID string) (bool, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	now := time.Now()
	res, err := tx.Exec(`
		UPDATE campaigns
		SET status = 'sending', active_lock = 1, current_run_id = ?, updated_at = ?
		WHERE id = ?
		  AND status = 'ready'
		  AND NOT EXISTS (SELECT 1 FROM campaigns WHERE active_lock = 1)`,
		runID, now, campaignID,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}

	_, err = tx.Exec(`
		INSERT INTO send_runs (id, campaign_id, started_at) VALUES (?, ?, ?)`,
		runID, campaignID, now,
	)
	if err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// ReleaseSendLock drops the exclusivity lock, records the final status and
// closes the open send run.
func (r *CampaignRepository) ReleaseSendLock(campaignID string, status models.CampaignStatus) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	_, err = tx.Exec(`
		UPDATE campaigns SET status = ?, active_lock = 0, updated_at = ? WHERE id = ?`,
		status, now, campaignID,
	)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		UPDATE send_runs SET finished_at = ? WHERE campaign_id = ? AND finished_at IS NULL`,
		now, campaignID,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// GetStats returns per-state draft counts for a campaign
func (r *CampaignRepository) GetStats(campaignID string) (models.CampaignStats, error) {
	var stats models.CampaignStats

	err := r.db.QueryRow(`
		SELECT
			COUNT(*) as total,
			COALESCE(SUM(CASE WHEN state = 'pending' THEN 1 ELSE 0 END), 0) as pending,
			COALESCE(SUM(CASE WHEN state = 'sent' THEN 1 ELSE 0 END), 0) as sent,
			COALESCE(SUM(CASE WHEN state = 'failed' THEN 1 ELSE 0 END), 0) as failed,
			COALESCE(SUM(CASE WHEN state = 'excluded' THEN 1 ELSE 0 END), 0) as excluded
		FROM draft_items WHERE campaign_id = ?`, campaignID,
	).Scan(&stats.Total, &stats.Pending, &stats.Sent, &stats.Failed, &stats.Excluded)

	return stats, err
}
