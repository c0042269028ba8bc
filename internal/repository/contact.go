package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mcanepa/sendero/internal/models"
)

type ContactRepository struct {
	db *sql.DB
}

func NewContactRepository(db *sql.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

// Create inserts a new contact
func (r *ContactRepository) Create(c *models.Contact) error {
	c.ID = uuid.New().String()
	c.CreatedAt = time.Now()
	if c.Tags == "" {
		c.Tags = "[]"
	}

	_, err := r.db.Exec(`
		INSERT INTO contacts (id, email, first_name, last_name, company, position, tags, unsubscribed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Email, c.FirstName, c.LastName, c.Company, c.Position, c.Tags, c.Unsubscribed, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}
	return nil
}

// GetByID returns a contact by ID, or nil when it does not exist
func (r *ContactRepository) GetByID(id string) (*models.Contact, error) {
	c := &models.Contact{}

	err := r.db.QueryRow(`
		SELECT id, email, first_name, last_name, company, position, tags, unsubscribed, created_at
		FROM contacts WHERE id = ?`, id,
	).Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName, &c.Company, &c.Position,
		&c.Tags, &c.Unsubscribed, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetByEmail returns a contact by email, or nil when it does not exist
func (r *ContactRepository) GetByEmail(email string) (*models.Contact, error) {
	c := &models.Contact{}

	err := r.db.QueryRow(`
		SELECT id, email, first_name, last_name, company, position, tags, unsubscribed, created_at
		FROM contacts WHERE email = ?`, email,
	).Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName, &c.Company, &c.Position,
		&c.Tags, &c.Unsubscribed, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// SetUnsubscribed marks a contact as opted out. Returns false when the
// contact was already unsubscribed, so redeeming a link twice stays
// idempotent.
func (r *ContactRepository) SetUnsubscribed(id string) (bool, error) {
	res, err := r.db.Exec(
		"UPDATE contacts SET unsubscribed = 1 WHERE id = ? AND unsubscribed = 0", id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// FindForFilters returns contacts matching campaign audience filters.
// Unsubscribed contacts never match, so new snapshots cannot target them.
// Tag filtering is OR-semantics: a contact matches when it carries any of
// the requested tag ids.
func (r *ContactRepository) FindForFilters(f models.CampaignFilters) ([]models.Contact, error) {
	query := `
		SELECT id, email, first_name, last_name, company, position, tags, unsubscribed, created_at
		FROM contacts WHERE unsubscribed = 0`
	args := []any{}

	if f.Query != "" {
		query += " AND (email LIKE ? OR first_name LIKE ? OR last_name LIKE ?)"
		like := "%" + f.Query + "%"
		args = append(args, like, like, like)
	}
	if f.Company != "" {
		query += " AND company LIKE ?"
		args = append(args, "%"+f.Company+"%")
	}
	if f.Position != "" {
		query += " AND position LIKE ?"
		args = append(args, "%"+f.Position+"%")
	}
	if len(f.TagIDs) > 0 {
		clauses := make([]string, 0, len(f.TagIDs))
		for _, tag := range f.TagIDs {
			clauses = append(clauses, "tags LIKE ?")
			args = append(args, "%"+jsonTagToken(tag)+"%")
		}
		query += " AND (" + strings.Join(clauses, " OR ") + ")"
	}

	query += " ORDER BY created_at"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []models.Contact{}
	for rows.Next() {
		c := models.Contact{}
		err := rows.Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName, &c.Company,
			&c.Position, &c.Tags, &c.Unsubscribed, &c.CreatedAt)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}

	return contacts, nil
}

// jsonTagToken quotes a tag id the way it appears inside the stored JSON
// array, so LIKE matching cannot hit a partial id.
func jsonTagToken(tag string) string {
	b, _ := json.Marshal(tag)
	return string(b)
}
