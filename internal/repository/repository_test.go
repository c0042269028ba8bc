package repository

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mcanepa/sendero/internal/db"
	"github.com/mcanepa/sendero/internal/models"
)

// setupTestDB creates an in-memory SQLite database with all migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	raw, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if _, err := raw.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	d := &db.DB{DB: raw}
	if err := d.Migrate(); err != nil {
		t.Fatalf("migration failed: %v", err)
	}

	t.Cleanup(func() {
		raw.Close()
	})

	return raw
}

// createTestTemplate inserts a template fixture and returns it
func createTestTemplate(t *testing.T, d *sql.DB) *models.Template {
	t.Helper()

	repo := NewTemplateRepository(d)
	tmpl := &models.Template{
		Name:       "Intro",
		SubjectTpl: "Hola {{FirstName}}",
		HTMLTpl:    "<p>Hola {{FirstName}} de {{Company}}</p>",
	}
	if err := repo.Create(tmpl); err != nil {
		t.Fatalf("failed to create template fixture: %v", err)
	}
	return tmpl
}

// createTestCampaign inserts a draft campaign fixture and returns it
func createTestCampaign(t *testing.T, d *sql.DB) *models.Campaign {
	t.Helper()

	tmpl := createTestTemplate(t, d)
	repo := NewCampaignRepository(d)
	c := &models.Campaign{
		Name:       "Lanzamiento",
		TemplateID: tmpl.ID,
		FiltersSnapshot: models.CampaignFilters{
			Company: "Acme",
		},
		FromAlias: "Equipo Acme",
	}
	if err := repo.Create(c); err != nil {
		t.Fatalf("failed to create campaign fixture: %v", err)
	}
	return c
}
