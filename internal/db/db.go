package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	*sql.DB
}

func New(path string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &DB{db}, nil
}

func (db *DB) Migrate() error {
	migrations := []string{
		migrationSettings,
		migrationContacts,
		migrationTemplates,
		migrationCampaigns,
		migrationSendRuns,
		migrationDraftItems,
		migrationTestSendEvents,
		migrationSendCounters,
		migrationBounceEvents,
		migrationUnsubscribeEvents,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

const migrationSettings = `
CREATE TABLE IF NOT EXISTS settings (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    timezone TEXT NOT NULL,
    daily_quota INTEGER NOT NULL,
    min_delay_seconds INTEGER NOT NULL,
    send_windows JSON NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

const migrationContacts = `
CREATE TABLE IF NOT EXISTS contacts (
    id TEXT PRIMARY KEY,
    email TEXT UNIQUE NOT NULL,
    first_name TEXT,
    last_name TEXT,
    company TEXT,
    position TEXT,
    tags JSON,
    unsubscribed INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_contacts_company ON contacts(company);
`

const migrationTemplates = `
CREATE TABLE IF NOT EXISTS templates (
    id TEXT PRIMARY KEY,
    name TEXT UNIQUE NOT NULL,
    subject_tpl TEXT NOT NULL,
    html_tpl TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

const migrationCampaigns = `
CREATE TABLE IF NOT EXISTS campaigns (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'draft',
    template_id TEXT REFERENCES templates(id),
    filters_snapshot JSON,
    from_alias TEXT,
    active_lock INTEGER NOT NULL DEFAULT 0,
    current_run_id TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status);
CREATE INDEX IF NOT EXISTS idx_campaigns_active_lock ON campaigns(active_lock);
`

const migrationSendRuns = `
CREATE TABLE IF NOT EXISTS send_runs (
    id TEXT PRIMARY KEY,
    campaign_id TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
    started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    finished_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_send_runs_campaign ON send_runs(campaign_id);
`

const migrationDraftItems = `
CREATE TABLE IF NOT EXISTS draft_items (
    id TEXT PRIMARY KEY,
    campaign_id TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
    contact_id TEXT,
    to_email TEXT NOT NULL,
    rendered_subject TEXT NOT NULL,
    rendered_html TEXT NOT NULL,
    state TEXT NOT NULL DEFAULT 'pending',
    included_manually INTEGER NOT NULL DEFAULT 0,
    excluded_manually INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    message_id TEXT,
    permalink TEXT,
    sent_at TIMESTAMP,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(campaign_id, to_email)
);
CREATE INDEX IF NOT EXISTS idx_draft_items_campaign ON draft_items(campaign_id);
CREATE INDEX IF NOT EXISTS idx_draft_items_state ON draft_items(state);
`

const migrationTestSendEvents = `
CREATE TABLE IF NOT EXISTS test_send_events (
    id TEXT PRIMARY KEY,
    campaign_id TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
    contact_id TEXT,
    to_email TEXT NOT NULL,
    rendered_subject TEXT NOT NULL,
    rendered_html TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_test_send_events_campaign ON test_send_events(campaign_id);
`

const migrationSendCounters = `
CREATE TABLE IF NOT EXISTS send_counters (
    day TEXT PRIMARY KEY,
    sent INTEGER NOT NULL DEFAULT 0
);
`

const migrationUnsubscribeEvents = `
CREATE TABLE IF NOT EXISTS unsubscribe_events (
    id TEXT PRIMARY KEY,
    contact_id TEXT NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
    campaign_id TEXT,
    token_hash TEXT UNIQUE NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_unsubscribe_events_contact ON unsubscribe_events(contact_id);
`

const migrationBounceEvents = `
CREATE TABLE IF NOT EXISTS bounce_events (
    id TEXT PRIMARY KEY,
    provider_msg_id TEXT UNIQUE NOT NULL,
    bounced_email TEXT,
    reason TEXT,
    permalink TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`
