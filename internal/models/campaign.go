package models

import "time"

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignReady     CampaignStatus = "ready"
	CampaignSending   CampaignStatus = "sending"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignCancelled CampaignStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s CampaignStatus) Terminal() bool {
	return s == CampaignCompleted || s == CampaignCancelled
}

// Editable reports whether campaign fields may still be modified.
func (s CampaignStatus) Editable() bool {
	return s == CampaignDraft || s == CampaignReady
}

// CampaignFilters is the audience definition frozen at campaign creation.
type CampaignFilters struct {
	Query    string   `json:"query,omitempty"`
	Company  string   `json:"company,omitempty"`
	Position string   `json:"position,omitempty"`
	TagIDs   []string `json:"tag_ids,omitempty"`
}

// Campaign represents an email campaign
type Campaign struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Status          CampaignStatus  `json:"status"`
	TemplateID      string          `json:"template_id"`
	TemplateName    string          `json:"template_name,omitempty"` // joined field
	FiltersSnapshot CampaignFilters `json:"filters_snapshot"`
	FromAlias       string          `json:"from_alias"`
	ActiveLock      bool            `json:"active_lock"`
	CurrentRunID    string          `json:"current_run_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// SendRun identifies one start-to-completion sending session. A restart of
// the same campaign creates a new run, which is how stale tick callbacks
// are detected.
type SendRun struct {
	ID         string     `json:"id"`
	CampaignID string     `json:"campaign_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// CampaignStats holds per-state draft counts for a campaign.
type CampaignStats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Sent     int `json:"sent"`
	Failed   int `json:"failed"`
	Excluded int `json:"excluded"`
}

// CampaignListFilter for filtering campaigns
type CampaignListFilter struct {
	Query  string
	Status CampaignStatus
	Limit  int
	Offset int
}
