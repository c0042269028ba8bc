package models

import "time"

// DraftState is the lifecycle state of a single recipient draft.
type DraftState string

const (
	DraftPending  DraftState = "pending"
	DraftSent     DraftState = "sent"
	DraftFailed   DraftState = "failed"
	DraftExcluded DraftState = "excluded"
)

// Terminal reports whether the draft can no longer change state.
// Sent and failed drafts are never touched again; failures are
// operator-visible rather than silently retried.
func (s DraftState) Terminal() bool {
	return s == DraftSent || s == DraftFailed
}

// DraftItem represents one pre-rendered email for one recipient of a campaign
type DraftItem struct {
	ID               string     `json:"id"`
	CampaignID       string     `json:"campaign_id"`
	ContactID        string     `json:"contact_id,omitempty"`
	ToEmail          string     `json:"to_email"`
	RenderedSubject  string     `json:"rendered_subject"`
	RenderedHTML     string     `json:"rendered_html"`
	State            DraftState `json:"state"`
	IncludedManually bool       `json:"included_manually"`
	ExcludedManually bool       `json:"excluded_manually"`
	Error            string     `json:"error,omitempty"`
	MessageID        string     `json:"message_id,omitempty"`
	Permalink        string     `json:"permalink,omitempty"`
	SentAt           *time.Time `json:"sent_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// DraftListFilter for filtering draft items within a campaign
type DraftListFilter struct {
	CampaignID string
	State      DraftState
	Query      string
	Limit      int
	Offset     int
}

// TestSendEvent is the audit record of a simulated send. It never consumes
// quota and never becomes a draft item.
type TestSendEvent struct {
	ID              string    `json:"id"`
	CampaignID      string    `json:"campaign_id"`
	ContactID       string    `json:"contact_id,omitempty"`
	ToEmail         string    `json:"to_email"`
	RenderedSubject string    `json:"rendered_subject"`
	RenderedHTML    string    `json:"rendered_html"`
	CreatedAt       time.Time `json:"created_at"`
}
