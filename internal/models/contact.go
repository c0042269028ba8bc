package models

import "time"

// Contact represents an audience member a campaign can target
type Contact struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Company      string    `json:"company"`
	Position     string    `json:"position"`
	Tags         string    `json:"tags"` // JSON array of tag ids
	Unsubscribed bool      `json:"unsubscribed"`
	CreatedAt    time.Time `json:"created_at"`
}

// UnsubscribeEvent records one redeemed opt-out token. TokenHash makes the
// record unique per token so link reuse does not pile up events.
type UnsubscribeEvent struct {
	ID         string    `json:"id"`
	ContactID  string    `json:"contact_id"`
	CampaignID string    `json:"campaign_id,omitempty"`
	TokenHash  string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// Template holds the subject and HTML sources a campaign renders per contact
type Template struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	SubjectTpl string    `json:"subject_tpl"`
	HTMLTpl    string    `json:"html_tpl"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
