package models

import "time"

// BounceEvent is one delivery failure report pulled from the mailbox
// provider. Deduplicated on ProviderMsgID.
type BounceEvent struct {
	ID            string    `json:"id"`
	ProviderMsgID string    `json:"provider_msg_id"`
	BouncedEmail  string    `json:"bounced_email"`
	Reason        string    `json:"reason"`
	Permalink     string    `json:"permalink"`
	CreatedAt     time.Time `json:"created_at"`
}

// BounceListFilter for paginating bounce events
type BounceListFilter struct {
	Limit  int
	Offset int
}
