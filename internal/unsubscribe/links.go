package unsubscribe

import (
	"net/url"
	"strings"
	"time"
)

// LinkBuilder mints the per-recipient opt-out URL substituted into
// outgoing mail at send time.
type LinkBuilder struct {
	secret  string
	baseURL string
	ttl     time.Duration
	now     func() time.Time
}

func NewLinkBuilder(secret, baseURL string) *LinkBuilder {
	return &LinkBuilder{
		secret:  secret,
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     DefaultTTL,
		now:     time.Now,
	}
}

// URL returns the opt-out link for one recipient of one campaign
func (b *LinkBuilder) URL(contactID, email, campaignID string) string {
	now := b.now()
	token := CreateToken(b.secret, Payload{
		Version:    1,
		ContactID:  contactID,
		Email:      email,
		CampaignID: campaignID,
		IssuedAt:   now.Unix(),
		ExpiresAt:  now.Add(b.ttl).Unix(),
	})
	return b.baseURL + "/api/unsubscribe?token=" + url.QueryEscape(token)
}
