// Package unsubscribe implements per-recipient opt-out links. Each
// outgoing email carries a signed token binding the contact, the email
// address and the campaign; redeeming the token marks the contact
// unsubscribed and is idempotent against link reuse.
package unsubscribe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// DefaultTTL is how long an opt-out link stays valid
const DefaultTTL = 365 * 24 * time.Hour

var (
	ErrInvalidToken = errors.New("invalid unsubscribe token")
	ErrExpiredToken = errors.New("expired unsubscribe token")
)

// Payload is the claim set signed into a token
type Payload struct {
	Version    int    `json:"v"`
	ContactID  string `json:"contactId"`
	Email      string `json:"email"`
	CampaignID string `json:"campaignId,omitempty"`
	IssuedAt   int64  `json:"iat"`
	ExpiresAt  int64  `json:"exp"`
}

// CreateToken signs a payload for one recipient. The format is
// base64url(JSON payload) + "." + base64url(HMAC-SHA256 of the first part).
func CreateToken(secret string, p Payload) string {
	b, _ := json.Marshal(p)
	payloadB64 := base64.RawURLEncoding.EncodeToString(b)
	return payloadB64 + "." + sign(secret, payloadB64)
}

func sign(secret, payloadB64 string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payloadB64))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyToken checks the signature and the expiry and returns the payload.
// The signature comparison is constant-time.
func VerifyToken(secret, token string, now time.Time) (*Payload, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, ErrInvalidToken
	}
	if !hmac.Equal([]byte(sign(secret, parts[0])), []byte(parts[1])) {
		return nil, ErrInvalidToken
	}

	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrInvalidToken
	}
	p := &Payload{}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, ErrInvalidToken
	}
	if p.Version != 1 || p.ContactID == "" || p.Email == "" {
		return nil, ErrInvalidToken
	}
	if p.ExpiresAt <= now.Unix() {
		return nil, ErrExpiredToken
	}
	return p, nil
}

// HashToken returns the sha256 hex digest used to deduplicate opt-out
// events when a link is clicked more than once.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
