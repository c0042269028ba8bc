package mailer

import "context"

// Result identifies a delivered message at the provider.
type Result struct {
	MessageID string
	Permalink string
}

// EmailSender delivers a single rendered email. Implementations return a
// provider message id usable for bounce correlation; Permalink may be
// empty when the relay offers no web view.
type EmailSender interface {
	SendEmail(ctx context.Context, to, fromAlias, subject, html string) (Result, error)
}
