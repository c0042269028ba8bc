package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
)

// Config holds SMTP relay settings
type Config struct {
	Addr          string        // host:port of the submission server
	From          string        // envelope and header From address
	Username      string        // SASL PLAIN credentials, empty disables auth
	Password      string        //
	ImplicitTLS   bool          // true for smtps (465), false for STARTTLS
	PermalinkBase string        // optional webmail URL prefix, message id appended
	Timeout       time.Duration //
}

// SMTPSender submits rendered emails to a relay over SMTP. It is a thin
// submission client; retry and pacing decisions belong to the caller.
type SMTPSender struct {
	cfg    Config
	logger *slog.Logger
}

func NewSMTPSender(cfg Config, logger *slog.Logger) *SMTPSender {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTPSender{
		cfg:    cfg,
		logger: logger.With("component", "mailer"),
	}
}

// SendEmail delivers one message and returns its generated message id.
func (s *SMTPSender) SendEmail(ctx context.Context, to, fromAlias, subject, html string) (Result, error) {
	messageID := fmt.Sprintf("%s@%s", uuid.New().String(), domainOf(s.cfg.From))
	msg := s.buildMessage(to, fromAlias, subject, html, messageID)

	client, err := s.dial(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to connect to relay: %w", err)
	}
	defer client.Close()

	if s.cfg.Username != "" {
		auth := sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)
		if err := client.Auth(auth); err != nil {
			return Result{}, fmt.Errorf("relay authentication failed: %w", err)
		}
	}

	if err := client.SendMail(s.cfg.From, []string{to}, strings.NewReader(msg)); err != nil {
		return Result{}, fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent", "to", to, "message_id", messageID)

	res := Result{MessageID: messageID}
	if s.cfg.PermalinkBase != "" {
		res.Permalink = s.cfg.PermalinkBase + messageID
	}
	return res, nil
}

func (s *SMTPSender) dial(ctx context.Context) (*smtp.Client, error) {
	dialer := &net.Dialer{Timeout: s.cfg.Timeout}
	host, _, err := net.SplitHostPort(s.cfg.Addr)
	if err != nil {
		host = s.cfg.Addr
	}
	tlsConfig := &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}

	if s.cfg.ImplicitTLS {
		conn, err := (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", s.cfg.Addr)
		if err != nil {
			return nil, err
		}
		client := smtp.NewClient(conn)
		client.CommandTimeout = s.cfg.Timeout
		client.SubmissionTimeout = s.cfg.Timeout
		return client, nil
	}

	conn, err := dialer.DialContext(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return nil, err
	}
	client, err := smtp.NewClientStartTLS(conn, tlsConfig)
	if err != nil {
		conn.Close()
		return nil, err
	}
	client.CommandTimeout = s.cfg.Timeout
	client.SubmissionTimeout = s.cfg.Timeout
	return client, nil
}

// buildMessage assembles the RFC 5322 message with an HTML body
func (s *SMTPSender) buildMessage(to, fromAlias, subject, html, messageID string) string {
	from := s.cfg.From
	if fromAlias != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", fromAlias), s.cfg.From)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Message-ID: <%s>\r\n", messageID)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(html)
	b.WriteString("\r\n")
	return b.String()
}

func domainOf(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return email[i+1:]
	}
	return "localhost"
}
