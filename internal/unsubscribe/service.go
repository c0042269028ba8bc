package unsubscribe

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mcanepa/sendero/internal/errs"
	"github.com/mcanepa/sendero/internal/models"
	"github.com/mcanepa/sendero/internal/repository"
)

const (
	reasonInvalidLink     = "Link de baja inválido"
	reasonExpiredLink     = "El link de baja expiró"
	reasonContactNotFound = "Contacto no encontrado"
)

// Result reports what redeeming a token did
type Result struct {
	ContactID           string `json:"contact_id"`
	AlreadyUnsubscribed bool   `json:"already_unsubscribed"`
}

// Service redeems opt-out tokens against the contact store.
type Service struct {
	contacts *repository.ContactRepository
	events   *repository.UnsubscribeEventRepository
	secret   string
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(
	contacts *repository.ContactRepository,
	events *repository.UnsubscribeEventRepository,
	secret string,
	logger *slog.Logger,
) *Service {
	return &Service{
		contacts: contacts,
		events:   events,
		secret:   secret,
		logger:   logger.With("component", "unsubscribe"),
		now:      time.Now,
	}
}

// Redeem marks the token's contact as unsubscribed. Redeeming is
// idempotent: reusing a link keeps the contact unsubscribed and records at
// most one event per token.
func (s *Service) Redeem(token string) (Result, error) {
	p, err := VerifyToken(s.secret, token, s.now())
	if errors.Is(err, ErrExpiredToken) {
		return Result{}, errs.Validation(reasonExpiredLink)
	}
	if err != nil {
		return Result{}, errs.Validation(reasonInvalidLink)
	}

	contact, err := s.contacts.GetByID(p.ContactID)
	if err != nil {
		return Result{}, err
	}
	if contact == nil {
		return Result{}, errs.NotFound(reasonContactNotFound)
	}
	// The signature already binds the email; the extra match guards
	// against a contact id pointing at a different address by now.
	if !strings.EqualFold(contact.Email, p.Email) {
		return Result{}, errs.Validation(reasonInvalidLink)
	}

	changed, err := s.contacts.SetUnsubscribed(contact.ID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to mark contact unsubscribed: %w", err)
	}

	if _, err := s.events.Record(&models.UnsubscribeEvent{
		ContactID:  contact.ID,
		CampaignID: p.CampaignID,
		TokenHash:  HashToken(token),
	}); err != nil {
		return Result{}, fmt.Errorf("failed to record unsubscribe event: %w", err)
	}

	if changed {
		s.logger.Info("contact unsubscribed", "contact_id", contact.ID, "campaign_id", p.CampaignID)
	}
	return Result{ContactID: contact.ID, AlreadyUnsubscribed: !changed}, nil
}
