// Package campaign implements the campaign lifecycle: creation, snapshot
// generation, the sending state machine with its global exclusivity lock,
// and per-draft operator actions.
package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/mcanepa/sendero/internal/errs"
	"github.com/mcanepa/sendero/internal/jobs"
	"github.com/mcanepa/sendero/internal/mailer"
	"github.com/mcanepa/sendero/internal/models"
	"github.com/mcanepa/sendero/internal/render"
	"github.com/mcanepa/sendero/internal/repository"
)

// Operator-facing guard messages, kept in the operators' language.
const (
	reasonNotFound        = "Campaña no encontrada"
	reasonContactNotFound = "Contacto no encontrado"
	reasonDraftNotFound   = "Draft no encontrado"
	reasonNotEditable     = "Solo se pueden editar campañas en estado borrador"
	reasonNoTemplate      = "La campaña no tiene plantilla asignada"
	reasonNoRecipients    = "No hay destinatarios"
	reasonNotReady        = "La campaña no está lista para enviar"
	reasonLockHeld        = "Ya hay otra campaña enviando"
	reasonAlreadySending  = "La campaña ya se está enviando"
	reasonHasDrafts       = "La campaña ya tiene borradores generados"
	reasonMidSend         = "No se puede regenerar mientras la campaña está enviando"
	reasonNotSending      = "La campaña no se está enviando"
	reasonNotPaused       = "La campaña no está pausada"
	reasonTerminal        = "La campaña ya está finalizada"
	reasonDeleteSending   = "No se puede eliminar una campaña en envío"
	reasonHasDraft        = "El contacto ya tiene un draft"
	reasonDraftProcessed  = "El draft ya fue procesado"
	reasonNotExcluded     = "El draft no está excluido"
)

// testUnsubscribeURL stands in for the per-recipient opt-out link on test
// sends.
const testUnsubscribeURL = "https://example.com/unsubscribe/TEST_TOKEN"

// Service owns every campaign-level operation. State transitions that
// touch the exclusivity lock go through the repository's atomic
// check-and-set; the service never read-modify-writes the lock itself.
type Service struct {
	campaigns *repository.CampaignRepository
	drafts    *repository.DraftRepository
	contacts  *repository.ContactRepository
	templates *repository.TemplateRepository
	testSends *repository.TestSendRepository
	scheduler jobs.Scheduler
	sender    mailer.EmailSender
	logger    *slog.Logger
}

func NewService(
	campaigns *repository.CampaignRepository,
	drafts *repository.DraftRepository,
	contacts *repository.ContactRepository,
	templates *repository.TemplateRepository,
	testSends *repository.TestSendRepository,
	scheduler jobs.Scheduler,
	sender mailer.EmailSender,
	logger *slog.Logger,
) *Service {
	return &Service{
		campaigns: campaigns,
		drafts:    drafts,
		contacts:  contacts,
		templates: templates,
		testSends: testSends,
		scheduler: scheduler,
		sender:    sender,
		logger:    logger.With("component", "campaign"),
	}
}

// CreateInput holds the fields accepted at campaign creation
type CreateInput struct {
	Name       string                 `json:"name"`
	TemplateID string                 `json:"template_id"`
	Filters    models.CampaignFilters `json:"filters"`
	FromAlias  string                 `json:"from_alias"`
}

// Create creates a campaign in draft state with its audience filters
// frozen as the snapshot definition.
func (s *Service) Create(in CreateInput) (*models.Campaign, error) {
	if in.Name == "" {
		return nil, errs.Validation("El nombre es obligatorio")
	}
	if in.TemplateID != "" {
		tpl, err := s.templates.GetByID(in.TemplateID)
		if err != nil {
			return nil, fmt.Errorf("failed to load template: %w", err)
		}
		if tpl == nil {
			return nil, errs.Validation("Plantilla no encontrada")
		}
	}

	c := &models.Campaign{
		Name:            in.Name,
		TemplateID:      in.TemplateID,
		FiltersSnapshot: in.Filters,
		FromAlias:       in.FromAlias,
	}
	if err := s.campaigns.Create(c); err != nil {
		return nil, err
	}

	s.logger.Info("campaign created", "campaign_id", c.ID, "name", c.Name)
	return c, nil
}

// Get returns a campaign with its draft stats
func (s *Service) Get(id string) (*models.Campaign, *models.CampaignStats, error) {
	c, err := s.campaigns.GetByID(id)
	if err != nil {
		return nil, nil, err
	}
	if c == nil {
		return nil, nil, errs.NotFound(reasonNotFound)
	}
	stats, err := s.campaigns.GetStats(id)
	if err != nil {
		return nil, nil, err
	}
	return c, &stats, nil
}

// List returns campaigns with filters
func (s *Service) List(filter models.CampaignListFilter) ([]models.Campaign, int, error) {
	return s.campaigns.List(filter)
}

// Update modifies an editable campaign. Once sending has started the
// filter snapshot and template are frozen.
func (s *Service) Update(id string, in CreateInput) (*models.Campaign, error) {
	c, err := s.campaigns.GetByID(id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errs.NotFound(reasonNotFound)
	}
	if !c.Status.Editable() {
		return nil, errs.StateConflict(reasonNotEditable)
	}
	if in.Name == "" {
		return nil, errs.Validation("El nombre es obligatorio")
	}

	c.Name = in.Name
	c.TemplateID = in.TemplateID
	c.FiltersSnapshot = in.Filters
	c.FromAlias = in.FromAlias

	if err := s.campaigns.Update(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes a campaign and its drafts. Refused while the campaign
// holds the send lock.
func (s *Service) Delete(id string) error {
	c, err := s.campaigns.GetByID(id)
	if err != nil {
		return err
	}
	if c == nil {
		return errs.NotFound(reasonNotFound)
	}
	if c.Status == models.CampaignSending || c.Status == models.CampaignPaused {
		return errs.StateConflict(reasonDeleteSending)
	}
	return s.campaigns.Delete(id)
}

// SnapshotResult reports the outcome of snapshot generation
type SnapshotResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// GenerateSnapshot enumerates the contacts matching the campaign's frozen
// filters and inserts one pending draft per contact. Re-running requires
// force, which wipes the previous drafts first; a campaign mid-send is
// never regenerated.
func (s *Service) GenerateSnapshot(id string, force bool) (SnapshotResult, error) {
	c, err := s.campaigns.GetByID(id)
	if err != nil {
		return SnapshotResult{}, err
	}
	if c == nil {
		return SnapshotResult{}, errs.NotFound(reasonNotFound)
	}
	if !c.Status.Editable() {
		return SnapshotResult{}, errs.StateConflict(reasonMidSend)
	}
	if c.TemplateID == "" {
		return SnapshotResult{}, errs.Validation(reasonNoTemplate)
	}

	existing, err := s.drafts.Count(id)
	if err != nil {
		return SnapshotResult{}, err
	}
	if existing > 0 {
		if !force {
			return SnapshotResult{}, errs.StateConflict(reasonHasDrafts)
		}
		if err := s.drafts.DeleteForCampaign(id); err != nil {
			return SnapshotResult{}, err
		}
	}

	tpl, err := s.templates.GetByID(c.TemplateID)
	if err != nil {
		return SnapshotResult{}, err
	}
	if tpl == nil {
		return SnapshotResult{}, errs.Validation(reasonNoTemplate)
	}

	contacts, err := s.contacts.FindForFilters(c.FiltersSnapshot)
	if err != nil {
		return SnapshotResult{}, err
	}

	var result SnapshotResult
	items := make([]models.DraftItem, 0, len(contacts))
	for i := range contacts {
		contact := &contacts[i]
		if contact.Email == "" {
			s.logger.Warn("skipping contact without email", "contact_id", contact.ID)
			result.Skipped++
			continue
		}
		rendered := render.Contact(tpl, contact)
		items = append(items, models.DraftItem{
			CampaignID:      id,
			ContactID:       contact.ID,
			ToEmail:         contact.Email,
			RenderedSubject: rendered.Subject,
			RenderedHTML:    rendered.HTML,
		})
	}

	if len(items) > 0 {
		result.Created, err = s.drafts.CreateBatch(items)
		if err != nil {
			return result, fmt.Errorf("failed to create drafts: %w", err)
		}
	}

	// A draft campaign with recipients is ready to start
	if result.Created > 0 && c.Status == models.CampaignDraft {
		if err := s.campaigns.UpdateStatus(id, models.CampaignReady); err != nil {
			return result, err
		}
	}

	s.logger.Info("snapshot generated", "campaign_id", id, "created", result.Created, "skipped", result.Skipped)
	return result, nil
}

// Start moves a ready campaign to sending under the global exclusivity
// lock and schedules the first tick.
func (s *Service) Start(id string) error {
	c, err := s.campaigns.GetByID(id)
	if err != nil {
		return err
	}
	if c == nil {
		return errs.NotFound(reasonNotFound)
	}
	if c.Status == models.CampaignDraft {
		return errs.StateConflict(reasonNoRecipients)
	}
	if c.Status != models.CampaignReady {
		return errs.StateConflict(reasonNotReady)
	}

	runID := uuid.New().String()
	acquired, err := s.campaigns.AcquireSendLock(id, runID)
	if err != nil {
		return fmt.Errorf("failed to acquire send lock: %w", err)
	}
	if !acquired {
		// Either another campaign holds the lock, or a concurrent start
		// won the race on this one. Re-read this campaign before blaming
		// a foreign lock.
		cur, err := s.campaigns.GetByID(id)
		if err != nil {
			return err
		}
		if cur != nil && cur.ActiveLock {
			return errs.StateConflict(reasonAlreadySending)
		}
		held, err := s.campaigns.HasActiveLock()
		if err != nil {
			return err
		}
		if held {
			return errs.StateConflict(reasonLockHeld)
		}
		return errs.StateConflict(reasonNotReady)
	}

	if err := s.scheduler.ScheduleAfter(id, runID, 0); err != nil {
		// Undo the transition so the campaign does not hang in sending
		// with no tick ever arriving.
		if relErr := s.campaigns.ReleaseSendLock(id, models.CampaignReady); relErr != nil {
			s.logger.Error("failed to roll back send lock", "campaign_id", id, "error", relErr)
		}
		return fmt.Errorf("failed to schedule first tick: %w", err)
	}

	s.logger.Info("campaign started", "campaign_id", id, "run_id", runID)
	return nil
}

// Pause stops tick sends without releasing the exclusivity lock. Keeping
// the lock reserved avoids a race where another campaign starts while a
// scheduled tick for this one is still in flight.
func (s *Service) Pause(id string) error {
	c, err := s.campaigns.GetByID(id)
	if err != nil {
		return err
	}
	if c == nil {
		return errs.NotFound(reasonNotFound)
	}
	if c.Status != models.CampaignSending {
		return errs.StateConflict(reasonNotSending)
	}

	if err := s.campaigns.UpdateStatus(id, models.CampaignPaused); err != nil {
		return err
	}
	s.logger.Info("campaign paused", "campaign_id", id)
	return nil
}

// Resume returns a paused campaign to sending and triggers an immediate
// tick under the same run.
func (s *Service) Resume(id string) error {
	c, err := s.campaigns.GetByID(id)
	if err != nil {
		return err
	}
	if c == nil {
		return errs.NotFound(reasonNotFound)
	}
	if c.Status != models.CampaignPaused {
		return errs.StateConflict(reasonNotPaused)
	}

	if err := s.campaigns.UpdateStatus(id, models.CampaignSending); err != nil {
		return err
	}
	if err := s.scheduler.ScheduleAfter(id, c.CurrentRunID, 0); err != nil {
		return fmt.Errorf("failed to schedule resume tick: %w", err)
	}

	s.logger.Info("campaign resumed", "campaign_id", id, "run_id", c.CurrentRunID)
	return nil
}

// Cancel terminally stops a campaign from any non-terminal state and
// releases the lock. Already-sent drafts keep their records.
func (s *Service) Cancel(id string) error {
	c, err := s.campaigns.GetByID(id)
	if err != nil {
		return err
	}
	if c == nil {
		return errs.NotFound(reasonNotFound)
	}
	if c.Status.Terminal() {
		return errs.StateConflict(reasonTerminal)
	}

	if err := s.campaigns.ReleaseSendLock(id, models.CampaignCancelled); err != nil {
		return err
	}
	s.logger.Info("campaign cancelled", "campaign_id", id)
	return nil
}

// ListDrafts returns the campaign's drafts with state/search filters
func (s *Service) ListDrafts(filter models.DraftListFilter) ([]models.DraftItem, int, error) {
	c, err := s.campaigns.GetByID(filter.CampaignID)
	if err != nil {
		return nil, 0, err
	}
	if c == nil {
		return nil, 0, errs.NotFound(reasonNotFound)
	}
	return s.drafts.List(filter)
}

// IncludeContact adds a single contact to an existing campaign. An
// excluded draft for the same email is re-activated instead of erroring.
func (s *Service) IncludeContact(campaignID, contactID string) (*models.DraftItem, error) {
	c, err := s.campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errs.NotFound(reasonNotFound)
	}
	if c.Status.Terminal() {
		return nil, errs.StateConflict(reasonTerminal)
	}
	if c.TemplateID == "" {
		return nil, errs.Validation(reasonNoTemplate)
	}

	contact, err := s.contacts.GetByID(contactID)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, errs.NotFound(reasonContactNotFound)
	}

	existing, err := s.drafts.FindByEmail(campaignID, contact.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.State != models.DraftExcluded {
			return nil, errs.StateConflict(reasonHasDraft)
		}
		if _, err := s.drafts.Include(existing.ID); err != nil {
			return nil, err
		}
		return s.drafts.GetByID(existing.ID)
	}

	tpl, err := s.templates.GetByID(c.TemplateID)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, errs.Validation(reasonNoTemplate)
	}

	rendered := render.Contact(tpl, contact)
	item := &models.DraftItem{
		CampaignID:       campaignID,
		ContactID:        contact.ID,
		ToEmail:          contact.Email,
		RenderedSubject:  rendered.Subject,
		RenderedHTML:     rendered.HTML,
		IncludedManually: true,
	}
	if err := s.drafts.Create(item); err != nil {
		return nil, err
	}

	// A first manual inclusion makes a draft campaign startable
	if c.Status == models.CampaignDraft {
		if err := s.campaigns.UpdateStatus(campaignID, models.CampaignReady); err != nil {
			return nil, err
		}
	}

	s.logger.Info("contact included", "campaign_id", campaignID, "contact_id", contactID)
	return item, nil
}

// ExcludeDraft flips a pending draft to excluded
func (s *Service) ExcludeDraft(campaignID, draftID string) error {
	item, err := s.ownedDraft(campaignID, draftID)
	if err != nil {
		return err
	}

	ok, err := s.drafts.Exclude(item.ID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.StateConflict(reasonDraftProcessed)
	}
	return nil
}

// IncludeDraft re-activates an excluded draft
func (s *Service) IncludeDraft(campaignID, draftID string) error {
	item, err := s.ownedDraft(campaignID, draftID)
	if err != nil {
		return err
	}

	ok, err := s.drafts.Include(item.ID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.StateConflict(reasonNotExcluded)
	}
	return nil
}

func (s *Service) ownedDraft(campaignID, draftID string) (*models.DraftItem, error) {
	item, err := s.drafts.GetByID(draftID)
	if err != nil {
		return nil, err
	}
	if item == nil || item.CampaignID != campaignID {
		return nil, errs.NotFound(reasonDraftNotFound)
	}
	return item, nil
}

// TestSend renders the campaign template against a real contact's data and
// delivers it to the given address. The send is recorded on a separate
// audit trail and never consumes quota or touches drafts.
func (s *Service) TestSend(ctx context.Context, campaignID, contactID, toEmail string) (*models.TestSendEvent, error) {
	if toEmail == "" {
		return nil, errs.Validation("El destinatario de prueba es obligatorio")
	}

	c, err := s.campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errs.NotFound(reasonNotFound)
	}
	if c.TemplateID == "" {
		return nil, errs.Validation(reasonNoTemplate)
	}

	contact, err := s.contacts.GetByID(contactID)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, errs.NotFound(reasonContactNotFound)
	}

	tpl, err := s.templates.GetByID(c.TemplateID)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, errs.Validation(reasonNoTemplate)
	}

	// Test sends carry a fixed sample link instead of minting a real
	// opt-out token for the borrowed contact.
	rendered := render.Contact(tpl, contact)
	rendered.Subject = strings.ReplaceAll(rendered.Subject, render.UnsubscribeURLPlaceholder, testUnsubscribeURL)
	rendered.HTML = strings.ReplaceAll(rendered.HTML, render.UnsubscribeURLPlaceholder, testUnsubscribeURL)

	if _, err := s.sender.SendEmail(ctx, toEmail, c.FromAlias, rendered.Subject, rendered.HTML); err != nil {
		return nil, fmt.Errorf("test send failed: %w", err)
	}

	ev := &models.TestSendEvent{
		CampaignID:      campaignID,
		ContactID:       contact.ID,
		ToEmail:         toEmail,
		RenderedSubject: rendered.Subject,
		RenderedHTML:    rendered.HTML,
	}
	if err := s.testSends.Record(ev); err != nil {
		return nil, err
	}

	s.logger.Info("test email sent", "campaign_id", campaignID, "to", toEmail)
	return ev, nil
}

// ListTestSends returns the test-send audit trail for a campaign
func (s *Service) ListTestSends(campaignID string) ([]models.TestSendEvent, error) {
	c, err := s.campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errs.NotFound(reasonNotFound)
	}
	return s.testSends.ListForCampaign(campaignID)
}
