package tick

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mcanepa/sendero/internal/db"
	"github.com/mcanepa/sendero/internal/mailer"
	"github.com/mcanepa/sendero/internal/metrics"
	"github.com/mcanepa/sendero/internal/models"
	"github.com/mcanepa/sendero/internal/render"
	"github.com/mcanepa/sendero/internal/repository"
	"github.com/mcanepa/sendero/internal/unsubscribe"
)

// wednesday, inside the 09:00-18:00 UTC test window
var wednesday = time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)

type schedCall struct {
	campaignID string
	runID      string
	delay      time.Duration
	at         time.Time
	absolute   bool
}

type fakeScheduler struct {
	calls []schedCall
	err   error
}

func (f *fakeScheduler) ScheduleAfter(campaignID, runID string, delay time.Duration) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, schedCall{campaignID: campaignID, runID: runID, delay: delay})
	return nil
}

func (f *fakeScheduler) ScheduleAt(campaignID, runID string, at time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, schedCall{campaignID: campaignID, runID: runID, at: at, absolute: true})
	return nil
}

type fixture struct {
	proc      *Processor
	campaigns *repository.CampaignRepository
	drafts    *repository.DraftRepository
	counters  *repository.CounterRepository
	scheduler *fakeScheduler
	sender    *mailer.Mock
	db        *sql.DB
}

func setup(t *testing.T) *fixture {
	t.Helper()

	raw, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if _, err := raw.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}
	d := &db.DB{DB: raw}
	if err := d.Migrate(); err != nil {
		t.Fatalf("migration failed: %v", err)
	}
	t.Cleanup(func() {
		raw.Close()
	})

	settings := repository.NewSettingsRepository(raw)
	st := models.Settings{
		Timezone:        "UTC",
		DailyQuota:      100,
		MinDelaySeconds: 30,
		SendWindows: models.SendWindows{
			Monday:    []models.SendWindow{{Start: "09:00", End: "18:00"}},
			Tuesday:   []models.SendWindow{{Start: "09:00", End: "18:00"}},
			Wednesday: []models.SendWindow{{Start: "09:00", End: "18:00"}},
			Thursday:  []models.SendWindow{{Start: "09:00", End: "18:00"}},
			Friday:    []models.SendWindow{{Start: "09:00", End: "18:00"}},
		},
	}
	if err := settings.Update(&st); err != nil {
		t.Fatalf("failed to write settings: %v", err)
	}

	f := &fixture{
		campaigns: repository.NewCampaignRepository(raw),
		drafts:    repository.NewDraftRepository(raw),
		counters:  repository.NewCounterRepository(raw),
		scheduler: &fakeScheduler{},
		sender:    &mailer.Mock{},
		db:        raw,
	}
	f.proc = NewProcessor(
		f.campaigns, f.drafts, settings, f.counters,
		f.scheduler, f.sender,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	f.proc.now = func() time.Time { return wednesday }
	return f
}

// sendingCampaign creates a campaign mid-send with the given pending drafts
func (f *fixture) sendingCampaign(t *testing.T, pending int) (*models.Campaign, string) {
	t.Helper()

	c := &models.Campaign{Name: "Lanzamiento", FromAlias: "Equipo"}
	if err := f.campaigns.Create(c); err != nil {
		t.Fatalf("failed to create campaign: %v", err)
	}

	items := make([]models.DraftItem, pending)
	for i := 0; i < pending; i++ {
		items[i] = models.DraftItem{
			CampaignID:      c.ID,
			ToEmail:         string(rune('a'+i)) + "@example.com",
			RenderedSubject: "Hola",
			RenderedHTML:    "<p>Hola</p>",
		}
	}
	if pending > 0 {
		if _, err := f.drafts.CreateBatch(items); err != nil {
			t.Fatalf("failed to create drafts: %v", err)
		}
	}

	if err := f.campaigns.UpdateStatus(c.ID, models.CampaignReady); err != nil {
		t.Fatalf("failed to ready campaign: %v", err)
	}
	runID := uuid.New().String()
	acquired, err := f.campaigns.AcquireSendLock(c.ID, runID)
	if err != nil || !acquired {
		t.Fatalf("failed to acquire lock: %v %v", acquired, err)
	}
	return c, runID
}

func (f *fixture) setSentToday(t *testing.T, n int) {
	t.Helper()
	if _, err := f.db.Exec(
		"INSERT INTO send_counters (day, sent) VALUES (?, ?) ON CONFLICT(day) DO UPDATE SET sent = excluded.sent",
		"2025-01-15", n,
	); err != nil {
		t.Fatalf("failed to preset counter: %v", err)
	}
}

func TestProcess_SendsOldestDraft(t *testing.T) {
	f := setup(t)
	c, runID := f.sendingCampaign(t, 2)

	result, err := f.proc.Process(context.Background(), c.ID, runID)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Action != ActionSent {
		t.Fatalf("Action = %v, want sent", result.Action)
	}

	// Exactly one email, to the oldest draft
	if f.sender.Calls() != 1 {
		t.Errorf("sender calls = %d, want 1", f.sender.Calls())
	}
	if f.sender.Sent[0].To != "a@example.com" {
		t.Errorf("sent to = %q, want a@example.com", f.sender.Sent[0].To)
	}

	// Draft marked sent with provider info
	item, _ := f.drafts.GetByID(result.DraftID)
	if item.State != models.DraftSent {
		t.Errorf("draft state = %v, want sent", item.State)
	}
	if item.MessageID == "" || item.Permalink == "" {
		t.Error("provider message id/permalink not recorded")
	}

	// Daily counter advanced
	sent, _ := f.counters.SentOn("2025-01-15")
	if sent != 1 {
		t.Errorf("counter = %d, want 1", sent)
	}

	// Successor scheduled under the same run. 2 pending, 100 quota, 27000s
	// left in window: ideal delay floor(27000/2)=13500.
	if len(f.scheduler.calls) != 1 {
		t.Fatalf("scheduler calls = %d, want 1", len(f.scheduler.calls))
	}
	call := f.scheduler.calls[0]
	if call.runID != runID || call.absolute {
		t.Errorf("successor = %+v", call)
	}
	if call.delay != 13500*time.Second {
		t.Errorf("delay = %v, want 13500s", call.delay)
	}
}

func TestProcess_TransportFailureMarksDraftFailed(t *testing.T) {
	f := setup(t)
	c, runID := f.sendingCampaign(t, 2)
	f.sender.Err = errors.New("550 mailbox unavailable")

	result, err := f.proc.Process(context.Background(), c.ID, runID)
	if err != nil {
		t.Fatalf("Process() error = %v, transport failures must not fail the tick", err)
	}
	if result.Action != ActionFailed {
		t.Fatalf("Action = %v, want failed", result.Action)
	}

	item, _ := f.drafts.GetByID(result.DraftID)
	if item.State != models.DraftFailed {
		t.Errorf("draft state = %v, want failed", item.State)
	}
	if item.Error != "550 mailbox unavailable" {
		t.Errorf("draft error = %q", item.Error)
	}

	// Campaign continues: still sending, successor scheduled, counter untouched
	got, _ := f.campaigns.GetByID(c.ID)
	if got.Status != models.CampaignSending {
		t.Errorf("status = %v, want sending", got.Status)
	}
	if len(f.scheduler.calls) != 1 {
		t.Errorf("scheduler calls = %d, want 1", len(f.scheduler.calls))
	}
	sent, _ := f.counters.SentOn("2025-01-15")
	if sent != 0 {
		t.Errorf("counter = %d, want 0", sent)
	}
}

func TestProcess_CompletesWhenNoPending(t *testing.T) {
	f := setup(t)
	c, runID := f.sendingCampaign(t, 0)

	result, err := f.proc.Process(context.Background(), c.ID, runID)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Action != ActionCompleted {
		t.Fatalf("Action = %v, want completed", result.Action)
	}

	got, _ := f.campaigns.GetByID(c.ID)
	if got.Status != models.CampaignCompleted {
		t.Errorf("status = %v, want completed", got.Status)
	}
	if got.ActiveLock {
		t.Error("lock still held after completion")
	}

	// No successor tick
	if len(f.scheduler.calls) != 0 {
		t.Errorf("scheduler calls = %d, want 0", len(f.scheduler.calls))
	}
}

func TestProcess_StaleRunIsNoop(t *testing.T) {
	f := setup(t)
	c, _ := f.sendingCampaign(t, 2)

	result, err := f.proc.Process(context.Background(), c.ID, "superseded-run")
	if err != nil {
		t.Fatalf("Process() error = %v, stale ticks must not error", err)
	}
	if result.Action != ActionNoop {
		t.Errorf("Action = %v, want noop", result.Action)
	}
	if f.sender.Calls() != 0 {
		t.Error("stale tick sent an email")
	}
	if len(f.scheduler.calls) != 0 {
		t.Error("stale tick scheduled a successor")
	}
}

func TestProcess_MissingCampaignIsNoop(t *testing.T) {
	f := setup(t)

	result, err := f.proc.Process(context.Background(), "missing", "run-1")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Action != ActionNoop {
		t.Errorf("Action = %v, want noop", result.Action)
	}
}

func TestProcess_PausedIsNoop(t *testing.T) {
	f := setup(t)
	c, runID := f.sendingCampaign(t, 2)
	if err := f.campaigns.UpdateStatus(c.ID, models.CampaignPaused); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	result, err := f.proc.Process(context.Background(), c.ID, runID)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Action != ActionPaused {
		t.Errorf("Action = %v, want paused", result.Action)
	}
	if f.sender.Calls() != 0 || len(f.scheduler.calls) != 0 {
		t.Error("paused tick sent or scheduled")
	}
}

func TestProcess_RedeliveryAfterCompletionIsNoop(t *testing.T) {
	f := setup(t)
	c, runID := f.sendingCampaign(t, 0)

	if _, err := f.proc.Process(context.Background(), c.ID, runID); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	// The scheduler redelivers the same payload
	result, err := f.proc.Process(context.Background(), c.ID, runID)
	if err != nil {
		t.Fatalf("redelivered Process() error = %v", err)
	}
	if result.Action != ActionNoop {
		t.Errorf("Action = %v, want noop", result.Action)
	}
}

func TestProcess_QuotaExceededDefersToMidnight(t *testing.T) {
	f := setup(t)
	c, runID := f.sendingCampaign(t, 2)
	f.setSentToday(t, 100)

	result, err := f.proc.Process(context.Background(), c.ID, runID)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Action != ActionQuotaExceeded {
		t.Fatalf("Action = %v, want quota_exceeded", result.Action)
	}
	if f.sender.Calls() != 0 {
		t.Error("quota-exceeded tick sent an email")
	}

	// Mid-window quota exhaustion waits for local midnight, not the next
	// window of the same day
	if len(f.scheduler.calls) != 1 {
		t.Fatalf("scheduler calls = %d, want 1", len(f.scheduler.calls))
	}
	call := f.scheduler.calls[0]
	if !call.absolute {
		t.Error("deferred tick not scheduled at an absolute instant")
	}
	wantMidnight := time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC)
	if !call.at.Equal(wantMidnight) {
		t.Errorf("deferred to %v, want %v", call.at, wantMidnight)
	}
}

func TestProcess_OutsideWindowDefersToNextStart(t *testing.T) {
	f := setup(t)
	c, runID := f.sendingCampaign(t, 2)
	f.proc.now = func() time.Time {
		return time.Date(2025, 1, 15, 7, 0, 0, 0, time.UTC) // before 09:00
	}

	result, err := f.proc.Process(context.Background(), c.ID, runID)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Action != ActionNextWindow {
		t.Fatalf("Action = %v, want next_window", result.Action)
	}

	call := f.scheduler.calls[0]
	wantStart := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	if !call.absolute || !call.at.Equal(wantStart) {
		t.Errorf("deferred to %+v, want %v", call, wantStart)
	}
}

func TestProcess_SchedulerFailurePropagates(t *testing.T) {
	f := setup(t)
	c, runID := f.sendingCampaign(t, 2)
	f.scheduler.err = errors.New("job store unavailable")

	_, err := f.proc.Process(context.Background(), c.ID, runID)
	if err == nil {
		t.Error("Process() should surface scheduler failures for redelivery")
	}
}

func TestProcess_PacingUsesRemainingQuota(t *testing.T) {
	f := setup(t)
	c, runID := f.sendingCampaign(t, 3)
	// One email left in quota: toSend=min(3,1)=1, delay spreads it over
	// the whole 27000s remaining in the window.
	f.setSentToday(t, 99)

	result, err := f.proc.Process(context.Background(), c.ID, runID)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Action != ActionSent {
		t.Fatalf("Action = %v, want sent", result.Action)
	}
	if result.DelaySecs != 27000 {
		t.Errorf("DelaySecs = %d, want 27000", result.DelaySecs)
	}
}

func TestProcess_UpdatesQuotaGauges(t *testing.T) {
	f := setup(t)
	c, runID := f.sendingCampaign(t, 2)
	f.setSentToday(t, 40)

	m := metrics.New()
	f.proc.SetMetrics(m)

	if _, err := f.proc.Process(context.Background(), c.ID, runID); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if got := testutil.ToFloat64(m.QuotaUsedToday); got != 40 {
		t.Errorf("QuotaUsedToday = %v, want 40", got)
	}
	if got := testutil.ToFloat64(m.QuotaLimit); got != 100 {
		t.Errorf("QuotaLimit = %v, want 100", got)
	}
}

func TestProcess_SubstitutesUnsubscribeLink(t *testing.T) {
	f := setup(t)
	c, runID := f.sendingCampaign(t, 0)

	items := []models.DraftItem{{
		CampaignID:      c.ID,
		ContactID:       "contact-1",
		ToEmail:         "ana@acme.com",
		RenderedSubject: "Hola",
		RenderedHTML:    `<p>Hola</p><a href="` + render.UnsubscribeURLPlaceholder + `">Baja</a>`,
	}}
	if _, err := f.drafts.CreateBatch(items); err != nil {
		t.Fatalf("failed to create draft: %v", err)
	}

	secret := "fedcba9876543210fedcba9876543210"
	f.proc.SetLinkBuilder(unsubscribe.NewLinkBuilder(secret, "https://sendero.example.com"))

	result, err := f.proc.Process(context.Background(), c.ID, runID)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Action != ActionSent {
		t.Fatalf("Action = %v, want sent", result.Action)
	}

	html := f.sender.Sent[0].HTML
	if strings.Contains(html, render.UnsubscribeURLPlaceholder) {
		t.Fatal("placeholder survived to the transport")
	}

	const prefix = `href="https://sendero.example.com/api/unsubscribe?token=`
	start := strings.Index(html, prefix)
	if start < 0 {
		t.Fatalf("no opt-out link in sent HTML: %s", html)
	}
	token := html[start+len(prefix):]
	token = token[:strings.Index(token, `"`)]

	p, err := unsubscribe.VerifyToken(secret, token, wednesday)
	if err != nil {
		t.Fatalf("sent token does not verify: %v", err)
	}
	if p.ContactID != "contact-1" || p.Email != "ana@acme.com" || p.CampaignID != c.ID {
		t.Errorf("token payload = %+v", p)
	}

	// The stored draft keeps the placeholder; only the wire copy carries
	// the minted link.
	item, _ := f.drafts.GetByID(result.DraftID)
	if !strings.Contains(item.RenderedHTML, render.UnsubscribeURLPlaceholder) {
		t.Error("draft at rest lost the placeholder")
	}
}
