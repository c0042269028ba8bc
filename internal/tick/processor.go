// Package tick drives the sending state machine. The processor is
// stateless: each invocation arrives from the external job scheduler,
// performs at most one send, and schedules at most one successor tick.
package tick

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mcanepa/sendero/internal/jobs"
	"github.com/mcanepa/sendero/internal/mailer"
	"github.com/mcanepa/sendero/internal/metrics"
	"github.com/mcanepa/sendero/internal/models"
	"github.com/mcanepa/sendero/internal/render"
	"github.com/mcanepa/sendero/internal/repository"
	"github.com/mcanepa/sendero/internal/schedule"
	"github.com/mcanepa/sendero/internal/unsubscribe"
)

// Action describes what a tick did
type Action string

const (
	ActionNoop          Action = "noop"
	ActionPaused        Action = "paused"
	ActionCompleted     Action = "completed"
	ActionSent          Action = "sent"
	ActionFailed        Action = "failed"
	ActionQuotaExceeded Action = "quota_exceeded"
	ActionNextWindow    Action = "next_window"
)

// Result reports one tick outcome to the invoker
type Result struct {
	Action    Action     `json:"action"`
	Reason    string     `json:"reason,omitempty"`
	DraftID   string     `json:"draft_id,omitempty"`
	NextTick  *time.Time `json:"next_tick,omitempty"`
	DelaySecs int        `json:"delay_seconds,omitempty"`
}

// Processor executes ticks. Logic-level conditions (missing campaign,
// stale run, paused) resolve to successful no-ops so the scheduler never
// retries a callback that can never succeed; only infrastructure failures
// return an error.
type Processor struct {
	campaigns *repository.CampaignRepository
	drafts    *repository.DraftRepository
	settings  *repository.SettingsRepository
	counters  *repository.CounterRepository
	scheduler jobs.Scheduler
	sender    mailer.EmailSender
	logger    *slog.Logger
	metrics   *metrics.Metrics
	links     *unsubscribe.LinkBuilder
	now       func() time.Time
}

// SetMetrics enables quota gauge updates on each processed tick.
func (p *Processor) SetMetrics(m *metrics.Metrics) {
	p.metrics = m
}

// SetLinkBuilder enables opt-out link substitution. Drafts keep the
// {{UnsubscribeUrl}} placeholder at rest; the per-recipient link is only
// minted here, at send time.
func (p *Processor) SetLinkBuilder(b *unsubscribe.LinkBuilder) {
	p.links = b
}

func NewProcessor(
	campaigns *repository.CampaignRepository,
	drafts *repository.DraftRepository,
	settings *repository.SettingsRepository,
	counters *repository.CounterRepository,
	scheduler jobs.Scheduler,
	sender mailer.EmailSender,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		campaigns: campaigns,
		drafts:    drafts,
		settings:  settings,
		counters:  counters,
		scheduler: scheduler,
		sender:    sender,
		logger:    logger.With("component", "tick"),
		now:       time.Now,
	}
}

// Process handles one tick for {campaignID, runID}.
func (p *Processor) Process(ctx context.Context, campaignID, runID string) (Result, error) {
	logger := p.logger.With("campaign_id", campaignID, "run_id", runID)

	c, err := p.campaigns.GetByID(campaignID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load campaign: %w", err)
	}

	// Stale callbacks: campaign gone, run superseded, or campaign no
	// longer in a sendable state. All are successful no-ops.
	if c == nil {
		logger.Info("tick for missing campaign ignored")
		return Result{Action: ActionNoop, Reason: "Campaña no encontrada"}, nil
	}
	if c.CurrentRunID != runID {
		logger.Info("stale tick ignored", "current_run", c.CurrentRunID)
		return Result{Action: ActionNoop, Reason: "Tick de un envío anterior"}, nil
	}
	if c.Status == models.CampaignPaused {
		logger.Info("tick while paused, waiting for resume")
		return Result{Action: ActionPaused}, nil
	}
	if c.Status != models.CampaignSending {
		logger.Info("tick for inactive campaign ignored", "status", c.Status)
		return Result{Action: ActionNoop, Reason: "La campaña no se está enviando"}, nil
	}

	pending, err := p.drafts.CountPending(campaignID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to count pending drafts: %w", err)
	}
	if pending == 0 {
		if err := p.campaigns.ReleaseSendLock(campaignID, models.CampaignCompleted); err != nil {
			return Result{}, fmt.Errorf("failed to complete campaign: %w", err)
		}
		logger.Info("campaign completed")
		return Result{Action: ActionCompleted}, nil
	}

	st, err := p.settings.Get()
	if err != nil {
		return Result{}, fmt.Errorf("failed to load settings: %w", err)
	}

	now := p.now()
	day, err := schedule.DayKey(*st, now)
	if err != nil {
		return Result{}, fmt.Errorf("invalid settings timezone: %w", err)
	}
	sentToday, err := p.counters.SentOn(day)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read daily counter: %w", err)
	}
	if p.metrics != nil {
		p.metrics.QuotaUsedToday.Set(float64(sentToday))
		p.metrics.QuotaLimit.Set(float64(st.DailyQuota))
	}

	decision, err := schedule.NextTick(*st, now, pending, sentToday)
	if err != nil {
		return Result{}, fmt.Errorf("pacing decision failed: %w", err)
	}

	switch decision.Type {
	case schedule.QuotaExceeded, schedule.NextWindow:
		// Absolute instant, not a relative delay, so repeated deferrals
		// do not drift.
		if err := p.scheduler.ScheduleAt(campaignID, runID, decision.NotBefore); err != nil {
			return Result{}, fmt.Errorf("failed to schedule deferred tick: %w", err)
		}
		action := ActionQuotaExceeded
		if decision.Type == schedule.NextWindow {
			action = ActionNextWindow
		}
		notBefore := decision.NotBefore
		logger.Info("tick deferred", "action", string(action), "not_before", notBefore)
		return Result{Action: action, Reason: decision.Reason, NextTick: &notBefore}, nil
	}

	return p.sendOne(ctx, logger, c, runID, day, decision.DelaySeconds)
}

// sendOne delivers the oldest pending draft and schedules the successor
func (p *Processor) sendOne(ctx context.Context, logger *slog.Logger, c *models.Campaign, runID, day string, delaySeconds int) (Result, error) {
	item, err := p.drafts.NextPending(c.ID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to pick next draft: %w", err)
	}
	if item == nil {
		// Raced with an operator exclusion; the next tick will complete
		// the campaign.
		if err := p.scheduler.ScheduleAfter(c.ID, runID, time.Duration(delaySeconds)*time.Second); err != nil {
			return Result{}, fmt.Errorf("failed to schedule next tick: %w", err)
		}
		return Result{Action: ActionNoop, DelaySecs: delaySeconds}, nil
	}

	result := Result{DraftID: item.ID, DelaySecs: delaySeconds}

	subject, html := item.RenderedSubject, item.RenderedHTML
	if p.links != nil && item.ContactID != "" {
		link := p.links.URL(item.ContactID, item.ToEmail, c.ID)
		subject = strings.ReplaceAll(subject, render.UnsubscribeURLPlaceholder, link)
		html = strings.ReplaceAll(html, render.UnsubscribeURLPlaceholder, link)
	}

	sent, sendErr := p.sender.SendEmail(ctx, item.ToEmail, c.FromAlias, subject, html)
	if sendErr != nil {
		// Transport failure is terminal for the draft, not for the
		// campaign or the tick.
		if _, err := p.drafts.MarkFailed(item.ID, sendErr.Error()); err != nil {
			return Result{}, fmt.Errorf("failed to record draft failure: %w", err)
		}
		logger.Warn("draft send failed", "draft_id", item.ID, "to", item.ToEmail, "error", sendErr)
		result.Action = ActionFailed
		result.Reason = sendErr.Error()
	} else {
		ok, err := p.drafts.MarkSent(item.ID, sent.MessageID, sent.Permalink)
		if err != nil {
			return Result{}, fmt.Errorf("failed to record sent draft: %w", err)
		}
		if ok {
			if err := p.counters.Increment(day); err != nil {
				return Result{}, fmt.Errorf("failed to increment daily counter: %w", err)
			}
		}
		logger.Info("draft sent", "draft_id", item.ID, "to", item.ToEmail, "message_id", sent.MessageID)
		result.Action = ActionSent
	}

	if err := p.scheduler.ScheduleAfter(c.ID, runID, time.Duration(delaySeconds)*time.Second); err != nil {
		return Result{}, fmt.Errorf("failed to schedule next tick: %w", err)
	}

	return result, nil
}
