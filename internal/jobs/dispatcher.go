package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Scheduler enqueues tick callbacks for later delivery. Implemented by
// Store; consumed by the campaign service and the tick processor.
type Scheduler interface {
	ScheduleAfter(campaignID, runID string, delay time.Duration) error
	ScheduleAt(campaignID, runID string, at time.Time) error
}

// TickPayload is the JSON body POSTed to the tick endpoint
type TickPayload struct {
	CampaignID string `json:"campaignId"`
	SendRunID  string `json:"sendRunId"`
}

// DispatcherConfig configures callback delivery
type DispatcherConfig struct {
	CallbackURL   string
	SigningKey    string
	PollInterval  time.Duration
	RetryInterval time.Duration
	MaxRetries    int
}

// Dispatcher polls the job store and delivers due callbacks as signed
// HTTP POSTs. Failed deliveries retry with exponential backoff up to
// MaxRetries, then the job is dropped with an error log.
type Dispatcher struct {
	store  *Store
	client *http.Client
	cfg    DispatcherConfig
	logger *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup

	// pendingGauge, when set, receives the queue depth after each poll
	pendingGauge func(n int)
}

// SetPendingGauge installs a callback observing the pending job count.
func (d *Dispatcher) SetPendingGauge(fn func(n int)) {
	d.pendingGauge = fn
}

func NewDispatcher(store *Store, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Dispatcher{
		store:  store,
		client: &http.Client{Timeout: 2 * time.Minute},
		cfg:    cfg,
		logger: logger.With("component", "dispatcher"),
		stopCh: make(chan struct{}),
	}
}

// Start launches the delivery loop
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("starting job dispatcher", "poll_interval", d.cfg.PollInterval)

	d.wg.Add(1)
	go d.loop(ctx)
}

// Stop stops the dispatcher gracefully
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	d.wg.Wait()
	d.logger.Info("job dispatcher stopped")
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.dispatchDue(ctx)
		}
	}
}

// dispatchDue drains every job that is due right now
func (d *Dispatcher) dispatchDue(ctx context.Context) {
	for {
		job, err := d.store.NextDue(time.Now())
		if err != nil {
			d.logger.Error("failed to read job store", "error", err)
			return
		}
		if job == nil {
			break
		}
		d.deliver(ctx, job)
	}

	if d.pendingGauge != nil {
		if n, err := d.store.Len(); err == nil {
			d.pendingGauge(n)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, job *Job) {
	logger := d.logger.With("job_id", job.ID, "campaign_id", job.CampaignID)

	err := d.post(ctx, job)
	if err == nil {
		logger.Debug("tick delivered")
		return
	}

	logger.Warn("tick delivery failed", "error", err, "attempts", job.Attempts+1)

	if job.Attempts+1 >= d.cfg.MaxRetries {
		logger.Error("tick dropped after max retries", "max_retries", d.cfg.MaxRetries)
		return
	}

	backoff := d.calculateBackoff(job.Attempts + 1)
	if err := d.store.Retry(job, time.Now().Add(backoff), err.Error()); err != nil {
		logger.Error("failed to reschedule job", "error", err)
	}
}

func (d *Dispatcher) post(ctx context.Context, job *Job) error {
	body, err := json.Marshal(TickPayload{CampaignID: job.CampaignID, SendRunID: job.RunID})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(d.cfg.SigningKey, body))

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}
	return nil
}

// calculateBackoff grows the retry interval exponentially, capped at one hour
func (d *Dispatcher) calculateBackoff(attempt int) time.Duration {
	multiplier := 1 << (attempt - 1)
	if multiplier > 12 {
		multiplier = 12
	}

	backoff := time.Duration(multiplier) * d.cfg.RetryInterval
	if backoff > time.Hour {
		return time.Hour
	}
	return backoff
}
