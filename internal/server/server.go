package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcanepa/sendero/internal/api"
	"github.com/mcanepa/sendero/internal/bounce"
	"github.com/mcanepa/sendero/internal/campaign"
	"github.com/mcanepa/sendero/internal/config"
	"github.com/mcanepa/sendero/internal/db"
	"github.com/mcanepa/sendero/internal/jobs"
	"github.com/mcanepa/sendero/internal/mailer"
	"github.com/mcanepa/sendero/internal/metrics"
	"github.com/mcanepa/sendero/internal/repository"
	"github.com/mcanepa/sendero/internal/tick"
	"github.com/mcanepa/sendero/internal/unsubscribe"
)

// Server wires the database, the job dispatcher and the HTTP API into one
// runnable unit.
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	db         *db.DB
	jobStore   *jobs.Store
	dispatcher *jobs.Dispatcher
	http       *api.Server
}

func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := database.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	campaignRepo := repository.NewCampaignRepository(database.DB)
	draftRepo := repository.NewDraftRepository(database.DB)
	contactRepo := repository.NewContactRepository(database.DB)
	templateRepo := repository.NewTemplateRepository(database.DB)
	testSendRepo := repository.NewTestSendRepository(database.DB)
	settingsRepo := repository.NewSettingsRepository(database.DB)
	counterRepo := repository.NewCounterRepository(database.DB)
	bounceRepo := repository.NewBounceRepository(database.DB)
	unsubRepo := repository.NewUnsubscribeEventRepository(database.DB)

	jobStore, err := jobs.NewStore(cfg.Scheduler.StorePath)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to open job store: %w", err)
	}

	dispatcher := jobs.NewDispatcher(jobStore, jobs.DispatcherConfig{
		CallbackURL:   cfg.Scheduler.CallbackURL,
		SigningKey:    cfg.Scheduler.SigningKey,
		PollInterval:  cfg.Scheduler.PollInterval,
		RetryInterval: cfg.Scheduler.RetryInterval,
		MaxRetries:    cfg.Scheduler.MaxRetries,
	}, logger)

	sender := mailer.NewSMTPSender(mailer.Config{
		Addr:          cfg.SMTP.Addr,
		From:          cfg.SMTP.From,
		Username:      cfg.SMTP.Username,
		Password:      cfg.SMTP.Password,
		ImplicitTLS:   cfg.SMTP.ImplicitTLS,
		PermalinkBase: cfg.SMTP.PermalinkBase,
		Timeout:       cfg.SMTP.Timeout,
	}, logger)

	campaigns := campaign.NewService(campaignRepo, draftRepo, contactRepo, templateRepo, testSendRepo, jobStore, sender, logger)
	processor := tick.NewProcessor(campaignRepo, draftRepo, settingsRepo, counterRepo, jobStore, sender, logger)
	processor.SetLinkBuilder(unsubscribe.NewLinkBuilder(cfg.Unsubscribe.Secret, cfg.Unsubscribe.BaseURL))
	unsubs := unsubscribe.NewService(contactRepo, unsubRepo, cfg.Unsubscribe.Secret, logger)
	bounces := bounce.NewService(bounce.NoScanner{}, bounceRepo, logger)

	m := metrics.New()
	processor.SetMetrics(m)
	dispatcher.SetPendingGauge(func(n int) {
		m.JobsPending.Set(float64(n))
	})

	httpServer := api.NewServer(api.Options{
		ListenAddr: cfg.Server.ListenAddr,
		APIKey:     cfg.API.Key,
		SigningKey: cfg.Scheduler.SigningKey,
		Metrics:    cfg.Metrics.Enabled,
	}, campaigns, processor, bounces, unsubs, settingsRepo, m, logger)

	return &Server{
		cfg:        cfg,
		logger:     logger,
		db:         database,
		jobStore:   jobStore,
		dispatcher: dispatcher,
		http:       httpServer,
	}, nil
}

// Run starts the dispatcher and the HTTP server, then blocks until the
// context is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	s.dispatcher.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.dispatcher.Stop()
		s.close()
		return err
	case <-ctx.Done():
		s.dispatcher.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("shutdown error", "error", err)
		}
		s.close()
		return nil
	}
}

func (s *Server) close() {
	if err := s.jobStore.Close(); err != nil {
		s.logger.Error("failed to close job store", "error", err)
	}
	if err := s.db.Close(); err != nil {
		s.logger.Error("failed to close database", "error", err)
	}
}
