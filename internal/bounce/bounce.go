// Package bounce syncs delivery failure reports into the local event log.
// The mailbox-side parsing heuristics live behind the Scanner interface; the
// service only owns persistence and deduplication.
package bounce

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcanepa/sendero/internal/models"
)

// Report is one bounce found by a scanner
type Report struct {
	ProviderMsgID string
	BouncedEmail  string
	Reason        string
	Permalink     string
}

// Scanner inspects the sending mailbox for bounce notifications
type Scanner interface {
	Scan(ctx context.Context, since time.Time) ([]Report, error)
}

// NoScanner is the Scanner used when no mailbox integration is configured.
// Scans find nothing; bounce events can still be recorded by other means.
type NoScanner struct{}

func (NoScanner) Scan(context.Context, time.Time) ([]Report, error) {
	return nil, nil
}

// Recorder persists bounce events. Implemented by repository.BounceRepository.
type Recorder interface {
	Record(ev *models.BounceEvent) (bool, error)
	List(filter models.BounceListFilter) ([]models.BounceEvent, int, error)
}

// ScanResult summarizes one sync pass
type ScanResult struct {
	Found int `json:"found"`
	New   int `json:"new"`
}

type Service struct {
	scanner Scanner
	events  Recorder
	logger  *slog.Logger
}

func NewService(scanner Scanner, events Recorder, logger *slog.Logger) *Service {
	return &Service{
		scanner: scanner,
		events:  events,
		logger:  logger.With("component", "bounce"),
	}
}

// Sync pulls bounce reports since the given instant and records the new
// ones. Re-scanning an already-seen report is a no-op thanks to the
// provider message id dedupe.
func (s *Service) Sync(ctx context.Context, since time.Time) (ScanResult, error) {
	reports, err := s.scanner.Scan(ctx, since)
	if err != nil {
		return ScanResult{}, fmt.Errorf("bounce scan failed: %w", err)
	}

	result := ScanResult{Found: len(reports)}
	for _, r := range reports {
		created, err := s.events.Record(&models.BounceEvent{
			ProviderMsgID: r.ProviderMsgID,
			BouncedEmail:  r.BouncedEmail,
			Reason:        r.Reason,
			Permalink:     r.Permalink,
		})
		if err != nil {
			return result, fmt.Errorf("failed to record bounce: %w", err)
		}
		if created {
			result.New++
			s.logger.Info("bounce recorded", "email", r.BouncedEmail, "provider_msg_id", r.ProviderMsgID)
		}
	}

	return result, nil
}

// List returns recorded bounce events
func (s *Service) List(filter models.BounceListFilter) ([]models.BounceEvent, int, error) {
	return s.events.List(filter)
}
