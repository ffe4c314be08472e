package slog

import (
	"context"
	"log/slog"

	"github.com/fwojciec/prefetch"
)

// Ensure LoggingOutcomeService implements prefetch.OutcomeService.
var _ prefetch.OutcomeService = (*LoggingOutcomeService)(nil)

// LoggingOutcomeService wraps an OutcomeService, logging failed writes.
// Reads are passed through.
type LoggingOutcomeService struct {
	next   prefetch.OutcomeService
	logger *slog.Logger
}

// NewLoggingOutcomeService creates a new LoggingOutcomeService.
func NewLoggingOutcomeService(next prefetch.OutcomeService, logger *slog.Logger) *LoggingOutcomeService {
	return &LoggingOutcomeService{next: next, logger: logger}
}

// CreateOutcome delegates to the wrapped service.
func (s *LoggingOutcomeService) CreateOutcome(ctx context.Context, o *prefetch.Outcome) error {
	err := s.next.CreateOutcome(ctx, o)
	if err != nil {
		s.logger.Error("recording outcome", "url", o.URL, "state", o.State.String(), "err", err)
	}
	return err
}

// FindOutcomes delegates to the wrapped service.
func (s *LoggingOutcomeService) FindOutcomes(ctx context.Context, filter prefetch.OutcomeFilter) ([]*prefetch.Outcome, error) {
	return s.next.FindOutcomes(ctx, filter)
}
