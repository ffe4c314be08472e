package mock

import (
	"context"

	"github.com/fwojciec/prefetch"
)

var _ prefetch.OutcomeService = (*OutcomeService)(nil)

// OutcomeService is a mock implementation of prefetch.OutcomeService.
type OutcomeService struct {
	CreateOutcomeFn func(ctx context.Context, o *prefetch.Outcome) error
	FindOutcomesFn  func(ctx context.Context, filter prefetch.OutcomeFilter) ([]*prefetch.Outcome, error)
}

func (s *OutcomeService) CreateOutcome(ctx context.Context, o *prefetch.Outcome) error {
	return s.CreateOutcomeFn(ctx, o)
}

func (s *OutcomeService) FindOutcomes(ctx context.Context, filter prefetch.OutcomeFilter) ([]*prefetch.Outcome, error) {
	return s.FindOutcomesFn(ctx, filter)
}
