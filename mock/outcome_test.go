package mock_test

import (
	"context"
	"testing"

	"github.com/fwojciec/prefetch"
	"github.com/fwojciec/prefetch/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcomeService_CreateOutcome(t *testing.T) {
	t.Parallel()

	t.Run("delegates to CreateOutcomeFn", func(t *testing.T) {
		t.Parallel()

		var calledWith *prefetch.Outcome
		s := &mock.OutcomeService{
			CreateOutcomeFn: func(_ context.Context, o *prefetch.Outcome) error {
				calledWith = o
				return nil
			},
		}

		o := &prefetch.Outcome{
			SessionID: "session-1",
			URL:       "https://example.com/a",
			FetchURL:  "https://example.com/a",
			State:     prefetch.StateCompleted,
		}

		err := s.CreateOutcome(context.Background(), o)

		require.NoError(t, err)
		assert.Equal(t, o, calledWith)
	})
}

func TestFetcher_Fetch(t *testing.T) {
	t.Parallel()

	var gotURL string
	var gotPriority bool
	f := &mock.Fetcher{
		FetchFn: func(_ context.Context, url string, priority bool) error {
			gotURL = url
			gotPriority = priority
			return nil
		},
	}

	err := f.Fetch(context.Background(), "https://example.com/a", true)

	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", gotURL)
	assert.True(t, gotPriority)
}
