package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fwojciec/prefetch"
	"github.com/fwojciec/prefetch/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *sqlite.DB {
	t.Helper()

	db := sqlite.NewDB(":memory:")
	require.NoError(t, db.Open())
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr[T any](v T) *T {
	return &v
}

func TestOutcomeService_CreateOutcome(t *testing.T) {
	t.Parallel()

	t.Run("assigns an ID and round-trips fields", func(t *testing.T) {
		t.Parallel()

		svc := sqlite.NewOutcomeService(openDB(t))
		ctx := context.Background()

		started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		o := &prefetch.Outcome{
			SessionID: "s1",
			URL:       "https://example.com/a",
			FetchURL:  "https://proxy.example.com/?u=https%3A%2F%2Fexample.com%2Fa",
			State:     prefetch.StateFailed,
			Err:       errors.New("HTTP 503"),
			Started:   started,
			Finished:  started.Add(250 * time.Millisecond),
		}
		require.NoError(t, svc.CreateOutcome(ctx, o))
		require.NotEmpty(t, o.ID)

		got, err := svc.FindOutcomes(ctx, prefetch.OutcomeFilter{SessionID: ptr("s1")})
		require.NoError(t, err)
		require.Len(t, got, 1)

		assert.Equal(t, o.ID, got[0].ID)
		assert.Equal(t, o.URL, got[0].URL)
		assert.Equal(t, o.FetchURL, got[0].FetchURL)
		assert.Equal(t, prefetch.StateFailed, got[0].State)
		require.Error(t, got[0].Err)
		assert.Equal(t, "HTTP 503", got[0].Err.Error())
		assert.True(t, started.Equal(got[0].Started))
		assert.Equal(t, 250*time.Millisecond, got[0].Duration())
	})

	t.Run("keeps dropped outcomes with their reason", func(t *testing.T) {
		t.Parallel()

		svc := sqlite.NewOutcomeService(openDB(t))
		ctx := context.Background()

		require.NoError(t, svc.CreateOutcome(ctx, &prefetch.Outcome{
			SessionID: "s1",
			URL:       "https://other.example.net/",
			Reason:    prefetch.ReasonFiltered,
		}))

		got, err := svc.FindOutcomes(ctx, prefetch.OutcomeFilter{})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, prefetch.ReasonFiltered, got[0].Reason)
		assert.Equal(t, prefetch.StateNone, got[0].State)
		assert.NoError(t, got[0].Err)
		assert.True(t, got[0].Started.IsZero())
		assert.False(t, got[0].Scheduled())
	})

	t.Run("rejects invalid outcome", func(t *testing.T) {
		t.Parallel()

		svc := sqlite.NewOutcomeService(openDB(t))

		err := svc.CreateOutcome(context.Background(), &prefetch.Outcome{URL: "https://example.com/"})
		assert.Equal(t, prefetch.EINVALID, prefetch.ErrorCode(err))
	})

	t.Run("rejects duplicate ID", func(t *testing.T) {
		t.Parallel()

		svc := sqlite.NewOutcomeService(openDB(t))
		ctx := context.Background()

		o := &prefetch.Outcome{ID: "fixed", SessionID: "s1", URL: "https://example.com/"}
		require.NoError(t, svc.CreateOutcome(ctx, o))

		err := svc.CreateOutcome(ctx, o)
		assert.Equal(t, prefetch.ECONFLICT, prefetch.ErrorCode(err))
	})
}

func TestOutcomeService_FindOutcomes(t *testing.T) {
	t.Parallel()

	seed := func(t *testing.T) *sqlite.OutcomeService {
		t.Helper()

		svc := sqlite.NewOutcomeService(openDB(t))
		ctx := context.Background()
		for _, o := range []*prefetch.Outcome{
			{SessionID: "s1", URL: "https://example.com/a", State: prefetch.StateCompleted},
			{SessionID: "s1", URL: "https://example.com/b", State: prefetch.StateFailed},
			{SessionID: "s2", URL: "https://example.com/a", State: prefetch.StateCompleted},
			{SessionID: "s2", URL: "https://example.com/c", Reason: prefetch.ReasonOverBudget},
		} {
			require.NoError(t, svc.CreateOutcome(ctx, o))
		}
		return svc
	}

	t.Run("returns newest first", func(t *testing.T) {
		t.Parallel()

		got, err := seed(t).FindOutcomes(context.Background(), prefetch.OutcomeFilter{})
		require.NoError(t, err)
		require.Len(t, got, 4)
		assert.Equal(t, "https://example.com/c", got[0].URL)
		assert.Equal(t, "https://example.com/a", got[3].URL)
	})

	t.Run("filters by session", func(t *testing.T) {
		t.Parallel()

		got, err := seed(t).FindOutcomes(context.Background(), prefetch.OutcomeFilter{SessionID: ptr("s2")})
		require.NoError(t, err)
		require.Len(t, got, 2)
		for _, o := range got {
			assert.Equal(t, "s2", o.SessionID)
		}
	})

	t.Run("filters by URL", func(t *testing.T) {
		t.Parallel()

		got, err := seed(t).FindOutcomes(context.Background(), prefetch.OutcomeFilter{URL: ptr("https://example.com/a")})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "s2", got[0].SessionID)
		assert.Equal(t, "s1", got[1].SessionID)
	})

	t.Run("filters by state", func(t *testing.T) {
		t.Parallel()

		got, err := seed(t).FindOutcomes(context.Background(), prefetch.OutcomeFilter{State: ptr(prefetch.StateFailed)})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "https://example.com/b", got[0].URL)
	})

	t.Run("paginates", func(t *testing.T) {
		t.Parallel()

		svc := seed(t)
		ctx := context.Background()

		page, err := svc.FindOutcomes(ctx, prefetch.OutcomeFilter{Limit: 2, Offset: 1})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "https://example.com/a", page[0].URL)
		assert.Equal(t, "s2", page[0].SessionID)

		rest, err := svc.FindOutcomes(ctx, prefetch.OutcomeFilter{Offset: 3})
		require.NoError(t, err)
		require.Len(t, rest, 1)
	})

	t.Run("returns empty slice when nothing matches", func(t *testing.T) {
		t.Parallel()

		got, err := seed(t).FindOutcomes(context.Background(), prefetch.OutcomeFilter{SessionID: ptr("missing")})
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Empty(t, got)
	})
}
