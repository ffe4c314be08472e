package sqlite

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fwojciec/prefetch"
	"github.com/google/uuid"
)

// Compile-time interface verification.
var _ prefetch.OutcomeService = (*OutcomeService)(nil)

// OutcomeService implements prefetch.OutcomeService using SQLite.
type OutcomeService struct {
	db *DB
}

// NewOutcomeService creates a new OutcomeService.
func NewOutcomeService(db *DB) *OutcomeService {
	return &OutcomeService{db: db}
}

// hashURL returns the hex xxHash of a URL, used as an index key.
func hashURL(u string) string {
	var b [8]byte
	h := xxhash.Sum64String(u)
	for i := range b {
		b[i] = byte(h >> (56 - 8*i))
	}
	return hex.EncodeToString(b[:])
}

// CreateOutcome stores o, assigning an ID if it has none.
func (s *OutcomeService) CreateOutcome(ctx context.Context, o *prefetch.Outcome) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if o.ID == "" {
		o.ID = uuid.New().String()
	}

	var errMsg string
	if o.Err != nil {
		errMsg = o.Err.Error()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outcomes (id, session_id, url, url_hash, fetch_url, state, reason, error, started_at, finished_at, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.SessionID, o.URL, hashURL(o.URL), o.FetchURL, o.State.String(), string(o.Reason), errMsg,
		formatTime(o.Started), formatTime(o.Finished), formatTime(time.Now()))
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return prefetch.Errorf(prefetch.ECONFLICT, "outcome %s already recorded", o.ID)
	}
	return err
}

// FindOutcomes retrieves outcomes matching the filter, most recently
// recorded first.
func (s *OutcomeService) FindOutcomes(ctx context.Context, filter prefetch.OutcomeFilter) ([]*prefetch.Outcome, error) {
	var query strings.Builder
	var args []any

	query.WriteString("SELECT id, session_id, url, fetch_url, state, reason, error, started_at, finished_at FROM outcomes WHERE 1=1")

	if filter.SessionID != nil {
		query.WriteString(" AND session_id = ?")
		args = append(args, *filter.SessionID)
	}
	if filter.URL != nil {
		query.WriteString(" AND url_hash = ? AND url = ?")
		args = append(args, hashURL(*filter.URL), *filter.URL)
	}
	if filter.State != nil {
		query.WriteString(" AND state = ?")
		args = append(args, filter.State.String())
	}

	query.WriteString(" ORDER BY rowid DESC")
	appendPagination(&query, &args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	outcomes := []*prefetch.Outcome{}
	for rows.Next() {
		var o prefetch.Outcome
		var state, reason, errMsg, started, finished string

		if err := rows.Scan(&o.ID, &o.SessionID, &o.URL, &o.FetchURL, &state, &reason, &errMsg, &started, &finished); err != nil {
			return nil, err
		}

		if o.State, err = prefetch.ParseFetchState(state); err != nil {
			return nil, err
		}
		o.Reason = prefetch.Reason(reason)
		if errMsg != "" {
			o.Err = errors.New(errMsg)
		}
		if o.Started, err = parseTime(started, "started_at"); err != nil {
			return nil, err
		}
		if o.Finished, err = parseTime(finished, "finished_at"); err != nil {
			return nil, err
		}

		outcomes = append(outcomes, &o)
	}

	return outcomes, rows.Err()
}
