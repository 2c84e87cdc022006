package fetch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/snowglobe/internal/snapshot"
	"github.com/leapstack-labs/snowglobe/pkg/identity"
)

// Retry settings for per-object DDL fetches. Listing is not retried; a
// failed listing fails the scope.
const (
	maxFetchAttempts = 3
	baseBackoff      = 500 * time.Millisecond
)

// Result is the outcome of fetching one snapshot: the records that
// succeeded and the per-object failures that did not. Failed objects are
// excluded from the snapshot, not silently dropped.
type Result struct {
	Snapshot *snapshot.Snapshot
	Errors   []*Error
}

// FetchSnapshot lists every scope and fetches DDL for all listed objects
// through a worker pool bounded by workers. It returns only after every
// outstanding fetch has finished, so callers can treat the returned
// snapshot as complete. Context cancellation aborts outstanding fetches
// and returns the context error.
func FetchSnapshot(ctx context.Context, f Fetcher, scopes []Scope, workers int, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if workers <= 0 {
		workers = 10
	}

	var metas []ObjectMeta
	seen := make(map[string]bool)
	for _, scope := range scopes {
		listed, err := f.ListObjects(ctx, scope)
		if err != nil {
			return nil, err
		}
		for _, m := range listed {
			if key := m.ID.Key(); !seen[key] {
				seen[key] = true
				metas = append(metas, m)
			}
		}
	}
	logger.Debug("listed objects", "count", len(metas), "scopes", len(scopes))

	res := &Result{Snapshot: snapshot.New()}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, meta := range metas {
		id := meta.ID
		g.Go(func() error {
			ddl, attempts, err := fetchWithRetry(gctx, f, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Context cancellation aborts the whole pool; anything
				// else is a per-object failure.
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warn("fetch failed", "object", id.String(), "attempts", attempts, "error", err)
				res.Errors = append(res.Errors, &Error{ID: id, Attempts: attempts, Err: err})
				return nil
			}
			res.Snapshot.Add(snapshot.NewRecord(id, ddl, time.Now().UTC()))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.Debug("fetched snapshot", "objects", res.Snapshot.Len(), "failures", len(res.Errors))
	return res, nil
}

// fetchWithRetry fetches one object's DDL with capped exponential
// backoff, returning the number of attempts made.
func fetchWithRetry(ctx context.Context, f Fetcher, id identity.Identity) (string, int, error) {
	attempts := 0
	var ddl string
	backoff := retry.WithMaxRetries(maxFetchAttempts-1, retry.NewExponential(baseBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		var err error
		ddl, err = f.FetchDDL(ctx, id)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	return ddl, attempts, err
}
