package poller

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// WaitAll polls every id with its own Poller, concurrently. Pollers share nothing;
// outcomes are returned in the order of ids. limit <= 0 means no concurrency cap.
func WaitAll[T any](ctx context.Context, ids []string, limit int, build func(id string) *Poller[T]) []Outcome[T] {
	outcomes := make([]Outcome[T], len(ids))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			outcomes[i] = build(id).Poll(gctx)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}
