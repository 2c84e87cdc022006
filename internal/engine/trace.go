package engine

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/snowglobe/internal/fetch"
	"github.com/leapstack-labs/snowglobe/internal/graph"
	"github.com/leapstack-labs/snowglobe/internal/snapshot"
)

// BuildGraph builds the dependency graph either from the persisted
// snapshot (the default) or, when live is set, from a fresh fetch that
// never touches the disk. The live path keeps trace usable when the
// persisted index is corrupted.
func (e *Engine) BuildGraph(ctx context.Context, live bool) (*graph.Graph, error) {
	var snap *snapshot.Snapshot

	if live {
		fetcher, err := e.connect()
		if err != nil {
			return nil, err
		}
		fetched, err := fetch.FetchSnapshot(ctx, fetcher, e.scopes(), e.cfg.Workers, e.logger)
		if err != nil {
			return nil, fmt.Errorf("fetch failed: %w", err)
		}
		for _, fe := range fetched.Errors {
			e.logger.Warn("object excluded from trace", "object", fe.ID.String(), "error", fe.Err)
		}
		snap = fetched.Snapshot
	} else {
		var err error
		snap, err = e.store.LoadPrevious()
		if err != nil {
			return nil, err
		}
		if snap.Len() == 0 {
			return nil, fmt.Errorf("no persisted snapshot in %s; run refresh first or trace with --live", e.cfg.StateDir)
		}
	}

	refs, _ := e.extractAll(snap)
	return graph.Build(snap, refs), nil
}
