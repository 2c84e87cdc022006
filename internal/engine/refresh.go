package engine

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/snowglobe/internal/fetch"
	"github.com/leapstack-labs/snowglobe/internal/graph"
	"github.com/leapstack-labs/snowglobe/internal/snapshot"
	"github.com/leapstack-labs/snowglobe/internal/state"
	"github.com/leapstack-labs/snowglobe/internal/store"
	"github.com/leapstack-labs/snowglobe/pkg/identity"
)

// ParseWarning records DDL the extractor could not scan. The owning
// object stays in the snapshot and the graph as a leaf node.
type ParseWarning struct {
	Key string
	Err error
}

// RefreshResult is the outcome of one refresh.
type RefreshResult struct {
	RunID         string
	Diff          *snapshot.Result
	Stats         *store.ApplyStats
	FetchErrors   []*fetch.Error
	ParseWarnings []ParseWarning
	Cycles        [][]identity.Identity
	Graph         *graph.Graph
	DryRun        bool
}

// Refresh fetches the current object universe, diffs it against the
// persisted snapshot, and (unless dryRun) materializes the change set
// and records the run. Per-object fetch failures and parse warnings are
// collected, not fatal; a corrupted persisted index aborts before any
// write.
func (e *Engine) Refresh(ctx context.Context, dryRun bool) (*RefreshResult, error) {
	previous, err := e.store.LoadPrevious()
	if err != nil {
		return nil, err
	}
	e.logger.Debug("loaded previous snapshot", "objects", previous.Len())

	fetcher, err := e.connect()
	if err != nil {
		return nil, err
	}

	fetched, err := fetch.FetchSnapshot(ctx, fetcher, e.scopes(), e.cfg.Workers, e.logger)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	current := fetched.Snapshot

	// Everything past this point is CPU-bound over the complete
	// snapshot; the fetch pool has already joined.
	refs, warnings := e.extractAll(current)
	g := graph.Build(current, refs)
	cycles := g.Cycles()
	for _, cycle := range cycles {
		e.logger.Warn("dependency cycle detected", "cycle", formatCycle(cycle))
	}

	diff := snapshot.Diff(previous, current)
	added, modified, removed, unchanged := diff.Counts()
	e.logger.Info("computed diff",
		"added", added, "modified", modified, "removed", removed, "unchanged", unchanged)

	result := &RefreshResult{
		Diff:          diff,
		FetchErrors:   fetched.Errors,
		ParseWarnings: warnings,
		Cycles:        cycles,
		Graph:         g,
		DryRun:        dryRun,
	}

	if dryRun {
		return result, nil
	}

	history, err := e.History()
	if err != nil {
		return nil, err
	}
	run, err := history.CreateRun(e.cfg.Profile)
	if err != nil {
		return nil, err
	}
	result.RunID = run.ID

	if err := ctx.Err(); err != nil {
		// Cancelled after fetch: record the aborted run and return
		// before touching the on-disk snapshot.
		_ = history.CompleteRun(run.ID, state.RunStatusCancelled, err.Error(),
			current.Len(), added, modified, removed, unchanged, len(warnings))
		return nil, err
	}

	stats, err := e.store.Apply(diff, e.cfg.Policy)
	if err != nil {
		_ = history.CompleteRun(run.ID, state.RunStatusFailed, err.Error(),
			current.Len(), added, modified, removed, unchanged, len(warnings))
		return nil, err
	}
	result.Stats = stats

	e.recordDiagnostics(history, run.ID, result)
	if err := history.CompleteRun(run.ID, state.RunStatusCompleted, "",
		current.Len(), added, modified, removed, unchanged, len(warnings)); err != nil {
		e.logger.Warn("failed to finalize run history", "run", run.ID, "error", err)
	}

	return result, nil
}

// extractAll derives the reference set for every record. Extraction
// failures downgrade to warnings; the object keeps an empty reference
// set and stays in the graph.
func (e *Engine) extractAll(current *snapshot.Snapshot) (map[string][]identity.Identity, []ParseWarning) {
	refs := make(map[string][]identity.Identity, current.Len())
	var warnings []ParseWarning
	for _, rec := range current.Records() {
		targets, err := e.extractor.References(rec.DDL, rec.ID.Database, rec.ID.Schema)
		if err != nil {
			e.logger.Warn("ddl not parsable, keeping object as leaf", "object", rec.ID.String(), "error", err)
			warnings = append(warnings, ParseWarning{Key: rec.ID.Key(), Err: err})
			refs[rec.ID.Key()] = nil
			continue
		}
		refs[rec.ID.Key()] = targets
	}
	return refs, warnings
}

func (e *Engine) recordDiagnostics(history *state.SQLiteStore, runID string, result *RefreshResult) {
	for _, fe := range result.FetchErrors {
		if err := history.RecordEvent(runID, fe.ID.Key(), state.EventFetchError, fe.Error()); err != nil {
			e.logger.Warn("failed to record fetch error", "error", err)
		}
	}
	for _, w := range result.ParseWarnings {
		if err := history.RecordEvent(runID, w.Key, state.EventParseWarning, w.Err.Error()); err != nil {
			e.logger.Warn("failed to record parse warning", "error", err)
		}
	}
	for _, cycle := range result.Cycles {
		if len(cycle) == 0 {
			continue
		}
		if err := history.RecordEvent(runID, cycle[0].Key(), state.EventCycle, formatCycle(cycle)); err != nil {
			e.logger.Warn("failed to record cycle", "error", err)
		}
	}
}

func formatCycle(cycle []identity.Identity) string {
	s := ""
	for i, id := range cycle {
		if i > 0 {
			s += " -> "
		}
		s += id.FQN()
	}
	if len(cycle) > 0 {
		s += " -> " + cycle[0].FQN()
	}
	return s
}
