package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/snowglobe/internal/fetch"
	"github.com/leapstack-labs/snowglobe/internal/graph"
	"github.com/leapstack-labs/snowglobe/internal/state"
	"github.com/leapstack-labs/snowglobe/internal/store"
	"github.com/leapstack-labs/snowglobe/internal/testutil"
	"github.com/leapstack-labs/snowglobe/pkg/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// warehouseStub serves a fixed object universe. Mutating the map
// between refreshes simulates warehouse change.
type warehouseStub struct {
	objects map[string]string // name -> ddl, all tables in db.s
	failing map[string]bool
}

func (w *warehouseStub) ListObjects(_ context.Context, scope fetch.Scope) ([]fetch.ObjectMeta, error) {
	var metas []fetch.ObjectMeta
	for name := range w.objects {
		metas = append(metas, fetch.ObjectMeta{ID: identity.New(scope.Database, "s", name, identity.TypeTable)})
	}
	return metas, nil
}

func (w *warehouseStub) FetchDDL(_ context.Context, id identity.Identity) (string, error) {
	if w.failing[id.Name] {
		return "", errors.New("fetch exploded")
	}
	return w.objects[id.Name], nil
}

func (w *warehouseStub) Close() error { return nil }

func newTestEngine(t *testing.T, stateDir string, stub fetch.Fetcher) *Engine {
	t.Helper()
	eng := New(Config{
		Profile:   "test",
		Databases: []string{"db"},
		StateDir:  stateDir,
		Logger:    testutil.NewTestLogger(t),
		Fetcher:   stub,
	})
	t.Cleanup(func() { eng.Close() })
	return eng
}

func TestRefreshFirstRun(t *testing.T) {
	dir := t.TempDir()
	stub := &warehouseStub{objects: map[string]string{
		"orders":   "CREATE TABLE orders (id INT)",
		"orders_v": "CREATE VIEW orders_v AS SELECT * FROM db.s.orders",
	}}
	eng := newTestEngine(t, dir, stub)

	result, err := eng.Refresh(context.Background(), false)
	require.NoError(t, err)

	added, modified, removed, unchanged := result.Diff.Counts()
	assert.Equal(t, 2, added)
	assert.Zero(t, modified)
	assert.Zero(t, removed)
	assert.Zero(t, unchanged)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 2, result.Stats.FilesWritten)
	assert.FileExists(t, filepath.Join(dir, "state.json"))

	// The reference from the view to the table shows up in the graph.
	deps := result.Graph.Dependencies("db.s.orders_v")
	require.Len(t, deps, 1)
	assert.Equal(t, "db.s.orders", deps[0].FQN())
}

func TestRefreshIdempotent(t *testing.T) {
	dir := t.TempDir()
	stub := &warehouseStub{objects: map[string]string{"orders": "CREATE TABLE orders (id INT)"}}

	_, err := newTestEngine(t, dir, stub).Refresh(context.Background(), false)
	require.NoError(t, err)

	result, err := newTestEngine(t, dir, stub).Refresh(context.Background(), false)
	require.NoError(t, err)

	added, modified, removed, unchanged := result.Diff.Counts()
	assert.Zero(t, added)
	assert.Zero(t, modified)
	assert.Zero(t, removed)
	assert.Equal(t, 1, unchanged)
	assert.Equal(t, 0, result.Stats.FilesWritten)
}

func TestRefreshDetectsChanges(t *testing.T) {
	dir := t.TempDir()
	stub := &warehouseStub{objects: map[string]string{
		"stays":   "CREATE TABLE stays ()",
		"changes": "CREATE TABLE changes (id INT)",
		"goes":    "CREATE TABLE goes ()",
	}}
	_, err := newTestEngine(t, dir, stub).Refresh(context.Background(), false)
	require.NoError(t, err)

	stub.objects = map[string]string{
		"stays":   "CREATE TABLE stays ()",
		"changes": "CREATE TABLE changes (id BIGINT)",
		"arrives": "CREATE TABLE arrives ()",
	}
	result, err := newTestEngine(t, dir, stub).Refresh(context.Background(), false)
	require.NoError(t, err)

	added, modified, removed, unchanged := result.Diff.Counts()
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, modified)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, unchanged)
}

func TestRefreshDryRunWritesNothing(t *testing.T) {
	dir := t.TempDir()
	stub := &warehouseStub{objects: map[string]string{"orders": "CREATE TABLE orders ()"}}
	eng := newTestEngine(t, dir, stub)

	result, err := eng.Refresh(context.Background(), true)
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.Nil(t, result.Stats)
	assert.Empty(t, result.RunID)
	assert.NoFileExists(t, filepath.Join(dir, "state.json"))
}

func TestRefreshCollectsFetchErrorsAndRecordsRun(t *testing.T) {
	dir := t.TempDir()
	stub := &warehouseStub{
		objects: map[string]string{"good": "CREATE TABLE good ()", "bad": "x"},
		failing: map[string]bool{"bad": true},
	}
	eng := newTestEngine(t, dir, stub)

	result, err := eng.Refresh(context.Background(), false)
	require.NoError(t, err)

	require.Len(t, result.FetchErrors, 1)
	assert.Equal(t, "bad", result.FetchErrors[0].ID.Name)
	added, _, _, _ := result.Diff.Counts()
	assert.Equal(t, 1, added, "failed object is excluded from the snapshot")

	history, err := eng.History()
	require.NoError(t, err)
	runs, err := history.ListRuns(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, state.RunStatusCompleted, runs[0].Status)

	events, err := history.GetEvents(result.RunID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, state.EventFetchError, events[0].Kind)
}

func TestRefreshParseWarningKeepsObject(t *testing.T) {
	dir := t.TempDir()
	stub := &warehouseStub{objects: map[string]string{
		"broken": "CREATE VIEW broken AS SELECT 'unterminated FROM x",
	}}
	eng := newTestEngine(t, dir, stub)

	result, err := eng.Refresh(context.Background(), false)
	require.NoError(t, err)

	require.Len(t, result.ParseWarnings, 1)
	added, _, _, _ := result.Diff.Counts()
	assert.Equal(t, 1, added, "unparsable object still lands in the snapshot")

	node, ok := result.Graph.Node("db.s.broken")
	require.True(t, ok, "unparsable object stays in the graph as a leaf")
	assert.False(t, node.External)
	assert.Empty(t, result.Graph.Dependencies("db.s.broken"))
}

func TestRefreshReportsCycles(t *testing.T) {
	dir := t.TempDir()
	stub := &warehouseStub{objects: map[string]string{
		"a": "CREATE VIEW a AS SELECT * FROM db.s.b",
		"b": "CREATE VIEW b AS SELECT * FROM db.s.a",
	}}
	eng := newTestEngine(t, dir, stub)

	result, err := eng.Refresh(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, result.Cycles, 1)

	events, err := mustHistory(t, eng).GetEvents(result.RunID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, state.EventCycle, events[0].Kind)
}

func TestRefreshAbortsOnCorruptIndex(t *testing.T) {
	dir := t.TempDir()
	stub := &warehouseStub{objects: map[string]string{"orders": "ddl"}}
	eng := newTestEngine(t, dir, stub)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "state.json"), []byte("{garbage"), 0o644))

	_, err := eng.Refresh(context.Background(), false)
	require.Error(t, err)
	var cerr *store.CorruptError
	assert.ErrorAs(t, err, &cerr)
}

func TestBuildGraphFromSnapshot(t *testing.T) {
	dir := t.TempDir()
	stub := &warehouseStub{objects: map[string]string{
		"orders":   "CREATE TABLE orders ()",
		"orders_v": "CREATE VIEW orders_v AS SELECT * FROM db.s.orders",
	}}
	_, err := newTestEngine(t, dir, stub).Refresh(context.Background(), false)
	require.NoError(t, err)

	// A second engine reads the persisted snapshot; no fetcher needed.
	eng := New(Config{
		Profile:  "test",
		StateDir: dir,
		Logger:   testutil.NewTestLogger(t),
	})
	t.Cleanup(func() { eng.Close() })

	g, err := eng.BuildGraph(context.Background(), false)
	require.NoError(t, err)

	nodes, err := g.Trace(identity.New("db", "s", "orders", identity.TypeTable), graph.Downstream, -1)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "db.s.orders_v", nodes[1].ID.FQN())
}

func TestBuildGraphEmptySnapshotFails(t *testing.T) {
	eng := New(Config{
		Profile:  "test",
		StateDir: t.TempDir(),
		Logger:   testutil.NewTestLogger(t),
	})
	t.Cleanup(func() { eng.Close() })

	_, err := eng.BuildGraph(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh first")
}

func TestBuildGraphLiveSkipsDisk(t *testing.T) {
	dir := t.TempDir()
	stub := &warehouseStub{objects: map[string]string{"orders": "CREATE TABLE orders ()"}}
	eng := newTestEngine(t, dir, stub)

	g, err := eng.BuildGraph(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, g.NodeCount())
	assert.NoFileExists(t, filepath.Join(dir, "state.json"))
}

func TestRefreshCancelledBeforeWrite(t *testing.T) {
	dir := t.TempDir()
	stub := &warehouseStub{objects: map[string]string{"orders": "ddl"}}
	eng := newTestEngine(t, dir, stub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Refresh(ctx, false)
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "state.json"))
}

// cancellingStub cancels the refresh context while serving the fetch,
// simulating an interrupt that lands after the pool has joined.
type cancellingStub struct {
	warehouseStub
	cancel context.CancelFunc
}

func (c *cancellingStub) FetchDDL(ctx context.Context, id identity.Identity) (string, error) {
	c.cancel()
	return c.warehouseStub.FetchDDL(ctx, id)
}

func TestRefreshCancelledAfterFetchRecordsRun(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	stub := &cancellingStub{
		warehouseStub: warehouseStub{objects: map[string]string{"orders": "ddl"}},
		cancel:        cancel,
	}
	eng := newTestEngine(t, dir, stub)

	_, err := eng.Refresh(ctx, false)
	require.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, filepath.Join(dir, "state.json"))

	runs, err := mustHistory(t, eng).ListRuns(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, state.RunStatusCancelled, runs[0].Status)
	assert.Equal(t, 1, runs[0].Added)
}

func mustHistory(t *testing.T, eng *Engine) *state.SQLiteStore {
	t.Helper()
	h, err := eng.History()
	require.NoError(t, err)
	return h
}
