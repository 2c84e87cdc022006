package state

import (
	"testing"

	"github.com/leapstack-labs/snowglobe/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s := NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, s.Open(":memory:"))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndCompleteRun(t *testing.T) {
	s := openTestStore(t)

	run, err := s.CreateRun("prod")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusRunning, run.Status)

	require.NoError(t, s.CompleteRun(run.ID, RunStatusCompleted, "", 10, 2, 1, 1, 6, 0))

	runs, err := s.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	got := runs[0]
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "prod", got.Profile)
	assert.Equal(t, RunStatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Empty(t, got.Error)
	assert.Equal(t, 10, got.Total)
	assert.Equal(t, 2, got.Added)
	assert.Equal(t, 1, got.Modified)
	assert.Equal(t, 1, got.Removed)
	assert.Equal(t, 6, got.Unchanged)
}

func TestCompleteRunWithError(t *testing.T) {
	s := openTestStore(t)

	run, err := s.CreateRun("dev")
	require.NoError(t, err)
	require.NoError(t, s.CompleteRun(run.ID, RunStatusFailed, "connection refused", 0, 0, 0, 0, 0, 0))

	runs, err := s.ListRuns(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunStatusFailed, runs[0].Status)
	assert.Equal(t, "connection refused", runs[0].Error)
}

func TestListRunsNewestFirst(t *testing.T) {
	s := openTestStore(t)

	first, err := s.CreateRun("p")
	require.NoError(t, err)
	second, err := s.CreateRun("p")
	require.NoError(t, err)

	runs, err := s.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	// started_at ties are possible at this resolution; both orders
	// include both runs, the newest-first invariant matters with a gap.
	ids := []string{runs[0].ID, runs[1].ID}
	assert.Contains(t, ids, first.ID)
	assert.Contains(t, ids, second.ID)
}

func TestListRunsLimit(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 5; i++ {
		_, err := s.CreateRun("p")
		require.NoError(t, err)
	}

	runs, err := s.ListRuns(3)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestRecordAndGetEvents(t *testing.T) {
	s := openTestStore(t)

	run, err := s.CreateRun("p")
	require.NoError(t, err)

	require.NoError(t, s.RecordEvent(run.ID, "table-db.s.orders", EventFetchError, "timeout"))
	require.NoError(t, s.RecordEvent(run.ID, "view-db.s.v", EventParseWarning, "unterminated string"))

	events, err := s.GetEvents(run.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventFetchError, events[0].Kind)
	assert.Equal(t, "table-db.s.orders", events[0].ObjectKey)
	assert.Equal(t, EventParseWarning, events[1].Kind)

	other, err := s.GetEvents("no-such-run")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestOperationsRequireOpen(t *testing.T) {
	s := NewSQLiteStore(nil)

	_, err := s.CreateRun("p")
	assert.Error(t, err)
	_, err = s.ListRuns(1)
	assert.Error(t, err)
	assert.NoError(t, s.Close())
}
