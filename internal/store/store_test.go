package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leapstack-labs/snowglobe/internal/snapshot"
	"github.com/leapstack-labs/snowglobe/internal/testutil"
	"github.com/leapstack-labs/snowglobe/pkg/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testID(name string) identity.Identity {
	return identity.New("db", "s", name, identity.TypeTable)
}

func testSnap(t *testing.T, ddls map[string]string) *snapshot.Snapshot {
	t.Helper()
	snap := snapshot.New()
	now := time.Unix(1700000000, 0).UTC()
	for name, ddl := range ddls {
		snap.Add(snapshot.NewRecord(testID(name), ddl, now))
	}
	return snap
}

func applySnap(t *testing.T, s *Store, snap *snapshot.Snapshot, policy Policy) *ApplyStats {
	t.Helper()
	prev, err := s.LoadPrevious()
	require.NoError(t, err)
	stats, err := s.Apply(snapshot.Diff(prev, snap), policy)
	require.NoError(t, err)
	return stats
}

func TestLoadPreviousFirstRun(t *testing.T) {
	s := Open(t.TempDir(), testutil.NewTestLogger(t))
	snap, err := s.LoadPrevious()
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Len())
}

func TestApplyThenLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := Open(dir, testutil.NewTestLogger(t))

	snap := testSnap(t, map[string]string{
		"orders":    "CREATE TABLE orders (id INT)",
		"customers": "CREATE TABLE customers (id INT)",
	})
	stats := applySnap(t, s, snap, PolicyRetain)
	assert.Equal(t, 2, stats.FilesWritten)

	// DDL files land in the database/schema/type tree.
	assert.FileExists(t, filepath.Join(dir, "ddl", "db", "s", "table", "orders.sql"))
	assert.FileExists(t, filepath.Join(dir, "state.json"))

	loaded, err := Open(dir, testutil.NewTestLogger(t)).LoadPrevious()
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())

	rec, ok := loaded.Get(testID("orders").Key())
	require.True(t, ok)
	assert.Equal(t, "CREATE TABLE orders (id INT)", rec.DDL)
	assert.Equal(t, snapshot.HashDDL(rec.DDL), rec.Hash)
}

func TestApplyIdempotent(t *testing.T) {
	dir := t.TempDir()
	snap := testSnap(t, map[string]string{"orders": "CREATE TABLE orders (id INT)"})

	s := Open(dir, testutil.NewTestLogger(t))
	applySnap(t, s, snap, PolicyRetain)

	// Second apply of the identical snapshot writes nothing.
	s2 := Open(dir, testutil.NewTestLogger(t))
	stats := applySnap(t, s2, snap, PolicyRetain)
	assert.Equal(t, 0, stats.FilesWritten)
	assert.Equal(t, 0, stats.Retained)
}

func TestApplyModifiedRewrites(t *testing.T) {
	dir := t.TempDir()
	s := Open(dir, testutil.NewTestLogger(t))
	applySnap(t, s, testSnap(t, map[string]string{"orders": "v1"}), PolicyRetain)

	s2 := Open(dir, testutil.NewTestLogger(t))
	stats := applySnap(t, s2, testSnap(t, map[string]string{"orders": "v2"}), PolicyRetain)
	assert.Equal(t, 1, stats.FilesWritten)

	data, err := os.ReadFile(filepath.Join(dir, "ddl", "db", "s", "table", "orders.sql"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestApplyRemovalPolicies(t *testing.T) {
	full := map[string]string{"kept": "ddl kept", "gone": "ddl gone"}
	shrunk := map[string]string{"kept": "ddl kept"}
	gonePath := filepath.Join("ddl", "db", "s", "table", "gone.sql")

	t.Run("retain", func(t *testing.T) {
		dir := t.TempDir()
		applySnap(t, Open(dir, testutil.NewTestLogger(t)), testSnap(t, full), PolicyRetain)

		s := Open(dir, testutil.NewTestLogger(t))
		stats := applySnap(t, s, testSnap(t, shrunk), PolicyRetain)
		assert.Equal(t, 1, stats.Retained)

		// File stays, index entry flagged removed, snapshot excludes it.
		assert.FileExists(t, filepath.Join(dir, gonePath))
		loaded, err := Open(dir, testutil.NewTestLogger(t)).LoadPrevious()
		require.NoError(t, err)
		assert.Equal(t, 1, loaded.Len())
	})

	t.Run("archive", func(t *testing.T) {
		dir := t.TempDir()
		applySnap(t, Open(dir, testutil.NewTestLogger(t)), testSnap(t, full), PolicyArchive)

		s := Open(dir, testutil.NewTestLogger(t))
		stats := applySnap(t, s, testSnap(t, shrunk), PolicyArchive)
		assert.Equal(t, 1, stats.FilesArchived)

		assert.NoFileExists(t, filepath.Join(dir, gonePath))
		assert.FileExists(t, filepath.Join(dir, "archive", gonePath))
	})

	t.Run("delete", func(t *testing.T) {
		dir := t.TempDir()
		applySnap(t, Open(dir, testutil.NewTestLogger(t)), testSnap(t, full), PolicyDelete)

		s := Open(dir, testutil.NewTestLogger(t))
		stats := applySnap(t, s, testSnap(t, shrunk), PolicyDelete)
		assert.Equal(t, 1, stats.FilesDeleted)

		assert.NoFileExists(t, filepath.Join(dir, gonePath))
	})
}

func TestRemovedMarkerCarriedForward(t *testing.T) {
	dir := t.TempDir()
	applySnap(t, Open(dir, testutil.NewTestLogger(t)),
		testSnap(t, map[string]string{"kept": "a", "gone": "b"}), PolicyRetain)

	// Run 2: gone disappears, marker written.
	s2 := Open(dir, testutil.NewTestLogger(t))
	applySnap(t, s2, testSnap(t, map[string]string{"kept": "a"}), PolicyRetain)

	// Run 3: nothing changes; the removed marker must survive.
	s3 := Open(dir, testutil.NewTestLogger(t))
	applySnap(t, s3, testSnap(t, map[string]string{"kept": "a"}), PolicyRetain)

	data, err := os.ReadFile(filepath.Join(dir, "state.json"))
	require.NoError(t, err)
	var idx struct {
		Objects map[string]struct {
			Removed bool `json:"removed"`
		} `json:"objects"`
	}
	require.NoError(t, json.Unmarshal(data, &idx))
	require.Contains(t, idx.Objects, testID("gone").Key())
	assert.True(t, idx.Objects[testID("gone").Key()].Removed)
}

func TestPolicySwitchCleansRetainedMarkers(t *testing.T) {
	setup := func(t *testing.T) string {
		t.Helper()
		dir := t.TempDir()
		applySnap(t, Open(dir, testutil.NewTestLogger(t)),
			testSnap(t, map[string]string{"kept": "a", "gone": "b"}), PolicyRetain)
		applySnap(t, Open(dir, testutil.NewTestLogger(t)),
			testSnap(t, map[string]string{"kept": "a"}), PolicyRetain)
		return dir
	}
	gonePath := filepath.Join("ddl", "db", "s", "table", "gone.sql")

	t.Run("delete drops marker and file", func(t *testing.T) {
		dir := setup(t)
		stats := applySnap(t, Open(dir, testutil.NewTestLogger(t)),
			testSnap(t, map[string]string{"kept": "a"}), PolicyDelete)
		assert.Equal(t, 1, stats.FilesDeleted)
		assert.NoFileExists(t, filepath.Join(dir, gonePath))

		data, err := os.ReadFile(filepath.Join(dir, "state.json"))
		require.NoError(t, err)
		assert.NotContains(t, string(data), testID("gone").Key())
	})

	t.Run("archive moves retained file", func(t *testing.T) {
		dir := setup(t)
		stats := applySnap(t, Open(dir, testutil.NewTestLogger(t)),
			testSnap(t, map[string]string{"kept": "a"}), PolicyArchive)
		assert.Equal(t, 1, stats.FilesArchived)
		assert.NoFileExists(t, filepath.Join(dir, gonePath))
		assert.FileExists(t, filepath.Join(dir, "archive", gonePath))

		// A further archive run must not re-archive the moved file.
		stats = applySnap(t, Open(dir, testutil.NewTestLogger(t)),
			testSnap(t, map[string]string{"kept": "a"}), PolicyArchive)
		assert.Equal(t, 0, stats.FilesArchived)
		assert.FileExists(t, filepath.Join(dir, "archive", gonePath))
	})
}

func TestLoadPreviousCorruptIndex(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "state.json"), []byte("{not json"), 0o644))

	_, err := Open(dir, testutil.NewTestLogger(t)).LoadPrevious()
	require.Error(t, err)
	var cerr *CorruptError
	assert.ErrorAs(t, err, &cerr)
}

func TestLoadPreviousUnsupportedVersion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "state.json"),
		[]byte(`{"version": 99, "objects": {}}`), 0o644))

	_, err := Open(dir, testutil.NewTestLogger(t)).LoadPrevious()
	var cerr *CorruptError
	require.ErrorAs(t, err, &cerr)
}

func TestLoadPreviousMissingDDLFile(t *testing.T) {
	dir := t.TempDir()
	snap := testSnap(t, map[string]string{"orders": "CREATE TABLE orders (id INT)"})
	applySnap(t, Open(dir, testutil.NewTestLogger(t)), snap, PolicyRetain)

	require.NoError(t, os.Remove(filepath.Join(dir, "ddl", "db", "s", "table", "orders.sql")))

	// The hash from the index survives, so diffing stays correct even
	// with the derived file gone.
	loaded, err := Open(dir, testutil.NewTestLogger(t)).LoadPrevious()
	require.NoError(t, err)
	rec, ok := loaded.Get(testID("orders").Key())
	require.True(t, ok)
	assert.Empty(t, rec.DDL)
	assert.Equal(t, snapshot.HashDDL("CREATE TABLE orders (id INT)"), rec.Hash)
}

func TestIndexReplacedAtomically(t *testing.T) {
	dir := t.TempDir()
	s := Open(dir, testutil.NewTestLogger(t))
	applySnap(t, s, testSnap(t, map[string]string{"orders": "v1"}), PolicyRetain)

	// No temp files linger after a successful apply.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestParsePolicy(t *testing.T) {
	for input, want := range map[string]Policy{
		"retain":  PolicyRetain,
		"ARCHIVE": PolicyArchive,
		"Delete":  PolicyDelete,
	} {
		got, err := ParsePolicy(input)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParsePolicy("shred")
	assert.Error(t, err)
}

func TestTypeDirUsesUnderscores(t *testing.T) {
	dir := t.TempDir()
	s := Open(dir, testutil.NewTestLogger(t))

	snap := snapshot.New()
	snap.Add(snapshot.NewRecord(
		identity.New("db", "s", "fmt", identity.TypeFileFormat), "CREATE FILE FORMAT fmt", time.Now()))
	applySnap(t, s, snap, PolicyRetain)

	assert.FileExists(t, filepath.Join(dir, "ddl", "db", "s", "file_format", "fmt.sql"))
}
