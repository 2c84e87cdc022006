// Package store persists snapshots to disk: one DDL file per object in a
// database/schema/type tree, plus a single JSON state index that is the
// source of truth for the previous snapshot. The index is always replaced
// atomically (write-new-then-rename), so a crash mid-run can never leave
// a half-updated index behind; DDL files are derived artifacts.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/leapstack-labs/snowglobe/internal/snapshot"
	"github.com/leapstack-labs/snowglobe/pkg/identity"
)

// Policy decides what happens to removed objects on disk.
type Policy string

// Removal policies. The default is PolicyRetain: the DDL file stays in
// place and the index entry is flagged removed.
const (
	PolicyRetain  Policy = "retain"
	PolicyArchive Policy = "archive"
	PolicyDelete  Policy = "delete"
)

// ParsePolicy normalizes a user-supplied policy string.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(s)) {
	case PolicyRetain, PolicyArchive, PolicyDelete:
		return Policy(strings.ToLower(s)), nil
	}
	return "", fmt.Errorf("invalid removal policy: %q (want retain, archive, or delete)", s)
}

// CorruptError reports a persisted index that could not be read or
// parsed. It is fatal for a refresh: aborting is safer than overwriting
// good data with a diff computed against garbage.
type CorruptError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *CorruptError) Error() string {
	return fmt.Sprintf("state index %s is unreadable: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *CorruptError) Unwrap() error { return e.Err }

const indexVersion = 1

// indexEntry is one object in the persisted state index.
type indexEntry struct {
	Database  string    `json:"database"`
	Schema    string    `json:"schema"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Hash      string    `json:"hash"`
	Path      string    `json:"path"`
	FetchedAt time.Time `json:"fetched_at"`
	Removed   bool      `json:"removed,omitempty"`
}

// indexFile is the on-disk schema of the state index.
type indexFile struct {
	Version   int                   `json:"version"`
	UpdatedAt time.Time             `json:"updated_at"`
	Objects   map[string]indexEntry `json:"objects"`
}

// ApplyStats summarizes the on-disk effect of one Apply.
type ApplyStats struct {
	FilesWritten  int
	FilesArchived int
	FilesDeleted  int
	Retained      int
}

// Store reads and writes the snapshot directory.
type Store struct {
	dir    string
	logger *slog.Logger

	// prev holds the index loaded by LoadPrevious so Apply can carry
	// removed-object markers across runs.
	prev *indexFile
}

// Open returns a store rooted at dir. The directory is created lazily on
// the first Apply.
func Open(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{dir: dir, logger: logger}
}

// IndexPath returns the path of the state index file.
func (s *Store) IndexPath() string {
	return filepath.Join(s.dir, "state.json")
}

// LoadPrevious reads the state index and the DDL files it points to,
// returning the previous snapshot. A missing index yields an empty
// snapshot (first run); an unreadable or malformed index yields a
// *CorruptError. Entries flagged removed are not part of the snapshot
// but are carried forward by Apply.
func (s *Store) LoadPrevious() (*snapshot.Snapshot, error) {
	snap := snapshot.New()

	data, err := os.ReadFile(s.IndexPath())
	if errors.Is(err, os.ErrNotExist) {
		s.prev = &indexFile{Version: indexVersion, Objects: map[string]indexEntry{}}
		return snap, nil
	}
	if err != nil {
		return nil, &CorruptError{Path: s.IndexPath(), Err: err}
	}

	var idx indexFile
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, &CorruptError{Path: s.IndexPath(), Err: err}
	}
	if idx.Version != indexVersion {
		return nil, &CorruptError{Path: s.IndexPath(), Err: fmt.Errorf("unsupported index version %d", idx.Version)}
	}
	if idx.Objects == nil {
		idx.Objects = map[string]indexEntry{}
	}
	s.prev = &idx

	for key, e := range idx.Objects {
		if e.Removed {
			continue
		}
		id := identity.New(e.Database, e.Schema, e.Name, identity.Type(e.Type))
		ddl, err := os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(e.Path)))
		if err != nil {
			// The index is the source of truth; a missing derived file
			// costs the DDL text but not the hash, so diffing is still
			// correct.
			s.logger.Warn("ddl file missing, keeping index entry", "key", key, "path", e.Path)
			ddl = nil
		}
		snap.Add(&snapshot.Record{
			ID:        id,
			DDL:       string(ddl),
			Hash:      e.Hash,
			FetchedAt: e.FetchedAt,
		})
	}

	return snap, nil
}

// Apply materializes a diff: it writes DDL files for Added and Modified
// objects, applies the removal policy to Removed objects, and atomically
// replaces the state index. Unchanged objects are never rewritten, so
// their file modification history is preserved.
func (s *Store) Apply(res *snapshot.Result, policy Policy) (*ApplyStats, error) {
	stats := &ApplyStats{}
	idx := &indexFile{
		Version:   indexVersion,
		UpdatedAt: time.Now().UTC(),
		Objects:   make(map[string]indexEntry),
	}

	// Carry forward removed markers from the previous index under the
	// active policy, so switching to archive or delete also cleans up
	// markers retained by earlier runs.
	if s.prev != nil {
		for key, e := range s.prev.Objects {
			if !e.Removed {
				continue
			}
			switch policy {
			case PolicyDelete:
				if err := s.removeDDL(filepath.FromSlash(e.Path)); err != nil {
					return nil, err
				}
				stats.FilesDeleted++
				// No index entry: the object is gone.
			case PolicyArchive:
				if !strings.HasPrefix(e.Path, "archive/") {
					archived, err := s.archiveDDL(filepath.FromSlash(e.Path))
					if err != nil {
						return nil, err
					}
					e.Path = filepath.ToSlash(archived)
					stats.FilesArchived++
				}
				idx.Objects[key] = e
			default: // PolicyRetain
				idx.Objects[key] = e
			}
		}
	}

	for _, entry := range res.Entries {
		switch entry.Change {
		case snapshot.Added, snapshot.Modified:
			rel := objectRelPath(entry.Record.ID)
			if err := s.writeDDL(rel, entry.Record.DDL); err != nil {
				return nil, err
			}
			stats.FilesWritten++
			idx.Objects[entry.Key] = s.entryFor(entry.Record, rel, false)

		case snapshot.Unchanged:
			idx.Objects[entry.Key] = s.entryFor(entry.Record, objectRelPath(entry.Record.ID), false)

		case snapshot.Removed:
			rel := objectRelPath(entry.Prev.ID)
			switch policy {
			case PolicyDelete:
				if err := s.removeDDL(rel); err != nil {
					return nil, err
				}
				stats.FilesDeleted++
				// No index entry: the object is gone.
			case PolicyArchive:
				archived, err := s.archiveDDL(rel)
				if err != nil {
					return nil, err
				}
				stats.FilesArchived++
				e := s.entryFor(entry.Prev, archived, true)
				idx.Objects[entry.Key] = e
			default: // PolicyRetain
				stats.Retained++
				idx.Objects[entry.Key] = s.entryFor(entry.Prev, rel, true)
			}
		}
	}

	if err := s.writeIndex(idx); err != nil {
		return nil, err
	}
	s.prev = idx
	return stats, nil
}

func (s *Store) entryFor(rec *snapshot.Record, relPath string, removed bool) indexEntry {
	return indexEntry{
		Database:  rec.ID.Database,
		Schema:    rec.ID.Schema,
		Name:      rec.ID.Name,
		Type:      string(rec.ID.Type),
		Hash:      rec.Hash,
		Path:      filepath.ToSlash(relPath),
		FetchedAt: rec.FetchedAt,
		Removed:   removed,
	}
}

// writeIndex replaces the state index atomically: the new content is
// written to a temp file in the same directory and renamed over the old
// index.
func (s *Store) writeIndex(idx *indexFile) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state index: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, "state-*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp index: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp index: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.IndexPath()); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace state index: %w", err)
	}
	return nil
}

func (s *Store) writeDDL(relPath, ddl string) error {
	path := filepath.Join(s.dir, relPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create ddl dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(ddl), 0o644); err != nil {
		return fmt.Errorf("failed to write ddl file %s: %w", relPath, err)
	}
	return nil
}

func (s *Store) removeDDL(relPath string) error {
	err := os.Remove(filepath.Join(s.dir, relPath))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete ddl file %s: %w", relPath, err)
	}
	return nil
}

// archiveDDL moves a DDL file under archive/, returning the new relative
// path.
func (s *Store) archiveDDL(relPath string) (string, error) {
	archived := filepath.Join("archive", relPath)
	src := filepath.Join(s.dir, relPath)
	dst := filepath.Join(s.dir, archived)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("failed to create archive dir: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return archived, nil
		}
		return "", fmt.Errorf("failed to archive ddl file %s: %w", relPath, err)
	}
	return archived, nil
}

// objectRelPath returns the DDL file location for an object, relative to
// the store root: ddl/<database>/<schema>/<type>/<name>.sql.
func objectRelPath(id identity.Identity) string {
	typeDir := strings.ReplaceAll(string(id.Type), " ", "_")
	return filepath.Join("ddl", id.Database, id.Schema, typeDir, id.Name+".sql")
}
