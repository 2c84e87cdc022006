// Package snapshot holds the in-memory object universe of one run and
// the pure diff between two such universes.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/leapstack-labs/snowglobe/pkg/identity"
)

// Record is one fetched object: its identity, DDL text, and the content
// hash used for change detection.
type Record struct {
	ID        identity.Identity
	DDL       string
	Hash      string
	FetchedAt time.Time
}

// NewRecord builds a record, computing the content hash from the DDL.
func NewRecord(id identity.Identity, ddl string, fetchedAt time.Time) *Record {
	return &Record{
		ID:        id,
		DDL:       ddl,
		Hash:      HashDDL(ddl),
		FetchedAt: fetchedAt,
	}
}

// Snapshot maps identity keys to records. It represents the complete
// object universe captured in one run.
type Snapshot struct {
	objects map[string]*Record
}

// New creates an empty snapshot.
func New() *Snapshot {
	return &Snapshot{objects: make(map[string]*Record)}
}

// Add inserts or replaces a record, keyed by its identity key.
func (s *Snapshot) Add(rec *Record) {
	s.objects[rec.ID.Key()] = rec
}

// Get returns the record for an identity key.
func (s *Snapshot) Get(key string) (*Record, bool) {
	rec, ok := s.objects[key]
	return rec, ok
}

// Len returns the number of records.
func (s *Snapshot) Len() int {
	return len(s.objects)
}

// Keys returns all identity keys in sorted order.
func (s *Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Records returns all records sorted by identity key.
func (s *Snapshot) Records() []*Record {
	recs := make([]*Record, 0, len(s.objects))
	for _, k := range s.Keys() {
		recs = append(recs, s.objects[k])
	}
	return recs
}

// HashDDL computes the content hash of DDL text. Runs of whitespace are
// collapsed to a single space and the ends trimmed before hashing, so
// formatting-only differences in fetched DDL do not register as changes.
// The hash must stay stable across runs for identical text; it is
// persisted in the state index and compared on every diff.
func HashDDL(ddl string) string {
	normalized := strings.Join(strings.Fields(ddl), " ")
	h := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(h[:8])
}
