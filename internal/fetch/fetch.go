// Package fetch is the warehouse boundary: it lists objects in scope and
// retrieves their DDL text. Fetchers register themselves by type, the
// same way database adapters do elsewhere in the codebase, so the engine
// never knows which warehouse it is talking to.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/leapstack-labs/snowglobe/pkg/identity"
)

// Config holds the connection settings for a fetcher. Credentials are
// passed in explicitly at construction time; fetchers never read ambient
// environment state.
type Config struct {
	// Type selects the registered fetcher ("snowflake", "duckdb").
	Type string

	// Snowflake connection settings.
	Account   string
	User      string
	Password  string
	Role      string
	Warehouse string

	// Database and Schema scope the connection's defaults.
	Database string
	Schema   string

	// Path is the database file for file-based fetchers (DuckDB).
	Path string

	// Options contains additional driver-specific settings.
	Options map[string]string
}

// Scope restricts a listing to a database, optionally a schema, and a
// set of object types.
type Scope struct {
	Database string
	Schema   string
	Types    []identity.Type
}

// ObjectMeta is one listed object, before its DDL is fetched.
type ObjectMeta struct {
	ID identity.Identity
}

// Fetcher lists objects and retrieves DDL. Implementations must be safe
// for concurrent FetchDDL calls; the pool issues many at once.
type Fetcher interface {
	// ListObjects returns the objects of the scoped types. Listing is a
	// single metadata query per type and is not retried per object.
	ListObjects(ctx context.Context, scope Scope) ([]ObjectMeta, error)

	// FetchDDL returns the DDL text for one object.
	FetchDDL(ctx context.Context, id identity.Identity) (string, error)

	// Close releases the connection.
	Close() error
}

// Error is a per-object fetch failure after retry exhaustion. Failures
// are collected and reported per identity rather than aborting the
// batch; the object is excluded from the current snapshot.
type Error struct {
	ID       identity.Identity
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.ID, e.Attempts, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Factory creates a fetcher from a config.
type Factory func(cfg Config, logger *slog.Logger) (Fetcher, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a fetcher factory under a type name. Called from init
// functions of fetcher implementations.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// New creates a fetcher for the configured type.
func New(cfg Config, logger *slog.Logger) (Fetcher, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown fetcher type: %q (available: %v)", cfg.Type, ListTypes())
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return factory(cfg, logger)
}

// ListTypes returns the registered fetcher type names, sorted.
func ListTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
