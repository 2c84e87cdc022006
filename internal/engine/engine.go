// Package engine wires the metadata pipeline together: fetch the object
// universe, extract references, build the dependency graph, diff against
// the persisted snapshot, and materialize the result. The CLI is a thin
// shell over this package.
package engine

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/leapstack-labs/snowglobe/internal/fetch"
	"github.com/leapstack-labs/snowglobe/internal/state"
	"github.com/leapstack-labs/snowglobe/internal/store"
	"github.com/leapstack-labs/snowglobe/pkg/extract"
	"github.com/leapstack-labs/snowglobe/pkg/identity"
)

// Config holds the engine configuration.
type Config struct {
	// Fetch is the warehouse connection configuration.
	Fetch fetch.Config

	// Profile names the connection profile, recorded in run history.
	Profile string

	// Databases to scan. Defaults to the connection database.
	Databases []string

	// Schema optionally restricts scanning to one schema per database.
	Schema string

	// Types are the object types to manage. Defaults to table and view.
	Types []identity.Type

	// Workers bounds concurrent DDL fetches. Defaults to 10.
	Workers int

	// StateDir is the snapshot directory. Defaults to ".snowglobe".
	StateDir string

	// Policy decides what happens to removed objects on disk.
	Policy store.Policy

	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger

	// Extractor overrides the reference extractor (optional).
	Extractor extract.Extractor

	// Fetcher overrides the warehouse fetcher (optional; used by tests
	// and by callers that manage the connection themselves).
	Fetcher fetch.Fetcher
}

// Engine coordinates the refresh and trace paths. An engine holds no
// cross-run mutable state: each invocation loads the previous snapshot,
// computes the current one, and persists the result.
type Engine struct {
	cfg       Config
	logger    *slog.Logger
	store     *store.Store
	extractor extract.Extractor

	fetcher fetch.Fetcher
	history *state.SQLiteStore
}

// New creates an engine. The warehouse connection is established lazily
// on the first operation that needs it.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.StateDir == "" {
		cfg.StateDir = ".snowglobe"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.Policy == "" {
		cfg.Policy = store.PolicyRetain
	}
	if len(cfg.Types) == 0 {
		cfg.Types = []identity.Type{identity.TypeTable, identity.TypeView}
	}
	if len(cfg.Databases) == 0 && cfg.Fetch.Database != "" {
		cfg.Databases = []string{cfg.Fetch.Database}
	}
	extractor := cfg.Extractor
	if extractor == nil {
		extractor = extract.NewSQLExtractor()
	}

	logger.Debug("initializing engine",
		"state_dir", cfg.StateDir, "databases", cfg.Databases, "types", len(cfg.Types))

	return &Engine{
		cfg:       cfg,
		logger:    logger,
		store:     store.Open(cfg.StateDir, logger),
		extractor: extractor,
		fetcher:   cfg.Fetcher,
	}
}

// Store exposes the snapshot store (used by the list command).
func (e *Engine) Store() *store.Store {
	return e.store
}

// History opens (once) and returns the run history store.
func (e *Engine) History() (*state.SQLiteStore, error) {
	if e.history != nil {
		return e.history, nil
	}
	h := state.NewSQLiteStore(e.logger)
	if err := h.Open(filepath.Join(e.cfg.StateDir, "runs.db")); err != nil {
		return nil, err
	}
	e.history = h
	return h, nil
}

// Close releases the warehouse connection and the history store.
func (e *Engine) Close() error {
	var firstErr error
	if e.fetcher != nil {
		if err := e.fetcher.Close(); err != nil {
			firstErr = err
		}
		e.fetcher = nil
	}
	if e.history != nil {
		if err := e.history.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		e.history = nil
	}
	return firstErr
}

// connect returns the warehouse fetcher, creating it on first use.
func (e *Engine) connect() (fetch.Fetcher, error) {
	if e.fetcher != nil {
		return e.fetcher, nil
	}
	f, err := fetch.New(e.cfg.Fetch, e.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to warehouse: %w", err)
	}
	e.fetcher = f
	return f, nil
}

// scopes expands the configured databases into fetch scopes.
func (e *Engine) scopes() []fetch.Scope {
	scopes := make([]fetch.Scope, 0, len(e.cfg.Databases))
	for _, db := range e.cfg.Databases {
		scopes = append(scopes, fetch.Scope{
			Database: db,
			Schema:   e.cfg.Schema,
			Types:    e.cfg.Types,
		})
	}
	return scopes
}
