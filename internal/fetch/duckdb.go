package fetch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/leapstack-labs/snowglobe/pkg/identity"
)

func init() {
	Register("duckdb", func(cfg Config, logger *slog.Logger) (Fetcher, error) {
		return newDuckDBFetcher(cfg, logger)
	})
}

// DuckDBFetcher reads object metadata from a DuckDB catalog. It exists
// for local development and testing of the snapshot pipeline without a
// warehouse connection; only tables and views carry DDL in DuckDB's
// catalog functions.
type DuckDBFetcher struct {
	db     *sql.DB
	logger *slog.Logger
}

func newDuckDBFetcher(cfg Config, logger *slog.Logger) (*DuckDBFetcher, error) {
	db, err := sql.Open("duckdb", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb database: %w", err)
	}
	return &DuckDBFetcher{db: db, logger: logger}, nil
}

// Close closes the database.
func (f *DuckDBFetcher) Close() error {
	return f.db.Close()
}

// ListObjects lists tables and views from the DuckDB catalog. Other
// object types have no DuckDB equivalent and list as empty.
func (f *DuckDBFetcher) ListObjects(ctx context.Context, scope Scope) ([]ObjectMeta, error) {
	var metas []ObjectMeta
	for _, t := range scope.Types {
		var query string
		switch t {
		case identity.TypeTable:
			query = `SELECT database_name, schema_name, table_name FROM duckdb_tables() WHERE NOT internal`
		case identity.TypeView:
			query = `SELECT database_name, schema_name, view_name FROM duckdb_views() WHERE NOT internal`
		default:
			continue
		}

		rows, err := f.db.QueryContext(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to list %ss: %w", t, err)
		}
		for rows.Next() {
			var database, schema, name string
			if err := rows.Scan(&database, &schema, &name); err != nil {
				rows.Close()
				return nil, err
			}
			if !scopeMatches(scope, database, schema) {
				continue
			}
			metas = append(metas, ObjectMeta{ID: identity.New(database, schema, name, t)})
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return metas, nil
}

// FetchDDL returns the stored SQL for a table or view.
func (f *DuckDBFetcher) FetchDDL(ctx context.Context, id identity.Identity) (string, error) {
	var query string
	switch id.Type {
	case identity.TypeTable:
		query = `SELECT sql FROM duckdb_tables() WHERE lower(database_name) = ? AND lower(schema_name) = ? AND lower(table_name) = ?`
	case identity.TypeView:
		query = `SELECT sql FROM duckdb_views() WHERE lower(database_name) = ? AND lower(schema_name) = ? AND lower(view_name) = ?`
	default:
		return "", fmt.Errorf("duckdb fetcher does not support object type %q", id.Type)
	}

	var ddl sql.NullString
	err := f.db.QueryRowContext(ctx, query, id.Database, id.Schema, id.Name).Scan(&ddl)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("object not found: %s", id.FQN())
	}
	if err != nil {
		return "", err
	}
	return ddl.String, nil
}

func scopeMatches(scope Scope, database, schema string) bool {
	if scope.Database != "" && !strings.EqualFold(scope.Database, database) {
		return false
	}
	if scope.Schema != "" && !strings.EqualFold(scope.Schema, schema) {
		return false
	}
	return true
}
