package fetch

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	sf "github.com/snowflakedb/gosnowflake"

	"github.com/leapstack-labs/snowglobe/pkg/identity"
)

func init() {
	Register("snowflake", func(cfg Config, logger *slog.Logger) (Fetcher, error) {
		return newSnowflakeFetcher(cfg, logger)
	})
}

// SnowflakeFetcher lists objects with SHOW commands and retrieves DDL
// with GET_DDL.
type SnowflakeFetcher struct {
	db      *sql.DB
	account string
	logger  *slog.Logger
}

func newSnowflakeFetcher(cfg Config, logger *slog.Logger) (*SnowflakeFetcher, error) {
	dsn, err := buildSnowflakeDSN(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build snowflake dsn: %w", err)
	}
	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open snowflake connection: %w", err)
	}
	return &SnowflakeFetcher{db: db, account: cfg.Account, logger: logger}, nil
}

// buildSnowflakeDSN assembles a gosnowflake DSN from the fetcher config.
func buildSnowflakeDSN(cfg Config) (string, error) {
	sc := &sf.Config{
		Account:   cfg.Account,
		User:      cfg.User,
		Password:  cfg.Password,
		Role:      cfg.Role,
		Warehouse: cfg.Warehouse,
		Database:  cfg.Database,
		Schema:    cfg.Schema,
	}
	if app, ok := cfg.Options["application"]; ok {
		sc.Application = app
	}
	return sf.DSN(sc)
}

// Close closes the connection pool.
func (f *SnowflakeFetcher) Close() error {
	return f.db.Close()
}

// ListObjects runs one SHOW command per scoped type and collects the
// listed identities. INFORMATION_SCHEMA objects are excluded: they are
// built in, not managed.
func (f *SnowflakeFetcher) ListObjects(ctx context.Context, scope Scope) ([]ObjectMeta, error) {
	var metas []ObjectMeta
	for _, t := range scope.Types {
		listed, err := f.showObjects(ctx, t, scope)
		if err != nil {
			return nil, fmt.Errorf("failed to list %ss in %s: %w", t, scope.Database, err)
		}
		metas = append(metas, listed...)
	}
	return metas, nil
}

func (f *SnowflakeFetcher) showObjects(ctx context.Context, t identity.Type, scope Scope) ([]ObjectMeta, error) {
	location := "DATABASE " + scope.Database
	if scope.Schema != "" {
		location = "SCHEMA " + scope.Database + "." + scope.Schema
	}
	query := fmt.Sprintf("SHOW %s IN %s", showNoun(t), location)
	f.logger.Debug("listing objects", "query", query)

	rows, err := f.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	dbIdx := columnIndex(cols, "database_name", "catalog_name")
	schemaIdx := columnIndex(cols, "schema_name")
	nameIdx := columnIndex(cols, "name")
	if dbIdx < 0 || schemaIdx < 0 || nameIdx < 0 {
		return nil, fmt.Errorf("unexpected SHOW output columns: %v", cols)
	}

	var metas []ObjectMeta
	scan := make([]any, len(cols))
	for i := range scan {
		scan[i] = new(sql.NullString)
	}
	for rows.Next() {
		if err := rows.Scan(scan...); err != nil {
			return nil, err
		}
		database := scan[dbIdx].(*sql.NullString).String
		schema := scan[schemaIdx].(*sql.NullString).String
		name := scan[nameIdx].(*sql.NullString).String
		if strings.EqualFold(schema, "information_schema") || name == "" {
			continue
		}
		id := identity.New(database, schema, name, t)
		id.Account = f.account
		metas = append(metas, ObjectMeta{ID: id})
	}
	return metas, rows.Err()
}

// FetchDDL retrieves the DDL text for one object via GET_DDL.
func (f *SnowflakeFetcher) FetchDDL(ctx context.Context, id identity.Identity) (string, error) {
	query := fmt.Sprintf("SELECT GET_DDL('%s', '%s', TRUE)", getDDLType(id.Type), id.FQN())
	var ddl string
	if err := f.db.QueryRowContext(ctx, query).Scan(&ddl); err != nil {
		return "", err
	}
	return ddl, nil
}

// showNoun returns the plural noun used by SHOW for an object type.
func showNoun(t identity.Type) string {
	switch t {
	case identity.TypeFunction:
		return "USER FUNCTIONS"
	default:
		return strings.ToUpper(string(t)) + "S"
	}
}

// getDDLType maps an object type to GET_DDL's type argument.
// Materialized views are retrieved as views.
func getDDLType(t identity.Type) string {
	if t == identity.TypeMaterializedView {
		return "VIEW"
	}
	return strings.ToUpper(strings.ReplaceAll(string(t), " ", "_"))
}

func columnIndex(cols []string, names ...string) int {
	for _, name := range names {
		for i, col := range cols {
			if strings.EqualFold(col, name) {
				return i
			}
		}
	}
	return -1
}
