package fetch

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leapstack-labs/snowglobe/internal/testutil"
	"github.com/leapstack-labs/snowglobe/pkg/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSnowflakeDSN(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		contains []string
		wantErr  bool
	}{
		{
			name: "full config",
			cfg: Config{
				Account:   "myorg-myacct",
				User:      "svc_meta",
				Password:  "secret",
				Role:      "METADATA_READER",
				Warehouse: "WH_XS",
				Database:  "ANALYTICS",
				Schema:    "PUBLIC",
			},
			contains: []string{"myorg-myacct", "svc_meta", "ANALYTICS", "warehouse=WH_XS", "role=METADATA_READER"},
		},
		{
			name: "application option",
			cfg: Config{
				Account:  "acct",
				User:     "u",
				Password: "p",
				Options:  map[string]string{"application": "snowglobe"},
			},
			contains: []string{"application=snowglobe"},
		},
		{
			name:    "missing account",
			cfg:     Config{User: "u", Password: "p"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn, err := buildSnowflakeDSN(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, dsn, want)
			}
		})
	}
}

func mockSnowflakeFetcher(t *testing.T) (*SnowflakeFetcher, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &SnowflakeFetcher{db: db, account: "acct", logger: testutil.NewTestLogger(t)}, mock
}

func TestSnowflakeListObjects(t *testing.T) {
	f, mock := mockSnowflakeFetcher(t)

	// SHOW output carries many columns; the fetcher must find the ones
	// it needs by name, not position.
	cols := []string{"created_on", "name", "database_name", "schema_name", "kind"}
	mock.ExpectQuery("SHOW TABLES IN DATABASE analytics").WillReturnRows(
		sqlmock.NewRows(cols).
			AddRow("2026-01-01", "ORDERS", "ANALYTICS", "RAW", "TABLE").
			AddRow("2026-01-01", "CUSTOMERS", "ANALYTICS", "RAW", "TABLE").
			AddRow("2026-01-01", "TABLES", "ANALYTICS", "INFORMATION_SCHEMA", "VIEW"),
	)

	metas, err := f.ListObjects(context.Background(),
		Scope{Database: "analytics", Types: []identity.Type{identity.TypeTable}})
	require.NoError(t, err)

	require.Len(t, metas, 2, "information_schema objects are excluded")
	assert.Equal(t, "analytics.raw.orders", metas[0].ID.FQN())
	assert.Equal(t, identity.TypeTable, metas[0].ID.Type)
	assert.Equal(t, "acct", metas[0].ID.Account)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnowflakeListObjectsSchemaScope(t *testing.T) {
	f, mock := mockSnowflakeFetcher(t)

	cols := []string{"name", "database_name", "schema_name"}
	mock.ExpectQuery("SHOW VIEWS IN SCHEMA analytics.marts").WillReturnRows(
		sqlmock.NewRows(cols).AddRow("ORDERS_V", "ANALYTICS", "MARTS"),
	)

	metas, err := f.ListObjects(context.Background(),
		Scope{Database: "analytics", Schema: "marts", Types: []identity.Type{identity.TypeView}})
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, "analytics.marts.orders_v", metas[0].ID.FQN())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnowflakeListObjectsCatalogNameColumn(t *testing.T) {
	f, mock := mockSnowflakeFetcher(t)

	// Some SHOW variants name the database column catalog_name.
	cols := []string{"name", "catalog_name", "schema_name"}
	mock.ExpectQuery("SHOW STREAMS IN DATABASE analytics").WillReturnRows(
		sqlmock.NewRows(cols).AddRow("S1", "ANALYTICS", "RAW"),
	)

	metas, err := f.ListObjects(context.Background(),
		Scope{Database: "analytics", Types: []identity.Type{identity.TypeStream}})
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, "analytics.raw.s1", metas[0].ID.FQN())
}

func TestSnowflakeFetchDDL(t *testing.T) {
	f, mock := mockSnowflakeFetcher(t)

	mock.ExpectQuery("SELECT GET_DDL('TABLE', 'analytics.raw.orders', TRUE)").
		WillReturnRows(sqlmock.NewRows([]string{"ddl"}).AddRow("CREATE TABLE orders (id INT)"))

	ddl, err := f.FetchDDL(context.Background(), identity.New("analytics", "raw", "orders", identity.TypeTable))
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE orders (id INT)", ddl)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShowNoun(t *testing.T) {
	assert.Equal(t, "TABLES", showNoun(identity.TypeTable))
	assert.Equal(t, "VIEWS", showNoun(identity.TypeView))
	assert.Equal(t, "USER FUNCTIONS", showNoun(identity.TypeFunction))
	assert.Equal(t, "MATERIALIZED VIEWS", showNoun(identity.TypeMaterializedView))
}

func TestGetDDLType(t *testing.T) {
	assert.Equal(t, "TABLE", getDDLType(identity.TypeTable))
	assert.Equal(t, "VIEW", getDDLType(identity.TypeMaterializedView))
	assert.Equal(t, "FILE_FORMAT", getDDLType(identity.TypeFileFormat))
}
