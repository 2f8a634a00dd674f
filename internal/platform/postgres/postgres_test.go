package postgres

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	v, err := parseVersion("0001_init.sql")
	require.NoError(t, err)
	require.Equal(t, 1, v)

	_, err = parseVersion("abc_init.sql")
	require.Error(t, err)
}

func TestLoadMigrationsIsOrdered(t *testing.T) {
	ms, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, ms)
	for i := 1; i < len(ms); i++ {
		require.Less(t, ms[i-1].version, ms[i].version)
	}
}

func TestMigrateSkipsAppliedVersions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ms, err := loadMigrations()
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	for _, m := range ms {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM schema_migrations WHERE version = $1")).
			WithArgs(m.version).
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(m.version))
	}

	require.NoError(t, Migrate(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}
