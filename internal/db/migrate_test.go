package db

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrationURL(t *testing.T) {
	url, err := MigrationURL("postgres://u:p@localhost:5432/inv?sslmode=disable")
	require.NoError(t, err)
	require.Equal(t, "pgx5://u:p@localhost:5432/inv?sslmode=disable", url)

	url, err = MigrationURL("postgresql://localhost/inv")
	require.NoError(t, err)
	require.Equal(t, "pgx5://localhost/inv", url)

	_, err = MigrationURL("mysql://localhost/inv")
	require.Error(t, err)
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrationsFS, "migrations/*.down.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)
	require.Len(t, downs, len(ups))
}
