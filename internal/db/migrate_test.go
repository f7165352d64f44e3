package db

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrateURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@localhost:5432/rx", migrateURL("postgres://u:p@localhost:5432/rx"))
	require.Equal(t, "pgx5://localhost/rx", migrateURL("postgresql://localhost/rx"))
	require.Equal(t, "pgx5://localhost/rx", migrateURL("pgx5://localhost/rx"))
}

func TestMigrationsEmbedded(t *testing.T) {
	files, err := fs.Glob(migrations, "migrations/*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)
}
