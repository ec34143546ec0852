package db

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPgxURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@localhost:5432/paytr", pgxURL("postgres://u:p@localhost:5432/paytr"))
	require.Equal(t, "pgx5://u:p@db/paytr?sslmode=disable", pgxURL("postgresql://u:p@db/paytr?sslmode=disable"))
	require.Equal(t, "pgx5://already", pgxURL("pgx5://already"))
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationFS.ReadDir("migrations")
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	require.Contains(t, names, "000001_init.up.sql")
	require.Contains(t, names, "000001_init.down.sql")
}
