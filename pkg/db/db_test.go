package db

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrationsAreEmbedded(t *testing.T) {
	entries, err := fs.Glob(migrationsFS, "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	wanted := []string{
		"migrations/00001_create_user_files.sql",
		"migrations/00002_create_transactions.sql",
		"migrations/00003_create_bank_mappings.sql",
		"migrations/00004_create_import_jobs.sql",
	}
	require.ElementsMatch(t, wanted, entries)
}

func TestMigrationsHaveDownSections(t *testing.T) {
	entries, err := fs.Glob(migrationsFS, "migrations/*.sql")
	require.NoError(t, err)

	for _, name := range entries {
		data, err := fs.ReadFile(migrationsFS, name)
		require.NoError(t, err)
		require.Contains(t, string(data), "-- +goose Up", name)
		require.Contains(t, string(data), "-- +goose Down", name)
	}
}
