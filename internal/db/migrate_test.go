package db

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubGooseUp(t *testing.T, fn func(ctx context.Context, database *sql.DB, dir string) error) {
	t.Helper()
	orig := gooseUp
	gooseUp = fn
	t.Cleanup(func() { gooseUp = orig })
}

func TestRunMigrations(t *testing.T) {
	database, _, err := sqlmock.New()
	require.NoError(t, err)
	defer database.Close()

	var gotDir string
	stubGooseUp(t, func(ctx context.Context, got *sql.DB, dir string) error {
		assert.Same(t, database, got)
		gotDir = dir
		return nil
	})

	require.NoError(t, RunMigrations(context.Background(), database))
	assert.Equal(t, migrationsDir, gotDir)
}

func TestRunMigrationsWrapsError(t *testing.T) {
	database, _, err := sqlmock.New()
	require.NoError(t, err)
	defer database.Close()

	boom := errors.New("boom")
	stubGooseUp(t, func(context.Context, *sql.DB, string) error { return boom })

	err = RunMigrations(context.Background(), database)
	assert.ErrorIs(t, err, boom)
}

func TestEmbeddedMigrationsAreGooseFormatted(t *testing.T) {
	entries, err := fs.ReadDir(migrationFiles, migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	for _, entry := range entries {
		script, err := fs.ReadFile(migrationFiles, migrationsDir+"/"+entry.Name())
		require.NoError(t, err)
		assert.True(t, strings.Contains(string(script), "-- +goose Up"), entry.Name())
		assert.True(t, strings.Contains(string(script), "-- +goose Down"), entry.Name())
	}
}
