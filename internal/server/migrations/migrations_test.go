package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_Embedded(t *testing.T) {
	files, err := fs.Glob(Migrations, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		data, err := fs.ReadFile(Migrations, f)
		require.NoError(t, err)
		assert.True(t, strings.Contains(string(data), "-- +goose Up"), "%s lacks an Up section", f)
		assert.True(t, strings.Contains(string(data), "-- +goose Down"), "%s lacks a Down section", f)
	}
}

func TestMigrations_InitCreatesTables(t *testing.T) {
	data, err := fs.ReadFile(Migrations, "00001_init.sql")
	require.NoError(t, err)

	for _, table := range []string{"users", "refresh_tokens", "api_keys"} {
		assert.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
}
