package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/config"
	"ledger/internal/core"
)

func TestFromAppConfig(t *testing.T) {
	cfg, err := FromAppConfig(&config.Config{
		DataBackend:   "postgres",
		DatabaseURL:   "postgres://u:p@localhost/ledger",
		SQLiteDBPath:  "./data/ledger.db",
		MemorySeedDir: "seeds",
	})
	require.NoError(t, err)
	assert.Equal(t, PostgresBackend, cfg.Type)
	assert.Equal(t, "postgres://u:p@localhost/ledger", cfg.DatabaseURL)
	assert.Equal(t, "seeds", cfg.DataDirectory)

	_, err = FromAppConfig(&config.Config{DataBackend: "sheets"})
	assert.Error(t, err)
	_, err = FromAppConfig(nil)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: "x.db"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"postgres without url", Config{Type: PostgresBackend}, true},
		{"memory", Config{Type: MemoryBackend}, false},
		{"unknown", Config{Type: "csv"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetBackendTypeStrings(t *testing.T) {
	assert.ElementsMatch(t, config.Backends, GetBackendTypeStrings())

	err := Config{Type: "csv"}.Validate()
	require.Error(t, err)
	assert.Equal(t, "invalid backend type: csv (must be one of sqlite, postgres, memory)", err.Error())

	_, err = FromAppConfig(&config.Config{DataBackend: "redis"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be one of sqlite, postgres, memory")
}

func TestCreateMemoryBackend(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seed_categories.txt"), []byte("# seeds\nRent #123456\nFun\n"), 0o644))

	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: MemoryBackend, DataDirectory: dir})
	require.NoError(t, err)
	defer func() { assert.NoError(t, res.Cleanup()) }()

	cats, err := res.Store.ListCategories(context.Background(), core.DefaultOwner)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "Fun", cats[0].Name)
	assert.Nil(t, cats[0].Color)
	assert.Equal(t, "Rent", cats[1].Name)
	assert.Equal(t, "#123456", *cats[1].Color)
}

func TestCreateSQLiteBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")

	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: SQLiteBackend, SQLiteDBPath: path})
	require.NoError(t, err)
	defer func() { assert.NoError(t, res.Cleanup()) }()

	require.NoError(t, res.Store.Ping(context.Background()))
	cats, err := res.Store.ListCategories(context.Background(), core.DefaultOwner)
	require.NoError(t, err)
	assert.Len(t, cats, 8, "migration seeds the default categories")
}

func TestCreateBackendRejectsInvalidConfig(t *testing.T) {
	_, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: PostgresBackend})
	assert.Error(t, err)
}
