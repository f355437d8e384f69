package repomanager

import (
	"context"
	"database/sql"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/atomstore/internal/server/repositories/dialect"
)

func TestManagerVendsRepositories(t *testing.T) {
	m := NewSQLManager(dialect.SQLite{})

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	assert.Equal(t, dialect.SQLite{}, m.Dialect())
	assert.NotNil(t, m.Entries(db))
	assert.NotNil(t, m.Categories(db))
	assert.NotNil(t, m.Aggregates(db))
}

func TestRunMigrationsUsesDialectDir(t *testing.T) {
	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	var gotDir string
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m := NewSQLManager(dialect.SQLite{})
	require.NoError(t, m.RunMigrations(context.Background(), db))
	assert.Equal(t, "sqlite", gotDir)
}

func TestRunMigrationsAppliesSchema(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	m := NewSQLManager(dialect.SQLite{})
	require.NoError(t, m.RunMigrations(context.Background(), db))

	for _, table := range []string{"entries", "entry_categories", "aggregate_feed_defs", "aggregate_feed_cache", "cache_config", "content_blobs", "store_sequences"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, "table %s missing", table)
	}

	// the sequence counters start at zero
	var v int64
	require.NoError(t, db.QueryRow(`SELECT value FROM store_sequences WHERE name = 'entry_update_seq'`).Scan(&v))
	assert.Zero(t, v)
}
