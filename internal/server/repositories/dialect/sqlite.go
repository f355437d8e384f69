package dialect

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/atomstore/internal/dbx"
)

// SQLite backs the store with an embedded SQLite database (pure-Go driver).
// SQLite has no sequence objects, so counters live in a two-row table and
// are advanced with UPDATE ... RETURNING. SQLite serializes writers, which
// makes the increment atomic without further ceremony.
type SQLite struct{}

func (SQLite) Name() string          { return "sqlite" }
func (SQLite) GooseDialect() string  { return "sqlite3" }
func (SQLite) MigrationsDir() string { return "sqlite" }

func (SQLite) Rebind(query string) string { return query }

// MutationTxOptions returns nil: SQLite transactions are serializable by
// default and the driver rejects explicit isolation levels.
func (SQLite) MutationTxOptions() *sql.TxOptions { return nil }

func (SQLite) NextUpdateSequence(ctx context.Context, db dbx.DBTX) (int64, error) {
	return sqliteNext(ctx, db, "entry_update_seq")
}

func (SQLite) NextAggregateTimestamp(ctx context.Context, db dbx.DBTX) (int64, error) {
	return sqliteNext(ctx, db, "aggregate_feed_seq")
}

func sqliteNext(ctx context.Context, db dbx.DBTX, name string) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx,
		`UPDATE store_sequences SET value = value + 1 WHERE name = ? RETURNING value`, name).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("allocate %s: %w", name, err)
	}
	return v, nil
}
