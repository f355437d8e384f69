package dialect

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/atomstore/internal/dbx"
)

// Postgres backs the store with PostgreSQL via the pgx stdlib driver.
// Sequences map directly onto native SEQUENCE objects, which already give
// the allocate-then-commit behavior the update sequence requires.
type Postgres struct{}

func (Postgres) Name() string          { return "pgx" }
func (Postgres) GooseDialect() string  { return "pgx" }
func (Postgres) MigrationsDir() string { return "postgres" }

func (Postgres) Rebind(query string) string { return rebindDollar(query) }

// MutationTxOptions asks for repeatable read: the snapshot taken at the
// revision check must hold through the metadata and category writes.
func (Postgres) MutationTxOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: sql.LevelRepeatableRead}
}

func (Postgres) NextUpdateSequence(ctx context.Context, db dbx.DBTX) (int64, error) {
	var v int64
	if err := db.QueryRowContext(ctx, `SELECT nextval('entry_update_seq')`).Scan(&v); err != nil {
		return 0, fmt.Errorf("allocate update sequence: %w", err)
	}
	return v, nil
}

func (Postgres) NextAggregateTimestamp(ctx context.Context, db dbx.DBTX) (int64, error) {
	var v int64
	if err := db.QueryRowContext(ctx, `SELECT nextval('aggregate_feed_seq')`).Scan(&v); err != nil {
		return 0, fmt.Errorf("allocate aggregate timestamp: %w", err)
	}
	return v, nil
}
