// Package dialect isolates the per-database differences the repositories
// depend on: placeholder style, sequence allocation, and migration wiring.
// Repositories write portable SQL with '?' placeholders and ask the dialect
// to rebind and to allocate monotonic counters.
package dialect

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/atomstore/internal/dbx"
)

// Dialect is the strategy selected once at startup.
type Dialect interface {
	// Name is the database/sql driver name to open connections with.
	Name() string

	// GooseDialect is the name goose knows this database by.
	GooseDialect() string

	// MigrationsDir is the subdirectory of the embedded migrations FS
	// holding this dialect's schema files.
	MigrationsDir() string

	// Rebind converts '?' placeholders into the dialect's native style.
	Rebind(query string) string

	// MutationTxOptions returns the transaction options entry mutations
	// run under. The revision check and the metadata writes must observe
	// a stable row, so the options ask for the strongest isolation the
	// engine needs to guarantee that.
	MutationTxOptions() *sql.TxOptions

	// NextUpdateSequence allocates the next value of the store-wide update
	// sequence. Allocation happens inside the caller's transaction, so a
	// value becomes visible to readers only once that transaction commits;
	// values from rolled-back transactions leave gaps, which is fine.
	NextUpdateSequence(ctx context.Context, db dbx.DBTX) (int64, error)

	// NextAggregateTimestamp allocates the next value of the aggregate
	// feed cache's own timestamp sequence.
	NextAggregateTimestamp(ctx context.Context, db dbx.DBTX) (int64, error)
}

// ForName returns the dialect registered under the given name
// ("pgx" or "sqlite").
func ForName(name string) (Dialect, bool) {
	switch name {
	case "pgx", "postgres":
		return Postgres{}, true
	case "sqlite":
		return SQLite{}, true
	default:
		return nil, false
	}
}

// rebindDollar rewrites '?' placeholders as $1..$n.
func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
