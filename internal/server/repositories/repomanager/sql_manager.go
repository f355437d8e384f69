package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/atomstore/internal/dbx"
	"github.com/dmitrijs2005/atomstore/internal/server/migrations"
	"github.com/dmitrijs2005/atomstore/internal/server/repositories/aggregates"
	"github.com/dmitrijs2005/atomstore/internal/server/repositories/categories"
	"github.com/dmitrijs2005/atomstore/internal/server/repositories/dialect"
	"github.com/dmitrijs2005/atomstore/internal/server/repositories/entries"
	_ "github.com/glebarez/go-sqlite"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// SQLManager vends dialect-aware SQL repository implementations.
type SQLManager struct {
	d dialect.Dialect
}

// NewSQLManager constructs a manager for the given dialect.
func NewSQLManager(d dialect.Dialect) *SQLManager {
	return &SQLManager{d: d}
}

func (m *SQLManager) Dialect() dialect.Dialect { return m.d }

// Entries returns an entries.Repository bound to the provided DBTX.
func (m *SQLManager) Entries(db dbx.DBTX) entries.Repository {
	return entries.NewSQLRepository(db, m.d)
}

// Categories returns a categories.Repository bound to the provided DBTX.
func (m *SQLManager) Categories(db dbx.DBTX) categories.Repository {
	return categories.NewSQLRepository(db, m.d)
}

// Aggregates returns an aggregates.Repository bound to the provided DBTX.
func (m *SQLManager) Aggregates(db dbx.DBTX) aggregates.Repository {
	return aggregates.NewSQLRepository(db, m.d)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations for this
// manager's dialect and runs them against the provided connection.
func (m *SQLManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect(m.d.GooseDialect()); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, m.d.MigrationsDir())
}
