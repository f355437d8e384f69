// Package repomanager wires repository constructors to a database dialect
// and exposes a schema migration hook (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/atomstore/internal/dbx"
	"github.com/dmitrijs2005/atomstore/internal/server/repositories/aggregates"
	"github.com/dmitrijs2005/atomstore/internal/server/repositories/categories"
	"github.com/dmitrijs2005/atomstore/internal/server/repositories/dialect"
	"github.com/dmitrijs2005/atomstore/internal/server/repositories/entries"
)

// RepositoryManager vends repositories bound to a DBTX, so services can run
// them against either the pooled connection or an open transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Dialect() dialect.Dialect
	Entries(db dbx.DBTX) entries.Repository
	Categories(db dbx.DBTX) categories.Repository
	Aggregates(db dbx.DBTX) aggregates.Repository
}
