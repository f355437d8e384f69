// Package entries provides the durable entry metadata store: one row per
// (workspace, collection, entryId, locale) carrying the revision counter,
// the store-wide update sequence, and the tombstone flag.
package entries

import (
	"context"
	"time"

	"github.com/dmitrijs2005/atomstore/internal/server/models"
)

// FeedQuery selects a page of the change feed. Cursor is an exclusive lower
// bound on the update sequence; Horizon excludes rows updated after it (the
// replication latency window); Locale optionally narrows the feed.
type FeedQuery struct {
	Workspace  string
	Collection string
	Locale     string
	Cursor     int64
	Horizon    time.Time
	Limit      int
}

// Repository is the entry metadata contract. Find-style methods return
// (nil, nil) when no row exists.
type Repository interface {
	// Find loads the row for a key, or (nil, nil).
	Find(ctx context.Context, key models.EntryKey) (*models.EntryMetaData, error)

	// Insert stores a new row and fills in EntryStoreID.
	Insert(ctx context.Context, m *models.EntryMetaData) error

	// Update advances a row to the state in m. When expectedRevision is
	// not the wildcard the update only applies if the stored revision
	// still matches; the bool reports whether a row was updated.
	Update(ctx context.Context, m *models.EntryMetaData, expectedRevision int) (bool, error)

	// Obliterate hard-deletes the row; categories cascade. The bool
	// reports whether a row existed.
	Obliterate(ctx context.Context, entryStoreID int64) (bool, error)

	// FeedPage returns up to Limit rows in strictly increasing update
	// sequence order.
	FeedPage(ctx context.Context, q FeedQuery) ([]*models.EntryMetaData, error)

	// FindByIDs loads rows by surrogate key, ordered by update sequence.
	FindByIDs(ctx context.Context, ids []int64) ([]*models.EntryMetaData, error)

	// TotalCount counts non-deleted rows in a collection.
	TotalCount(ctx context.Context, workspace, collection string) (int, error)
}
