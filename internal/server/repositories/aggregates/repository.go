// Package aggregates persists the aggregate (joined) feed cache: the
// registered join definitions, the per-(feed, term) timestamp rows, and the
// cache configuration revision counter.
package aggregates

import (
	"context"

	"github.com/dmitrijs2005/atomstore/internal/server/models"
)

// CachePage selects a page of one joined feed's terms by its own timestamp
// sequence.
type CachePage struct {
	CachedFeedID int64
	Cursor       int64
	Limit        int
}

// Repository is the aggregate feed cache contract. Find-style methods
// return (nil, nil) when no row exists.
type Repository interface {
	// FindDef loads a join definition by id, or (nil, nil).
	FindDef(ctx context.Context, cachedFeedID int64) (*models.AggregateFeedDef, error)

	// InsertDef registers a join definition.
	InsertDef(ctx context.Context, def *models.AggregateFeedDef) error

	// DeleteDefs removes definitions and (by cascade) their cache rows,
	// returning how many definitions existed.
	DeleteDefs(ctx context.Context, cachedFeedIDs []int64) (int64, error)

	// ListDefs returns every registered join definition.
	ListDefs(ctx context.Context) ([]*models.AggregateFeedDef, error)

	// UpsertCacheEntry sets the timestamp for a (feed, term) row,
	// inserting it if absent.
	UpsertCacheEntry(ctx context.Context, e models.AggregateFeedCacheEntry) error

	// CacheEntries returns every (feed, term) row of one joined feed.
	CacheEntries(ctx context.Context, cachedFeedID int64) ([]models.AggregateFeedCacheEntry, error)

	// CacheFeedPage returns up to Limit rows with timestamp > Cursor in
	// increasing timestamp order.
	CacheFeedPage(ctx context.Context, q CachePage) ([]models.AggregateFeedCacheEntry, error)

	// ConfigRevision reads the cache configuration revision counter.
	ConfigRevision(ctx context.Context) (int64, error)

	// BumpConfigRevision increments and returns the counter.
	BumpConfigRevision(ctx context.Context) (int64, error)
}
