package aggregates

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/atomstore/internal/dbx"
	"github.com/dmitrijs2005/atomstore/internal/server/models"
	"github.com/dmitrijs2005/atomstore/internal/server/repositories/dialect"
)

// workspaceSeparator joins the sorted member-workspace list into one column.
// Workspaces cannot contain it (descriptor validation rejects separators).
const workspaceSeparator = "\n"

// SQLRepository implements the aggregate cache over a dbx.DBTX.
type SQLRepository struct {
	db dbx.DBTX
	d  dialect.Dialect
}

// NewSQLRepository constructs a repository bound to the given DBTX.
func NewSQLRepository(db dbx.DBTX, d dialect.Dialect) *SQLRepository {
	return &SQLRepository{db: db, d: d}
}

func (r *SQLRepository) FindDef(ctx context.Context, cachedFeedID int64) (*models.AggregateFeedDef, error) {
	query := r.d.Rebind(`
		SELECT cached_feed_id, workspaces, scheme, locale, create_date
		FROM aggregate_feed_defs WHERE cached_feed_id = ?`)
	def, err := scanDef(r.db.QueryRowContext(ctx, query, cachedFeedID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find feed def: %w", err)
	}
	return def, nil
}

func scanDef(scan func(...any) error) (*models.AggregateFeedDef, error) {
	var def models.AggregateFeedDef
	var workspaces string
	if err := scan(&def.CachedFeedID, &workspaces, &def.Scheme, &def.Locale, &def.CreateDate); err != nil {
		return nil, err
	}
	def.Workspaces = strings.Split(workspaces, workspaceSeparator)
	return &def, nil
}

func (r *SQLRepository) InsertDef(ctx context.Context, def *models.AggregateFeedDef) error {
	query := r.d.Rebind(`
		INSERT INTO aggregate_feed_defs (cached_feed_id, workspaces, scheme, locale, create_date)
		VALUES (?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query,
		def.CachedFeedID, strings.Join(def.Workspaces, workspaceSeparator), def.Scheme, def.Locale, def.CreateDate)
	if err != nil {
		return fmt.Errorf("insert feed def: %w", err)
	}
	return nil
}

func (r *SQLRepository) DeleteDefs(ctx context.Context, cachedFeedIDs []int64) (int64, error) {
	if len(cachedFeedIDs) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cachedFeedIDs)), ", ")
	args := make([]any, len(cachedFeedIDs))
	for i, id := range cachedFeedIDs {
		args[i] = id
	}
	res, err := r.db.ExecContext(ctx,
		r.d.Rebind(`DELETE FROM aggregate_feed_defs WHERE cached_feed_id IN (`+placeholders+`)`), args...)
	if err != nil {
		return 0, fmt.Errorf("delete feed defs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (r *SQLRepository) ListDefs(ctx context.Context) ([]*models.AggregateFeedDef, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT cached_feed_id, workspaces, scheme, locale, create_date
		FROM aggregate_feed_defs ORDER BY cached_feed_id`)
	if err != nil {
		return nil, fmt.Errorf("list feed defs: %w", err)
	}
	defer rows.Close()

	var defs []*models.AggregateFeedDef
	for rows.Next() {
		def, err := scanDef(rows.Scan)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return defs, nil
}

func (r *SQLRepository) UpsertCacheEntry(ctx context.Context, e models.AggregateFeedCacheEntry) error {
	query := r.d.Rebind(`
		INSERT INTO aggregate_feed_cache (cached_feed_id, term, update_timestamp)
		VALUES (?, ?, ?)
		ON CONFLICT (cached_feed_id, term) DO UPDATE SET update_timestamp = excluded.update_timestamp`)
	if _, err := r.db.ExecContext(ctx, query, e.CachedFeedID, e.Term, e.UpdateTimestamp); err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

func (r *SQLRepository) CacheEntries(ctx context.Context, cachedFeedID int64) ([]models.AggregateFeedCacheEntry, error) {
	query := r.d.Rebind(`
		SELECT cached_feed_id, term, update_timestamp FROM aggregate_feed_cache
		WHERE cached_feed_id = ? ORDER BY update_timestamp ASC`)
	rows, err := r.db.QueryContext(ctx, query, cachedFeedID)
	if err != nil {
		return nil, fmt.Errorf("cache entries: %w", err)
	}
	defer rows.Close()
	return collectCacheEntries(rows)
}

func (r *SQLRepository) CacheFeedPage(ctx context.Context, q CachePage) ([]models.AggregateFeedCacheEntry, error) {
	query := r.d.Rebind(`
		SELECT cached_feed_id, term, update_timestamp FROM aggregate_feed_cache
		WHERE cached_feed_id = ? AND update_timestamp > ?
		ORDER BY update_timestamp ASC LIMIT ?`)
	rows, err := r.db.QueryContext(ctx, query, q.CachedFeedID, q.Cursor, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("cache feed page: %w", err)
	}
	defer rows.Close()
	return collectCacheEntries(rows)
}

func collectCacheEntries(rows *sql.Rows) ([]models.AggregateFeedCacheEntry, error) {
	var result []models.AggregateFeedCacheEntry
	for rows.Next() {
		var e models.AggregateFeedCacheEntry
		if err := rows.Scan(&e.CachedFeedID, &e.Term, &e.UpdateTimestamp); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLRepository) ConfigRevision(ctx context.Context) (int64, error) {
	var v int64
	if err := r.db.QueryRowContext(ctx, `SELECT revision FROM cache_config WHERE id = 1`).Scan(&v); err != nil {
		return 0, fmt.Errorf("config revision: %w", err)
	}
	return v, nil
}

func (r *SQLRepository) BumpConfigRevision(ctx context.Context) (int64, error) {
	var v int64
	err := r.db.QueryRowContext(ctx, `UPDATE cache_config SET revision = revision + 1 WHERE id = 1 RETURNING revision`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("bump config revision: %w", err)
	}
	return v, nil
}
