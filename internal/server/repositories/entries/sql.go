package entries

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

const entryColumns = `entry_store_id, workspace, collection, entry_id, locale, revision, update_seq, create_date, update_date, deleted, content_hash`

// SQLRepository implements entry storage over a dbx.DBTX (*sql.DB or
// *sql.Tx). Queries are written with '?' placeholders and rebound through
// the dialect.
type SQLRepository struct {
	db dbx.DBTX
	d  dialect.Dialect
}

// NewSQLRepository constructs a repository bound to the given DBTX.
func NewSQLRepository(db dbx.DBTX, d dialect.Dialect) *SQLRepository {
	return &SQLRepository{db: db, d: d}
}

func scanEntry(scan func(...any) error) (*models.EntryMetaData, error) {
	var m models.EntryMetaData
	err := scan(
		&m.EntryStoreID, &m.Workspace, &m.Collection, &m.EntryID, &m.Locale,
		&m.Revision, &m.UpdateSequence, &m.CreateDate, &m.UpdateDate, &m.Deleted, &m.ContentHash,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *SQLRepository) Find(ctx context.Context, key models.EntryKey) (*models.EntryMetaData, error) {
	query := r.d.Rebind(`
		SELECT ` + entryColumns + ` FROM entries
		WHERE workspace = ? AND collection = ? AND entry_id = ? AND locale = ?`)
	row := r.db.QueryRowContext(ctx, query, key.Workspace, key.Collection, key.EntryID, key.Locale)
	m, err := scanEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find entry: %w", err)
	}
	return m, nil
}

func (r *SQLRepository) Insert(ctx context.Context, m *models.EntryMetaData) error {
	query := r.d.Rebind(`
		INSERT INTO entries (workspace, collection, entry_id, locale, revision, update_seq, create_date, update_date, deleted, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING entry_store_id`)
	err := r.db.QueryRowContext(ctx, query,
		m.Workspace, m.Collection, m.EntryID, m.Locale,
		m.Revision, m.UpdateSequence, m.CreateDate, m.UpdateDate, m.Deleted, m.ContentHash,
	).Scan(&m.EntryStoreID)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

func (r *SQLRepository) Update(ctx context.Context, m *models.EntryMetaData, expectedRevision int) (bool, error) {
	query := `
		UPDATE entries
		SET revision = ?, update_seq = ?, update_date = ?, deleted = ?, content_hash = ?
		WHERE entry_store_id = ?`
	args := []any{m.Revision, m.UpdateSequence, m.UpdateDate, m.Deleted, m.ContentHash, m.EntryStoreID}
	if expectedRevision != models.RevisionWildcard {
		query += ` AND revision = ?`
		args = append(args, expectedRevision)
	}
	res, err := r.db.ExecContext(ctx, r.d.Rebind(query), args...)
	if err != nil {
		return false, fmt.Errorf("update entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	switch n {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *SQLRepository) Obliterate(ctx context.Context, entryStoreID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.d.Rebind(`DELETE FROM entries WHERE entry_store_id = ?`), entryStoreID)
	if err != nil {
		return false, fmt.Errorf("obliterate entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *SQLRepository) FeedPage(ctx context.Context, q FeedQuery) ([]*models.EntryMetaData, error) {
	query := `
		SELECT ` + entryColumns + ` FROM entries
		WHERE workspace = ? AND collection = ? AND update_seq > ? AND update_date <= ?`
	args := []any{q.Workspace, q.Collection, q.Cursor, q.Horizon}
	if q.Locale != "" {
		query += ` AND locale = ?`
		args = append(args, q.Locale)
	}
	query += ` ORDER BY update_seq ASC LIMIT ?`
	args = append(args, q.Limit)

	rows, err := r.db.QueryContext(ctx, r.d.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("feed page: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (r *SQLRepository) FindByIDs(ctx context.Context, ids []int64) ([]*models.EntryMetaData, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	query := `
		SELECT ` + entryColumns + ` FROM entries
		WHERE entry_store_id IN (` + placeholders + `)
		ORDER BY update_seq ASC`
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx, r.d.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("find entries by ids: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (r *SQLRepository) TotalCount(ctx context.Context, workspace, collection string) (int, error) {
	query := r.d.Rebind(`
		SELECT COUNT(*) FROM entries
		WHERE workspace = ? AND collection = ? AND deleted = FALSE`)
	var n int
	if err := r.db.QueryRowContext(ctx, query, workspace, collection).Scan(&n); err != nil {
		return 0, fmt.Errorf("total count: %w", err)
	}
	return n, nil
}

func collectEntries(rows *sql.Rows) ([]*models.EntryMetaData, error) {
	var result []*models.EntryMetaData
	for rows.Next() {
		m, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
