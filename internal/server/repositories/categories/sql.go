package categories

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/atomstore/internal/dbx"
	"github.com/dmitrijs2005/atomstore/internal/server/models"
	"github.com/dmitrijs2005/atomstore/internal/server/repositories/dialect"
)

// SQLRepository implements the category index over a dbx.DBTX.
type SQLRepository struct {
	db dbx.DBTX
	d  dialect.Dialect
}

// NewSQLRepository constructs a repository bound to the given DBTX.
func NewSQLRepository(db dbx.DBTX, d dialect.Dialect) *SQLRepository {
	return &SQLRepository{db: db, d: d}
}

func (r *SQLRepository) SelectByEntry(ctx context.Context, entryStoreID int64) ([]models.EntryCategory, error) {
	query := r.d.Rebind(`
		SELECT entry_store_id, scheme, term, label FROM entry_categories
		WHERE entry_store_id = ?
		ORDER BY scheme, term`)
	rows, err := r.db.QueryContext(ctx, query, entryStoreID)
	if err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	defer rows.Close()

	var result []models.EntryCategory
	for rows.Next() {
		var c models.EntryCategory
		if err := rows.Scan(&c.EntryStoreID, &c.Scheme, &c.Term, &c.Label); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLRepository) SelectForEntries(ctx context.Context, entryStoreIDs []int64) (map[int64][]models.EntryCategory, error) {
	result := make(map[int64][]models.EntryCategory, len(entryStoreIDs))
	if len(entryStoreIDs) == 0 {
		return result, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(entryStoreIDs)), ", ")
	query := `
		SELECT entry_store_id, scheme, term, label FROM entry_categories
		WHERE entry_store_id IN (` + placeholders + `)
		ORDER BY entry_store_id, scheme, term`
	args := make([]any, len(entryStoreIDs))
	for i, id := range entryStoreIDs {
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx, r.d.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("select categories for entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c models.EntryCategory
		if err := rows.Scan(&c.EntryStoreID, &c.Scheme, &c.Term, &c.Label); err != nil {
			return nil, err
		}
		result[c.EntryStoreID] = append(result[c.EntryStoreID], c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLRepository) Insert(ctx context.Context, c models.EntryCategory) error {
	query := r.d.Rebind(`
		INSERT INTO entry_categories (entry_store_id, scheme, term, label)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (entry_store_id, scheme, term) DO NOTHING`)
	if _, err := r.db.ExecContext(ctx, query, c.EntryStoreID, c.Scheme, c.Term, c.Label); err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (r *SQLRepository) UpdateLabel(ctx context.Context, c models.EntryCategory) (bool, error) {
	query := r.d.Rebind(`
		UPDATE entry_categories SET label = ?
		WHERE entry_store_id = ? AND scheme = ? AND term = ?`)
	res, err := r.db.ExecContext(ctx, query, c.Label, c.EntryStoreID, c.Scheme, c.Term)
	if err != nil {
		return false, fmt.Errorf("update category label: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *SQLRepository) Delete(ctx context.Context, entryStoreID int64, scheme, term string) error {
	query := r.d.Rebind(`
		DELETE FROM entry_categories
		WHERE entry_store_id = ? AND scheme = ? AND term = ?`)
	if _, err := r.db.ExecContext(ctx, query, entryStoreID, scheme, term); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}

func (r *SQLRepository) DeleteSchemeExcept(ctx context.Context, entryStoreID int64, scheme string, keepTerms []string) error {
	query := `
		DELETE FROM entry_categories
		WHERE entry_store_id = ? AND scheme = ?`
	args := []any{entryStoreID, scheme}
	if len(keepTerms) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(keepTerms)), ", ")
		query += ` AND term NOT IN (` + placeholders + `)`
		for _, t := range keepTerms {
			args = append(args, t)
		}
	}
	if _, err := r.db.ExecContext(ctx, r.d.Rebind(query), args...); err != nil {
		return fmt.Errorf("delete scheme categories: %w", err)
	}
	return nil
}

// EntriesMatchingAll runs an AND clause as a single set intersection: the
// (entry, scheme, term) uniqueness constraint makes COUNT(*) per entry equal
// the number of matched pairs, so requiring it to equal len(cats) keeps only
// entries carrying every category.
func (r *SQLRepository) EntriesMatchingAll(ctx context.Context, workspace, collection string, cats []models.SchemeTerm) ([]int64, error) {
	if len(cats) == 0 {
		return nil, nil
	}
	var pairs []string
	args := []any{workspace, collection}
	for _, c := range cats {
		pairs = append(pairs, `(c.scheme = ? AND c.term = ?)`)
		args = append(args, c.Scheme, c.Term)
	}
	args = append(args, len(cats))
	query := `
		SELECT c.entry_store_id
		FROM entry_categories c
		JOIN entries e ON e.entry_store_id = c.entry_store_id
		WHERE e.workspace = ? AND e.collection = ? AND e.deleted = FALSE
		  AND (` + strings.Join(pairs, " OR ") + `)
		GROUP BY c.entry_store_id
		HAVING COUNT(*) = ?
		ORDER BY c.entry_store_id`
	rows, err := r.db.QueryContext(ctx, r.d.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("category intersection: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *SQLRepository) TermsForWorkspace(ctx context.Context, workspace, scheme, locale string) ([]string, error) {
	query := `
		SELECT DISTINCT c.term
		FROM entry_categories c
		JOIN entries e ON e.entry_store_id = c.entry_store_id
		WHERE e.workspace = ? AND c.scheme = ? AND e.deleted = FALSE`
	args := []any{workspace, scheme}
	if locale != "" {
		query += ` AND e.locale = ?`
		args = append(args, locale)
	}
	query += ` ORDER BY c.term`
	rows, err := r.db.QueryContext(ctx, r.d.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("terms for workspace: %w", err)
	}
	defer rows.Close()

	var terms []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return terms, nil
}
