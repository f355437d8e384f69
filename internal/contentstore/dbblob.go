package contentstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/atomstore/internal/common"
	"github.com/dmitrijs2005/atomstore/internal/dbx"
	"github.com/dmitrijs2005/atomstore/internal/server/models"
	"github.com/dmitrijs2005/atomstore/internal/server/repositories/dialect"
)

// DBBlobStore keeps content in the metadata database itself, which makes the
// content write share the mutation transaction when bound to the same DBTX.
type DBBlobStore struct {
	db dbx.DBTX
	d  dialect.Dialect
}

// NewDBBlobStore binds a blob store to the given DBTX and dialect.
func NewDBBlobStore(db dbx.DBTX, d dialect.Dialect) *DBBlobStore {
	return &DBBlobStore{db: db, d: d}
}

// WithTx rebinds the store to a transactional handle, so blob writes share
// the mutation transaction.
func (s *DBBlobStore) WithTx(tx dbx.DBTX) Store {
	return &DBBlobStore{db: tx, d: s.d}
}

func (s *DBBlobStore) Put(ctx context.Context, d models.EntryDescriptor, content []byte) error {
	query := s.d.Rebind(`
		INSERT INTO content_blobs (workspace, collection, entry_id, locale, revision, content)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (workspace, collection, entry_id, locale, revision)
		DO UPDATE SET content = excluded.content`)
	_, err := s.db.ExecContext(ctx, query, d.Workspace, d.Collection, d.EntryID, d.Locale, d.Revision, content)
	if err != nil {
		return fmt.Errorf("put blob: %w", err)
	}
	return nil
}

func (s *DBBlobStore) Get(ctx context.Context, d models.EntryDescriptor) ([]byte, error) {
	query := s.d.Rebind(`
		SELECT content FROM content_blobs
		WHERE workspace = ? AND collection = ? AND entry_id = ? AND locale = ? AND revision = ?`)
	var content []byte
	err := s.db.QueryRowContext(ctx, query, d.Workspace, d.Collection, d.EntryID, d.Locale, d.Revision).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s r%d", common.ErrContentNotFound, d, d.Revision)
	}
	if err != nil {
		return nil, fmt.Errorf("get blob: %w", err)
	}
	return content, nil
}

func (s *DBBlobStore) Exists(ctx context.Context, d models.EntryDescriptor) (bool, error) {
	query := `
		SELECT COUNT(*) FROM content_blobs
		WHERE workspace = ? AND collection = ? AND entry_id = ? AND locale = ?`
	args := []any{d.Workspace, d.Collection, d.EntryID, d.Locale}
	if d.Revision != models.RevisionUndefined {
		query += ` AND revision = ?`
		args = append(args, d.Revision)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, s.d.Rebind(query), args...).Scan(&n); err != nil {
		return false, fmt.Errorf("blob exists: %w", err)
	}
	return n > 0, nil
}

func (s *DBBlobStore) Obliterate(ctx context.Context, d models.EntryDescriptor) error {
	query := s.d.Rebind(`
		DELETE FROM content_blobs
		WHERE workspace = ? AND collection = ? AND entry_id = ? AND locale = ?`)
	if _, err := s.db.ExecContext(ctx, query, d.Workspace, d.Collection, d.EntryID, d.Locale); err != nil {
		return fmt.Errorf("obliterate blobs: %w", err)
	}
	return nil
}
