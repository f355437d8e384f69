package contentstore

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/glebarez/go-sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/atomstore/internal/common"
	"github.com/dmitrijs2005/atomstore/internal/server/models"
	"github.com/dmitrijs2005/atomstore/internal/server/repositories/dialect"
)

func newBlobStore(t *testing.T) (*DBBlobStore, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE content_blobs (
			workspace  TEXT NOT NULL,
			collection TEXT NOT NULL,
			entry_id   TEXT NOT NULL,
			locale     TEXT NOT NULL DEFAULT '',
			revision   INTEGER NOT NULL,
			content    BLOB NOT NULL,
			PRIMARY KEY (workspace, collection, entry_id, locale, revision)
		)`)
	require.NoError(t, err)

	return NewDBBlobStore(db, dialect.SQLite{}), db
}

func TestDBBlobStoreRoundTrip(t *testing.T) {
	store, _ := newBlobStore(t)
	ctx := context.Background()

	d := testDesc("a1", "en", 0)
	require.NoError(t, store.Put(ctx, d, []byte("<entry>v1</entry>")))

	got, err := store.Get(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, []byte("<entry>v1</entry>"), got)
}

func TestDBBlobStorePutOverwritesSameRevision(t *testing.T) {
	store, _ := newBlobStore(t)
	ctx := context.Background()

	d := testDesc("a1", "", 0)
	require.NoError(t, store.Put(ctx, d, []byte("first")))
	require.NoError(t, store.Put(ctx, d, []byte("second")))

	got, err := store.Get(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestDBBlobStoreGetMissing(t *testing.T) {
	store, _ := newBlobStore(t)

	_, err := store.Get(context.Background(), testDesc("missing", "", 0))
	assert.ErrorIs(t, err, common.ErrContentNotFound)
}

func TestDBBlobStoreExists(t *testing.T) {
	store, _ := newBlobStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testDesc("a1", "", 3), []byte("v4")))

	ok, err := store.Exists(ctx, testDesc("a1", "", 3))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(ctx, testDesc("a1", "", 9))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.Exists(ctx, testDesc("a1", "", models.RevisionUndefined))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDBBlobStoreObliterate(t *testing.T) {
	store, _ := newBlobStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testDesc("a1", "", 0), []byte("v1")))
	require.NoError(t, store.Put(ctx, testDesc("a1", "", 1), []byte("v2")))
	require.NoError(t, store.Put(ctx, testDesc("a2", "", 0), []byte("other")))

	require.NoError(t, store.Obliterate(ctx, testDesc("a1", "", models.RevisionUndefined)))

	ok, err := store.Exists(ctx, testDesc("a1", "", models.RevisionUndefined))
	require.NoError(t, err)
	assert.False(t, ok)

	// the neighbor entry is untouched
	ok, err = store.Exists(ctx, testDesc("a2", "", models.RevisionUndefined))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDBBlobStoreWithTxJoinsTransaction(t *testing.T) {
	store, db := newBlobStore(t)
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)

	bound := store.WithTx(tx)
	d := testDesc("a1", "", 0)
	require.NoError(t, bound.Put(ctx, d, []byte("uncommitted")))

	require.NoError(t, tx.Rollback())

	// the rolled-back write never became visible
	_, err = store.Get(ctx, d)
	assert.ErrorIs(t, err, common.ErrContentNotFound)
}
