package aggregates

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/atomstore/internal/server/models"
	"github.com/dmitrijs2005/atomstore/internal/server/repositories/dialect"
)

func newMockRepo(t *testing.T) (*SQLRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLRepository(db, dialect.SQLite{}), mock
}

func TestFindDefSplitsWorkspaces(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM aggregate_feed_defs WHERE cached_feed_id = ?`)).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"cached_feed_id", "workspaces", "scheme", "locale", "create_date"}).
			AddRow(42, "acme\nglobex", "topics", "en", created))

	def, err := repo.FindDef(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, &models.AggregateFeedDef{
		CachedFeedID: 42,
		Workspaces:   []string{"acme", "globex"},
		Scheme:       "topics",
		Locale:       "en",
		CreateDate:   created,
	}, def)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindDefMissing(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`FROM aggregate_feed_defs`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"cached_feed_id"}))

	def, err := repo.FindDef(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, def)
}

func TestInsertDefJoinsWorkspaces(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO aggregate_feed_defs`)).
		WithArgs(int64(42), "acme\nglobex", "topics", "en", created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.InsertDef(context.Background(), &models.AggregateFeedDef{
		CachedFeedID: 42,
		Workspaces:   []string{"acme", "globex"},
		Scheme:       "topics",
		Locale:       "en",
		CreateDate:   created,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteDefsEmpty(t *testing.T) {
	repo, _ := newMockRepo(t)

	n, err := repo.DeleteDefs(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteDefsReportsCount(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM aggregate_feed_defs WHERE cached_feed_id IN (?, ?)`)).
		WithArgs(int64(1), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.DeleteDefs(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCacheEntry(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (cached_feed_id, term) DO UPDATE SET update_timestamp = excluded.update_timestamp`)).
		WithArgs(int64(42), "go", int64(17)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpsertCacheEntry(context.Background(), models.AggregateFeedCacheEntry{
		CachedFeedID: 42, Term: "go", UpdateTimestamp: 17,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheFeedPage(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE cached_feed_id = ? AND update_timestamp > ?`)).
		WithArgs(int64(42), int64(5), 10).
		WillReturnRows(sqlmock.NewRows([]string{"cached_feed_id", "term", "update_timestamp"}).
			AddRow(42, "go", 6).
			AddRow(42, "rust", 8))

	entries, err := repo.CacheFeedPage(context.Background(), CachePage{
		CachedFeedID: 42, Cursor: 5, Limit: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, []models.AggregateFeedCacheEntry{
		{CachedFeedID: 42, Term: "go", UpdateTimestamp: 6},
		{CachedFeedID: 42, Term: "rust", UpdateTimestamp: 8},
	}, entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigRevision(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT revision FROM cache_config WHERE id = 1`)).
		WillReturnRows(sqlmock.NewRows([]string{"revision"}).AddRow(4))

	v, err := repo.ConfigRevision(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), v)
}

func TestBumpConfigRevision(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE cache_config SET revision = revision + 1 WHERE id = 1 RETURNING revision`)).
		WillReturnRows(sqlmock.NewRows([]string{"revision"}).AddRow(5))

	v, err := repo.BumpConfigRevision(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)
}
