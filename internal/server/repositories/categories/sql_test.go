package categories

import (
	"context"
	"regexp"
	"testing"

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

func TestSelectByEntry(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT entry_store_id, scheme, term, label FROM entry_categories`)).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"entry_store_id", "scheme", "term", "label"}).
			AddRow(7, "topics", "go", "").
			AddRow(7, "topics", "storage", "Storage"))

	cats, err := repo.SelectByEntry(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []models.EntryCategory{
		{EntryStoreID: 7, Scheme: "topics", Term: "go"},
		{EntryStoreID: 7, Scheme: "topics", Term: "storage", Label: "Storage"},
	}, cats)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectForEntriesEmpty(t *testing.T) {
	repo, _ := newMockRepo(t)

	got, err := repo.SelectForEntries(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSelectForEntriesGroupsByEntry(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE entry_store_id IN (?, ?)`)).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"entry_store_id", "scheme", "term", "label"}).
			AddRow(1, "topics", "go", "").
			AddRow(2, "topics", "rust", ""))

	got, err := repo.SelectForEntries(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	assert.Len(t, got[1], 1)
	assert.Len(t, got[2], 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertIgnoresDuplicates(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (entry_store_id, scheme, term) DO NOTHING`)).
		WithArgs(int64(7), "topics", "go", "").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Insert(context.Background(), models.EntryCategory{
		EntryStoreID: 7, Scheme: "topics", Term: "go",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateLabel(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE entry_categories SET label = ?`)).
		WithArgs("Go", int64(7), "topics", "go").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.UpdateLabel(context.Background(), models.EntryCategory{
		EntryStoreID: 7, Scheme: "topics", Term: "go", Label: "Go",
	})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpdateLabelMissing(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE entry_categories`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.UpdateLabel(context.Background(), models.EntryCategory{
		EntryStoreID: 7, Scheme: "topics", Term: "missing",
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDelete(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM entry_categories`)).
		WithArgs(int64(7), "topics", "go").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), 7, "topics", "go"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSchemeExceptKeepsListedTerms(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`AND term NOT IN (?, ?)`)).
		WithArgs(int64(7), "stripe", "1", "2").
		WillReturnResult(sqlmock.NewResult(0, 3))

	err := repo.DeleteSchemeExcept(context.Background(), 7, "stripe", []string{"1", "2"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSchemeExceptEmptyKeepWipesScheme(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`(?s)DELETE FROM entry_categories.+scheme = \?$`).
		WithArgs(int64(7), "stripe").
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := repo.DeleteSchemeExcept(context.Background(), 7, "stripe", nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntriesMatchingAllEmpty(t *testing.T) {
	repo, _ := newMockRepo(t)

	ids, err := repo.EntriesMatchingAll(context.Background(), "acme", "articles", nil)
	require.NoError(t, err)
	assert.Nil(t, ids)
}

func TestEntriesMatchingAllCountsPairs(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`HAVING COUNT(*) = ?`)).
		WithArgs("acme", "articles", "topics", "go", "level", "intro", 2).
		WillReturnRows(sqlmock.NewRows([]string{"entry_store_id"}).AddRow(3).AddRow(9))

	ids, err := repo.EntriesMatchingAll(context.Background(), "acme", "articles", []models.SchemeTerm{
		{Scheme: "topics", Term: "go"},
		{Scheme: "level", Term: "intro"},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 9}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTermsForWorkspaceLocaleFilter(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`AND e.locale = ?`)).
		WithArgs("acme", "topics", "en").
		WillReturnRows(sqlmock.NewRows([]string{"term"}).AddRow("go").AddRow("rust"))

	terms, err := repo.TermsForWorkspace(context.Background(), "acme", "topics", "en")
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "rust"}, terms)
	assert.NoError(t, mock.ExpectationsWereMet())
}
