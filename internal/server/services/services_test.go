package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/atomstore/internal/contenthash"
	"github.com/dmitrijs2005/atomstore/internal/contentstore"
	"github.com/dmitrijs2005/atomstore/internal/server/models"
	"github.com/dmitrijs2005/atomstore/internal/server/repositories/dialect"
	"github.com/dmitrijs2005/atomstore/internal/server/repositories/repomanager"
)

// testEnv is a full service stack over an in-memory SQLite database with the
// real schema applied.
type testEnv struct {
	db      *sql.DB
	repos   repomanager.RepositoryManager
	content contentstore.Store
	sink    *countingSink
	store   *StoreService
	feed    *FeedService
	agg     *AggregateService
}

func newTestEnv(t *testing.T, taggers ...AutoTagger) *testEnv {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// a second pooled connection would see its own empty :memory: database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	repos := repomanager.NewSQLManager(dialect.SQLite{})
	require.NoError(t, repos.RunMigrations(context.Background(), db))

	hasher, err := contenthash.NewBlake2b()
	require.NoError(t, err)

	content, err := contentstore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	sink := &countingSink{}

	agg := NewAggregateService(db, repos, sink, nil)
	store := NewStoreService(StoreParams{
		DB:                   db,
		Repos:                repos,
		Content:              content,
		Hasher:               hasher,
		Notifier:             agg,
		Metrics:              sink,
		SkipUnchangedContent: true,
	}, taggers...)
	feed := NewFeedService(db, repos, DefaultLatencyPolicy(), sink)

	return &testEnv{
		db:      db,
		repos:   repos,
		content: content,
		sink:    sink,
		store:   store,
		feed:    feed,
		agg:     agg,
	}
}

func (e *testEnv) mustInsert(t *testing.T, d models.EntryDescriptor, content string, cats ...models.EntryCategory) *models.EntryMetaData {
	t.Helper()
	m, err := e.store.Mutate(context.Background(), MutateRequest{
		Descriptor: d,
		Operation:  OpInsert,
		Content:    []byte(content),
		Categories: cats,
	})
	require.NoError(t, err)
	return m
}

func desc(entryID string) models.EntryDescriptor {
	return models.EntryDescriptor{
		Workspace:  "acme",
		Collection: "articles",
		EntryID:    entryID,
	}
}

func cat(scheme, term string) models.EntryCategory {
	return models.EntryCategory{Scheme: scheme, Term: term}
}

// countingSink records metric events for assertions.
type countingSink struct {
	mu        sync.Mutex
	applied   map[string]int
	conflicts int
	skipped   int
	pages     int
	retried   int
	failed    int
}

func (s *countingSink) MutationApplied(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applied == nil {
		s.applied = make(map[string]int)
	}
	s.applied[op]++
}

func (s *countingSink) MutationConflict() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts++
}

func (s *countingSink) MutationSkipped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped++
}

func (s *countingSink) PageServed(int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages++
}

func (s *countingSink) CacheAdvanceRetried() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retried++
}

func (s *countingSink) CacheAdvanceFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed++
}
