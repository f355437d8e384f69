package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/atomstore/internal/categories"
	"github.com/dmitrijs2005/atomstore/internal/dbx"
	"github.com/dmitrijs2005/atomstore/internal/metrics"
	"github.com/dmitrijs2005/atomstore/internal/server/models"
	"github.com/dmitrijs2005/atomstore/internal/server/repositories/entries"
	"github.com/dmitrijs2005/atomstore/internal/server/repositories/repomanager"
)

// LatencyPolicy shields feed readers from replication lag: rows updated
// within the effective window before "now" stay off the page until a later
// request, so a replica that has not caught up yet cannot serve a page with
// holes in the sequence.
type LatencyPolicy struct {
	// Window is the deployment's configured replication latency, applied
	// when the caller does not request one explicitly.
	Window time.Duration
	// Fudge is added to any requested latency to absorb clock skew.
	Fudge time.Duration
	// Floor is the minimum effective latency once any is requested.
	Floor time.Duration
}

// DefaultLatencyPolicy matches the visibility guarantees documented for
// feed consumers.
func DefaultLatencyPolicy() LatencyPolicy {
	return LatencyPolicy{
		Fudge: 100 * time.Millisecond,
		Floor: 2100 * time.Millisecond,
	}
}

// Effective resolves the latency for one page request. A non-positive
// request means the caller accepts seeing rows the moment they commit and
// gets zero; any positive request is padded by Fudge and raised to at least
// Floor.
func (p LatencyPolicy) Effective(requested time.Duration) time.Duration {
	if requested <= 0 {
		return 0
	}
	e := requested + p.Fudge
	if e < p.Floor {
		e = p.Floor
	}
	return e
}

// PageRequest asks for one page of a collection's change feed.
type PageRequest struct {
	Workspace  string
	Collection string
	Locale     string

	// Cursor is the NextCursor of the previous page, exclusive. Zero
	// starts from the beginning of the feed.
	Cursor int64

	// Latency is the caller's replication-latency request, resolved
	// through the service's LatencyPolicy. Zero falls back to the
	// policy's Window.
	Latency time.Duration

	// Filter optionally restricts the page to entries matching a
	// category expression. Filtered-out rows still advance the cursor.
	Filter categories.Expression

	PageSize int
}

// Page is one slice of a change feed. NextCursor is the value for the
// following request; when no rows were examined it equals the request
// cursor, which doubles as the end-of-feed signal.
type Page struct {
	Entries      []*models.EntryMetaData
	NextCursor   int64
	RowsExamined int
}

// FeedService serves the sequence-ordered change feed and category queries.
type FeedService struct {
	db      dbx.DBTX
	repos   repomanager.RepositoryManager
	policy  LatencyPolicy
	metrics metrics.Sink
	nowFn   func() time.Time

	defaultPageSize int
}

// NewFeedService wires a feed service over the shared repositories.
func NewFeedService(db dbx.DBTX, repos repomanager.RepositoryManager, policy LatencyPolicy, sink metrics.Sink) *FeedService {
	if sink == nil {
		sink = metrics.Noop{}
	}
	return &FeedService{
		db:              db,
		repos:           repos,
		policy:          policy,
		metrics:         sink,
		nowFn:           func() time.Time { return time.Now().UTC() },
		defaultPageSize: 25,
	}
}

// PageFeed returns the next page of a collection's change feed. The cursor
// advances past every examined row, matching or not, so a fully filtered
// page still makes progress.
func (s *FeedService) PageFeed(ctx context.Context, req PageRequest) (*Page, error) {
	size := req.PageSize
	if size <= 0 {
		size = s.defaultPageSize
	}

	latency := req.Latency
	if latency <= 0 {
		latency = s.policy.Window
	}
	horizon := s.nowFn().Add(-s.policy.Effective(latency))

	rows, err := s.repos.Entries(s.db).FeedPage(ctx, entries.FeedQuery{
		Workspace:  req.Workspace,
		Collection: req.Collection,
		Locale:     req.Locale,
		Cursor:     req.Cursor,
		Horizon:    horizon,
		Limit:      size,
	})
	if err != nil {
		return nil, fmt.Errorf("feed page: %w", err)
	}

	page := &Page{NextCursor: req.Cursor, RowsExamined: len(rows)}
	if len(rows) == 0 {
		s.metrics.PageServed(0)
		return page, nil
	}
	page.NextCursor = rows[len(rows)-1].UpdateSequence

	if err := s.attachCategories(ctx, rows); err != nil {
		return nil, err
	}

	if req.Filter == nil {
		page.Entries = rows
	} else {
		for _, m := range rows {
			if req.Filter.Matches(categorySet(m.Categories)) {
				page.Entries = append(page.Entries, m)
			}
		}
	}

	s.metrics.PageServed(len(rows))
	return page, nil
}

// QueryByCategories returns the non-deleted entries of a collection whose
// category sets satisfy the expression, ordered by update sequence. AND and
// SIMPLE expressions run as a single intersection scan; anything else is
// decomposed into a union of AND clauses.
func (s *FeedService) QueryByCategories(ctx context.Context, workspace, collection string, expr categories.Expression) ([]*models.EntryMetaData, error) {
	clauses := categories.DNF(expr)
	if len(clauses) == 0 {
		return nil, nil
	}

	catRepo := s.repos.Categories(s.db)
	idSet := make(map[int64]bool)
	for _, clause := range clauses {
		pairs := make([]models.SchemeTerm, len(clause))
		for i, c := range clause {
			pairs[i] = models.SchemeTerm{Scheme: c.Scheme, Term: c.Term}
		}
		ids, err := catRepo.EntriesMatchingAll(ctx, workspace, collection, pairs)
		if err != nil {
			return nil, fmt.Errorf("category query: %w", err)
		}
		for _, id := range ids {
			idSet[id] = true
		}
	}
	if len(idSet) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	rows, err := s.repos.Entries(s.db).FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if err := s.attachCategories(ctx, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *FeedService) attachCategories(ctx context.Context, rows []*models.EntryMetaData) error {
	if len(rows) == 0 {
		return nil
	}
	ids := make([]int64, len(rows))
	for i, m := range rows {
		ids[i] = m.EntryStoreID
	}
	byEntry, err := s.repos.Categories(s.db).SelectForEntries(ctx, ids)
	if err != nil {
		return fmt.Errorf("attach categories: %w", err)
	}
	for _, m := range rows {
		m.Categories = byEntry[m.EntryStoreID]
	}
	return nil
}

func categorySet(cats []models.EntryCategory) map[categories.Category]bool {
	set := make(map[categories.Category]bool, len(cats))
	for _, c := range cats {
		set[categories.Category{Scheme: c.Scheme, Term: c.Term}] = true
	}
	return set
}
