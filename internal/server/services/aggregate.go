package services

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/atomstore/internal/common"
	"github.com/dmitrijs2005/atomstore/internal/dbx"
	"github.com/dmitrijs2005/atomstore/internal/logging"
	"github.com/dmitrijs2005/atomstore/internal/metrics"
	"github.com/dmitrijs2005/atomstore/internal/server/models"
	"github.com/dmitrijs2005/atomstore/internal/server/repositories/aggregates"
	"github.com/dmitrijs2005/atomstore/internal/server/repositories/repomanager"
)

// JoinSpec names a joined feed: the member workspaces whose entries are
// merged, the scheme whose terms become the feed's items, and the locale the
// join is taken over.
type JoinSpec struct {
	Workspaces []string
	Scheme     string
	Locale     string
}

// ParseJoinSpec parses the textual form "$join(ws1,ws2,...),scheme,locale".
// The locale may be empty ("$join(a,b),tags,").
func ParseJoinSpec(spec string) (JoinSpec, error) {
	const prefix = "$join("
	if !strings.HasPrefix(spec, prefix) {
		return JoinSpec{}, fmt.Errorf("%w: missing $join prefix in %q", common.ErrBadJoinSpec, spec)
	}
	close := strings.Index(spec, ")")
	if close < 0 {
		return JoinSpec{}, fmt.Errorf("%w: unterminated workspace list in %q", common.ErrBadJoinSpec, spec)
	}

	var workspaces []string
	for _, ws := range strings.Split(spec[len(prefix):close], ",") {
		ws = strings.TrimSpace(ws)
		if ws == "" {
			return JoinSpec{}, fmt.Errorf("%w: empty workspace in %q", common.ErrBadJoinSpec, spec)
		}
		workspaces = append(workspaces, ws)
	}
	if len(workspaces) == 0 {
		return JoinSpec{}, fmt.Errorf("%w: no workspaces in %q", common.ErrBadJoinSpec, spec)
	}

	rest := strings.Split(spec[close+1:], ",")
	// rest[0] is the residue between ")" and the first comma, always empty
	if len(rest) != 3 || rest[0] != "" {
		return JoinSpec{}, fmt.Errorf("%w: want \",scheme,locale\" after workspace list in %q", common.ErrBadJoinSpec, spec)
	}
	scheme := strings.TrimSpace(rest[1])
	if scheme == "" {
		return JoinSpec{}, fmt.Errorf("%w: empty scheme in %q", common.ErrBadJoinSpec, spec)
	}

	return JoinSpec{Workspaces: workspaces, Scheme: scheme, Locale: strings.TrimSpace(rest[2])}, nil
}

// FeedID derives the joined feed's identifier: a positive int64 taken from a
// BLAKE2b digest of the sorted member workspaces, locale, and scheme.
// Equivalent specs (workspace order aside) always map to the same id.
func (j JoinSpec) FeedID() int64 {
	sorted := append([]string(nil), j.Workspaces...)
	sort.Strings(sorted)

	h, _ := blake2b.New256(nil)
	for _, ws := range sorted {
		h.Write([]byte(ws))
		h.Write([]byte{'\n'})
	}
	h.Write([]byte(j.Locale))
	h.Write([]byte{'\n'})
	h.Write([]byte(j.Scheme))

	sum := h.Sum(nil)
	id := int64(binary.BigEndian.Uint64(sum[:8]))
	if id < 0 {
		id = -id
	}
	return id
}

// AggregateService maintains the joined feed cache. The cache is derived
// state: it can always be rebuilt from the entry store, so advance failures
// degrade freshness, never correctness.
type AggregateService struct {
	db      *sql.DB
	repos   repomanager.RepositoryManager
	metrics metrics.Sink
	logger  logging.Logger

	// retryBase seeds the exponential backoff used when a cache advance
	// loses a write conflict to a concurrent mutation.
	retryBase  time.Duration
	maxRetries uint64

	mu   sync.RWMutex
	defs map[int64]*models.AggregateFeedDef
}

// NewAggregateService loads no definitions; call RefreshDefs (or let the
// first cache registration populate the set) before serving mutations.
func NewAggregateService(db *sql.DB, repos repomanager.RepositoryManager, sink metrics.Sink, log logging.Logger) *AggregateService {
	if sink == nil {
		sink = metrics.Noop{}
	}
	if log == nil {
		log = logging.Noop{}
	}
	return &AggregateService{
		db:         db,
		repos:      repos,
		metrics:    sink,
		logger:     log,
		retryBase:  50 * time.Millisecond,
		maxRetries: 4,
		defs:       make(map[int64]*models.AggregateFeedDef),
	}
}

// RefreshDefs reloads the in-memory join definition set from the database.
func (s *AggregateService) RefreshDefs(ctx context.Context) error {
	defs, err := s.repos.Aggregates(s.db).ListDefs(ctx)
	if err != nil {
		return fmt.Errorf("refresh defs: %w", err)
	}
	next := make(map[int64]*models.AggregateFeedDef, len(defs))
	for _, d := range defs {
		next[d.CachedFeedID] = d
	}
	s.mu.Lock()
	s.defs = next
	s.mu.Unlock()
	return nil
}

// CacheAggregateFeed registers a joined feed and materializes its initial
// term set from the member workspaces. Registering an already-cached feed is
// a no-op and does not bump the configuration revision.
func (s *AggregateService) CacheAggregateFeed(ctx context.Context, spec JoinSpec) (int64, error) {
	feedID := spec.FeedID()

	s.mu.RLock()
	_, known := s.defs[feedID]
	s.mu.RUnlock()
	if known {
		return feedID, nil
	}

	terms, err := s.collectTerms(ctx, spec)
	if err != nil {
		return 0, err
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Aggregates(tx)
		def := &models.AggregateFeedDef{
			CachedFeedID: feedID,
			Workspaces:   spec.Workspaces,
			Scheme:       spec.Scheme,
			Locale:       spec.Locale,
			CreateDate:   time.Now().UTC(),
		}
		if err := repo.InsertDef(ctx, def); err != nil {
			return err
		}
		for _, term := range terms {
			ts, err := s.repos.Dialect().NextAggregateTimestamp(ctx, tx)
			if err != nil {
				return err
			}
			if err := repo.UpsertCacheEntry(ctx, models.AggregateFeedCacheEntry{
				CachedFeedID:    feedID,
				Term:            term,
				UpdateTimestamp: ts,
			}); err != nil {
				return err
			}
		}
		_, err := repo.BumpConfigRevision(ctx)
		return err
	})
	if err != nil {
		// a concurrent registration of the same join can win the insert
		// between the snapshot check and the transaction; the loser's key
		// violation still means the feed is cached
		if def, ferr := s.repos.Aggregates(s.db).FindDef(ctx, feedID); ferr == nil && def != nil {
			if rerr := s.RefreshDefs(ctx); rerr != nil {
				s.logger.Warn(ctx, "definition refresh after cache registration failed", "error", rerr)
			}
			return feedID, nil
		}
		return 0, fmt.Errorf("cache feed %d: %w", feedID, err)
	}

	if err := s.RefreshDefs(ctx); err != nil {
		s.logger.Warn(ctx, "definition refresh after cache registration failed", "error", err)
	}
	return feedID, nil
}

// collectTerms gathers the distinct terms of the join scheme across every
// member workspace, scanning the workspaces concurrently.
func (s *AggregateService) collectTerms(ctx context.Context, spec JoinSpec) ([]string, error) {
	var mu sync.Mutex
	seen := make(map[string]bool)

	g, gctx := errgroup.WithContext(ctx)
	for _, ws := range spec.Workspaces {
		ws := ws
		g.Go(func() error {
			terms, err := s.repos.Categories(s.db).TermsForWorkspace(gctx, ws, spec.Scheme, spec.Locale)
			if err != nil {
				return fmt.Errorf("terms for %s: %w", ws, err)
			}
			mu.Lock()
			for _, t := range terms {
				seen[t] = true
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	terms := make([]string, 0, len(seen))
	for t := range seen {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms, nil
}

// IsFeedCached reports whether a join definition is registered.
func (s *AggregateService) IsFeedCached(ctx context.Context, feedID int64) (bool, error) {
	def, err := s.repos.Aggregates(s.db).FindDef(ctx, feedID)
	if err != nil {
		return false, err
	}
	return def != nil, nil
}

// RemoveCachedFeeds drops join definitions and their cache rows. The
// configuration revision only moves when something was actually removed.
func (s *AggregateService) RemoveCachedFeeds(ctx context.Context, feedIDs []int64) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Aggregates(tx)
		n, err := repo.DeleteDefs(ctx, feedIDs)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		_, err = repo.BumpConfigRevision(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("remove cached feeds: %w", err)
	}
	if err := s.RefreshDefs(ctx); err != nil {
		s.logger.Warn(ctx, "definition refresh after feed removal failed", "error", err)
	}
	return nil
}

// ConfigRevision returns the cache configuration revision. Clients compare
// it across calls to detect that the set of cached feeds changed underneath
// them and their cursors may address a feed that no longer exists.
func (s *AggregateService) ConfigRevision(ctx context.Context) (int64, error) {
	return s.repos.Aggregates(s.db).ConfigRevision(ctx)
}

// AdvanceOnMutation bumps the cache timestamp of every (feed, term) touched
// by a mutation in one of the feed's member workspaces. Write conflicts with
// concurrent mutations are retried with exponential backoff; exhausting the
// retries is logged and counted but not surfaced, since the cache is
// rebuildable.
func (s *AggregateService) AdvanceOnMutation(ctx context.Context, workspace, locale string, cats []models.EntryCategory) error {
	s.mu.RLock()
	var matched []*models.AggregateFeedDef
	for _, def := range s.defs {
		if s.defMatches(def, workspace, locale) {
			matched = append(matched, def)
		}
	}
	s.mu.RUnlock()
	if len(matched) == 0 {
		return nil
	}

	byScheme := make(map[string][]string)
	for _, c := range cats {
		byScheme[c.Scheme] = append(byScheme[c.Scheme], c.Term)
	}

	var firstErr error
	for _, def := range matched {
		terms := byScheme[def.Scheme]
		if len(terms) == 0 {
			continue
		}
		if err := s.advanceTerms(ctx, def.CachedFeedID, terms); err != nil {
			s.metrics.CacheAdvanceFailed()
			s.logger.Error(ctx, "cache advance exhausted retries",
				"feed", def.CachedFeedID, "workspace", workspace, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *AggregateService) defMatches(def *models.AggregateFeedDef, workspace, locale string) bool {
	if def.Locale != "" && def.Locale != locale {
		return false
	}
	for _, ws := range def.Workspaces {
		if ws == workspace {
			return true
		}
	}
	return false
}

func (s *AggregateService) advanceTerms(ctx context.Context, feedID int64, terms []string) error {
	backoff := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(s.retryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			repo := s.repos.Aggregates(tx)
			for _, term := range terms {
				ts, err := s.repos.Dialect().NextAggregateTimestamp(ctx, tx)
				if err != nil {
					return err
				}
				if err := repo.UpsertCacheEntry(ctx, models.AggregateFeedCacheEntry{
					CachedFeedID:    feedID,
					Term:            term,
					UpdateTimestamp: ts,
				}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			s.metrics.CacheAdvanceRetried()
			return retry.RetryableError(err)
		}
		return nil
	})
}

// RebuildCache rematerializes one joined feed's term rows from the entry
// store, repairing any drift left behind by failed advances. Terms gone from
// every member workspace are not removed; they simply stop advancing.
func (s *AggregateService) RebuildCache(ctx context.Context, feedID int64) error {
	def, err := s.repos.Aggregates(s.db).FindDef(ctx, feedID)
	if err != nil {
		return err
	}
	if def == nil {
		return fmt.Errorf("%w: %d", common.ErrFeedNotCached, feedID)
	}

	terms, err := s.collectTerms(ctx, JoinSpec{
		Workspaces: def.Workspaces,
		Scheme:     def.Scheme,
		Locale:     def.Locale,
	})
	if err != nil {
		return err
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Aggregates(tx)
		for _, term := range terms {
			ts, err := s.repos.Dialect().NextAggregateTimestamp(ctx, tx)
			if err != nil {
				return err
			}
			if err := repo.UpsertCacheEntry(ctx, models.AggregateFeedCacheEntry{
				CachedFeedID:    feedID,
				Term:            term,
				UpdateTimestamp: ts,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// PageJoined serves one page of a joined feed's term stream, ordered by the
// feed's own timestamp cursor.
func (s *AggregateService) PageJoined(ctx context.Context, feedID int64, cursor int64, limit int) ([]models.AggregateFeedCacheEntry, error) {
	def, err := s.repos.Aggregates(s.db).FindDef(ctx, feedID)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, fmt.Errorf("%w: %d", common.ErrFeedNotCached, feedID)
	}
	if limit <= 0 {
		limit = 25
	}
	return s.repos.Aggregates(s.db).CacheFeedPage(ctx, aggregates.CachePage{
		CachedFeedID: feedID,
		Cursor:       cursor,
		Limit:        limit,
	})
}
