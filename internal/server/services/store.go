// Package services implements the storage engine behind the protocol layer:
// versioned entry mutation with optimistic concurrency, sequence-cursor feed
// paging, category queries, and the aggregate feed cache.
package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/atomstore/internal/common"
	"github.com/dmitrijs2005/atomstore/internal/contenthash"
	"github.com/dmitrijs2005/atomstore/internal/contentstore"
	"github.com/dmitrijs2005/atomstore/internal/dbx"
	"github.com/dmitrijs2005/atomstore/internal/idgen"
	"github.com/dmitrijs2005/atomstore/internal/logging"
	"github.com/dmitrijs2005/atomstore/internal/metrics"
	"github.com/dmitrijs2005/atomstore/internal/server/models"
	"github.com/dmitrijs2005/atomstore/internal/server/repositories/repomanager"
)

// Operation selects what a mutation does.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// MutateRequest is one write against the store. Categories lists the
// caller-supplied tags for the entry's current state; auto-tagger output is
// applied on top of them.
type MutateRequest struct {
	Descriptor       models.EntryDescriptor
	ExpectedRevision int
	Operation        Operation
	Content          []byte
	Categories       []models.EntryCategory
}

// BatchResult reports the outcome for one descriptor of a batch.
type BatchResult struct {
	Descriptor models.EntryDescriptor
	Meta       *models.EntryMetaData
	Err        error
}

// CacheNotifier receives post-commit notice of a member-workspace mutation
// so derived state (the aggregate feed cache) can advance.
type CacheNotifier interface {
	AdvanceOnMutation(ctx context.Context, workspace, locale string, cats []models.EntryCategory) error
}

// StoreParams collects the collaborators of a StoreService.
type StoreParams struct {
	DB       *sql.DB
	Repos    repomanager.RepositoryManager
	Content  contentstore.Store
	Hasher   contenthash.Hasher
	IDs      idgen.Generator
	Notifier CacheNotifier
	Metrics  metrics.Sink
	Logger   logging.Logger

	// SkipUnchangedContent short-circuits updates whose content digest
	// matches the stored one, leaving revision and sequence untouched.
	SkipUnchangedContent bool
}

// StoreService coordinates the mutation path: revision check, sequence
// allocation, metadata write, content write, and category maintenance — all
// in one transaction per descriptor.
type StoreService struct {
	db            *sql.DB
	repos         repomanager.RepositoryManager
	content       contentstore.Store
	hasher        contenthash.Hasher
	ids           idgen.Generator
	taggers       []AutoTagger
	notifier      CacheNotifier
	metrics       metrics.Sink
	logger        logging.Logger
	skipUnchanged bool
	now           func() time.Time
}

// NewStoreService constructs the mutation service. Nil Metrics/Logger
// default to no-ops.
func NewStoreService(p StoreParams, taggers ...AutoTagger) *StoreService {
	sink := p.Metrics
	if sink == nil {
		sink = metrics.Noop{}
	}
	log := p.Logger
	if log == nil {
		log = logging.Noop{}
	}
	gen := p.IDs
	if gen == nil {
		gen = idgen.UUIDGenerator{}
	}
	return &StoreService{
		db:            p.DB,
		repos:         p.Repos,
		content:       p.Content,
		hasher:        p.Hasher,
		ids:           gen,
		taggers:       taggers,
		notifier:      p.Notifier,
		metrics:       sink,
		logger:        log,
		skipUnchanged: p.SkipUnchangedContent,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// contentFor returns the content store to use inside tx: the DB-blob
// backend joins the transaction, others stay as they are.
func (s *StoreService) contentFor(tx dbx.DBTX) contentstore.Store {
	if b, ok := s.content.(contentstore.TxBinder); ok {
		return b.WithTx(tx)
	}
	return s.content
}

// Mutate applies one insert, update, or delete. On success the returned
// metadata reflects the entry's new state, categories included.
func (s *StoreService) Mutate(ctx context.Context, req MutateRequest) (*models.EntryMetaData, error) {
	d := req.Descriptor
	if req.Operation == OpInsert && d.EntryID == "" {
		d.EntryID = s.ids.GenerateID()
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if d.EntryID == "" {
		return nil, fmt.Errorf("%w: entry id is empty", common.ErrBadDescriptor)
	}

	var hash []byte
	if req.Operation != OpDelete {
		var err error
		hash, err = s.hasher.Hash(req.Content)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrBadContent, err)
		}
	}

	var result *models.EntryMetaData
	skipped := false

	err := dbx.WithTx(ctx, s.db, s.repos.Dialect().MutationTxOptions(), func(ctx context.Context, tx dbx.DBTX) error {
		entryRepo := s.repos.Entries(tx)
		existing, err := entryRepo.Find(ctx, d.Key())
		if err != nil {
			return err
		}

		switch req.Operation {
		case OpInsert:
			if existing != nil && !existing.Deleted {
				return fmt.Errorf("%w: %s", common.ErrDuplicateEntry, d)
			}
			if existing == nil {
				result, err = s.create(ctx, tx, d, hash)
			} else {
				// re-inserting over a tombstone resurrects the entry
				result, err = s.advance(ctx, tx, existing, models.RevisionWildcard, hash, false)
			}
		case OpUpdate:
			if existing == nil {
				return fmt.Errorf("%w: %s", common.ErrEntryNotFoundGet, d)
			}
			if s.skipUnchanged && !existing.Deleted && bytes.Equal(existing.ContentHash, hash) {
				// the revision contract holds even when nothing would change
				if err := checkExpectedRevision(existing, req.ExpectedRevision); err != nil {
					return err
				}
				result, skipped = existing, true
				return nil
			}
			result, err = s.advance(ctx, tx, existing, req.ExpectedRevision, hash, false)
		case OpDelete:
			if existing == nil {
				return fmt.Errorf("%w: %s", common.ErrEntryNotFoundDelete, d)
			}
			result, err = s.advance(ctx, tx, existing, req.ExpectedRevision, existing.ContentHash, true)
		default:
			return fmt.Errorf("unknown operation %q", req.Operation)
		}
		if err != nil {
			return err
		}

		content := req.Content
		if req.Operation == OpDelete {
			content = contentstore.DeletionMarker
		}
		if err := s.contentFor(tx).Put(ctx, result.Descriptor(), content); err != nil {
			return fmt.Errorf("content write: %w", err)
		}

		return s.applyCategories(ctx, tx, result, req.Categories, content)
	})
	if err != nil {
		if errors.Is(err, common.ErrOptimisticConcurrency) {
			s.metrics.MutationConflict()
		}
		return nil, err
	}

	if skipped {
		s.metrics.MutationSkipped()
		return result, nil
	}
	s.metrics.MutationApplied(string(req.Operation))

	if s.notifier != nil && len(result.Categories) > 0 {
		if err := s.notifier.AdvanceOnMutation(ctx, result.Workspace, result.Locale, result.Categories); err != nil {
			// cache advance is rebuildable, the mutation itself stands
			s.logger.Error(ctx, "aggregate cache advance failed", "entry", result.Key().String(), "error", err)
		}
	}
	return result, nil
}

func (s *StoreService) create(ctx context.Context, tx dbx.DBTX, d models.EntryDescriptor, hash []byte) (*models.EntryMetaData, error) {
	seq, err := s.repos.Dialect().NextUpdateSequence(ctx, tx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	m := &models.EntryMetaData{
		Workspace:      d.Workspace,
		Collection:     d.Collection,
		EntryID:        d.EntryID,
		Locale:         d.Locale,
		Revision:       0,
		UpdateSequence: seq,
		CreateDate:     now,
		UpdateDate:     now,
		ContentHash:    hash,
	}
	if err := s.repos.Entries(tx).Insert(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// checkExpectedRevision rejects a mutation whose caller holds a stale
// revision. The wildcard skips the check.
func checkExpectedRevision(existing *models.EntryMetaData, expected int) error {
	if expected != models.RevisionWildcard && existing.Revision != expected {
		return fmt.Errorf("%w: %s has revision %d, expected %d",
			common.ErrOptimisticConcurrency, existing.Key(), existing.Revision, expected)
	}
	return nil
}

// advance moves an existing row to its next revision. The revision check
// runs both against the snapshot (fast fail) and as a predicate of the
// UPDATE itself, so two racing writers get exactly one success.
func (s *StoreService) advance(ctx context.Context, tx dbx.DBTX, existing *models.EntryMetaData, expectedRevision int, hash []byte, deleted bool) (*models.EntryMetaData, error) {
	if err := checkExpectedRevision(existing, expectedRevision); err != nil {
		return nil, err
	}

	seq, err := s.repos.Dialect().NextUpdateSequence(ctx, tx)
	if err != nil {
		return nil, err
	}

	next := *existing
	next.Revision = existing.Revision + 1
	next.UpdateSequence = seq
	next.UpdateDate = s.now()
	next.Deleted = deleted
	next.ContentHash = hash

	check := expectedRevision
	if check == models.RevisionWildcard {
		check = existing.Revision
	}
	ok, err := s.repos.Entries(tx).Update(ctx, &next, check)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s changed concurrently", common.ErrOptimisticConcurrency, existing.Key())
	}
	return &next, nil
}

// applyCategories writes caller-supplied categories, runs the auto-taggers,
// and loads the resulting category set onto m.
func (s *StoreService) applyCategories(ctx context.Context, tx dbx.DBTX, m *models.EntryMetaData, supplied []models.EntryCategory, content []byte) error {
	catRepo := s.repos.Categories(tx)

	for _, c := range supplied {
		c.EntryStoreID = m.EntryStoreID
		if err := catRepo.Insert(ctx, c); err != nil {
			return err
		}
	}

	for _, tagger := range s.taggers {
		derived := tagger.Tag(m, content)
		keep := make([]string, 0, len(derived))
		for _, c := range derived {
			keep = append(keep, c.Term)
		}
		if err := catRepo.DeleteSchemeExcept(ctx, m.EntryStoreID, tagger.Scheme(), keep); err != nil {
			return err
		}
		for _, c := range derived {
			c.EntryStoreID = m.EntryStoreID
			if err := catRepo.Insert(ctx, c); err != nil {
				return err
			}
		}
	}

	cats, err := catRepo.SelectByEntry(ctx, m.EntryStoreID)
	if err != nil {
		return err
	}
	m.Categories = cats
	return nil
}

// Obliterate hard-deletes an entry: metadata row, categories, and content.
// It bypasses revision and sequence bookkeeping entirely; feed consumers see
// no event. Intended for administrative cleanup, not application deletes.
func (s *StoreService) Obliterate(ctx context.Context, d models.EntryDescriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}

	var obliterated *models.EntryMetaData
	err := dbx.WithTx(ctx, s.db, s.repos.Dialect().MutationTxOptions(), func(ctx context.Context, tx dbx.DBTX) error {
		entryRepo := s.repos.Entries(tx)
		existing, err := entryRepo.Find(ctx, d.Key())
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("%w: %s", common.ErrEntryNotFoundDelete, d)
		}
		ok, err := entryRepo.Obliterate(ctx, existing.EntryStoreID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", common.ErrEntryNotFoundDelete, d)
		}
		obliterated = existing

		if _, bound := s.content.(contentstore.TxBinder); bound {
			return s.contentFor(tx).Obliterate(ctx, existing.Descriptor())
		}
		return nil
	})
	if err != nil {
		return err
	}

	if _, bound := s.content.(contentstore.TxBinder); !bound {
		if err := s.content.Obliterate(ctx, obliterated.Descriptor()); err != nil {
			// metadata is gone; orphaned bytes are harmless but worth noting
			s.logger.Warn(ctx, "content cleanup after obliterate failed", "entry", d.String(), "error", err)
		}
	}
	s.metrics.MutationApplied("obliterate")
	return nil
}

// MutateBatch applies several mutations, isolating failures per descriptor:
// each runs in its own transaction, and one failure never rolls back another
// descriptor's success. Duplicate targets within the batch (same identity,
// revision ignored) are rejected without touching the store.
func (s *StoreService) MutateBatch(ctx context.Context, reqs []MutateRequest) []BatchResult {
	results := make([]BatchResult, len(reqs))
	seen := make(map[models.EntryKey]bool, len(reqs))

	for i, req := range reqs {
		key := req.Descriptor.Key()
		if key.EntryID != "" && seen[key] {
			results[i] = BatchResult{
				Descriptor: req.Descriptor,
				Err:        fmt.Errorf("%w: duplicate target %s in batch", common.ErrBadDescriptor, key),
			}
			continue
		}
		seen[key] = true

		meta, err := s.Mutate(ctx, req)
		results[i] = BatchResult{Descriptor: req.Descriptor, Meta: meta, Err: err}
	}
	return results
}

// TotalCount counts non-deleted entries in a collection.
func (s *StoreService) TotalCount(ctx context.Context, workspace, collection string) (int, error) {
	return s.repos.Entries(s.db).TotalCount(ctx, workspace, collection)
}

// ContentExists reports whether any content is stored for the descriptor
// (or for its exact revision when one is given).
func (s *StoreService) ContentExists(ctx context.Context, d models.EntryDescriptor) (bool, error) {
	return s.content.Exists(ctx, d)
}

// GetContent returns the stored document for a descriptor's revision.
func (s *StoreService) GetContent(ctx context.Context, d models.EntryDescriptor) ([]byte, error) {
	return s.content.Get(ctx, d)
}

// GetEntry loads current metadata (categories included) for a descriptor.
func (s *StoreService) GetEntry(ctx context.Context, d models.EntryDescriptor) (*models.EntryMetaData, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	m, err := s.repos.Entries(s.db).Find(ctx, d.Key())
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: %s", common.ErrEntryNotFoundGet, d)
	}
	cats, err := s.repos.Categories(s.db).SelectByEntry(ctx, m.EntryStoreID)
	if err != nil {
		return nil, err
	}
	m.Categories = cats
	return m, nil
}
