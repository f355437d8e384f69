// Package categories provides the secondary index mapping entries to their
// (scheme, term) tags and the set queries the category filter engine runs.
package categories

import (
	"context"

	"github.com/dmitrijs2005/atomstore/internal/server/models"
)

// Repository is the category index contract.
type Repository interface {
	// SelectByEntry returns an entry's current category set.
	SelectByEntry(ctx context.Context, entryStoreID int64) ([]models.EntryCategory, error)

	// SelectForEntries bulk-loads categories for several entries.
	SelectForEntries(ctx context.Context, entryStoreIDs []int64) (map[int64][]models.EntryCategory, error)

	// Insert adds a category; duplicates of an existing (scheme, term)
	// pair are ignored so re-tagging is idempotent.
	Insert(ctx context.Context, c models.EntryCategory) error

	// UpdateLabel sets the label of an existing category.
	UpdateLabel(ctx context.Context, c models.EntryCategory) (bool, error)

	// Delete removes one (scheme, term) pair from an entry.
	Delete(ctx context.Context, entryStoreID int64, scheme, term string) error

	// DeleteSchemeExcept removes every category of an entry within a
	// scheme except the given terms. Auto-taggers use this to retire
	// stale derived terms in the same batch that inserts fresh ones.
	DeleteSchemeExcept(ctx context.Context, entryStoreID int64, scheme string, keepTerms []string) error

	// EntriesMatchingAll returns ids of non-deleted entries in the given
	// workspace/collection carrying every one of the given categories.
	EntriesMatchingAll(ctx context.Context, workspace, collection string, cats []models.SchemeTerm) ([]int64, error)

	// TermsForWorkspace lists the distinct terms of a scheme present on
	// non-deleted entries of a workspace, optionally locale-filtered.
	TermsForWorkspace(ctx context.Context, workspace, scheme, locale string) ([]string, error)
}
