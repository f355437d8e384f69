// Package common defines shared constants and sentinel errors used across
// AtomStore components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Mutation errors.
	ErrOptimisticConcurrency = errors.New("revision mismatch")
	ErrDuplicateEntry        = errors.New("entry already exists")
	ErrEntryNotFoundGet      = errors.New("entry not found")
	ErrEntryNotFoundDelete   = errors.New("entry to delete not found")
	ErrBadContent            = errors.New("bad content")

	// Validation of descriptors happens before any store interaction.
	ErrBadDescriptor = errors.New("malformed entry descriptor")

	// Category query errors.
	ErrCategoryQueryParse = errors.New("malformed category query")

	// Content store errors.
	ErrContentNotFound = errors.New("content not found")

	// Aggregate feed cache errors.
	ErrFeedNotCached = errors.New("aggregate feed not cached")
	ErrBadJoinSpec   = errors.New("malformed join spec")
)
