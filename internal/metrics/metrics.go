// Package metrics defines the observability sink the store reports into.
// Metrics are a side channel: nothing in the core's correctness depends on
// them, so the sink is injectable and a no-op implementation exists for
// tests and embedded use.
package metrics

// Sink receives store-level events.
type Sink interface {
	// MutationApplied counts one committed mutation, by operation name
	// ("insert", "update", "delete", "obliterate").
	MutationApplied(op string)

	// MutationConflict counts one optimistic-concurrency rejection.
	MutationConflict()

	// MutationSkipped counts one no-op write short-circuited by an
	// unchanged content hash.
	MutationSkipped()

	// PageServed records one feed page and the number of rows examined.
	PageServed(rowsExamined int)

	// CacheAdvanceRetried counts one retry of the post-commit aggregate
	// cache advance.
	CacheAdvanceRetried()

	// CacheAdvanceFailed counts one aggregate cache advance abandoned
	// after retries were exhausted.
	CacheAdvanceFailed()
}

// Noop discards all events.
type Noop struct{}

func (Noop) MutationApplied(string) {}
func (Noop) MutationConflict()      {}
func (Noop) MutationSkipped()       {}
func (Noop) PageServed(int)         {}
func (Noop) CacheAdvanceRetried()   {}
func (Noop) CacheAdvanceFailed()    {}
