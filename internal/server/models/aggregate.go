package models

import "time"

// AggregateFeedDef records one registered joined feed: the sorted member
// workspaces plus the scheme and locale the join is taken over. The ID is a
// deterministic hash of those three, so re-registering an equivalent join is
// idempotent.
type AggregateFeedDef struct {
	CachedFeedID int64
	Workspaces   []string
	Scheme       string
	Locale       string
	CreateDate   time.Time
}

// AggregateFeedCacheEntry is one (joined feed, term) row. UpdateTimestamp is
// the joined feed's own monotonic cursor; it has no relationship to any
// member workspace's update sequence.
type AggregateFeedCacheEntry struct {
	CachedFeedID    int64
	Term            string
	UpdateTimestamp int64
}
