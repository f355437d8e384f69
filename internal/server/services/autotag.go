package services

import (
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/atomstore/internal/server/models"
)

// AutoTagger derives categories from an entry as a side effect of writes.
// Taggers own a scheme: categories they emit use it, and stale terms in that
// scheme are retired in the same batch that inserts fresh ones. Tag must be
// deterministic so re-tagging unchanged input is a no-op.
type AutoTagger interface {
	Scheme() string
	Tag(meta *models.EntryMetaData, content []byte) []models.EntryCategory
}

// StripingAutoTagger buckets entries into NumStripes stripes by entry id, so
// consumers can partition a collection into parallel feed streams. The id is
// read as a number in the configured radix; ids that are not valid numerals
// fall back to a hash of the id. Either way the bucket is a pure function of
// the id.
type StripingAutoTagger struct {
	StripeScheme string
	NumStripes   int
	Radix        int
}

func (t StripingAutoTagger) Scheme() string { return t.StripeScheme }

func (t StripingAutoTagger) Tag(meta *models.EntryMetaData, _ []byte) []models.EntryCategory {
	if t.NumStripes <= 0 {
		return nil
	}
	return []models.EntryCategory{{
		EntryStoreID: meta.EntryStoreID,
		Scheme:       t.StripeScheme,
		Term:         strconv.Itoa(t.bucket(meta.EntryID)),
	}}
}

func (t StripingAutoTagger) bucket(entryID string) int {
	radix := t.Radix
	if radix < 2 || radix > 36 {
		radix = 16
	}
	v := 0
	for _, r := range strings.ToLower(entryID) {
		var d int
		switch {
		case r >= '0' && r <= '9':
			d = int(r - '0')
		case r >= 'a' && r <= 'z':
			d = int(r-'a') + 10
		default:
			return t.hashBucket(entryID)
		}
		if d >= radix {
			return t.hashBucket(entryID)
		}
		v = (v*radix + d) % t.NumStripes
	}
	if entryID == "" {
		return 0
	}
	return v
}

func (t StripingAutoTagger) hashBucket(entryID string) int {
	h := fnv.New32a()
	h.Write([]byte(entryID))
	return int(h.Sum32() % uint32(t.NumStripes))
}
