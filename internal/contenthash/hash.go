// Package contenthash computes content digests used to detect no-op writes.
// The store only ever compares digests for equality, so the algorithm is
// pluggable behind the Hasher interface.
package contenthash

import (
	"fmt"
	"regexp"

	"golang.org/x/crypto/blake2b"
)

// Hasher digests entry content. Implementations must be deterministic:
// identical input always produces an identical digest.
type Hasher interface {
	Hash(content []byte) ([]byte, error)
}

// Blake2b hashes content with BLAKE2b-256 after blanking any configured
// ignore regions. Blanking (rather than removing) matched text keeps byte
// offsets stable so overlapping filters behave predictably.
//
// Ignore regions exist so cosmetic rewrites do not spuriously advance
// revisions: a document whose only change is a lastModified timestamp
// element should hash the same as before.
type Blake2b struct {
	filters []*regexp.Regexp
}

// NewBlake2b compiles the given ignore-region patterns. An invalid pattern
// is a configuration error and fails construction.
func NewBlake2b(ignorePatterns ...string) (*Blake2b, error) {
	h := &Blake2b{}
	for _, p := range ignorePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid content hash filter %q: %w", p, err)
		}
		h.filters = append(h.filters, re)
	}
	return h, nil
}

// Hash returns the BLAKE2b-256 digest of the filtered content.
func (h *Blake2b) Hash(content []byte) ([]byte, error) {
	filtered := content
	copied := false
	for _, re := range h.filters {
		locs := re.FindAllIndex(filtered, -1)
		if len(locs) == 0 {
			continue
		}
		if !copied {
			filtered = append([]byte(nil), content...)
			copied = true
		}
		for _, loc := range locs {
			for i := loc[0]; i < loc[1]; i++ {
				filtered[i] = 0
			}
		}
	}
	sum := blake2b.Sum256(filtered)
	return sum[:], nil
}
