package models

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/atomstore/internal/common"
)

// RevisionUndefined marks a descriptor whose revision is unknown or
// irrelevant for the operation at hand.
const RevisionUndefined = -1

// RevisionWildcard ("*") skips the optimistic-concurrency check entirely.
const RevisionWildcard = -2

// EntryKey is the identity of an entry, ignoring revision. It is a plain
// comparable value type so it can be used directly as a map key, e.g. for
// duplicate-target detection inside a batch.
type EntryKey struct {
	Workspace  string
	Collection string
	EntryID    string
	Locale     string
}

func (k EntryKey) String() string {
	if k.Locale == "" {
		return fmt.Sprintf("%s/%s/%s", k.Workspace, k.Collection, k.EntryID)
	}
	return fmt.Sprintf("%s/%s/%s.%s", k.Workspace, k.Collection, k.EntryID, k.Locale)
}

// EntryDescriptor addresses an entry for a single operation: the identity
// tuple plus the revision the caller expects to act upon.
type EntryDescriptor struct {
	Workspace  string
	Collection string
	EntryID    string
	Locale     string
	Revision   int
}

// Key returns the revision-less identity of the descriptor.
func (d EntryDescriptor) Key() EntryKey {
	return EntryKey{
		Workspace:  d.Workspace,
		Collection: d.Collection,
		EntryID:    d.EntryID,
		Locale:     d.Locale,
	}
}

func (d EntryDescriptor) String() string {
	return d.Key().String()
}

// Validate rejects malformed descriptors before any store interaction.
// A well-formed descriptor that points at nothing is a not-found condition,
// not a validation failure; this distinction is deliberate.
func (d EntryDescriptor) Validate() error {
	var problems []string
	if d.Workspace == "" {
		problems = append(problems, "workspace is empty")
	}
	if d.Collection == "" {
		problems = append(problems, "collection is empty")
	}
	if strings.ContainsAny(d.Workspace, "/ ") {
		problems = append(problems, "workspace contains separator characters")
	}
	if strings.ContainsAny(d.Collection, "/ ") {
		problems = append(problems, "collection contains separator characters")
	}
	if strings.ContainsAny(d.EntryID, "/ ") {
		problems = append(problems, "entry id contains separator characters")
	}
	if d.Locale != "" && !validLocale(d.Locale) {
		problems = append(problems, fmt.Sprintf("locale %q is not of the form ll or ll_CC", d.Locale))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", common.ErrBadDescriptor, strings.Join(problems, "; "))
	}
	return nil
}

// validLocale accepts "en" or "en_US" style locale codes.
func validLocale(s string) bool {
	parts := strings.SplitN(s, "_", 2)
	if !isAlpha2(parts[0], 'a', 'z') {
		return false
	}
	if len(parts) == 2 && !isAlpha2(parts[1], 'A', 'Z') {
		return false
	}
	return true
}

func isAlpha2(s string, lo, hi byte) bool {
	if len(s) != 2 {
		return false
	}
	return s[0] >= lo && s[0] <= hi && s[1] >= lo && s[1] <= hi
}
