package models

import "time"

// EntryMetaData is the durable record kept for every entry the store has
// ever seen (until it is obliterated). The update sequence is drawn from a
// single counter shared by the whole store; the revision is per entry.
type EntryMetaData struct {
	EntryStoreID   int64
	Workspace      string
	Collection     string
	EntryID        string
	Locale         string
	Revision       int
	UpdateSequence int64
	CreateDate     time.Time
	UpdateDate     time.Time
	Deleted        bool
	ContentHash    []byte

	// Categories holds the entry's current category set when the caller
	// asked for it (feed pages, category queries). Not populated by plain
	// metadata lookups.
	Categories []EntryCategory
}

// Key returns the revision-less identity of the entry.
func (m *EntryMetaData) Key() EntryKey {
	return EntryKey{
		Workspace:  m.Workspace,
		Collection: m.Collection,
		EntryID:    m.EntryID,
		Locale:     m.Locale,
	}
}

// Descriptor returns a descriptor addressing the entry at its current
// revision.
func (m *EntryMetaData) Descriptor() EntryDescriptor {
	return EntryDescriptor{
		Workspace:  m.Workspace,
		Collection: m.Collection,
		EntryID:    m.EntryID,
		Locale:     m.Locale,
		Revision:   m.Revision,
	}
}
