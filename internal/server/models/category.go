package models

// EntryCategory is one (scheme, term) tag attached to an entry. The pair is
// unique per entry; Label is optional display text.
type EntryCategory struct {
	EntryStoreID int64
	Scheme       string
	Term         string
	Label        string
}

// SchemeTerm is the comparable identity of a category within one entry.
type SchemeTerm struct {
	Scheme string
	Term   string
}

// ID returns the category's identity pair.
func (c EntryCategory) ID() SchemeTerm {
	return SchemeTerm{Scheme: c.Scheme, Term: c.Term}
}
