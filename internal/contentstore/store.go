// Package contentstore persists entry documents addressed by
// (workspace, collection, entryId, locale, revision). The physical layout is
// a deployment choice: a sharded directory tree, an S3 bucket, or blob rows
// in the metadata database.
package contentstore

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/dmitrijs2005/atomstore/internal/dbx"
	"github.com/dmitrijs2005/atomstore/internal/server/models"
)

// DeletionMarker is written in place of document bytes when an entry is
// soft-deleted, so the tombstoned revision still has addressable content.
var DeletionMarker = []byte("<deletion/>")

// Store is the content persistence contract. All operations address content
// by descriptor; the descriptor's Revision selects the revision, except for
// Exists and Obliterate with RevisionUndefined, which consider any revision.
type Store interface {
	// Put stores content for the descriptor's exact revision.
	Put(ctx context.Context, d models.EntryDescriptor, content []byte) error

	// Get returns the content for the descriptor's exact revision, or
	// common.ErrContentNotFound.
	Get(ctx context.Context, d models.EntryDescriptor) ([]byte, error)

	// Exists reports whether content is present. With RevisionUndefined it
	// answers for any revision of the entry.
	Exists(ctx context.Context, d models.EntryDescriptor) (bool, error)

	// Obliterate removes every stored revision of the entry.
	Obliterate(ctx context.Context, d models.EntryDescriptor) error
}

// TxBinder is implemented by content stores that can join a database
// transaction (the DB-blob backend). Callers holding an open transaction
// should rebind through it so the content write commits or rolls back with
// the metadata write.
type TxBinder interface {
	WithTx(tx dbx.DBTX) Store
}

// entryDirName renders the locale-qualified entry segment of a content path.
func entryDirName(d models.EntryDescriptor) string {
	if d.Locale == "" {
		return d.EntryID
	}
	return d.EntryID + "." + d.Locale
}

// shardSegments returns two hex path segments derived from the entry id, so
// large collections spread across the filesystem / key space instead of
// piling up in one directory.
func shardSegments(entryID string) (string, string) {
	h := fnv.New32a()
	h.Write([]byte(entryID))
	sum := h.Sum32()
	return fmt.Sprintf("%02x", byte(sum>>8)), fmt.Sprintf("%02x", byte(sum))
}
