package contentstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/atomstore/internal/common"
	"github.com/dmitrijs2005/atomstore/internal/server/models"
)

// FileStore keeps content in a sharded directory tree:
//
//	root/<workspace>/<collection>/<aa>/<bb>/<entryId[.locale]>/r<rev>
//
// where aa/bb are hash-derived shard segments of the entry id.
type FileStore struct {
	root string
}

// NewFileStore creates the root directory if needed.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("content root is empty")
	}
	if err := os.MkdirAll(root, 0o770); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", root, err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) entryDir(d models.EntryDescriptor) string {
	a, b := shardSegments(d.EntryID)
	return filepath.Join(s.root, d.Workspace, d.Collection, a, b, entryDirName(d))
}

func (s *FileStore) revisionPath(d models.EntryDescriptor) string {
	return filepath.Join(s.entryDir(d), fmt.Sprintf("r%d", d.Revision))
}

func (s *FileStore) Put(_ context.Context, d models.EntryDescriptor, content []byte) error {
	dir := s.entryDir(d)
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	// write-then-rename keeps partially written revisions invisible
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.revisionPath(d)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func (s *FileStore) Get(_ context.Context, d models.EntryDescriptor) ([]byte, error) {
	b, err := os.ReadFile(s.revisionPath(d))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s r%d", common.ErrContentNotFound, d, d.Revision)
	}
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	return b, nil
}

func (s *FileStore) Exists(_ context.Context, d models.EntryDescriptor) (bool, error) {
	if d.Revision == models.RevisionUndefined {
		entries, err := os.ReadDir(s.entryDir(d))
		if os.IsNotExist(err) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("read dir: %w", err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				return true, nil
			}
		}
		return false, nil
	}
	_, err := os.Stat(s.revisionPath(d))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat: %w", err)
	}
	return true, nil
}

func (s *FileStore) Obliterate(_ context.Context, d models.EntryDescriptor) error {
	if err := os.RemoveAll(s.entryDir(d)); err != nil {
		return fmt.Errorf("remove %s: %w", s.entryDir(d), err)
	}
	return nil
}
