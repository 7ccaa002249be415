package backup

import (
	"context"
	"fmt"
	"sync"

	"github.com/dharsanguruparan/Waypoint/internal/model"
	"github.com/dharsanguruparan/Waypoint/internal/remote"
)

// Index is a cached, name-addressable view of the remote file list. It is
// filled by one listing call and afterwards only changes through Put, which
// records files created or updated by the running operation.
type Index struct {
	store remote.Store

	mu    sync.RWMutex
	files []model.RemoteFile
}

// NewIndex returns an empty index over store.
func NewIndex(store remote.Store) *Index {
	return &Index{store: store}
}

// Refresh replaces the cached listing with a fresh one. On failure the index
// is left empty.
func (ix *Index) Refresh(ctx context.Context) error {
	files, err := ix.store.List(ctx)
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err != nil {
		ix.files = nil
		return fmt.Errorf("%w: list files: %w", ErrRemoteUnavailable, err)
	}
	ix.files = files
	return nil
}

// Reset replaces the cached listing with files supplied by the caller.
func (ix *Index) Reset(files []model.RemoteFile) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.files = append([]model.RemoteFile(nil), files...)
}

// FindByName returns the earliest-listed file with exactly this name.
func (ix *Index) FindByName(name string) (model.RemoteFile, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	for _, f := range ix.files {
		if f.Name == name {
			return f, true
		}
	}
	return model.RemoteFile{}, false
}

// Put records a file the current operation created or updated: an entry
// with the same id is replaced in place, anything else is appended.
func (ix *Index) Put(f model.RemoteFile) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for i := range ix.files {
		if ix.files[i].ID == f.ID {
			ix.files[i] = f
			return
		}
	}
	ix.files = append(ix.files, f)
}

// Files returns a copy of the cached listing.
func (ix *Index) Files() []model.RemoteFile {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return append([]model.RemoteFile(nil), ix.files...)
}
