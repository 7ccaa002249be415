package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/Waypoint/internal/model"
)

type memoryFile struct {
	meta    model.RemoteFile
	content []byte
}

// MemoryStore is a Store kept entirely in process memory. It backs the
// "memory" remote backend and the tests.
type MemoryStore struct {
	mu    sync.RWMutex
	order []string
	files map[string]*memoryFile
	now   func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files: make(map[string]*memoryFile),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// List returns copies of every file's metadata in creation order.
func (m *MemoryStore) List(ctx context.Context) ([]model.RemoteFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.RemoteFile, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, copyMeta(m.files[id].meta))
	}
	return out, nil
}

// Create stores content under a fresh id.
func (m *MemoryStore) Create(ctx context.Context, meta model.FileMetadata, content []byte) (model.RemoteFile, error) {
	if err := ctx.Err(); err != nil {
		return model.RemoteFile{}, err
	}
	if meta.Name == "" {
		return model.RemoteFile{}, fmt.Errorf("create remote file: empty name")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f := &memoryFile{
		meta: model.RemoteFile{
			ID:         uuid.NewString(),
			Name:       meta.Name,
			Properties: meta.Properties.Clone(),
			Size:       int64(len(content)),
			Modified:   m.now(),
		},
		content: append([]byte(nil), content...),
	}
	m.files[f.meta.ID] = f
	m.order = append(m.order, f.meta.ID)
	return copyMeta(f.meta), nil
}

// Update replaces the content of file.ID.
func (m *MemoryStore) Update(ctx context.Context, file model.RemoteFile, content []byte, props model.Properties) (model.RemoteFile, error) {
	if err := ctx.Err(); err != nil {
		return model.RemoteFile{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[file.ID]
	if !ok {
		return model.RemoteFile{}, fmt.Errorf("update %s: %w", file.ID, ErrNotFound)
	}
	f.content = append([]byte(nil), content...)
	f.meta.Size = int64(len(content))
	f.meta.Modified = m.now()
	if props != nil {
		f.meta.Properties = props.Clone()
	}
	return copyMeta(f.meta), nil
}

// Download returns a copy of the stored content.
func (m *MemoryStore) Download(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[id]
	if !ok {
		return nil, fmt.Errorf("download %s: %w", id, ErrNotFound)
	}
	return append([]byte(nil), f.content...), nil
}

// Len reports how many files the store holds.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// copyMeta returns meta with its own property bag so callers cannot mutate
// the store through it.
func copyMeta(meta model.RemoteFile) model.RemoteFile {
	meta.Properties = meta.Properties.Clone()
	return meta
}
