package backup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/Waypoint/internal/assets"
	"github.com/dharsanguruparan/Waypoint/internal/localdb"
	"github.com/dharsanguruparan/Waypoint/internal/model"
	"github.com/dharsanguruparan/Waypoint/internal/remote"
)

var errInjected = errors.New("injected failure")

// fakeRemote wraps a MemoryStore, records every call in order and fails
// calls on demand.
type fakeRemote struct {
	*remote.MemoryStore

	mu           sync.Mutex
	ops          []string
	listErr      error
	failUpload   map[string]bool
	failDownload map[string]bool
	// when set, List signals entered and then waits for release
	entered chan struct{}
	release chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		MemoryStore:  remote.NewMemoryStore(),
		failUpload:   map[string]bool{},
		failDownload: map[string]bool{},
	}
}

func (f *fakeRemote) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op)
}

func (f *fakeRemote) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func (f *fakeRemote) count(prefix string) int {
	n := 0
	for _, op := range f.Ops() {
		if len(op) >= len(prefix) && op[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (f *fakeRemote) List(ctx context.Context) ([]model.RemoteFile, error) {
	f.record("list")
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.MemoryStore.List(ctx)
}

func (f *fakeRemote) Create(ctx context.Context, meta model.FileMetadata, content []byte) (model.RemoteFile, error) {
	f.record("create:" + meta.Name)
	if f.failUpload[meta.Name] {
		return model.RemoteFile{}, errInjected
	}
	return f.MemoryStore.Create(ctx, meta, content)
}

func (f *fakeRemote) Update(ctx context.Context, file model.RemoteFile, content []byte, props model.Properties) (model.RemoteFile, error) {
	f.record("update:" + file.Name)
	if f.failUpload[file.Name] {
		return model.RemoteFile{}, errInjected
	}
	return f.MemoryStore.Update(ctx, file, content, props)
}

func (f *fakeRemote) Download(ctx context.Context, id string) ([]byte, error) {
	name := f.nameOf(ctx, id)
	f.record("download:" + name)
	if f.failDownload[name] {
		return nil, errInjected
	}
	return f.MemoryStore.Download(ctx, id)
}

func (f *fakeRemote) nameOf(ctx context.Context, id string) string {
	files, _ := f.MemoryStore.List(ctx)
	for _, file := range files {
		if file.ID == id {
			return file.Name
		}
	}
	return id
}

// device is one simulated phone: a local database and an asset directory.
type device struct {
	db     *localdb.DB
	fs     afero.Fs
	assets *assets.Store
}

func newDevice(t *testing.T) *device {
	t.Helper()
	db, err := localdb.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	fs := afero.NewMemMapFs()
	return &device{db: db, fs: fs, assets: assets.NewWithFs(fs, "/data/assets", 0)}
}

// addRecord stores a record whose single image holds content.
func (d *device) addRecord(t *testing.T, id string, content string) model.Record {
	t.Helper()
	path := fmt.Sprintf("/data/assets/%s.jpg", id)
	require.NoError(t, d.assets.Save(path, []byte(content)))
	r := model.Record{ID: id, Name: "place " + id, Images: []string{path}, Rating: 5, Category: []string{"castle"}}
	require.NoError(t, d.db.Insert(context.Background(), r))
	return r
}

// putDatabase stores body as the remote database file without going
// through the call log.
func putDatabase(t *testing.T, rem *fakeRemote, body []byte) model.RemoteFile {
	t.Helper()
	f, err := rem.MemoryStore.Create(context.Background(), model.FileMetadata{Name: DatabaseName}, body)
	require.NoError(t, err)
	return f
}

// publish stores d's current content as the remote database file.
func (d *device) publish(t *testing.T, rem *fakeRemote) model.RemoteFile {
	t.Helper()
	snap, err := d.db.Snapshot(context.Background())
	require.NoError(t, err)
	body, err := model.EncodeSnapshot(snap)
	require.NoError(t, err)
	return putDatabase(t, rem, body)
}

// countingDatabase serves a fixed snapshot and counts reads.
type countingDatabase struct {
	snap  *model.Snapshot
	reads int
}

func (c *countingDatabase) Snapshot(context.Context) (*model.Snapshot, error) {
	c.reads++
	return c.snap, nil
}

func (c *countingDatabase) Load(context.Context, *model.Snapshot) error {
	return nil
}
