package backup

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/Waypoint/internal/assets"
	"github.com/dharsanguruparan/Waypoint/internal/localdb"
	"github.com/dharsanguruparan/Waypoint/internal/model"
)

func newOrchestrator(rem *fakeRemote, d *device, opts ...Option) *Orchestrator {
	return New(rem, d.assets, d.db, opts...)
}

func TestUpload_EmptyCollection(t *testing.T) {
	rem := newFakeRemote()
	o := newOrchestrator(rem, newDevice(t))

	files, err := o.Upload(context.Background())
	require.NoError(t, err)

	require.Len(t, files, 1)
	assert.Equal(t, DatabaseName, files[0].Name)
	assert.Equal(t, "0", files[0].Properties[RecordsProperty])
	assert.Equal(t, []string{"list", "create:" + DatabaseName, "list"}, rem.Ops())
	assert.Equal(t, StateSucceeded, o.Status().State)
}

func TestUpload_AssetsBeforeDatabase(t *testing.T) {
	rem := newFakeRemote()
	d := newDevice(t)
	d.addRecord(t, "a", "A")
	d.addRecord(t, "b", "B")

	files, err := newOrchestrator(rem, d).Upload(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"list",
		"create:a.jpg",
		"create:b.jpg",
		"create:" + DatabaseName,
		"list",
	}, rem.Ops())
	require.Len(t, files, 3)
	assert.Equal(t, 2, Describe(files).Records)
}

func TestUpload_Idempotent(t *testing.T) {
	rem := newFakeRemote()
	d := newDevice(t)
	d.addRecord(t, "a", "A")
	d.addRecord(t, "b", "B")
	o := newOrchestrator(rem, d)

	first, err := o.Upload(context.Background())
	require.NoError(t, err)
	second, err := o.Upload(context.Background())
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Name, second[i].Name)
	}
	assert.Equal(t, 3, rem.count("create:"))
	assert.Equal(t, 3, rem.count("update:"))
}

func TestUpload_UpdatesExistingDatabaseInPlace(t *testing.T) {
	ctx := context.Background()
	rem := newFakeRemote()
	existing, err := rem.MemoryStore.Create(ctx, model.FileMetadata{
		Name:       DatabaseName,
		Properties: model.Properties{RecordsProperty: "7"},
	}, []byte(`{}`))
	require.NoError(t, err)

	d := newDevice(t)
	d.addRecord(t, "a", "A")
	files, err := newOrchestrator(rem, d).Upload(ctx)
	require.NoError(t, err)

	db := findByName(files, DatabaseName)
	require.NotNil(t, db)
	assert.Equal(t, existing.ID, db.ID)
	assert.Equal(t, "1", db.Properties[RecordsProperty])
	assert.Equal(t, 0, rem.count("create:"+DatabaseName))
}

func TestUpload_SharedBasenameUpdatesInsteadOfDuplicating(t *testing.T) {
	ctx := context.Background()
	rem := newFakeRemote()
	d := newDevice(t)
	require.NoError(t, d.assets.Save("/old/shared.jpg", []byte("first")))
	require.NoError(t, d.assets.Save("/new/shared.jpg", []byte("second")))
	require.NoError(t, d.db.Insert(ctx, model.Record{ID: "1", Images: []string{"/old/shared.jpg"}}))
	require.NoError(t, d.db.Insert(ctx, model.Record{ID: "2", Images: []string{"/new/shared.jpg"}}))

	files, err := newOrchestrator(rem, d).Upload(ctx)
	require.NoError(t, err)

	require.Len(t, files, 2)
	assert.Equal(t, []string{"list", "create:shared.jpg", "update:shared.jpg", "create:" + DatabaseName, "list"}, rem.Ops())
	body, err := rem.MemoryStore.Download(ctx, findByName(files, "shared.jpg").ID)
	require.NoError(t, err)
	assert.Equal(t, "second", string(body))
}

func TestUpload_FailureStopsBeforeDatabase(t *testing.T) {
	rem := newFakeRemote()
	d := newDevice(t)
	d.addRecord(t, "a", "A")
	d.addRecord(t, "b", "B")
	d.addRecord(t, "c", "C")
	rem.failUpload["b.jpg"] = true
	o := newOrchestrator(rem, d)

	_, err := o.Upload(context.Background())
	require.ErrorIs(t, err, ErrRemoteUnavailable)
	require.ErrorIs(t, err, errInjected)

	assert.Equal(t, []string{"list", "create:a.jpg", "create:b.jpg"}, rem.Ops())
	assert.Equal(t, 1, rem.Len())
	st := o.Status()
	assert.Equal(t, StateFailed, st.State)
	assert.Contains(t, st.Error, "b.jpg")
}

func TestUpload_MissingLocalAsset(t *testing.T) {
	ctx := context.Background()
	rem := newFakeRemote()
	d := newDevice(t)
	require.NoError(t, d.db.Insert(ctx, model.Record{ID: "x", Images: []string{"/data/assets/gone.jpg"}}))

	_, err := newOrchestrator(rem, d).Upload(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRemoteUnavailable)
	assert.Equal(t, 0, rem.Len())
}

func TestUpload_RemoteUnavailable(t *testing.T) {
	rem := newFakeRemote()
	rem.listErr = errors.New("dial tcp: connection refused")
	o := newOrchestrator(rem, newDevice(t))

	_, err := o.Upload(context.Background())
	require.ErrorIs(t, err, ErrRemoteUnavailable)
	assert.Equal(t, []string{"list"}, rem.Ops())
	assert.Equal(t, StateFailed, o.Status().State)
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	rem := newFakeRemote()
	src := newDevice(t)
	src.addRecord(t, "a", "photo A")
	src.addRecord(t, "b", "photo B")
	require.NoError(t, src.db.SetOptions(ctx, model.Options{Category: []string{"castle"}, Mandatory: []string{"name"}}))

	files, err := newOrchestrator(rem, src).Upload(ctx)
	require.NoError(t, err)

	dst := newDevice(t)
	snap, err := newOrchestrator(rem, dst).Restore(ctx, files)
	require.NoError(t, err)
	require.Len(t, snap.Collection.Records, 2)

	want, err := src.db.Snapshot(ctx)
	require.NoError(t, err)
	got, err := dst.db.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	for _, r := range want.Collection.Records {
		srcBytes, err := src.assets.Read(r.Images[0])
		require.NoError(t, err)
		dstBytes, err := dst.assets.Read(r.Images[0])
		require.NoError(t, err)
		assert.Equal(t, srcBytes, dstBytes)
	}
}

func TestDownload_DoesNotPublish(t *testing.T) {
	ctx := context.Background()
	rem := newFakeRemote()
	src := newDevice(t)
	src.addRecord(t, "a", "A")
	files, err := newOrchestrator(rem, src).Upload(ctx)
	require.NoError(t, err)

	dst := newDevice(t)
	snap, err := newOrchestrator(rem, dst).Download(ctx, files)
	require.NoError(t, err)
	assert.Len(t, snap.Collection.Records, 1)
	assert.True(t, dst.assets.Exists("/data/assets/a.jpg"))

	n, err := dst.db.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDownload_UsesCallerListing(t *testing.T) {
	ctx := context.Background()
	rem := newFakeRemote()
	src := newDevice(t)
	src.addRecord(t, "a", "A")
	files, err := newOrchestrator(rem, src).Upload(ctx)
	require.NoError(t, err)

	before := rem.count("list")
	_, err = newOrchestrator(rem, newDevice(t)).Download(ctx, files)
	require.NoError(t, err)
	assert.Equal(t, before, rem.count("list"), "download must not re-list")
}

func TestRestore_FailureOnLastAssetPublishesNothing(t *testing.T) {
	ctx := context.Background()
	rem := newFakeRemote()
	src := newDevice(t)
	src.addRecord(t, "a", "A")
	src.addRecord(t, "b", "B")
	src.addRecord(t, "c", "C")
	files, err := newOrchestrator(rem, src).Upload(ctx)
	require.NoError(t, err)

	rem.failDownload["c.jpg"] = true
	dst := newDevice(t)
	o := newOrchestrator(rem, dst)
	_, err = o.Restore(ctx, files)
	require.ErrorIs(t, err, ErrRemoteUnavailable)

	n, err := dst.db.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, StateFailed, o.Status().State)
	assert.Equal(t, OpRestore, o.Status().Op)
}

func TestRestore_NotFound(t *testing.T) {
	ctx := context.Background()
	rem := newFakeRemote()
	f, err := rem.MemoryStore.Create(ctx, model.FileMetadata{Name: "a.jpg"}, []byte("A"))
	require.NoError(t, err)

	_, err = newOrchestrator(rem, newDevice(t)).Restore(ctx, []model.RemoteFile{f})
	require.ErrorIs(t, err, ErrBackupNotFound)
	assert.Zero(t, rem.count("download:"))
}

func TestRestore_Corrupt(t *testing.T) {
	ctx := context.Background()
	rem := newFakeRemote()
	f, err := rem.MemoryStore.Create(ctx, model.FileMetadata{Name: DatabaseName}, []byte("not json"))
	require.NoError(t, err)

	dst := newDevice(t)
	_, err = newOrchestrator(rem, dst).Restore(ctx, []model.RemoteFile{f})
	require.ErrorIs(t, err, ErrBackupCorrupt)
	assert.Equal(t, 1, rem.count("download:"))
}

func TestRestore_AssetMissingRemotely(t *testing.T) {
	ctx := context.Background()
	rem := newFakeRemote()
	src := newDevice(t)
	src.addRecord(t, "a", "A")
	f := src.publish(t, rem)

	_, err := newOrchestrator(rem, newDevice(t)).Restore(ctx, []model.RemoteFile{f})
	require.ErrorIs(t, err, ErrAssetMissingRemotely)
	assert.Contains(t, err.Error(), "a.jpg")
}

func TestBusyGate(t *testing.T) {
	rem := newFakeRemote()
	rem.entered = make(chan struct{})
	rem.release = make(chan struct{})
	d := newDevice(t)
	o := newOrchestrator(rem, d)

	done := make(chan error, 1)
	go func() {
		_, err := o.Upload(context.Background())
		done <- err
	}()
	<-rem.entered
	assert.Equal(t, StateRunning, o.Status().State)

	_, err := o.Upload(context.Background())
	require.ErrorIs(t, err, ErrBusy)
	_, err = o.Download(context.Background(), nil)
	require.ErrorIs(t, err, ErrBusy)
	_, err = o.Restore(context.Background(), nil)
	require.ErrorIs(t, err, ErrBusy)

	close(rem.release)
	// the refresh after the database upload lists again
	go func() {
		for range rem.entered {
		}
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("upload did not finish")
	}
	close(rem.entered)
	assert.Equal(t, StateSucceeded, o.Status().State)
}

func TestConcurrentTransfers(t *testing.T) {
	ctx := context.Background()
	rem := newFakeRemote()
	src := newDevice(t)
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		src.addRecord(t, id, "photo "+id)
	}

	files, err := newOrchestrator(rem, src, WithConcurrency(3)).Upload(ctx)
	require.NoError(t, err)
	require.Len(t, files, 7)

	ops := rem.Ops()
	assert.Equal(t, "create:"+DatabaseName, ops[len(ops)-2], "database goes after every asset")

	dst := newDevice(t)
	snap, err := newOrchestrator(rem, dst, WithConcurrency(3)).Restore(ctx, files)
	require.NoError(t, err)
	assert.Len(t, snap.Collection.Records, 6)
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		body, err := dst.assets.Read("/data/assets/" + id + ".jpg")
		require.NoError(t, err)
		assert.Equal(t, "photo "+id, string(body))
	}
}

func TestConcurrentUpload_FailureStopsBeforeDatabase(t *testing.T) {
	rem := newFakeRemote()
	d := newDevice(t)
	for _, id := range []string{"a", "b", "c", "d"} {
		d.addRecord(t, id, id)
	}
	rem.failUpload["c.jpg"] = true

	_, err := newOrchestrator(rem, d, WithConcurrency(2)).Upload(context.Background())
	require.ErrorIs(t, err, errInjected)
	assert.Zero(t, rem.count("create:"+DatabaseName))
}

func TestWithConcurrencyClamps(t *testing.T) {
	o := New(newFakeRemote(), nil, nil, WithConcurrency(-3))
	assert.Equal(t, 1, o.concurrency)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	rem := newFakeRemote()
	_, err := rem.MemoryStore.Create(ctx, model.FileMetadata{Name: "x.jpg"}, nil)
	require.NoError(t, err)

	files, err := New(rem, nil, nil).List(ctx)
	require.NoError(t, err)
	assert.Len(t, files, 1)

	rem.listErr = errors.New("timeout")
	_, err = New(rem, nil, nil).List(ctx)
	require.ErrorIs(t, err, ErrRemoteUnavailable)
}

func findByName(files []model.RemoteFile, name string) *model.RemoteFile {
	for i := range files {
		if files[i].Name == name {
			return &files[i]
		}
	}
	return nil
}

func TestRestore_ImagePathOutsideAssetDir(t *testing.T) {
	ctx := context.Background()
	rem := newFakeRemote()
	body, err := model.EncodeSnapshot(&model.Snapshot{Collection: model.Collection{Records: []model.Record{
		{ID: "a", Name: "A", Images: []string{"/etc/cron.d/evil"}},
	}}})
	require.NoError(t, err)
	f := putDatabase(t, rem, body)
	_, err = rem.MemoryStore.Create(ctx, model.FileMetadata{Name: "evil"}, []byte("* * * * * root sh"))
	require.NoError(t, err)

	dst := newDevice(t)
	_, err = newOrchestrator(rem, dst).Restore(ctx, []model.RemoteFile{f})
	require.ErrorIs(t, err, ErrBackupCorrupt)
	assert.Contains(t, err.Error(), "/etc/cron.d/evil")

	assert.Equal(t, []string{"download:" + DatabaseName}, rem.Ops())
	exists, err := afero.Exists(dst.fs, "/etc/cron.d/evil")
	require.NoError(t, err)
	assert.False(t, exists)
	n, err := dst.db.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRestore_SnapshotBreaksDataModel(t *testing.T) {
	for name, records := range map[string][]model.Record{
		"rating above range": {{ID: "a", Images: []string{"/data/assets/a.jpg"}, Rating: 11}},
		"negative rating":    {{ID: "a", Images: []string{"/data/assets/a.jpg"}, Rating: -1}},
		"duplicate ids":      {{ID: "a", Images: []string{"/data/assets/a.jpg"}}, {ID: "a"}},
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rem := newFakeRemote()
			body, err := model.EncodeSnapshot(&model.Snapshot{Collection: model.Collection{Records: records}})
			require.NoError(t, err)
			f := putDatabase(t, rem, body)
			_, err = rem.MemoryStore.Create(ctx, model.FileMetadata{Name: "a.jpg"}, []byte("A"))
			require.NoError(t, err)

			dst := newDevice(t)
			o := newOrchestrator(rem, dst)
			_, err = o.Restore(ctx, []model.RemoteFile{f})
			require.ErrorIs(t, err, ErrBackupCorrupt)
			assert.Equal(t, StateFailed, o.Status().State)

			assert.Equal(t, []string{"download:" + DatabaseName}, rem.Ops())
			assert.False(t, dst.assets.Exists("/data/assets/a.jpg"))
			n, err := dst.db.Count(ctx)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestUpload_RecordCountMatchesBody(t *testing.T) {
	ctx := context.Background()
	rem := newFakeRemote()
	d := newDevice(t)
	require.NoError(t, d.assets.Save("/data/assets/a.jpg", []byte("A")))
	require.NoError(t, d.assets.Save("/data/assets/b.jpg", []byte("B")))
	db := &countingDatabase{snap: &model.Snapshot{Collection: model.Collection{Records: []model.Record{
		{ID: "a", Images: []string{"/data/assets/a.jpg"}},
		{ID: "b", Images: []string{"/data/assets/b.jpg"}},
	}}}}

	files, err := New(rem, d.assets, db).Upload(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, db.reads)

	dbFile := findByName(files, DatabaseName)
	require.NotNil(t, dbFile)
	body, err := rem.MemoryStore.Download(ctx, dbFile.ID)
	require.NoError(t, err)
	snap, err := model.DecodeSnapshot(body)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(len(snap.Collection.Records)), dbFile.Properties[RecordsProperty])
	assert.Equal(t, "2", dbFile.Properties[RecordsProperty])
	assert.Equal(t, 1, rem.count("create:a.jpg"))
	assert.Equal(t, 1, rem.count("create:b.jpg"))
}

// sharedDevice opens the same database file twice, as two processes would.
func sharedDevice(t *testing.T) (*device, *device) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "waypoint.db")
	open := func() *device {
		db, err := localdb.Open(context.Background(), path)
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		fs := afero.NewMemMapFs()
		return &device{db: db, fs: fs, assets: assets.NewWithFs(fs, "/data/assets", 0)}
	}
	return open(), open()
}

func TestBusyGate_SharedAcrossOrchestrators(t *testing.T) {
	ctx := context.Background()
	rem := newFakeRemote()
	rem.entered = make(chan struct{})
	rem.release = make(chan struct{})
	d1, d2 := sharedDevice(t)
	first := newOrchestrator(rem, d1, WithLock(d1.db.BackupLock(time.Hour)))
	second := newOrchestrator(newFakeRemote(), d2, WithLock(d2.db.BackupLock(time.Hour)))

	done := make(chan error, 1)
	go func() {
		_, err := first.Upload(ctx)
		done <- err
	}()
	<-rem.entered

	_, err := second.Upload(ctx)
	require.ErrorIs(t, err, ErrBusy)
	_, err = second.Restore(ctx, nil)
	require.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, StateIdle, second.Status().State)

	close(rem.release)
	go func() {
		for range rem.entered {
		}
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("upload did not finish")
	}
	close(rem.entered)

	// the lease is released once the first operation finishes
	_, err = second.Upload(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, second.Status().State)
}

type failingLock struct{ err error }

func (l failingLock) TryAcquire(context.Context, string, string) (bool, error) { return false, l.err }
func (l failingLock) Release(context.Context, string) error { return nil }

func TestBusyGate_LockErrorLeavesStateIdle(t *testing.T) {
	rem := newFakeRemote()
	o := newOrchestrator(rem, newDevice(t), WithLock(failingLock{err: errInjected}))

	_, err := o.Upload(context.Background())
	require.ErrorIs(t, err, errInjected)
	assert.Equal(t, StateIdle, o.Status().State)
	assert.Empty(t, rem.Ops())
}
