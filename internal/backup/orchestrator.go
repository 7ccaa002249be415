// Package backup reconciles the on-device collection with the remote file
// store. An upload sends every referenced asset and then the database file;
// a download fetches the database file and then every asset it references.
// Remote files are matched to local assets by name only.
package backup

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dharsanguruparan/Waypoint/internal/assets"
	"github.com/dharsanguruparan/Waypoint/internal/logging"
	"github.com/dharsanguruparan/Waypoint/internal/model"
	"github.com/dharsanguruparan/Waypoint/internal/remote"
)

// State is the lifecycle of the most recent operation.
type State string

const (
	StateIdle      State = "IDLE"
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
)

// Operation names reported in Status.
const (
	OpUpload   = "upload"
	OpDownload = "download"
	OpRestore  = "restore"
)

// Status describes the current or last operation.
type Status struct {
	State    State     `json:"state"`
	Op       string    `json:"op,omitempty"`
	Started  time.Time `json:"started,omitempty"`
	Finished time.Time `json:"finished,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Database is the local database as the orchestrator sees it.
type Database interface {
	// Snapshot reads options and records in one consistent read.
	Snapshot(ctx context.Context) (*model.Snapshot, error)
	// Load replaces the local content with snap.
	Load(ctx context.Context, snap *model.Snapshot) error
}

// Lock is a lease shared by every process working on the same device data.
// TryAcquire reports false, without waiting, when another owner holds it.
type Lock interface {
	TryAcquire(ctx context.Context, owner, op string) (bool, error)
	Release(ctx context.Context, owner string) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConcurrency allows up to n asset transfers in flight at once. The
// database file still moves strictly after every asset. n <= 1 keeps the
// transfers sequential.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n < 1 {
			n = 1
		}
		o.concurrency = n
	}
}

// WithLock makes the busy gate span processes: an operation starts only
// after taking l, and one that cannot take it fails with ErrBusy.
func WithLock(l Lock) Option {
	return func(o *Orchestrator) { o.lock = l }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// Orchestrator runs uploads and downloads. Only one of them may run at a
// time; a call made while another is running fails with ErrBusy. With
// WithLock the same holds across every orchestrator sharing the lock.
type Orchestrator struct {
	remote      remote.Store
	assets      AssetStore
	db          Database
	log         logging.Logger
	lock        Lock
	owner       string
	concurrency int
	now         func() time.Time

	mu     sync.Mutex
	status Status
}

// New constructs an Orchestrator.
func New(store remote.Store, as AssetStore, db Database, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		remote:      store,
		assets:      as,
		db:          db,
		log:         logging.Nop(),
		owner:       uuid.NewString(),
		concurrency: 1,
		now:         func() time.Time { return time.Now().UTC() },
		status:      Status{State: StateIdle},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Status returns a copy of the current status.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// List returns the current remote listing. It does not take the busy gate.
func (o *Orchestrator) List(ctx context.Context) ([]model.RemoteFile, error) {
	ix := NewIndex(o.remote)
	if err := ix.Refresh(ctx); err != nil {
		return nil, err
	}
	return ix.Files(), nil
}

// Upload backs up the whole collection: every asset of every record in
// order, then the database file. It returns the listing taken afterwards.
func (o *Orchestrator) Upload(ctx context.Context) (files []model.RemoteFile, err error) {
	if err := o.begin(ctx, OpUpload); err != nil {
		return nil, err
	}
	defer func() { o.finish(ctx, err) }()

	ix := NewIndex(o.remote)
	if err := ix.Refresh(ctx); err != nil {
		return nil, err
	}
	// One snapshot drives the asset list, the uploaded body and its record
	// count.
	snap, err := o.db.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	t := o.transfer()
	paths := imagePaths(snap.Collection.Records)
	if o.concurrency > 1 {
		paths = lastPathPerBasename(paths)
	}
	if err := o.each(ctx, paths, func(ctx context.Context, p string) error {
		return t.UploadAsset(ctx, p, ix)
	}); err != nil {
		return nil, err
	}
	if err := t.UploadDatabase(ctx, ix, snap); err != nil {
		return nil, err
	}

	if err := ix.Refresh(ctx); err != nil {
		return nil, err
	}
	return ix.Files(), nil
}

// Download fetches the database file named in files and every asset its
// records reference. The snapshot is returned only once all assets are on
// disk; it is not published to the local database.
func (o *Orchestrator) Download(ctx context.Context, files []model.RemoteFile) (snap *model.Snapshot, err error) {
	if err := o.begin(ctx, OpDownload); err != nil {
		return nil, err
	}
	defer func() { o.finish(ctx, err) }()
	return o.download(ctx, files)
}

// Restore is Download followed by replacing the local database with the
// downloaded snapshot. Nothing is published if the download fails.
func (o *Orchestrator) Restore(ctx context.Context, files []model.RemoteFile) (snap *model.Snapshot, err error) {
	if err := o.begin(ctx, OpRestore); err != nil {
		return nil, err
	}
	defer func() { o.finish(ctx, err) }()

	snap, err = o.download(ctx, files)
	if err != nil {
		return nil, err
	}
	if err := o.db.Load(ctx, snap); err != nil {
		return nil, err
	}
	o.log.Info(ctx, "snapshot published", "op", OpRestore, "records", len(snap.Collection.Records))
	return snap, nil
}

func (o *Orchestrator) download(ctx context.Context, files []model.RemoteFile) (*model.Snapshot, error) {
	ix := NewIndex(o.remote)
	ix.Reset(files)

	t := o.transfer()
	snap, err := t.DownloadDatabase(ctx, ix)
	if err != nil {
		return nil, err
	}
	paths := imagePaths(snap.Collection.Records)
	if o.concurrency > 1 {
		paths = uniquePaths(paths)
	}
	if err := o.each(ctx, paths, func(ctx context.Context, p string) error {
		return t.DownloadAsset(ctx, p, ix)
	}); err != nil {
		return nil, err
	}
	return snap, nil
}

func (o *Orchestrator) transfer() *Transfer {
	return NewTransfer(o.remote, o.assets, o.log)
}

// each runs fn for every path, stopping at the first failure. With a
// concurrency of one the paths are handled strictly in order.
func (o *Orchestrator) each(ctx context.Context, paths []string, fn func(context.Context, string) error) error {
	if o.concurrency <= 1 {
		for _, p := range paths {
			if err := fn(ctx, p); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for _, p := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, p)
		})
	}
	return g.Wait()
}

func (o *Orchestrator) begin(ctx context.Context, op string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status.State == StateRunning {
		return ErrBusy
	}
	if o.lock != nil {
		ok, err := o.lock.TryAcquire(ctx, o.owner, op)
		if err != nil {
			return err
		}
		if !ok {
			return ErrBusy
		}
	}
	o.status = Status{State: StateRunning, Op: op, Started: o.now()}
	return nil
}

func (o *Orchestrator) finish(ctx context.Context, err error) {
	o.mu.Lock()
	o.status.Finished = o.now()
	if err != nil {
		o.status.State = StateFailed
		o.status.Error = err.Error()
	} else {
		o.status.State = StateSucceeded
	}
	st := o.status
	if o.lock != nil {
		if rerr := o.lock.Release(context.WithoutCancel(ctx), o.owner); rerr != nil {
			o.log.Error(ctx, "release backup lock", "op", st.Op, "err", rerr)
		}
	}
	o.mu.Unlock()

	if err != nil {
		o.log.Error(ctx, "backup operation failed", "op", st.Op, "err", err)
		return
	}
	o.log.Info(ctx, "backup operation finished", "op", st.Op, "took", st.Finished.Sub(st.Started))
}

func imagePaths(records []model.Record) []string {
	var out []string
	for _, r := range records {
		out = append(out, r.Images...)
	}
	return out
}

// lastPathPerBasename keeps one path per remote name so parallel uploads
// never race to create the same file. The later path wins, as it would when
// uploading sequentially.
func lastPathPerBasename(paths []string) []string {
	pos := make(map[string]int, len(paths))
	var out []string
	for _, p := range paths {
		name := assets.Basename(p)
		if i, ok := pos[name]; ok {
			out[i] = p
			continue
		}
		pos[name] = len(out)
		out = append(out, p)
	}
	return out
}

func uniquePaths(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	var out []string
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
