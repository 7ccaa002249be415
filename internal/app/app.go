// Package app assembles Waypoint's components from a Config. The CLI, the
// API server and the worker all start from here.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/Waypoint/internal/assets"
	"github.com/dharsanguruparan/Waypoint/internal/awss3"
	"github.com/dharsanguruparan/Waypoint/internal/backup"
	"github.com/dharsanguruparan/Waypoint/internal/collection"
	"github.com/dharsanguruparan/Waypoint/internal/config"
	"github.com/dharsanguruparan/Waypoint/internal/database"
	"github.com/dharsanguruparan/Waypoint/internal/localdb"
	"github.com/dharsanguruparan/Waypoint/internal/logging"
	"github.com/dharsanguruparan/Waypoint/internal/pgstore"
	"github.com/dharsanguruparan/Waypoint/internal/queue"
	"github.com/dharsanguruparan/Waypoint/internal/remote"
	"github.com/dharsanguruparan/Waypoint/internal/s3storage"
	"github.com/dharsanguruparan/Waypoint/internal/signing"
)

// App holds the wired components. Close releases them.
type App struct {
	Config  *config.Config
	Log     logging.Logger
	DB      *localdb.DB
	Assets  *assets.Store
	Remote  remote.Store
	Records *collection.Service
	Backup  *backup.Orchestrator
	// Queue is nil when no Redis address is configured.
	Queue  *queue.Client
	Signer *signing.Signer

	closers []io.Closer
}

// New opens the local database and connects the configured remote backend.
// Log output goes to logOut.
func New(ctx context.Context, cfg *config.Config, logOut io.Writer) (a *App, err error) {
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, logOut)
	if err != nil {
		return nil, err
	}
	a = &App{Config: cfg, Log: log}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if cfg.DatabasePath != localdb.MemoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o750); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	a.DB, err = localdb.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open local database: %w", err)
	}
	a.closers = append(a.closers, a.DB)

	a.Assets = assets.New(cfg.AssetDir, cfg.MaxAssetSize)
	a.Records = collection.New(a.DB, a.Assets, log.With("component", "collection"))

	a.Remote, err = a.openRemote(ctx)
	if err != nil {
		return nil, err
	}
	a.Backup = backup.New(a.Remote, a.Assets, a.DB,
		backup.WithConcurrency(cfg.TransferConcurrency),
		backup.WithLock(a.DB.BackupLock(cfg.BackupLockTTL)),
		backup.WithLogger(log.With("component", "backup")),
	)

	if cfg.SigningSecret != "" {
		a.Signer = signing.NewSigner([]byte(cfg.SigningSecret))
	} else if a.Signer, err = signing.NewRandomSigner(); err != nil {
		return nil, err
	}

	if cfg.RedisAddr != "" {
		client := asynq.NewClient(a.RedisOpt())
		a.closers = append(a.closers, client)
		a.Queue = queue.NewClient(client, cfg.QueueMaxRetry)
	}
	log.Debug(ctx, "app ready", "backend", cfg.RemoteBackend, "data_dir", cfg.DataDir)
	return a, nil
}

// RedisOpt is the asynq connection described by the config.
func (a *App) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     a.Config.RedisAddr,
		Password: a.Config.RedisPassword,
		DB:       a.Config.RedisDB,
	}
}

func (a *App) openRemote(ctx context.Context) (remote.Store, error) {
	cfg := a.Config
	switch cfg.RemoteBackend {
	case config.BackendMemory:
		return remote.NewMemoryStore(), nil
	case config.BackendMinio:
		store, err := s3storage.New(cfg)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendS3:
		store, err := awss3.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendPostgres:
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db)
		if err := database.EnsureSchema(ctx, db); err != nil {
			return nil, err
		}
		return pgstore.New(db), nil
	default:
		return nil, fmt.Errorf("unknown remote backend %q", cfg.RemoteBackend)
	}
}

// Close releases everything New opened, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}
