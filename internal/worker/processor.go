// Package worker runs queued backup tasks against the orchestrator.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/Waypoint/internal/backup"
	"github.com/dharsanguruparan/Waypoint/internal/logging"
	"github.com/dharsanguruparan/Waypoint/internal/model"
	"github.com/dharsanguruparan/Waypoint/internal/queue"
)

// Runner is the part of *backup.Orchestrator the worker drives.
type Runner interface {
	List(ctx context.Context) ([]model.RemoteFile, error)
	Upload(ctx context.Context) ([]model.RemoteFile, error)
	Restore(ctx context.Context, files []model.RemoteFile) (*model.Snapshot, error)
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	backup Runner
	log    logging.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(b Runner, log logging.Logger) *Processor {
	return &Processor{backup: b, log: log}
}

// Handler registers the backup task handlers.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskBackupUpload, p.handleUpload)
	mux.HandleFunc(queue.TaskBackupDownload, p.handleDownload)
	return mux
}

func (p *Processor) handleUpload(ctx context.Context, task *asynq.Task) error {
	files, err := p.backup.Upload(ctx)
	if err != nil {
		return p.failure(ctx, task, err)
	}
	info := backup.Describe(files)
	p.log.Info(ctx, "backup task done", "task", task.Type(), "records", info.Records, "files", info.Files)
	return nil
}

func (p *Processor) handleDownload(ctx context.Context, task *asynq.Task) error {
	var payload queue.DownloadPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("decode payload: %w: %w", err, asynq.SkipRetry)
		}
	}
	files := payload.Files
	if len(files) == 0 {
		var err error
		if files, err = p.backup.List(ctx); err != nil {
			return p.failure(ctx, task, err)
		}
	}
	snap, err := p.backup.Restore(ctx, files)
	if err != nil {
		return p.failure(ctx, task, err)
	}
	p.log.Info(ctx, "restore task done", "task", task.Type(), "records", len(snap.Collection.Records))
	return nil
}

// failure logs err and marks outcomes that a retry cannot change so asynq
// archives the task instead of retrying it.
func (p *Processor) failure(ctx context.Context, task *asynq.Task, err error) error {
	p.log.Error(ctx, "backup task failed", "task", task.Type(), "err", err)
	if permanent(err) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}

func permanent(err error) bool {
	return errors.Is(err, backup.ErrBusy) ||
		errors.Is(err, backup.ErrBackupNotFound) ||
		errors.Is(err, backup.ErrBackupCorrupt) ||
		errors.Is(err, backup.ErrAssetMissingRemotely)
}
