// Package queue defines the asynq tasks that run backups outside the
// process that asked for them, and the helpers that enqueue them.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/Waypoint/internal/model"
)

const (
	// TaskBackupUpload backs up the whole collection.
	TaskBackupUpload = "backup:upload"
	// TaskBackupDownload restores the collection from the backup.
	TaskBackupDownload = "backup:download"

	// QueueName is the asynq queue backup tasks are placed on.
	QueueName = "backup"

	taskTimeout = 30 * time.Minute
)

// DownloadPayload is serialized into the download task. An empty Files
// makes the worker take a fresh listing before restoring.
type DownloadPayload struct {
	Files []model.RemoteFile `json:"files,omitempty"`
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Client enqueues backup tasks.
type Client struct {
	q        Enqueuer
	maxRetry int
}

// NewClient wraps an Enqueuer.
func NewClient(q Enqueuer, maxRetry int) *Client {
	return &Client{q: q, maxRetry: maxRetry}
}

// NewUploadTask builds the upload task.
func NewUploadTask() *asynq.Task {
	return asynq.NewTask(TaskBackupUpload, nil)
}

// NewDownloadTask builds the download task.
func NewDownloadTask(payload DownloadPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(TaskBackupDownload, data), nil
}

// EnqueueUpload schedules a backup and returns the task id.
func (c *Client) EnqueueUpload(ctx context.Context) (string, error) {
	return c.enqueue(ctx, NewUploadTask())
}

// EnqueueDownload schedules a restore and returns the task id.
func (c *Client) EnqueueDownload(ctx context.Context, payload DownloadPayload) (string, error) {
	task, err := NewDownloadTask(payload)
	if err != nil {
		return "", err
	}
	return c.enqueue(ctx, task)
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task) (string, error) {
	info, err := c.q.EnqueueContext(ctx, task,
		asynq.Queue(QueueName),
		asynq.MaxRetry(c.maxRetry),
		asynq.Timeout(taskTimeout),
	)
	if err != nil {
		return "", fmt.Errorf("enqueue %s task: %w", task.Type(), err)
	}
	return info.ID, nil
}
