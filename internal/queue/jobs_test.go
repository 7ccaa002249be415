package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/Waypoint/internal/model"
)

type recordingEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (r *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.tasks = append(r.tasks, task)
	r.opts = append(r.opts, opts)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type(), Queue: QueueName}, nil
}

func TestEnqueueUpload(t *testing.T) {
	rec := &recordingEnqueuer{}
	c := NewClient(rec, 3)

	id, err := c.EnqueueUpload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "task-1", id)
	require.Len(t, rec.tasks, 1)
	assert.Equal(t, TaskBackupUpload, rec.tasks[0].Type())

	var retry asynq.Option
	for _, o := range rec.opts[0] {
		if o.Type() == asynq.MaxRetryOpt {
			retry = o
		}
	}
	require.NotNil(t, retry)
	assert.Equal(t, 3, retry.Value())
}

func TestEnqueueDownload_Payload(t *testing.T) {
	rec := &recordingEnqueuer{}
	c := NewClient(rec, 5)
	files := []model.RemoteFile{{ID: "1", Name: "__waypoint_database__.json"}}

	_, err := c.EnqueueDownload(context.Background(), DownloadPayload{Files: files})
	require.NoError(t, err)

	var got DownloadPayload
	require.NoError(t, json.Unmarshal(rec.tasks[0].Payload(), &got))
	assert.Equal(t, TaskBackupDownload, rec.tasks[0].Type())
	require.Len(t, got.Files, 1)
	assert.Equal(t, "1", got.Files[0].ID)
}

func TestEnqueue_Error(t *testing.T) {
	c := NewClient(&recordingEnqueuer{err: errors.New("redis down")}, 5)
	_, err := c.EnqueueUpload(context.Background())
	require.ErrorContains(t, err, "enqueue backup:upload task")
}
