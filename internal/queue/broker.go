package queue

import (
	"context"
	"time"

	"github.com/dealpulse/ingest/internal/model"
)

// Broker stores pending jobs and the bounded lists of finished ones.
type Broker interface {
	// Push appends job to the pending queue.
	Push(ctx context.Context, job *model.Job) error
	// Pop removes the oldest pending job, waiting up to wait for one to
	// arrive. It returns nil, nil when nothing arrived in time.
	Pop(ctx context.Context, wait time.Duration) (*model.Job, error)
	// Finish records a job in the completed or failed list according to its
	// status, trimming the list to its retention limit.
	Finish(ctx context.Context, job *model.Job) error
	// List returns finished jobs with the given status, newest first.
	List(ctx context.Context, status model.JobStatus, limit int) ([]model.Job, error)
	// Len returns the number of pending jobs.
	Len(ctx context.Context) (int64, error)
	Close() error
}

// Retention bounds the finished-job lists.
type Retention struct {
	KeepCompleted int
	KeepFailed    int
}

// DefaultRetention keeps the last 100 completed and 50 failed jobs.
func DefaultRetention() Retention {
	return Retention{KeepCompleted: 100, KeepFailed: 50}
}

func (r Retention) keep(status model.JobStatus) int {
	if status == model.JobStatusFailed {
		return r.KeepFailed
	}
	return r.KeepCompleted
}
