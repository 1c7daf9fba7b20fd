package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/dealpulse/ingest/internal/model"
)

// MemoryBroker is an in-process Broker. Jobs are lost when the process
// exits.
type MemoryBroker struct {
	ret    Retention
	signal chan struct{}

	mu       sync.Mutex
	pending  []*model.Job
	finished map[model.JobStatus][]model.Job // newest last
	closed   bool
}

// NewMemoryBroker creates an empty in-process broker.
func NewMemoryBroker(ret Retention) *MemoryBroker {
	return &MemoryBroker{
		ret:      ret,
		signal:   make(chan struct{}, 1),
		finished: make(map[model.JobStatus][]model.Job),
	}
}

var errBrokerClosed = eris.New("queue: broker closed")

func (b *MemoryBroker) Push(_ context.Context, job *model.Job) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errBrokerClosed
	}
	cp := *job
	b.pending = append(b.pending, &cp)
	b.mu.Unlock()
	b.notify()
	return nil
}

func (b *MemoryBroker) notify() {
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

func (b *MemoryBroker) Pop(ctx context.Context, wait time.Duration) (*model.Job, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return nil, errBrokerClosed
		}
		if len(b.pending) > 0 {
			job := b.pending[0]
			b.pending[0] = nil
			b.pending = b.pending[1:]
			more := len(b.pending) > 0
			b.mu.Unlock()
			if more {
				b.notify()
			}
			return job, nil
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-b.signal:
		}
	}
}

func (b *MemoryBroker) Finish(_ context.Context, job *model.Job) error {
	keep := b.ret.keep(job.Status)
	b.mu.Lock()
	defer b.mu.Unlock()

	list := append(b.finished[job.Status], *job)
	if len(list) > keep {
		list = append([]model.Job(nil), list[len(list)-keep:]...)
	}
	b.finished[job.Status] = list
	return nil
}

func (b *MemoryBroker) List(_ context.Context, status model.JobStatus, limit int) ([]model.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.finished[status]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]model.Job, 0, limit)
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, list[i])
	}
	return out, nil
}

func (b *MemoryBroker) Len(_ context.Context) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.pending)), nil
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
