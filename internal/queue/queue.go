// Package queue runs ingestion jobs on a worker pool with bounded retries
// and schedules recurring jobs under stable keys.
package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dealpulse/ingest/internal/metrics"
	"github.com/dealpulse/ingest/internal/model"
	"github.com/dealpulse/ingest/internal/resilience"
)

// Handler executes one attempt of a job.
type Handler func(ctx context.Context, job *model.Job) (*model.JobResult, error)

// Config controls workers and the default retry policy.
type Config struct {
	Workers     int
	MaxAttempts int
	Backoff     model.BackoffPolicy
	// MaxBackoff caps the delay between attempts.
	MaxBackoff time.Duration
	// PollWait is how long an idle worker blocks on the broker.
	PollWait time.Duration
	// SampleInterval is how often the pending depth gauge is refreshed
	// from the broker.
	SampleInterval time.Duration
}

// DefaultConfig returns 2 workers, 3 attempts and a 2s doubling backoff.
func DefaultConfig() Config {
	return Config{
		Workers:        2,
		MaxAttempts:    3,
		Backoff:        model.BackoffPolicy{Initial: 2 * time.Second, Multiplier: 2},
		MaxBackoff:     time.Minute,
		PollWait:       time.Second,
		SampleInterval: 15 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.Backoff.Initial <= 0 {
		c.Backoff.Initial = def.Backoff.Initial
	}
	if c.Backoff.Multiplier <= 0 {
		c.Backoff.Multiplier = def.Backoff.Multiplier
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = def.MaxBackoff
	}
	if c.PollWait <= 0 {
		c.PollWait = def.PollWait
	}
	if c.SampleInterval <= 0 {
		c.SampleInterval = def.SampleInterval
	}
	return c
}

// Option customises a single enqueued job.
type Option func(*model.Job)

// WithMaxAttempts overrides the attempt limit.
func WithMaxAttempts(n int) Option {
	return func(j *model.Job) {
		if n > 0 {
			j.MaxAttempts = n
		}
	}
}

// WithBackoff overrides the retry backoff.
func WithBackoff(initial time.Duration, multiplier float64) Option {
	return func(j *model.Job) {
		j.Backoff = model.BackoffPolicy{Initial: initial, Multiplier: multiplier}
	}
}

// WithScheduleKey tags a job with the recurring schedule that produced it.
func WithScheduleKey(key string) Option {
	return func(j *model.Job) { j.ScheduleKey = key }
}

// Stats is a snapshot of queue activity since the process started.
type Stats struct {
	Pending   int64 `json:"pending"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Retried   int64 `json:"retried"`
}

// Queue dispatches jobs from a Broker to registered handlers.
type Queue struct {
	broker Broker
	cfg    Config

	mu       sync.RWMutex
	handlers map[model.JobType]Handler

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
}

// New creates a queue over broker.
func New(broker Broker, cfg Config) *Queue {
	return &Queue{
		broker:   broker,
		cfg:      cfg.withDefaults(),
		handlers: make(map[model.JobType]Handler),
	}
}

// Register sets the handler for a job type, replacing any previous one.
func (q *Queue) Register(t model.JobType, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[t] = h
}

func (q *Queue) handler(t model.JobType) (Handler, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	h, ok := q.handlers[t]
	return h, ok
}

// Enqueue adds a job and returns its ID. Unregistered job types are
// rejected up front.
func (q *Queue) Enqueue(ctx context.Context, t model.JobType, payload model.JobPayload, opts ...Option) (string, error) {
	if _, ok := q.handler(t); !ok {
		return "", eris.Errorf("queue: no handler for job type %q", t)
	}
	job := q.newJob(t, payload, opts...)
	if err := q.broker.Push(ctx, job); err != nil {
		return "", eris.Wrapf(err, "queue: enqueue %s", t)
	}
	zap.L().Debug("queue: job enqueued",
		zap.String("job_id", job.ID),
		zap.String("job_type", string(t)),
		zap.String("merchant", payload.Merchant),
	)
	return job.ID, nil
}

// Run builds a job and executes it on the calling goroutine with the same
// retry policy and retention as queued jobs. The finished job is returned
// even when it failed.
func (q *Queue) Run(ctx context.Context, t model.JobType, payload model.JobPayload, opts ...Option) (*model.Job, error) {
	job := q.newJob(t, payload, opts...)
	err := q.Execute(ctx, job)
	return job, err
}

func (q *Queue) newJob(t model.JobType, payload model.JobPayload, opts ...Option) *model.Job {
	job := &model.Job{
		ID:          uuid.New().String(),
		Type:        t,
		Payload:     payload,
		MaxAttempts: q.cfg.MaxAttempts,
		Backoff:     q.cfg.Backoff,
		Status:      model.JobStatusQueued,
		EnqueuedAt:  time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(job)
	}
	return job
}

// Start launches the worker pool. It returns immediately; call Stop to
// drain.
func (q *Queue) Start(ctx context.Context) error {
	q.runMu.Lock()
	defer q.runMu.Unlock()
	if q.cancel != nil {
		return eris.New("queue: already started")
	}

	wctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(wctx, i)
	}
	q.wg.Add(1)
	go q.monitor(wctx)
	zap.L().Info("queue: workers started", zap.Int("workers", q.cfg.Workers))
	return nil
}

// Stop cancels the workers and waits for them to return. Jobs interrupted
// mid-attempt go back on the pending queue.
func (q *Queue) Stop() {
	q.runMu.Lock()
	cancel := q.cancel
	q.cancel = nil
	q.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	q.wg.Wait()
	zap.L().Info("queue: workers stopped")
}

func (q *Queue) worker(ctx context.Context, n int) {
	defer q.wg.Done()
	log := zap.L().With(zap.Int("worker", n))

	for {
		job, err := q.broker.Pop(ctx, q.cfg.PollWait)
		if ctx.Err() != nil {
			if job != nil {
				q.requeue(job)
			}
			return
		}
		if err != nil {
			log.Error("queue: pop failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(q.cfg.PollWait):
			}
			continue
		}
		if job == nil {
			continue
		}

		if err := q.Execute(ctx, job); err != nil && ctx.Err() != nil {
			q.requeue(job)
			return
		}
	}
}

func (q *Queue) requeue(job *model.Job) {
	job.Status = model.JobStatusQueued
	job.StartedAt = nil
	if err := q.broker.Push(context.Background(), job); err != nil {
		zap.L().Error("queue: requeue failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

// Execute runs job to a terminal state on the calling goroutine, retrying
// per the job's policy. Permanent errors fail on the first attempt. The
// finished job is recorded with the broker unless ctx was cancelled, in
// which case the job is left for the caller to requeue.
func (q *Queue) Execute(ctx context.Context, job *model.Job) error {
	log := zap.L().With(
		zap.String("job_id", job.ID),
		zap.String("job_type", string(job.Type)),
		zap.String("merchant", job.Payload.Merchant),
	)

	h, ok := q.handler(job.Type)
	if !ok {
		err := resilience.NewPermanent(eris.Errorf("queue: no handler for job type %q", job.Type))
		q.finish(ctx, job, nil, err)
		return err
	}

	q.active.Add(1)
	defer q.active.Add(-1)

	now := time.Now().UTC()
	job.Status = model.JobStatusRunning
	job.StartedAt = &now

	// A requeued job keeps the attempts it already used.
	remaining := job.MaxAttempts - job.Attempts
	if remaining < 1 {
		remaining = 1
	}
	retry := resilience.RetryConfig{
		MaxAttempts:    remaining,
		InitialBackoff: job.Backoff.Initial,
		Multiplier:     job.Backoff.Multiplier,
		MaxBackoff:     q.cfg.MaxBackoff,
		OnRetry: func(attempt int, err error) {
			q.retried.Add(1)
			metrics.JobsTotal.WithLabelValues(string(job.Type), "retried").Inc()
			log.Warn("queue: job attempt failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		},
	}

	result, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*model.JobResult, error) {
		job.Attempts++
		log.Info("queue: job started", zap.Int("attempt", job.Attempts))
		start := time.Now()
		res, err := h(ctx, job)
		metrics.JobDuration.WithLabelValues(string(job.Type)).Observe(time.Since(start).Seconds())
		return res, err
	})

	if err != nil && ctx.Err() != nil {
		log.Info("queue: job interrupted", zap.Int("attempt", job.Attempts))
		return err
	}
	q.finish(ctx, job, result, err)
	return err
}

func (q *Queue) finish(ctx context.Context, job *model.Job, result *model.JobResult, err error) {
	end := time.Now().UTC()
	job.FinishedAt = &end
	job.Result = result
	if result != nil && result.FinishedAt.IsZero() {
		result.FinishedAt = end
		if job.StartedAt != nil {
			result.Duration = end.Sub(*job.StartedAt)
		}
	}

	log := zap.L().With(
		zap.String("job_id", job.ID),
		zap.String("job_type", string(job.Type)),
		zap.String("merchant", job.Payload.Merchant),
		zap.Int("attempt", job.Attempts),
	)
	if err != nil {
		job.Status = model.JobStatusFailed
		job.Error = err.Error()
		q.failed.Add(1)
		log.Error("queue: job failed", zap.Bool("permanent", resilience.IsPermanent(err)), zap.Error(err))
	} else {
		job.Status = model.JobStatusCompleted
		job.Error = ""
		q.completed.Add(1)
		fields := []zap.Field{}
		if result != nil {
			fields = append(fields,
				zap.Int("created", result.Created),
				zap.Int("updated", result.Updated),
				zap.Int("skipped", result.Skipped),
				zap.Int("errors", result.Errors),
			)
		}
		log.Info("queue: job completed", fields...)
	}
	metrics.JobsTotal.WithLabelValues(string(job.Type), string(job.Status)).Inc()

	if ferr := q.broker.Finish(context.WithoutCancel(ctx), job); ferr != nil {
		log.Error("queue: record finished job", zap.Error(ferr))
	}
}

// Completed returns up to limit recently completed jobs, newest first.
func (q *Queue) Completed(ctx context.Context, limit int) ([]model.Job, error) {
	return q.broker.List(ctx, model.JobStatusCompleted, limit)
}

// Failed returns up to limit retained failed jobs, newest first.
func (q *Queue) Failed(ctx context.Context, limit int) ([]model.Job, error) {
	return q.broker.List(ctx, model.JobStatusFailed, limit)
}

// Stats returns queue counters.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	pending, err := q.broker.Len(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Pending:   pending,
		Active:    q.active.Load(),
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
		Retried:   q.retried.Load(),
	}, nil
}
