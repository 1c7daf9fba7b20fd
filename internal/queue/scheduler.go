package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dealpulse/ingest/internal/model"
)

// Enqueuer is the part of Queue the scheduler fires into.
type Enqueuer interface {
	Enqueue(ctx context.Context, t model.JobType, payload model.JobPayload, opts ...Option) (string, error)
}

// Schedule is one recurring job.
type Schedule struct {
	Key     string           `json:"key"`
	Spec    string           `json:"spec"`
	Type    model.JobType    `json:"type"`
	Payload model.JobPayload `json:"payload"`
	Next    time.Time        `json:"next,omitempty"`
	Prev    time.Time        `json:"prev,omitempty"`
}

type scheduleEntry struct {
	Schedule
	id    cron.EntryID
	sched cron.Schedule
}

// Scheduler fires recurring jobs from standard cron expressions
// ("0 */6 * * *", "@every 6h"). Each schedule is identified by a stable key
// so re-registering on every startup never duplicates a trigger.
type Scheduler struct {
	cron *cron.Cron
	q    Enqueuer

	mu      sync.Mutex
	ctx     context.Context
	entries map[string]*scheduleEntry
}

// NewScheduler creates a stopped scheduler enqueuing into q. Times are UTC.
func NewScheduler(q Enqueuer) *Scheduler {
	logger := cronLogger{zap.L().Sugar().With("component", "scheduler")}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger)),
		),
		q:       q,
		ctx:     context.Background(),
		entries: make(map[string]*scheduleEntry),
	}
}

// Register adds or updates the schedule under key. Registering the same
// key with the same spec, type and payload is a no-op; anything else
// replaces the previous trigger. changed reports whether a trigger was
// added or replaced.
func (s *Scheduler) Register(key, spec string, t model.JobType, payload model.JobPayload) (changed bool, err error) {
	if key == "" {
		return false, eris.New("queue: schedule key is required")
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return false, eris.Wrapf(err, "queue: schedule %s: parse %q", key, spec)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.entries[key]; ok {
		if cur.Spec == spec && cur.Type == t && cur.Payload == payload {
			return false, nil
		}
		s.cron.Remove(cur.id)
	}

	id := s.cron.Schedule(sched, cron.FuncJob(func() { s.fire(key) }))
	s.entries[key] = &scheduleEntry{
		Schedule: Schedule{Key: key, Spec: spec, Type: t, Payload: payload},
		id:       id,
		sched:    sched,
	}
	zap.L().Info("queue: schedule registered",
		zap.String("key", key),
		zap.String("spec", spec),
		zap.String("job_type", string(t)),
	)
	return true, nil
}

// Remove deletes the schedule under key and reports whether it existed.
func (s *Scheduler) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.entries[key]
	if !ok {
		return false
	}
	s.cron.Remove(cur.id)
	delete(s.entries, key)
	zap.L().Info("queue: schedule removed", zap.String("key", key))
	return true
}

// List returns every schedule sorted by key. Before Start, Next is
// computed from the current time.
func (s *Scheduler) List() []Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	out := make([]Schedule, 0, len(s.entries))
	for _, e := range s.entries {
		sc := e.Schedule
		ce := s.cron.Entry(e.id)
		sc.Next, sc.Prev = ce.Next, ce.Prev
		if sc.Next.IsZero() {
			sc.Next = e.sched.Next(now)
		}
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Start begins firing schedules. Jobs are enqueued with ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
}

// Stop halts the scheduler and waits for in-flight fires.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Fire enqueues the job for key immediately.
func (s *Scheduler) Fire(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	e, ok := s.entries[key]
	var sc Schedule
	if ok {
		sc = e.Schedule
	}
	s.mu.Unlock()
	if !ok {
		return "", eris.Errorf("queue: no schedule %q", key)
	}
	return s.q.Enqueue(ctx, sc.Type, sc.Payload, WithScheduleKey(sc.Key))
}

func (s *Scheduler) fire(key string) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	if _, err := s.Fire(ctx, key); err != nil {
		zap.L().Error("queue: scheduled enqueue failed", zap.String("key", key), zap.Error(err))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
