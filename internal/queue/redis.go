package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/dealpulse/ingest/internal/model"
)

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, eris.Wrapf(err, "queue: parse redis url")
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, eris.Wrap(err, "queue: redis ping")
	}
	return client, nil
}

// RedisBroker keeps jobs in Redis lists so several worker processes can
// share one queue. Jobs are JSON-encoded.
//
//	<prefix>:jobs:pending    LPUSH / BRPOP
//	<prefix>:jobs:completed  LPUSH + LTRIM to KeepCompleted
//	<prefix>:jobs:failed     LPUSH + LTRIM to KeepFailed
type RedisBroker struct {
	rdb    *redis.Client
	prefix string
	ret    Retention
}

// NewRedisBroker creates a broker over rdb. prefix namespaces every key.
func NewRedisBroker(rdb *redis.Client, prefix string, ret Retention) *RedisBroker {
	if prefix == "" {
		prefix = "dealpulse"
	}
	return &RedisBroker{rdb: rdb, prefix: prefix, ret: ret}
}

func (b *RedisBroker) key(name string) string {
	return b.prefix + ":jobs:" + name
}

func (b *RedisBroker) listKey(status model.JobStatus) string {
	if status == model.JobStatusFailed {
		return b.key("failed")
	}
	return b.key("completed")
}

func (b *RedisBroker) Push(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "queue: encode job")
	}
	return eris.Wrapf(b.rdb.LPush(ctx, b.key("pending"), data).Err(), "queue: push job %s", job.ID)
}

func (b *RedisBroker) Pop(ctx context.Context, wait time.Duration) (*model.Job, error) {
	res, err := b.rdb.BRPop(ctx, wait, b.key("pending")).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, eris.Wrap(err, "queue: pop job")
	}
	// BRPOP returns [key, value].
	var job model.Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, eris.Wrap(err, "queue: decode job")
	}
	return &job, nil
}

func (b *RedisBroker) Finish(ctx context.Context, job *model.Job) error {
	keep := b.ret.keep(job.Status)
	if keep <= 0 {
		return nil
	}
	data, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "queue: encode job")
	}
	key := b.listKey(job.Status)
	_, err = b.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, key, data)
		p.LTrim(ctx, key, 0, int64(keep-1))
		return nil
	})
	return eris.Wrapf(err, "queue: finish job %s", job.ID)
}

func (b *RedisBroker) List(ctx context.Context, status model.JobStatus, limit int) ([]model.Job, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	vals, err := b.rdb.LRange(ctx, b.listKey(status), 0, stop).Result()
	if err != nil {
		return nil, eris.Wrapf(err, "queue: list %s jobs", status)
	}
	out := make([]model.Job, 0, len(vals))
	for _, v := range vals {
		var job model.Job
		if err := json.Unmarshal([]byte(v), &job); err != nil {
			return nil, eris.Wrap(err, "queue: decode job")
		}
		out = append(out, job)
	}
	return out, nil
}

func (b *RedisBroker) Len(ctx context.Context) (int64, error) {
	n, err := b.rdb.LLen(ctx, b.key("pending")).Result()
	return n, eris.Wrap(err, "queue: pending length")
}

func (b *RedisBroker) Close() error {
	return b.rdb.Close()
}
