package queue

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dealpulse/ingest/internal/metrics"
)

// monitor refreshes the depth gauge until ctx is cancelled. The broker is
// the source of truth since other processes push to and pop from it too.
func (q *Queue) monitor(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.cfg.SampleInterval)
	defer ticker.Stop()

	q.sampleDepth(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.sampleDepth(ctx)
		}
	}
}

func (q *Queue) sampleDepth(ctx context.Context) {
	st, err := q.Stats(ctx)
	if err != nil {
		if ctx.Err() == nil {
			zap.L().Warn("queue: sample depth failed", zap.Error(err))
		}
		return
	}
	metrics.QueueDepth.Set(float64(st.Pending))
	zap.L().Debug("queue: stats",
		zap.Int64("pending", st.Pending),
		zap.Int64("active", st.Active),
		zap.Int64("completed", st.Completed),
		zap.Int64("failed", st.Failed),
		zap.Int64("retried", st.Retried),
	)
}
