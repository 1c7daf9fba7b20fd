package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealpulse/ingest/internal/metrics"
	"github.com/dealpulse/ingest/internal/model"
)

func TestQueue_SampleDepth(t *testing.T) {
	q, b := newTestQueue(t, DefaultRetention())
	ctx := context.Background()
	for _, m := range []string{"amazon", "flipkart", "myntra"} {
		require.NoError(t, b.Push(ctx, &model.Job{ID: m, Type: model.JobScrapeMerchant, Payload: model.JobPayload{Merchant: m}}))
	}

	q.sampleDepth(ctx)
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.QueueDepth))

	_, err := b.Pop(ctx, time.Millisecond)
	require.NoError(t, err)
	q.sampleDepth(ctx)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.QueueDepth))
}

type lenErrBroker struct {
	*MemoryBroker
}

func (lenErrBroker) Len(context.Context) (int64, error) {
	return 0, errors.New("redis: connection refused")
}

func TestQueue_SampleDepthBrokerError(t *testing.T) {
	q := New(lenErrBroker{NewMemoryBroker(DefaultRetention())}, fastConfig())
	metrics.QueueDepth.Set(5)

	q.sampleDepth(context.Background())
	assert.Equal(t, 5.0, testutil.ToFloat64(metrics.QueueDepth), "gauge keeps last good value")
}
