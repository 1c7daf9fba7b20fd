package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInit_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Init()
		Init()
	})
}

func TestIngestOutcomes_Labels(t *testing.T) {
	IngestOutcomes.WithLabelValues("Amazon", "created").Inc()
	IngestOutcomes.WithLabelValues("Amazon", "created").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(IngestOutcomes.WithLabelValues("Amazon", "created")))
}
