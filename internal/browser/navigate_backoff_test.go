package browser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dealpulse/ingest/internal/resilience"
)

func TestNavigateConfig_BackoffDoubles(t *testing.T) {
	retry := DefaultNavigateConfig().retryConfig()
	assert.Equal(t, 3, retry.MaxAttempts)

	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, d := range want {
		assert.Equal(t, d, resilience.Backoff(i, retry), "delay after attempt %d", i+1)
	}
}
