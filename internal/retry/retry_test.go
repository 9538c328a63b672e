package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowkernel/kernel/internal/kernelerr"
)

func TestDoStopsAtMaxRetriesPlusOneAttempts(t *testing.T) {
	cfg := Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 1, Jitter: false}
	calls := 0
	_, err := Do(context.Background(), cfg, func(ctx context.Context) (map[string]any, error) {
		calls++
		return nil, kernelerr.New(kernelerr.Integration, "boom")
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
}

func TestDoReturnsSuccessValueWithoutExhausting(t *testing.T) {
	cfg := DefaultConfig()
	calls := 0
	out, err := Do(context.Background(), cfg, func(ctx context.Context) (map[string]any, error) {
		calls++
		if calls < 2 {
			return nil, kernelerr.New(kernelerr.Integration, "transient")
		}
		return map[string]any{"ok": true}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, true, out["ok"])
}

func TestDoDoesNotRetryValidationErrors(t *testing.T) {
	cfg := DefaultConfig()
	calls := 0
	_, err := Do(context.Background(), cfg, func(ctx context.Context) (map[string]any, error) {
		calls++
		return nil, kernelerr.New(kernelerr.Validation, "bad input")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoffNonDecreasingWithoutJitter(t *testing.T) {
	cfg := Config{MaxRetries: 5, InitialDelay: 10 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, Jitter: false}
	prev := time.Duration(0)
	for i := 0; i < 5; i++ {
		d := backoffDelay(cfg, i)
		assert.GreaterOrEqual(t, d, prev)
		prev = d
	}
}

func TestIsRetryableMatchesCanonicalPatterns(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, IsRetryable(kernelerr.New(kernelerr.Integration, "unauthorized access"), cfg))
	assert.True(t, IsRetryable(kernelerr.New(kernelerr.Integration, "upstream timeout"), cfg))
}
