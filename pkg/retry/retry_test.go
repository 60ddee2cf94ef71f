package retry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
		MaxElapsedTime:  time.Second,
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(5), func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(3), func() error {
		calls++
		return fmt.Errorf("always fails")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Retry(ctx, fastPolicy(100), func() error {
		calls++
		if calls == 2 {
			cancel()
		}
		return fmt.Errorf("failing")
	})

	require.Error(t, err)
	assert.LessOrEqual(t, calls, 3)
}

func TestRetryNotifyReportsAttempts(t *testing.T) {
	var notified int
	calls := 0
	err := RetryNotify(context.Background(), fastPolicy(4),
		func() error {
			calls++
			if calls < 3 {
				return fmt.Errorf("transient")
			}
			return nil
		},
		func(err error, next time.Duration) {
			notified++
			assert.Error(t, err)
		},
	)

	require.NoError(t, err)
	assert.Equal(t, 2, notified)
}
