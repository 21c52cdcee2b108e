package feeds

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockmonitor/monthend/pkg/logger"
)

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), logger.NewNop(), "prices", 3, func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryReturnsLastErrorWhenExhausted(t *testing.T) {
	// single attempt: no backoff sleep involved
	sentinel := errors.New("feed down")
	calls := 0
	err := Retry(context.Background(), logger.NewNop(), "fx", 1, func(ctx context.Context) error {
		calls++
		return sentinel
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "after 1 attempts")
	assert.Equal(t, 1, calls)
}

func TestRetryCancellationDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	errCh := make(chan error, 1)
	go func() {
		errCh <- Retry(ctx, logger.NewNop(), "earnings", 3, func(ctx context.Context) error {
			calls++
			return errors.New("transient")
		})
	}()

	// first attempt fails immediately; cancel while the wrapper sleeps
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(2 * time.Second):
		t.Fatal("cancellation was swallowed by the backoff sleep")
	}
}

func TestRetryZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_ = Retry(context.Background(), logger.NewNop(), "prices", 0, func(ctx context.Context) error {
		calls++
		return nil
	})
	assert.Equal(t, 1, calls)
}
