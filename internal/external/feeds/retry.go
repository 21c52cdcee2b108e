// Package feeds holds the external market-data clients: prices, FX rates,
// and the earnings calendar. All outbound calls go through the shared
// httputil client and the retry wrapper below.
package feeds

import (
	"context"
	"fmt"
	"time"

	"github.com/stockmonitor/monthend/pkg/logger"
)

// Retry runs fn up to maxAttempts times with exponential backoff
// (2^attempt seconds between tries). Cancellation during the backoff
// sleep aborts immediately and returns the context error; the last fetch
// error is returned once attempts are exhausted.
func Retry(ctx context.Context, log *logger.Logger, name string, maxAttempts int, fn func(ctx context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<uint(attempt)) * time.Second
			log.WithFields(map[string]interface{}{
				"feed":    name,
				"attempt": attempt + 1,
				"delay":   delay,
			}).Warn("Retrying feed call")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", name, maxAttempts, lastErr)
}
