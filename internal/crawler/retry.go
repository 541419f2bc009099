package crawler

import (
	"context"
	"math/rand/v2"
	"time"

	"dkovalchuk/catalogcrawler/logger"
	crawlerr "dkovalchuk/catalogcrawler/pkg/errors"
)

// DelayRange is a randomized pause bound, in seconds
type DelayRange struct {
	Min float64
	Max float64
}

// Sleep pauses for a uniformly random duration within the range, returning
// early if ctx is canceled
func (d DelayRange) Sleep(ctx context.Context) {
	span := d.Max - d.Min
	if span < 0 {
		span = 0
	}
	seconds := d.Min + rand.Float64()*span
	if seconds <= 0 {
		return
	}
	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// RetryPolicy bounds repeated attempts of one unit of work
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first
	MaxAttempts int
	// Delay is slept between attempts
	Delay DelayRange
}

// Do runs fn up to MaxAttempts times, sleeping the randomized delay between
// attempts. It stops early on success, on a non-retryable error, or when ctx
// is canceled; the last error is returned.
func (p RetryPolicy) Do(ctx context.Context, log *logger.Logger, op string, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !crawlerr.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt < attempts {
			log.Warn().
				Str("op", op).
				Int("attempt", attempt).
				Int("max_attempts", attempts).
				Err(lastErr).
				Msg("Attempt failed, retrying")
			p.Delay.Sleep(ctx)
		}
	}
	return lastErr
}
