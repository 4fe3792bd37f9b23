package retry

import (
	"context"
	"time"

	"chatsync/pkg/errors"
	"chatsync/pkg/logger"
)

// Policy is the single retry policy applied to transient I/O failures.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

// Do runs fn, retrying while it returns a retryable error. Non-retryable
// errors and context cancellation stop the loop immediately.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	delay := p.BaseDelay

	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !errors.IsRetryable(err) || attempt >= p.MaxAttempts {
			return err
		}

		logger.Warn("retry: %s failed (attempt %d/%d), retrying in %v: %v", op, attempt, p.MaxAttempts, delay, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
}
