package runner

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

const (
	baseRetryDelay = 250 * time.Millisecond
	maxRetryDelay  = 5 * time.Second
)

// RetryPolicy configures dial retries.
type RetryPolicy struct {
	MaxAttempts int                                        // total attempts including initial try
	Delay       time.Duration                              // fixed delay between retries (used if DelayFunc nil)
	ShouldRetry func(error) bool                           // predicate; if nil, all errors retried
	DelayFunc   func(attempt int, err error) time.Duration // dynamic backoff; attempt is 1-based
}

// BackoffPolicy retries a failed dial up to retries times with capped
// exponential backoff and jitter. Cancellation is never retried.
func BackoffPolicy(retries int) RetryPolicy {
	source := &jitterSource{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
	return RetryPolicy{
		MaxAttempts: retries + 1,
		ShouldRetry: func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		},
		DelayFunc: func(attempt int, _ error) time.Duration {
			if attempt < 1 {
				attempt = 1
			}
			backoff := time.Duration(1<<uint(attempt-1)) * baseRetryDelay
			if backoff > maxRetryDelay {
				backoff = maxRetryDelay
			}
			return backoff + source.jitter(backoff/2)
		},
	}
}

type jitterSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func (j *jitterSource) jitter(max time.Duration) time.Duration {
	if j == nil || max <= 0 {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return time.Duration(j.rnd.Int63n(int64(max)))
}

type retryDialer struct {
	inner  Dialer
	policy RetryPolicy
	logger *slog.Logger
}

// WithRetry wraps a Dialer with retry capability.
func WithRetry(d Dialer, policy RetryPolicy, logger *slog.Logger) Dialer {
	if policy.MaxAttempts <= 1 {
		return d
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &retryDialer{inner: d, policy: policy, logger: logger}
}

func (r *retryDialer) Dial(ctx context.Context, endpoint string) (Connection, error) {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, ctx.Err()
		}

		c, err := r.inner.Dial(ctx, endpoint)
		if err == nil {
			return c, nil
		}
		lastErr = err

		if attempt == r.policy.MaxAttempts {
			break
		}
		if r.policy.ShouldRetry != nil && !r.policy.ShouldRetry(err) {
			return nil, err
		}
		delay := r.policy.Delay
		if r.policy.DelayFunc != nil {
			delay = r.policy.DelayFunc(attempt, err)
		}
		r.logger.Debug("dial failed, retrying", "endpoint", endpoint, "attempt", attempt, "delay", delay, "error", err)
		if delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return nil, lastErr
			}
		}
	}
	return nil, lastErr
}
