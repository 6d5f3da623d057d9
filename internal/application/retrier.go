package application

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/bnema/tabflow/internal/domain"
)

const (
	retryAttempts = 3
	retryDelay    = 200 * time.Millisecond
)

// Retrier wraps corrective host calls with bounded retry on the recognized
// transient-busy condition. Any other failure is terminal on the first
// attempt. Completion is asynchronous: callers receive a channel and must
// not assume the action finished when Do returns.
type Retrier struct {
	attempts int
	delay    time.Duration
	log      *zap.Logger
}

func NewRetrier(log *zap.Logger) *Retrier {
	if log == nil {
		log = zap.NewNop()
	}

	return &Retrier{
		attempts: retryAttempts,
		delay:    retryDelay,
		log:      log,
	}
}

// Do runs fn, retrying on domain.ErrHostBusy with a fixed delay. The
// returned channel receives the terminal result exactly once.
func (r *Retrier) Do(ctx context.Context, op string, fn func(context.Context) error) <-chan error {
	done := make(chan error, 1)

	go func() {
		var err error
		for attempt := 1; attempt <= r.attempts; attempt++ {
			err = fn(ctx)
			if err == nil {
				done <- nil
				return
			}
			if !errors.Is(err, domain.ErrHostBusy) {
				r.log.Warn("corrective action failed",
					zap.String("op", op),
					zap.Error(err))
				done <- err
				return
			}
			if attempt == r.attempts {
				break
			}

			r.log.Debug("host busy, retrying corrective action",
				zap.String("op", op),
				zap.Int("attempt", attempt))

			select {
			case <-time.After(r.delay):
			case <-ctx.Done():
				done <- ctx.Err()
				return
			}
		}

		// Exhausted: non-fatal. Tracked state stays consistent even if the
		// browser's visible selection did not follow.
		r.log.Warn("corrective action gave up after retries",
			zap.String("op", op),
			zap.Int("attempts", r.attempts),
			zap.Error(err))
		done <- err
	}()

	return done
}
