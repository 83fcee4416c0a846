package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/imtaco/room-relay/internal/log"
)

type Retry interface {
	Do(ctx context.Context, operation func() error) error
}

// New retries with exponential backoff. A zero maxElapsedTime retries until
// ctx is done.
func New(logger *log.Logger, initialInterval, maxInterval, maxElapsedTime time.Duration) Retry {
	return &retryImpl{
		logger:          logger,
		initialInterval: initialInterval,
		maxInterval:     maxInterval,
		maxElapsedTime:  maxElapsedTime,
	}
}

// Permanent stops Do at once and makes it return err.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

type retryImpl struct {
	logger          *log.Logger
	initialInterval time.Duration
	maxInterval     time.Duration
	maxElapsedTime  time.Duration
}

func (r *retryImpl) Do(ctx context.Context, operation func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initialInterval
	b.MaxInterval = r.maxInterval
	b.MaxElapsedTime = r.maxElapsedTime

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		return operation()
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		r.logger.Warn("Retry attempt failed",
			log.Int("attempt", attempt),
			log.Duration("next", next),
			log.Error(err))
	})
}
