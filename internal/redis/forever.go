package redis

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/imtaco/room-relay/internal/errors"
	"github.com/imtaco/room-relay/internal/log"
)

// Forever wraps a go-redis client with exponential backoff retry.
// Operations retry until they succeed or ctx is done, so callers bound them with a deadline.
// redis.Nil and command errors that retrying cannot fix are returned at once.
type Forever interface {
	Del(ctx context.Context, keys ...string) (int64, error)
	HGet(ctx context.Context, key string, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	SMembers(ctx context.Context, key string) ([]string, error)
	SCard(ctx context.Context, key string) (int64, error)
	SIsMember(ctx context.Context, key string, member any) (bool, error)
	RunScript(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error)
}

type redisForeverImpl struct {
	client          redis.UniversalClient
	logger          *log.Logger
	initialInterval time.Duration
	maxInterval     time.Duration
}

// NewForever creates a new Redis utility with forever backoff retry logic.
// initialInterval: starting backoff interval (e.g., 100ms)
// maxInterval: maximum backoff interval (e.g., 10s)
func NewForever(
	client redis.UniversalClient,
	initialInterval time.Duration,
	maxInterval time.Duration,
	logger *log.Logger,
) Forever {
	if client == nil {
		panic("redis client is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if initialInterval <= 0 {
		initialInterval = 100 * time.Millisecond
	}
	if maxInterval <= 0 {
		maxInterval = 10 * time.Second
	}

	return &redisForeverImpl{
		client:          client,
		logger:          logger,
		initialInterval: initialInterval,
		maxInterval:     maxInterval,
	}
}

func (r *redisForeverImpl) newForeverBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initialInterval
	b.MaxInterval = r.maxInterval
	b.MaxElapsedTime = 0
	return b
}

// final reports errors that another attempt would repeat.
func final(err error) bool {
	if errors.Is(err, redis.Nil) {
		return true
	}
	msg := err.Error()
	for _, prefix := range []string{"WRONGTYPE", "WRONGPASS", "NOAUTH", "NOPERM", "ERR Error running script"} {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}

// retryWithBackoff runs operation once and only builds a backoff when that fails.
func (r *redisForeverImpl) retryWithBackoff(ctx context.Context, operation func() error, operationName string) error {
	err := operation()
	if err == nil || final(err) {
		return err
	}

	r.logger.Warn("Redis operation failed, entering retry mode",
		log.String("operation", operationName),
		log.Error(err))

	attempt := 1
	return backoff.Retry(func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		attempt++
		err := operation()
		if err == nil {
			r.logger.Info("Redis operation recovered",
				log.String("operation", operationName),
				log.Int("total_attempts", attempt))
			return nil
		}
		if final(err) {
			return backoff.Permanent(err)
		}
		r.logger.Warn("Redis operation retry failed",
			log.String("operation", operationName),
			log.Int("attempt", attempt),
			log.Error(err))
		return err
	}, backoff.WithContext(r.newForeverBackoff(), ctx))
}

func (r *redisForeverImpl) Del(ctx context.Context, keys ...string) (int64, error) {
	var result int64
	err := r.retryWithBackoff(ctx, func() error {
		val, err := r.client.Del(ctx, keys...).Result()
		if err != nil {
			return err
		}
		result = val
		return nil
	}, "Del")
	return result, err
}

func (r *redisForeverImpl) HGet(ctx context.Context, key string, field string) (string, error) {
	var result string
	err := r.retryWithBackoff(ctx, func() error {
		val, err := r.client.HGet(ctx, key, field).Result()
		if err != nil {
			return err
		}
		result = val
		return nil
	}, "HGet")
	return result, err
}

func (r *redisForeverImpl) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	var result map[string]string
	err := r.retryWithBackoff(ctx, func() error {
		val, err := r.client.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		result = val
		return nil
	}, "HGetAll")
	return result, err
}

func (r *redisForeverImpl) SMembers(ctx context.Context, key string) ([]string, error) {
	var result []string
	err := r.retryWithBackoff(ctx, func() error {
		val, err := r.client.SMembers(ctx, key).Result()
		if err != nil {
			return err
		}
		result = val
		return nil
	}, "SMembers")
	return result, err
}

func (r *redisForeverImpl) SCard(ctx context.Context, key string) (int64, error) {
	var result int64
	err := r.retryWithBackoff(ctx, func() error {
		val, err := r.client.SCard(ctx, key).Result()
		if err != nil {
			return err
		}
		result = val
		return nil
	}, "SCard")
	return result, err
}

func (r *redisForeverImpl) SIsMember(ctx context.Context, key string, member any) (bool, error) {
	var result bool
	err := r.retryWithBackoff(ctx, func() error {
		val, err := r.client.SIsMember(ctx, key, member).Result()
		if err != nil {
			return err
		}
		result = val
		return nil
	}, "SIsMember")
	return result, err
}

// RunScript uses EVALSHA and falls back to EVAL when the script is not cached yet.
func (r *redisForeverImpl) RunScript(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error) {
	var result any
	err := r.retryWithBackoff(ctx, func() error {
		val, err := script.Run(ctx, r.client, keys, args...).Result()
		if err != nil {
			return err
		}
		result = val
		return nil
	}, "RunScript")
	return result, err
}
