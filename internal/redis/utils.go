package redis

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/imtaco/room-relay/internal/log"
	"github.com/imtaco/room-relay/internal/retry"
)

const (
	defaultPingTimeout = 3 * time.Second
)

// Ping waits for redis to answer, retrying with backoff for up to maxWait.
// Containers often start before redis is ready to serve.
func Ping(ctx context.Context, client redis.UniversalClient, maxWait time.Duration, logger *log.Logger) error {
	r := retry.New(logger, 200*time.Millisecond, 2*time.Second, maxWait)
	return r.Do(ctx, func() error {
		pctx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
		defer cancel()
		err := client.Ping(pctx).Err()
		if err != nil && isAuthError(err) {
			// waiting does not fix credentials
			return retry.Permanent(err)
		}
		return err
	})
}

func isAuthError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "WRONGPASS") || strings.HasPrefix(msg, "NOAUTH")
}
