package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/imtaco/room-relay/internal/log"
)

type Trimer interface {
	TrimByTime(ctx context.Context, maxAge time.Duration) (int64, error)
	TrimByMaxLen(ctx context.Context, maxLen int64) (int64, error)
}

func NewTrimer(
	client redis.UniversalClient,
	stream string,
	clock clockwork.Clock,
	logger *log.Logger,
) Trimer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &trimerImpl{
		client: client,
		stream: stream,
		logger: logger,
		clock:  clock,
	}
}

type trimerImpl struct {
	client redis.UniversalClient
	stream string
	logger *log.Logger
	clock  clockwork.Clock
}

// TrimByTime drops entries older than maxAge. Stream ids carry their creation
// time in milliseconds, so the cutoff is an id.
func (st *trimerImpl) TrimByTime(ctx context.Context, maxAge time.Duration) (int64, error) {
	minID := st.minID(maxAge)
	trimmed, err := st.client.XTrimMinID(ctx, st.stream, minID).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to trim stream: %w", err)
	}

	st.logger.Debug("Trimmed stream",
		log.String("stream", st.stream),
		log.String("min_id", minID),
		log.Int64("trimmed_count", trimmed))

	return trimmed, nil
}

func (st *trimerImpl) TrimByMaxLen(ctx context.Context, maxLen int64) (int64, error) {
	trimmed, err := st.client.XTrimMaxLen(ctx, st.stream, maxLen).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to trim stream: %w", err)
	}

	st.logger.Debug("Trimmed stream by maxLen",
		log.String("stream", st.stream),
		log.Int64("max_len", maxLen),
		log.Int64("trimmed_count", trimmed))

	return trimmed, nil
}
