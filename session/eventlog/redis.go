// Package eventlog publishes room membership changes to a Redis stream so
// other services can follow room lifecycles without talking to the gateway.
package eventlog

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/imtaco/room-relay/internal/log"
	sredis "github.com/imtaco/room-relay/internal/stream/redis"
	"github.com/imtaco/room-relay/session"
)

const defaultTrimInterval = 10 * time.Minute

type RedisSink struct {
	producer sredis.Producer
	trimer   sredis.Trimer
	maxAge   time.Duration
	clock    clockwork.Clock
	logger   *log.Logger
}

// NewRedisSink writes events through producer. A trimer with a positive maxAge
// enables the retention loop started by Run.
func NewRedisSink(
	producer sredis.Producer,
	trimer sredis.Trimer,
	maxAge time.Duration,
	clock clockwork.Clock,
	logger *log.Logger,
) *RedisSink {
	if producer == nil || logger == nil {
		panic("producer and logger are required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RedisSink{
		producer: producer,
		trimer:   trimer,
		maxAge:   maxAge,
		clock:    clock,
		logger:   logger,
	}
}

var _ session.EventSink = (*RedisSink)(nil)

// Publish never fails the caller; a lost event is logged.
func (s *RedisSink) Publish(ctx context.Context, ev *session.RoomEvent) {
	values := map[string]any{
		"type": ev.Type,
		"room": ev.RoomCode,
		"at":   ev.At.UTC().Format(time.RFC3339Nano),
	}
	if ev.UserID != "" {
		values["user"] = ev.UserID
	}
	if ev.ConnectionID != "" {
		values["conn"] = ev.ConnectionID
	}

	if _, err := s.producer.Add(ctx, values); err != nil {
		s.logger.Warn("Failed to publish room event",
			log.String("stream", s.producer.Stream()),
			log.String("type", ev.Type),
			log.String("roomCode", ev.RoomCode),
			log.Error(err))
	}
}

// Run trims entries older than maxAge every interval until ctx is done.
func (s *RedisSink) Run(ctx context.Context, interval time.Duration) {
	if s.trimer == nil || s.maxAge <= 0 {
		return
	}
	if interval <= 0 {
		interval = defaultTrimInterval
	}

	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			n, err := s.trimer.TrimByTime(ctx, s.maxAge)
			if err != nil {
				s.logger.Warn("Failed to trim room event stream", log.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("Trimmed room event stream",
					log.String("stream", s.producer.Stream()),
					log.Int64("trimmed", n))
			}
		}
	}
}
