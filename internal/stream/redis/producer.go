package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/imtaco/room-relay/internal/log"
)

type Producer interface {
	Add(ctx context.Context, values map[string]any) (string, error)
	Stream() string
}

type producerImpl struct {
	client redis.UniversalClient
	stream string
	maxLen int64
	logger *log.Logger
}

// NewProducer appends entries to stream. A positive maxLen caps the stream
// approximately on every add.
func NewProducer(
	client redis.UniversalClient,
	stream string,
	maxLen int64,
	logger *log.Logger,
) (Producer, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if stream == "" {
		return nil, fmt.Errorf("stream name is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &producerImpl{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: logger,
	}, nil
}

func (sp *producerImpl) Stream() string {
	return sp.stream
}

func (sp *producerImpl) Add(ctx context.Context, values map[string]any) (string, error) {
	args := &redis.XAddArgs{
		Stream: sp.stream,
		Values: values,
	}
	if sp.maxLen > 0 {
		args.MaxLen = sp.maxLen
		args.Approx = true
	}

	id, err := sp.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("failed to add message to stream: %w", err)
	}

	sp.logger.Debug("Added message to stream",
		log.String("stream", sp.stream),
		log.String("id", id))

	return id, nil
}
