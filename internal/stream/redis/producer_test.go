package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/imtaco/room-relay/internal/log"
)

type ProducerTestSuite struct {
	suite.Suite
	mr     *miniredis.Miniredis
	client *redis.Client
	logger *log.Logger
}

func TestProducerSuite(t *testing.T) {
	suite.Run(t, new(ProducerTestSuite))
}

func (s *ProducerTestSuite) SetupTest() {
	mr := miniredis.RunT(s.T())
	s.mr = mr
	s.client = redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	s.logger = log.NewNop()
}

func (s *ProducerTestSuite) TearDownTest() {
	s.client.Close()
	s.mr.Close()
}

func (s *ProducerTestSuite) TestNewProducerValidation() {
	producer, err := NewProducer(nil, "room-events", 0, s.logger)
	s.Error(err)
	s.Nil(producer)
	s.Contains(err.Error(), "redis client is required")

	_, err = NewProducer(s.client, "", 0, s.logger)
	s.Contains(err.Error(), "stream name is required")

	_, err = NewProducer(s.client, "room-events", 0, nil)
	s.Contains(err.Error(), "logger is required")
}

func (s *ProducerTestSuite) TestAdd() {
	producer, err := NewProducer(s.client, "room-events", 0, s.logger)
	s.Require().NoError(err)
	s.Equal("room-events", producer.Stream())

	ctx := context.Background()
	id1, err := producer.Add(ctx, map[string]any{"type": "room-created", "room": "abc-xyz"})
	s.Require().NoError(err)
	id2, err := producer.Add(ctx, map[string]any{"type": "room-deleted", "room": "abc-xyz"})
	s.Require().NoError(err)
	s.NotEqual(id1, id2)

	msgs, err := s.client.XRange(ctx, "room-events", "-", "+").Result()
	s.Require().NoError(err)
	s.Require().Len(msgs, 2)
	s.Equal("room-created", msgs[0].Values["type"])
	s.Equal("room-deleted", msgs[1].Values["type"])
}

func (s *ProducerTestSuite) TestAddWithMaxLen() {
	producer, err := NewProducer(s.client, "room-events", 5, s.logger)
	s.Require().NoError(err)

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		_, err := producer.Add(ctx, map[string]any{"i": i})
		s.Require().NoError(err)
	}

	// trimming is approximate, the stream never grows past what was added
	length := s.client.XLen(ctx, "room-events").Val()
	s.LessOrEqual(length, int64(20))
	s.Positive(length)
}

func (s *ProducerTestSuite) TestAddEmptyValues() {
	producer, err := NewProducer(s.client, "room-events", 0, s.logger)
	s.Require().NoError(err)

	_, err = producer.Add(context.Background(), map[string]any{})
	s.Error(err, "XADD requires at least one field-value pair")
}

func (s *ProducerTestSuite) TestAddServerError() {
	producer, err := NewProducer(s.client, "room-events", 0, s.logger)
	s.Require().NoError(err)

	s.mr.SetError("LOADING")
	_, err = producer.Add(context.Background(), map[string]any{"k": "v"})
	s.Error(err)
	s.Contains(err.Error(), "failed to add message to stream")
}

func (s *ProducerTestSuite) TestAddConcurrent() {
	producer, err := NewProducer(s.client, "room-events", 0, s.logger)
	s.Require().NoError(err)

	ctx := context.Background()
	const writers = 50
	ids := make(chan string, writers)
	errs := make(chan error, writers)

	for i := range writers {
		go func(index int) {
			id, err := producer.Add(ctx, map[string]any{"index": index})
			if err != nil {
				errs <- err
				return
			}
			ids <- id
		}(i)
	}

	unique := make(map[string]bool)
	for range writers {
		select {
		case id := <-ids:
			s.False(unique[id], "ID %s should be unique", id)
			unique[id] = true
		case err := <-errs:
			s.Fail("unexpected error", err.Error())
		}
	}
	s.Equal(int64(writers), s.client.XLen(ctx, "room-events").Val())
}
