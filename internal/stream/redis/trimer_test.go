package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/imtaco/room-relay/internal/log"
)

type TrimerTestSuite struct {
	suite.Suite
	mr     *miniredis.Miniredis
	client *redis.Client
	logger *log.Logger
	ctx    context.Context
}

func TestTrimerSuite(t *testing.T) {
	suite.Run(t, new(TrimerTestSuite))
}

func (s *TrimerTestSuite) SetupTest() {
	mr := miniredis.RunT(s.T())
	s.mr = mr
	s.client = redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	s.logger = log.NewNop()
	s.ctx = context.Background()
}

func (s *TrimerTestSuite) TearDownTest() {
	s.client.Close()
	s.mr.Close()
}

func (s *TrimerTestSuite) addAt(ids ...string) {
	for _, id := range ids {
		s.Require().NoError(s.client.XAdd(s.ctx, &redis.XAddArgs{
			Stream: "room-events",
			ID:     id,
			Values: map[string]any{"id": id},
		}).Err())
	}
}

func (s *TrimerTestSuite) TestTrimByMaxLen() {
	s.addAt("1000-0", "2000-0", "3000-0", "4000-0", "5000-0")

	trimer := NewTrimer(s.client, "room-events", nil, s.logger)
	trimmed, err := trimer.TrimByMaxLen(s.ctx, 2)
	s.Require().NoError(err)
	s.Equal(int64(3), trimmed)

	msgs, err := s.client.XRange(s.ctx, "room-events", "-", "+").Result()
	s.Require().NoError(err)
	s.Require().Len(msgs, 2)
	s.Equal("4000-0", msgs[0].ID)
}

func (s *TrimerTestSuite) TestTrimByTime() {
	s.addAt("1000-0", "2000-0", "3000-0")

	// cutoff lands at 2500ms
	clock := clockwork.NewFakeClockAt(time.UnixMilli(3500))
	trimer := NewTrimer(s.client, "room-events", clock, s.logger)

	trimmed, err := trimer.TrimByTime(s.ctx, time.Second)
	s.Require().NoError(err)
	s.Equal(int64(2), trimmed)
	s.Equal(int64(1), s.client.XLen(s.ctx, "room-events").Val())
}

func (s *TrimerTestSuite) TestTrimEmptyStream() {
	trimer := NewTrimer(s.client, "room-events", nil, s.logger)

	trimmed, err := trimer.TrimByTime(s.ctx, time.Hour)
	s.NoError(err)
	s.Zero(trimmed)

	trimmed, err = trimer.TrimByMaxLen(s.ctx, 10)
	s.NoError(err)
	s.Zero(trimmed)
}
