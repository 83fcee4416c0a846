package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/imtaco/room-relay/internal/log"
)

func TestPing(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	assert.NoError(t, Ping(context.Background(), client, time.Second, log.NewTest(t)))
}

func TestPingGivesUp(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.SetError("LOADING redis is loading")

	start := time.Now()
	assert.Error(t, Ping(context.Background(), client, 300*time.Millisecond, log.NewNop()))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestPingFailsFastOnAuth(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("secret")
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	start := time.Now()
	err := Ping(context.Background(), client, 10*time.Second, log.NewNop())
	assert.ErrorContains(t, err, "NOAUTH")
	assert.Less(t, time.Since(start), time.Second)
}
