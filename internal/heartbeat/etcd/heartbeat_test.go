package etcd

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/imtaco/room-relay/internal/log"
)

type fakeLease struct {
	mu        sync.Mutex
	nextID    clientv3.LeaseID
	grantErr  error
	puts      map[string]int
	revoked   []clientv3.LeaseID
	keepAlive []chan *clientv3.LeaseKeepAliveResponse
}

func newFakeLease() *fakeLease {
	return &fakeLease{puts: make(map[string]int)}
}

func (f *fakeLease) Grant(_ context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.grantErr != nil {
		return nil, f.grantErr
	}
	f.nextID++
	return &clientv3.LeaseGrantResponse{ID: f.nextID, TTL: ttl}, nil
}

func (f *fakeLease) Put(_ context.Context, key, _ string, _ ...clientv3.OpOption) (*clientv3.PutResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts[key]++
	return &clientv3.PutResponse{}, nil
}

func (f *fakeLease) KeepAlive(context.Context, clientv3.LeaseID) (<-chan *clientv3.LeaseKeepAliveResponse, error) {
	ch := make(chan *clientv3.LeaseKeepAliveResponse, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keepAlive = append(f.keepAlive, ch)
	return ch, nil
}

func (f *fakeLease) Revoke(_ context.Context, id clientv3.LeaseID) (*clientv3.LeaseRevokeResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, id)
	return &clientv3.LeaseRevokeResponse{}, nil
}

func (f *fakeLease) putCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts[key]
}

func (f *fakeLease) streams() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.keepAlive)
}

type HeartbeatSuite struct {
	suite.Suite
	lease *fakeLease
	hb    *Heartbeat[map[string]string]
}

func TestHeartbeatSuite(t *testing.T) {
	suite.Run(t, new(HeartbeatSuite))
}

func (s *HeartbeatSuite) SetupTest() {
	s.lease = newFakeLease()
	s.hb = New(s.lease, "/room-relay/gateways/gw-1", map[string]string{"id": "gw-1"}, 10*time.Second, log.NewTest(s.T()))
}

func (s *HeartbeatSuite) TestRejectsShortTTL() {
	s.Panics(func() {
		New(s.lease, "/k", "v", 500*time.Millisecond, log.NewNop())
	})
}

func (s *HeartbeatSuite) TestStartPutsKeyWithLease() {
	s.Require().NoError(s.hb.Start(context.Background()))
	s.Equal(1, s.lease.putCount("/room-relay/gateways/gw-1"))

	s.Require().NoError(s.hb.Stop(context.Background()))
	s.Equal([]clientv3.LeaseID{1}, s.lease.revoked)
}

func (s *HeartbeatSuite) TestStartFailsWhenGrantFails() {
	s.lease.grantErr = errors.New("etcdserver: no leader")
	s.Error(s.hb.Start(context.Background()))
	s.NoError(s.hb.Stop(context.Background()))
}

func (s *HeartbeatSuite) TestRecreatesLeaseWhenStreamEnds() {
	s.Require().NoError(s.hb.Start(context.Background()))

	s.lease.mu.Lock()
	close(s.lease.keepAlive[0])
	s.lease.mu.Unlock()

	s.Eventually(func() bool { return s.lease.streams() == 2 }, 2*time.Second, 10*time.Millisecond)
	s.Eventually(func() bool {
		return s.lease.putCount("/room-relay/gateways/gw-1") == 2
	}, 2*time.Second, 10*time.Millisecond)

	s.Require().NoError(s.hb.Stop(context.Background()))
	s.Equal([]clientv3.LeaseID{2}, s.lease.revoked)
}

func (s *HeartbeatSuite) TestStopWithoutStart() {
	s.NoError(s.hb.Stop(context.Background()))
}
