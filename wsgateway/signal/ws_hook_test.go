package signal

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/imtaco/room-relay/internal/errors"
	"github.com/imtaco/room-relay/internal/identity"
	"github.com/imtaco/room-relay/internal/jsonrpc"
	wsrpc "github.com/imtaco/room-relay/internal/jsonrpc/websocket"
	"github.com/imtaco/room-relay/internal/log"
)

type stubVerifier struct {
	id  *identity.Identity
	err error
}

func (v *stubVerifier) Verify(context.Context, string) (*identity.Identity, error) {
	return v.id, v.err
}

type recordingDisconnector struct {
	mu    sync.Mutex
	conns []string
}

func (d *recordingDisconnector) HandleDisconnect(_ context.Context, connID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conns = append(d.conns, connID)
}

type WSHookSuite struct {
	suite.Suite
	verifier *stubVerifier
	sessions *recordingDisconnector
	connMgr  *ConnManager
	hook     wsrpc.ConnectionHooks[connContext]
}

func TestWSHookSuite(t *testing.T) {
	suite.Run(t, new(WSHookSuite))
}

func (s *WSHookSuite) SetupTest() {
	logger := log.NewTest(s.T())
	s.verifier = &stubVerifier{id: &identity.Identity{UserID: "user1", Email: "u1@example.com"}}
	s.sessions = &recordingDisconnector{}
	s.connMgr = NewConnManager(logger)
	s.hook = NewWSHook(s.connMgr, s.sessions, s.verifier, RateLimitConfig{RPS: 5, Burst: 10}, nil, logger)
}

func (s *WSHookSuite) TestOnVerifyQueryToken() {
	req := httptest.NewRequest("GET", "/ws?token=abc", nil)
	c, pass, err := s.hook.OnVerify(req)
	s.Require().NoError(err)
	s.True(pass)
	s.Equal("user1", c.userID)
	s.Equal("u1@example.com", c.email)
	s.NotEmpty(c.connID)
	s.Require().NotNil(c.limiter)
	s.Equal(10, c.limiter.Burst())
}

func (s *WSHookSuite) TestOnVerifyBearerToken() {
	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Authorization", "Bearer abc")
	_, pass, err := s.hook.OnVerify(req)
	s.NoError(err)
	s.True(pass)
}

func (s *WSHookSuite) TestOnVerifyDistinctConnectionIDs() {
	a, _, _ := s.hook.OnVerify(httptest.NewRequest("GET", "/ws?token=abc", nil))
	b, _, _ := s.hook.OnVerify(httptest.NewRequest("GET", "/ws?token=abc", nil))
	s.NotEqual(a.connID, b.connID)
}

func (s *WSHookSuite) TestOnVerifyMissingToken() {
	c, pass, err := s.hook.OnVerify(httptest.NewRequest("GET", "/ws", nil))
	s.NoError(err)
	s.False(pass)
	s.Nil(c)
}

func (s *WSHookSuite) TestOnVerifyRejected() {
	s.verifier.err = errors.New(identity.ErrUnauthenticated, "expired")
	_, pass, err := s.hook.OnVerify(httptest.NewRequest("GET", "/ws?token=abc", nil))
	s.NoError(err)
	s.False(pass)
}

func (s *WSHookSuite) TestOnVerifyProviderDown() {
	s.verifier.err = errors.New(identity.ErrUnavailable, "timeout")
	_, pass, err := s.hook.OnVerify(httptest.NewRequest("GET", "/ws?token=abc", nil))
	s.Error(err)
	s.False(pass)
}

func (s *WSHookSuite) TestConnectAndDisconnect() {
	conn := &mockConn{}
	mctx := jsonrpc.NewContext[connContext](conn, &connContext{connID: "c1", userID: "user1"})

	s.hook.OnConnect(mctx)
	s.Equal(1, s.connMgr.Count())
	s.Equal([]string{"connection-status"}, conn.notified)

	s.hook.OnDisconnect(mctx, 1000)
	s.Equal(0, s.connMgr.Count())
	s.Equal([]string{"c1"}, s.sessions.conns)
}

func (s *WSHookSuite) TestUnlimitedWhenRateIsZero() {
	hook := NewWSHook(s.connMgr, s.sessions, s.verifier, RateLimitConfig{}, nil, log.NewTest(s.T()))
	c, _, err := hook.OnVerify(httptest.NewRequest("GET", "/ws?token=abc", nil))
	s.Require().NoError(err)
	s.Nil(c.limiter)
}
