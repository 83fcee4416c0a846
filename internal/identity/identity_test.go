package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/imtaco/room-relay/internal/errors"
	"github.com/imtaco/room-relay/internal/jwt"
	"github.com/imtaco/room-relay/internal/log"
)

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=abc", nil)
	r.Header.Set("Authorization", "Bearer header-token")
	assert.Equal(t, "abc", TokenFromRequest(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "bearer header-token")
	assert.Equal(t, "header-token", TokenFromRequest(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Basic xyz")
	assert.Empty(t, TokenFromRequest(r))

	assert.Empty(t, BearerToken("Bearer "))
}

func TestJWTVerifier(t *testing.T) {
	auth := jwt.NewAuth("secret")
	v := NewJWTVerifier(auth)

	token, err := auth.Sign("user-1", "u1@example.com")
	require.NoError(t, err)

	id, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.UserID)
	assert.Equal(t, "u1@example.com", id.Email)

	_, err = v.Verify(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrUnauthenticated))

	_, err = v.Verify(context.Background(), "")
	assert.True(t, errors.Is(err, ErrUnauthenticated))
}

func TestNewFromConfig(t *testing.T) {
	logger := log.NewNop()

	_, err := New(Config{Mode: ModeJWT}, logger)
	assert.Error(t, err)

	v, err := New(Config{Mode: ModeJWT, JWTSecret: "s"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &jwtVerifier{}, v)

	_, err = New(Config{Mode: ModeRemote}, logger)
	assert.Error(t, err)

	v, err = New(Config{Mode: ModeRemote, RemoteURL: "http://idp"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &remoteVerifier{}, v)

	_, err = New(Config{Mode: "ldap"}, logger)
	assert.Error(t, err)
}

type RemoteVerifierTestSuite struct {
	suite.Suite
	server *httptest.Server
	calls  atomic.Int32
	status atomic.Int32
	hold   atomic.Bool
	gate   chan struct{}
	v      Verifier
}

func TestRemoteVerifierSuite(t *testing.T) {
	suite.Run(t, new(RemoteVerifierTestSuite))
}

func (s *RemoteVerifierTestSuite) SetupTest() {
	s.calls.Store(0)
	s.status.Store(http.StatusOK)
	s.hold.Store(false)
	s.gate = make(chan struct{})

	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		if s.hold.Load() {
			<-s.gate
		}
		if r.URL.Path != userPath || r.Header.Get("apikey") != "anon-key" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if status := int(s.status.Load()); status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		if r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "user-1", "email": "u1@example.com"})
	}))
	s.v = NewRemoteVerifier(s.server.URL+"/", "anon-key", time.Second, 16, time.Minute, log.NewTest(s.T()))
}

func (s *RemoteVerifierTestSuite) TearDownTest() {
	s.server.Close()
}

func (s *RemoteVerifierTestSuite) TestVerifyAndCache() {
	id, err := s.v.Verify(context.Background(), "good-token")
	s.Require().NoError(err)
	s.Equal("user-1", id.UserID)
	s.Equal("u1@example.com", id.Email)

	_, err = s.v.Verify(context.Background(), "good-token")
	s.Require().NoError(err)
	s.Equal(int32(1), s.calls.Load())
}

func (s *RemoteVerifierTestSuite) TestRejectedTokenNotCached() {
	_, err := s.v.Verify(context.Background(), "bad-token")
	s.True(errors.Is(err, ErrUnauthenticated))

	_, err = s.v.Verify(context.Background(), "bad-token")
	s.True(errors.Is(err, ErrUnauthenticated))
	s.Equal(int32(2), s.calls.Load())
}

func (s *RemoteVerifierTestSuite) TestEmptyToken() {
	_, err := s.v.Verify(context.Background(), "")
	s.True(errors.Is(err, ErrUnauthenticated))
	s.Zero(s.calls.Load())
}

func (s *RemoteVerifierTestSuite) TestProviderDown() {
	s.status.Store(http.StatusBadGateway)
	_, err := s.v.Verify(context.Background(), "good-token")
	s.True(errors.Is(err, ErrUnavailable))

	s.server.Close()
	_, err = s.v.Verify(context.Background(), "other-token")
	s.True(errors.Is(err, ErrUnavailable))
}

func (s *RemoteVerifierTestSuite) TestConcurrentLookupsShareRequest() {
	s.hold.Store(true)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.v.Verify(context.Background(), "good-token")
			s.NoError(err)
			s.Equal("user-1", id.UserID)
		}()
	}

	s.Eventually(func() bool { return s.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(s.gate)
	wg.Wait()

	s.Equal(int32(1), s.calls.Load())
}
