package signal

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/imtaco/room-relay/internal/errors"
	"github.com/imtaco/room-relay/internal/identity"
	"github.com/imtaco/room-relay/internal/jsonrpc"
	wsrpc "github.com/imtaco/room-relay/internal/jsonrpc/websocket"
	"github.com/imtaco/room-relay/internal/log"
	"github.com/imtaco/room-relay/session"
)

const disconnectTimeout = 10 * time.Second

// Disconnector releases whatever a closed channel still holds.
type Disconnector interface {
	HandleDisconnect(ctx context.Context, connID string)
}

func NewWSHook(
	connMgr *ConnManager,
	sessions Disconnector,
	verifier identity.Verifier,
	limits RateLimitConfig,
	clock clockwork.Clock,
	logger *log.Logger,
) wsrpc.ConnectionHooks[connContext] {
	if connMgr == nil || sessions == nil || verifier == nil {
		panic("connection manager, sessions and verifier are required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &wsHookImpl{
		connMgr:  connMgr,
		sessions: sessions,
		verifier: verifier,
		limits:   limits,
		clock:    clock,
		logger:   logger,
	}
}

type wsHookImpl struct {
	connMgr  *ConnManager
	sessions Disconnector
	verifier identity.Verifier
	limits   RateLimitConfig
	clock    clockwork.Clock
	logger   *log.Logger
}

func (h *wsHookImpl) OnVerify(r *http.Request) (*connContext, bool, error) {
	ctx := r.Context()
	authAttempts.Add(ctx, 1)

	token := identity.TokenFromRequest(r)
	if token == "" {
		authFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "missing")))
		return nil, false, nil
	}

	id, err := h.verifier.Verify(ctx, token)
	if err != nil {
		if errors.Is(err, identity.ErrUnauthenticated) {
			authFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "rejected")))
			return nil, false, nil
		}
		authFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "unavailable")))
		return nil, false, err
	}

	return &connContext{
		connID:  uuid.NewString(),
		userID:  id.UserID,
		email:   id.Email,
		limiter: h.limits.newLimiter(),
	}, true, nil
}

func (h *wsHookImpl) OnConnect(mctx jsonrpc.MethodContext[connContext]) {
	c := mctx.Get()
	h.connMgr.Add(c.connID, mctx.Peer())
	wsConnectionsTotal.Add(context.Background(), 1)

	if err := mctx.Peer().Notify(context.Background(), session.EventConnectionStatus, &connectionStatus{
		Connected: true,
		ClientID:  c.connID,
		Timestamp: session.FormatTimestamp(h.clock.Now()),
	}); err != nil {
		h.logger.Warn("Failed to send connection status",
			log.String("connectionId", c.connID),
			log.Error(err))
	}

	h.logger.Info("Client connected",
		log.String("connectionId", c.connID),
		log.String("userId", c.userID))
}

func (h *wsHookImpl) OnDisconnect(mctx jsonrpc.MethodContext[connContext], closeCode int) {
	c := mctx.Get()
	h.connMgr.Remove(c.connID)

	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	h.sessions.HandleDisconnect(ctx, c.connID)

	wsDisconnectsTotal.Add(ctx, 1, metric.WithAttributes(attribute.Int("close_code", closeCode)))
	h.logger.Info("Client disconnected",
		log.String("connectionId", c.connID),
		log.String("userId", c.userID),
		log.Int("closeCode", closeCode))
}

type connectionStatus struct {
	Connected bool   `json:"connected"`
	ClientID  string `json:"clientId"`
	Timestamp string `json:"timestamp"`
}
