package signal

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/imtaco/room-relay/internal/errors"
	"github.com/imtaco/room-relay/internal/jsonrpc"
	"github.com/imtaco/room-relay/internal/log"
	isync "github.com/imtaco/room-relay/internal/sync"
)

const ErrConnectionGone errors.Code = "connection gone"

// connContext is the per-connection state shared by every request of one channel.
type connContext struct {
	connID  string
	userID  string
	email   string
	limiter *rate.Limiter
}

// ConnManager tracks the live channels of this gateway instance and delivers
// session events to them.
type ConnManager struct {
	conns  *isync.Map[string, jsonrpc.Conn[connContext]]
	logger *log.Logger
}

func NewConnManager(logger *log.Logger) *ConnManager {
	if logger == nil {
		panic("logger is required")
	}
	return &ConnManager{
		conns:  isync.NewMap[string, jsonrpc.Conn[connContext]](),
		logger: logger,
	}
}

func (m *ConnManager) Add(connID string, conn jsonrpc.Conn[connContext]) {
	if _, loaded := m.conns.LoadOrStore(connID, conn); loaded {
		m.logger.Warn("Connection id already registered", log.String("connectionId", connID))
		return
	}
	wsConnectionsActive.Add(context.Background(), 1)
}

func (m *ConnManager) Remove(connID string) {
	if _, ok := m.conns.LoadAndDelete(connID); ok {
		wsConnectionsActive.Add(context.Background(), -1)
	}
}

func (m *ConnManager) Count() int {
	return m.conns.Len()
}

// Notify queues event on connID's channel. It never waits for the peer: a full
// write buffer closes that channel and fails only this delivery.
func (m *ConnManager) Notify(ctx context.Context, connID string, event string, payload any) error {
	conn, ok := m.conns.Load(connID)
	if !ok {
		notificationsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
		return errors.Newf(ErrConnectionGone, "connection %s", connID)
	}
	// the caller's request may finish before the frame is written
	if err := conn.Notify(context.WithoutCancel(ctx), event, payload); err != nil {
		notificationsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
		return err
	}
	notificationsSent.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
	return nil
}
