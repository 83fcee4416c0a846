package signal

import (
	"go.opentelemetry.io/otel/metric"

	intotel "github.com/imtaco/room-relay/internal/otel"
)

var (
	// WebSocket connection metrics
	wsConnectionsActive metric.Int64UpDownCounter
	wsConnectionsTotal  metric.Int64Counter
	wsDisconnectsTotal  metric.Int64Counter

	messagesReceived metric.Int64Counter

	// RPC metrics
	rpcRequestsTotal  metric.Int64Counter
	rpcRequestsFailed metric.Int64Counter
	rpcDuration       metric.Float64Histogram

	// Auth metrics
	authAttempts metric.Int64Counter
	authFailures metric.Int64Counter

	// Notification metrics
	notificationsSent   metric.Int64Counter
	notificationsFailed metric.Int64Counter
)

func init() {
	f := intotel.NewFactory("wsgateway.signal", intotel.PrefixWSGateway)

	f.Int64UpDownCounter(&wsConnectionsActive, "connections.active",
		metric.WithDescription("Number of active WebSocket connections"))

	f.Int64Counter(&wsConnectionsTotal, "connections.total",
		metric.WithDescription("Total WebSocket connections established"))

	f.Int64Counter(&wsDisconnectsTotal, "disconnects.total",
		metric.WithDescription("Total WebSocket disconnections by close code"))

	f.Int64Counter(&messagesReceived, "messages.received",
		metric.WithDescription("Total requests received from clients, rate limited ones included"))

	f.Int64Counter(&rpcRequestsTotal, "rpc.requests.total",
		metric.WithDescription("Total RPC requests processed"))

	f.Int64Counter(&rpcRequestsFailed, "rpc.requests.failed",
		metric.WithDescription("Total failed or rate limited RPC requests"))

	f.Float64Histogram(&rpcDuration, "rpc.duration",
		metric.WithDescription("Time spent handling an RPC request"),
		metric.WithUnit("s"))

	f.Int64Counter(&authAttempts, "auth.attempts",
		metric.WithDescription("Total authentication attempts"))

	f.Int64Counter(&authFailures, "auth.failures",
		metric.WithDescription("Total authentication failures"))

	f.Int64Counter(&notificationsSent, "notifications.sent",
		metric.WithDescription("Total events queued to clients"))

	f.Int64Counter(&notificationsFailed, "notifications.failed",
		metric.WithDescription("Total events that could not be queued"))
}
