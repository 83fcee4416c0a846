package session

import (
	"go.opentelemetry.io/otel/metric"

	intotel "github.com/imtaco/room-relay/internal/otel"
)

var (
	roomsCreated      metric.Int64Counter
	roomsDeleted      metric.Int64Counter
	joinsTotal        metric.Int64Counter
	joinsDenied       metric.Int64Counter
	leavesTotal       metric.Int64Counter
	participantsLive  metric.Int64UpDownCounter
	directoryFailures metric.Int64Counter
	invariantFailures metric.Int64Counter

	relayedTotal   metric.Int64Counter
	relayDropped   metric.Int64Counter
	deliveryFailed metric.Int64Counter
)

func init() {
	f := intotel.NewFactory("session", intotel.PrefixSession)

	f.Int64Counter(&roomsCreated, "rooms.created",
		metric.WithDescription("Rooms created"))

	f.Int64Counter(&roomsDeleted, "rooms.deleted",
		metric.WithDescription("Rooms deleted after the last participant left"))

	f.Int64Counter(&joinsTotal, "joins.total",
		metric.WithDescription("Successful room joins"))

	f.Int64Counter(&joinsDenied, "joins.denied",
		metric.WithDescription("Joins refused by the access check"))

	f.Int64Counter(&leavesTotal, "leaves.total",
		metric.WithDescription("Participants removed by leave or disconnect"))

	f.Int64UpDownCounter(&participantsLive, "participants.live",
		metric.WithDescription("Connections currently joined to a room"))

	f.Int64Counter(&directoryFailures, "directory.failures",
		metric.WithDescription("Directory calls that failed or timed out"))

	f.Int64Counter(&invariantFailures, "invariant.failures",
		metric.WithDescription("Registry and Directory disagreements"))

	f.Int64Counter(&relayedTotal, "relay.forwarded",
		metric.WithDescription("Signaling payloads forwarded to a peer"))

	f.Int64Counter(&relayDropped, "relay.dropped",
		metric.WithDescription("Signaling payloads dropped because the target left"))

	f.Int64Counter(&deliveryFailed, "delivery.failed",
		metric.WithDescription("Outbound events that could not be enqueued"))
}
