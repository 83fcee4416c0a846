package transport

import (
	"go.opentelemetry.io/otel/metric"

	intotel "github.com/imtaco/room-relay/internal/otel"
)

var (
	requestsFailed metric.Int64Counter
	authFailures   metric.Int64Counter
)

func init() {
	f := intotel.NewFactory("rooms.api", intotel.PrefixRoomsAPI)

	f.Int64Counter(&requestsFailed, "requests.failed",
		metric.WithDescription("Room API requests answered with an error status"))

	f.Int64Counter(&authFailures, "auth.failures",
		metric.WithDescription("Room API requests without a valid bearer token"))
}
