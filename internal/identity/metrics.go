package identity

import (
	"go.opentelemetry.io/otel/metric"

	intotel "github.com/imtaco/room-relay/internal/otel"
)

var (
	cacheHits      metric.Int64Counter
	providerCalls  metric.Int64Counter
	providerErrors metric.Int64Counter
)

func init() {
	f := intotel.NewFactory("identity", intotel.PrefixIdentity)

	f.Int64Counter(&cacheHits, "cache.hits",
		metric.WithDescription("Tokens answered from the verifier cache"))

	f.Int64Counter(&providerCalls, "provider.calls",
		metric.WithDescription("Requests sent to the identity provider"))

	f.Int64Counter(&providerErrors, "provider.errors",
		metric.WithDescription("Identity provider requests that failed or returned a server error"))
}
