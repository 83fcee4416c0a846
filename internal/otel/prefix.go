package otel

// Metric prefixes for each component
// Each component defines its own metric names under its prefix
const (
	PrefixSession   = "session"
	PrefixWSGateway = "wsgateway"
	PrefixRoomsAPI  = "rooms_api"
	PrefixIdentity  = "identity"
)
