package identity

import (
	"context"
	"net/http"
	"strings"

	"github.com/imtaco/room-relay/internal/errors"
)

const (
	ErrUnauthenticated errors.Code = "unauthenticated"
	// ErrUnavailable means the identity provider could not be asked.
	ErrUnavailable errors.Code = "identity provider unavailable"
)

type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
}

// Verifier turns a bearer token into the caller's identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// TokenFromRequest reads the token from the "token" query parameter, which is
// how browsers pass it on websocket upgrades, or else from the Authorization header.
func TokenFromRequest(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	return BearerToken(r.Header.Get("Authorization"))
}

func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
