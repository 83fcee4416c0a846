package identity

import (
	"context"

	"github.com/imtaco/room-relay/internal/errors"
	"github.com/imtaco/room-relay/internal/jwt"
)

type jwtVerifier struct {
	auth jwt.Auth
}

// NewJWTVerifier checks HS256 tokens signed with a shared secret.
func NewJWTVerifier(auth jwt.Auth) Verifier {
	if auth == nil {
		panic("jwt auth is required")
	}
	return &jwtVerifier{auth: auth}
}

func (v *jwtVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	payload, err := v.auth.Verify(token)
	if err != nil {
		return nil, errors.Wrap(ErrUnauthenticated, err, "verify token")
	}
	return &Identity{UserID: payload.UserID, Email: payload.Email}, nil
}
