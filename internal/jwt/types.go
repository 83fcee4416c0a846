package jwt

import (
	"github.com/golang-jwt/jwt/v5"
)

// Auth signs and verifies user tokens.
type Auth interface {
	Sign(userID, email string) (string, error)
	Verify(tokenString string) (*Payload, error)
}

type Payload struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}
