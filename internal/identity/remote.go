package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/imtaco/room-relay/internal/errors"
	"github.com/imtaco/room-relay/internal/log"
)

const userPath = "/auth/v1/user"

type remoteUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// remoteVerifier asks a hosted auth service who owns a token. Accepted
// identities are cached for a short while; concurrent lookups of one token share a request.
type remoteVerifier struct {
	client *resty.Client
	apiKey string
	cache  *expirable.LRU[string, *Identity]
	sf     singleflight.Group
	logger *log.Logger
}

func NewRemoteVerifier(
	baseURL string,
	apiKey string,
	timeout time.Duration,
	cacheSize int,
	cacheTTL time.Duration,
	logger *log.Logger,
) Verifier {
	if logger == nil {
		panic("logger is required")
	}
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)

	return &remoteVerifier{
		client: client,
		apiKey: apiKey,
		cache:  expirable.NewLRU[string, *Identity](cacheSize, nil, cacheTTL),
		logger: logger,
	}
}

func cacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (v *remoteVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, errors.New(ErrUnauthenticated, "no token")
	}
	key := cacheKey(token)
	if id, ok := v.cache.Get(key); ok {
		cacheHits.Add(ctx, 1)
		return id, nil
	}

	result, err, _ := v.sf.Do(key, func() (any, error) {
		id, err := v.fetch(ctx, token)
		if err != nil {
			return nil, err
		}
		v.cache.Add(key, id)
		return id, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Identity), nil
}

func (v *remoteVerifier) fetch(ctx context.Context, token string) (*Identity, error) {
	var user remoteUser
	req := v.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&user)
	if v.apiKey != "" {
		req.SetHeader("apikey", v.apiKey)
	}

	providerCalls.Add(ctx, 1)
	resp, err := req.Get(userPath)
	if err != nil {
		providerErrors.Add(ctx, 1)
		v.logger.Warn("Identity provider request failed", log.Error(err))
		return nil, errors.Wrap(ErrUnavailable, err, "identity provider request")
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return nil, errors.Newf(ErrUnauthenticated, "identity provider rejected token (%d)", code)
	case resp.IsError():
		providerErrors.Add(ctx, 1)
		v.logger.Warn("Identity provider error", log.Int("status", code))
		return nil, errors.Newf(ErrUnavailable, "identity provider status %d", code)
	}

	if user.ID == "" {
		return nil, errors.New(ErrUnauthenticated, "identity provider returned no user")
	}
	return &Identity{UserID: user.ID, Email: user.Email}, nil
}
