package identity

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/imtaco/room-relay/internal/jwt"
	"github.com/imtaco/room-relay/internal/log"
)

const (
	ModeJWT    = "jwt"
	ModeRemote = "remote"
)

type Config struct {
	Mode         string        `mapstructure:"mode"`
	JWTSecret    string        `mapstructure:"jwt_secret"`
	RemoteURL    string        `mapstructure:"remote_url"`
	RemoteAPIKey string        `mapstructure:"remote_api_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
	CacheSize    int           `mapstructure:"cache_size"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

func Setup(v *viper.Viper, prefix string) {
	p := func(key string) string { return prefix + "." + key }

	v.SetDefault(p("mode"), ModeJWT)
	v.SetDefault(p("jwt_secret"), "")
	v.SetDefault(p("remote_url"), "")
	v.SetDefault(p("remote_api_key"), "")
	v.SetDefault(p("timeout"), "5s")
	v.SetDefault(p("cache_size"), 1024)
	v.SetDefault(p("cache_ttl"), "1m")
}

func New(cfg Config, logger *log.Logger) (Verifier, error) {
	switch cfg.Mode {
	case ModeJWT, "":
		if cfg.JWTSecret == "" {
			return nil, fmt.Errorf("auth.jwt_secret is required in jwt mode")
		}
		return NewJWTVerifier(jwt.NewAuth(cfg.JWTSecret)), nil
	case ModeRemote:
		if cfg.RemoteURL == "" {
			return nil, fmt.Errorf("auth.remote_url is required in remote mode")
		}
		return NewRemoteVerifier(cfg.RemoteURL, cfg.RemoteAPIKey, cfg.Timeout, cfg.CacheSize, cfg.CacheTTL, logger), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}
