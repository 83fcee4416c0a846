package signal

import (
	"github.com/spf13/viper"
	"golang.org/x/time/rate"
)

// RateLimitConfig bounds inbound requests per connection.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

func SetupRateLimit(v *viper.Viper, prefix string) {
	p := func(key string) string { return prefix + "." + key }

	v.SetDefault(p("rps"), 20)
	v.SetDefault(p("burst"), 40)
}

// newLimiter returns nil when limiting is disabled.
func (c RateLimitConfig) newLimiter() *rate.Limiter {
	if c.RPS <= 0 {
		return nil
	}
	burst := c.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(c.RPS), burst)
}
