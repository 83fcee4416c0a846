package session

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DirectoryTimeout       time.Duration `mapstructure:"directory_timeout"`
	DefaultMaxParticipants int           `mapstructure:"default_max_participants"`
	CodeAttempts           int           `mapstructure:"code_attempts"`
	RedisPrefix            string        `mapstructure:"redis_prefix"`
	EventStream            string        `mapstructure:"event_stream"`
	EventStreamMaxLen      int64         `mapstructure:"event_stream_maxlen"`
	EventStreamMaxAge      time.Duration `mapstructure:"event_stream_max_age"`
}

func Setup(v *viper.Viper, prefix string) {
	p := func(key string) string { return prefix + "." + key }

	v.SetDefault(p("directory_timeout"), "3s")
	v.SetDefault(p("default_max_participants"), 10)
	v.SetDefault(p("code_attempts"), 10)
	v.SetDefault(p("redis_prefix"), "relay")
	v.SetDefault(p("event_stream"), "relay:room-events")
	v.SetDefault(p("event_stream_maxlen"), 10000)
	v.SetDefault(p("event_stream_max_age"), "24h")
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.DirectoryTimeout <= 0 {
		out.DirectoryTimeout = 3 * time.Second
	}
	if out.DefaultMaxParticipants <= 0 {
		out.DefaultMaxParticipants = 10
	}
	if out.CodeAttempts <= 0 {
		out.CodeAttempts = 10
	}
	return out
}
