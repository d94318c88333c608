package internal

import (
	"fmt"
	"strings"
	"time"
)

const (
	ChannelMemory = "memory"
	ChannelRedis  = "redis"
)

type Config struct {
	BadgerFilepath     string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath      string        `env:"BLUGE_FILEPATH,required=true"`
	LogLevel           string        `env:"LOG_LEVEL,default=INFO"`
	Host               string        `env:"HOST,default=0.0.0.0"`
	Port               int           `env:"PORT,required=true"`
	HealthPort         int           `env:"HEALTH_PORT,required=true"`
	DebugPort          int           `env:"DEBUG_PORT,default=8081"`
	JWTSecret          string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration  time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	ChannelBackend     string        `env:"CHANNEL_BACKEND,default=memory"`
	RedisAddr          string        `env:"REDIS_ADDR"`
	RedisPassword      string        `env:"REDIS_PASSWORD"`
	RedisDB            int           `env:"REDIS_DB,default=0"`
	BufferSize         int           `env:"BUFFER_SIZE,default=256"`
	SendBuffer         int           `env:"SEND_BUFFER,default=256"`
	SinkTimeout        time.Duration `env:"SINK_TIMEOUT,default=2s"`
	RestartInterval    time.Duration `env:"RESTART_INTERVAL,default=500ms"`
	MaxRestartInterval time.Duration `env:"MAX_RESTART_INTERVAL,default=30s"`
	HeartbeatInterval  time.Duration `env:"HEARTBEAT_INTERVAL,default=1m"`
	MaxContentLength   int           `env:"MAX_CONTENT_LENGTH,default=2000"`
	SearchLimit        int           `env:"SEARCH_LIMIT,default=50"`
	CharReplacement    string        `env:"CHARACTER_REPLACEMENT,default=*"`
	AllowedOrigins     string        `env:"ALLOWED_ORIGINS"`
}

func (c Config) Validate() error {
	switch c.ChannelBackend {
	case ChannelMemory:
	case ChannelRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when CHANNEL_BACKEND=%s", ChannelRedis)
		}
	default:
		return fmt.Errorf("CHANNEL_BACKEND must be %q or %q, got %q", ChannelMemory, ChannelRedis, c.ChannelBackend)
	}
	if c.Port == c.HealthPort {
		return fmt.Errorf("PORT and HEALTH_PORT must differ, both are %d", c.Port)
	}
	_, err := CharacterRune(c.CharReplacement)
	return err
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c Config) Origins() []string {
	if strings.TrimSpace(c.AllowedOrigins) == "" {
		return nil
	}
	return strings.Split(c.AllowedOrigins, ",")
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
