// Package config loads client configuration from the environment.
package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// Client is the environment-driven configuration shared by the commands.
type Client struct {
	// APIBaseURL is the REST collaborator's base URL.
	APIBaseURL string `env:"CHATLINK_API_URL" envDefault:"http://localhost:8080"`
	// WSEndpoint is the websocket endpoint of the realtime backend.
	WSEndpoint string `env:"CHATLINK_WS_URL" envDefault:"ws://localhost:9999/ws"`
	// TokenDir overrides where the file token store lives; empty means the
	// user config dir.
	TokenDir string `env:"CHATLINK_TOKEN_DIR"`
	// RedisAddr, when set, switches token persistence to redis.
	RedisAddr     string `env:"CHATLINK_REDIS_ADDR"`
	RedisPassword string `env:"CHATLINK_REDIS_PASSWORD"`
	RedisDB       int    `env:"CHATLINK_REDIS_DB" envDefault:"0"`
}

// Load parses the environment into a Client config.
func Load() (*Client, error) {
	var cfg Client
	if err := env.Parse(&cfg); err != nil {
		return nil, errors.Wrap(err, "parse env")
	}
	return &cfg, nil
}
