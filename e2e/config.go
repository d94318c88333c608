package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_SERVER_ADDR is the gateway address, e.g. ws://localhost:8080/ws.
	// The suite is skipped when it is empty.
	ServerAddr string `envconfig:"E2E_SERVER_ADDR"`
	HealthAddr string `envconfig:"E2E_HEALTH_ADDR" default:"localhost:8090"`
	// E2E_JWT_SECRET must match the JWT_SECRET of the server under test
	JWTSecret string `envconfig:"E2E_JWT_SECRET"`
	// E2E_DEBUG_JSON dumps gRPC request/response bodies as JSON
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	Colours   bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
