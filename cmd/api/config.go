package main

import (
	"time"

	"github.com/Golden-Age-Club/server/internal/config"
)

// Nested sections are read by their own variable names (PG_DSN, REDIS_ADDR,
// ...) through envconfig's unprefixed fallback.
type apiConfig struct {
	Port            uint16        `envconfig:"API_PORT" default:"8080"`
	LogLevel        string        `envconfig:"APP_LOG_LEVEL" default:"info"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"json"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"20s"`

	Postgres config.PostgresConfig
	Redis    config.RedisConfig
	Gateway  config.GatewayConfig
	Provider config.ProviderConfig
	Auth     config.AuthConfig
	Wallet   config.WalletConfig
	Risk     config.RiskConfig
	Sweep    config.SweepConfig
}
