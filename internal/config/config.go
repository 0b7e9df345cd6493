package config

import (
	"github.com/kelseyhightower/envconfig"
)

// Config holds the runtime configuration, read from TRIBO_* environment
// variables.
type Config struct {
	Addr            string `envconfig:"ADDR" default:":8080"`
	TokenSecret     string `envconfig:"TOKEN_SECRET"`
	SnapshotPath    string `envconfig:"SNAPSHOT_PATH" default:"tribo.snapshot.json"`
	PostgresDSN     string `envconfig:"PG_DSN"`
	ShutdownTimeout int    `envconfig:"SHUTDOWN_TIMEOUT_SECONDS" default:"10"`
	RateLimitRPS    int    `envconfig:"RATE_LIMIT_RPS" default:"50"`
	RateLimitBurst  int    `envconfig:"RATE_LIMIT_BURST" default:"100"`
	MaxBodyBytes    int64  `envconfig:"MAX_BODY_BYTES" default:"65536"`
	Version         string `envconfig:"VERSION" default:"dev"`
	Commit          string `envconfig:"COMMIT" default:"none"`
}

// Load populates cfg from the environment.
func Load(cfg *Config) error {
	return envconfig.Process("tribo", cfg)
}
