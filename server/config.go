// Package server wires the rewriter, the metadata store, and the admin
// HTTP API into a runnable service.
package server

import (
	"time"

	"github.com/ha1tch/sqlfix/pkg/errors"
)

// Config holds the service configuration.
type Config struct {
	// Version of the running binary, for the status endpoint.
	Version string

	// Addr is the admin HTTP listen address, host:port.
	Addr string

	// DSN is the Postgres connection string for the warehouse the
	// rewriter serves. The connection is used only for the catalog
	// introspection query.
	DSN string

	// SchemaDir, when set, is watched for cube schema redeploys; a
	// change flushes the metadata caches. Empty disables watching.
	SchemaDir string

	// WarmOnStart populates the hll column cache during startup
	// instead of on the first rewrite.
	WarmOnStart bool

	// Logging
	LogLevel  string
	LogFormat string

	// HTTP timeouts
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Connection pool sizing
	MaxOpenConns int
	MaxIdleConns int
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            "127.0.0.1:8085",
		LogLevel:        "info",
		LogFormat:       "text",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
	}
}

// Validate checks the configuration for problems that would prevent
// startup.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New(errors.ErrCodeConfigMissing, "listen address is required")
	}
	if c.DSN == "" {
		return errors.New(errors.ErrCodeConfigMissing, "database DSN is required")
	}
	return nil
}
