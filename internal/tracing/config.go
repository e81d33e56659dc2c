package tracing

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Defaults for the trace log page size and retention when the environment
// does not override them.
const (
	DefaultPageSizeMB    = 8
	DefaultRetentionDays = 30
)

// Config holds trace hub configuration.
type Config struct {
	// HostType names the hosting process (agent, worker) and selects the
	// environment variable prefix.
	HostType string `koanf:"host_type"`

	// Level is the minimum level written to the sink.
	Level zapcore.Level `koanf:"level"`

	// Format is "json" or "console".
	Format string `koanf:"format"`

	// PageSizeMB is the log page size handed to the physical log writer.
	PageSizeMB int `koanf:"page_size_mb"`

	// RetentionDays is the log retention handed to the physical log writer.
	RetentionDays int `koanf:"retention_days"`

	// OTEL enables the OpenTelemetry log tee. Off by default.
	OTEL bool `koanf:"otel"`
}

// NewConfig returns a Config for hostType with page size and retention
// read from <HOSTTYPE>_LOGSIZE and <HOSTTYPE>_LOGRETENTION. A value that
// is unset or unparseable falls back to the default.
func NewConfig(hostType string) *Config {
	prefix := strings.ToUpper(hostType)
	return &Config{
		HostType:      hostType,
		Level:         zapcore.InfoLevel,
		Format:        "console",
		PageSizeMB:    envInt(prefix+"_LOGSIZE", DefaultPageSizeMB),
		RetentionDays: envInt(prefix+"_LOGRETENTION", DefaultRetentionDays),
	}
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.HostType == "" {
		return fmt.Errorf("host type is required")
	}
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be 'json' or 'console', got %q", c.Format)
	}
	if c.PageSizeMB <= 0 {
		return fmt.Errorf("page size must be > 0, got %d", c.PageSizeMB)
	}
	if c.RetentionDays <= 0 {
		return fmt.Errorf("retention must be > 0 days, got %d", c.RetentionDays)
	}
	return nil
}

// envInt parses name as an integer, returning fallback when the variable
// is unset or not a positive integer.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
