// Package config loads topfew settings from an optional YAML file,
// TOPFEW_* environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/topfew/pkg/observability"
	"github.com/Sumatoshi-tech/topfew/pkg/safeconv"
)

// Sentinel validation errors.
var (
	ErrInvalidChunkSize   = errors.New("invalid scan chunk size")
	ErrInvalidWorkers     = errors.New("scan workers must not be negative")
	ErrInvalidCount       = errors.New("output count must not be negative")
	ErrInvalidFormat      = errors.New("unknown output format")
	ErrInvalidLogLevel    = errors.New("unknown log level")
	ErrInvalidSampleRatio = errors.New("sample ratio must be within [0, 1]")
)

// Config holds all topfew settings.
type Config struct {
	Scan      ScanConfig      `mapstructure:"scan"`
	Output    OutputConfig    `mapstructure:"output"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ScanConfig tunes the span pipeline.
type ScanConfig struct {
	// ChunkSize is a human-readable size such as "64MiB" or "500kB".
	ChunkSize string `mapstructure:"chunk_size"`
	// Workers of zero means one per CPU.
	Workers int `mapstructure:"workers"`
}

// OutputConfig controls the result listing.
type OutputConfig struct {
	Count   int    `mapstructure:"count"`
	Format  string `mapstructure:"format"`
	NoColor bool   `mapstructure:"no_color"`
}

// LoggingConfig controls the stderr logger.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// TelemetryConfig controls trace and metric export.
type TelemetryConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	OTLPHeaders  string  `mapstructure:"otlp_headers"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	MetricsFile  string  `mapstructure:"metrics_file"`
	DebugTrace   bool    `mapstructure:"debug_trace"`
}

// Validate checks every field, returning the first problem found.
func (c *Config) Validate() error {
	if _, err := c.ChunkBytes(); err != nil {
		return err
	}

	if c.Scan.Workers < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, c.Scan.Workers)
	}

	if c.Output.Count < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCount, c.Output.Count)
	}

	if !slices.Contains(Formats, c.Output.Format) {
		return fmt.Errorf("%w: %q", ErrInvalidFormat, c.Output.Format)
	}

	if _, err := c.LogLevel(); err != nil {
		return err
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("%w: %g", ErrInvalidSampleRatio, c.Telemetry.SampleRatio)
	}

	return nil
}

// ChunkBytes parses Scan.ChunkSize.
func (c *Config) ChunkBytes() (int64, error) {
	n, err := humanize.ParseBytes(c.Scan.ChunkSize)
	if err != nil {
		return 0, fmt.Errorf("%w %q: %w", ErrInvalidChunkSize, c.Scan.ChunkSize, err)
	}

	size, ok := safeconv.Uint64ToInt64(n)
	if n == 0 || !ok {
		return 0, fmt.Errorf("%w %q", ErrInvalidChunkSize, c.Scan.ChunkSize)
	}

	return size, nil
}

// LogLevel parses Logging.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	level, err := observability.ParseLevel(c.Logging.Level)
	if err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: %w", ErrInvalidLogLevel, err)
	}

	return level, nil
}

// Observability maps the logging and telemetry settings onto an
// observability configuration for the given binary version.
func (c *Config) Observability(version string) observability.Config {
	obs := observability.DefaultConfig()

	obs.ServiceVersion = version
	obs.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	obs.OTLPInsecure = c.Telemetry.OTLPInsecure
	obs.OTLPHeaders = observability.ParseOTLPHeaders(c.Telemetry.OTLPHeaders)
	obs.SampleRatio = c.Telemetry.SampleRatio
	obs.MetricsFile = c.Telemetry.MetricsFile
	obs.DebugTrace = c.Telemetry.DebugTrace
	obs.LogJSON = c.Logging.JSON

	if level, err := c.LogLevel(); err == nil {
		obs.LogLevel = level
	}

	return obs
}
