package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	configName      = ".topfew"
	configType      = "yaml"
	envPrefix       = "TOPFEW"
	envKeySeparator = "_"
)

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty it must name a readable file. Otherwise
// .topfew.yaml is searched in the working directory and then $HOME; a missing
// file is not an error.
func LoadConfig(configPath string) (*Config, error) {
	v := New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
	}

	readErr := v.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	return Decode(v)
}

// New returns a viper instance carrying the defaults and environment binding
// but no config file. Callers may bind command-line flags to it before Decode.
func New() *viper.Viper {
	v := viper.New()

	applyDefaults(v)

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	v.AutomaticEnv()

	return v
}

// Decode unmarshals and validates the settings held by v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config

	unmarshalErr := v.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("scan.chunk_size", DefaultChunkSize)
	v.SetDefault("scan.workers", DefaultWorkers)

	v.SetDefault("output.count", DefaultCount)
	v.SetDefault("output.format", DefaultFormat)
	v.SetDefault("output.no_color", DefaultNoColor)

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.json", DefaultLogJSON)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", DefaultOTLPInsecure)
	v.SetDefault("telemetry.otlp_headers", "")
	v.SetDefault("telemetry.sample_ratio", DefaultSampleRatio)
	v.SetDefault("telemetry.metrics_file", "")
	v.SetDefault("telemetry.debug_trace", false)
}
