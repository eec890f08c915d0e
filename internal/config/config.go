// Package config loads the immutable per-run configuration for scrapemeta.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds all configuration for a scrapemeta run. It is constructed
// once at startup and never mutated afterwards.
type Config struct {
	// AWS configuration
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"` // local-stack override, empty in real runs

	// Deployment environment tag appended to every table name
	Env string `mapstructure:"env"`

	// Live enables destructive execution; the default is a dry run
	Live bool `mapstructure:"live"`

	// CacheBucket is the S3 bucket holding cached HTML blobs
	CacheBucket string `mapstructure:"cache_bucket"`

	// SampleSize bounds how many cache records verify-cache audits;
	// zero audits the whole index
	SampleSize int `mapstructure:"sample_size"`

	// ReportFile, when set, receives the run report as YAML
	ReportFile string `mapstructure:"report_file"`

	LogLevel string `mapstructure:"log_level"`
}

// Load loads configuration from defaults, environment (SCRAPEMETA_*) and
// command line flags, in increasing precedence.
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("SCRAPEMETA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// The region honors the standard AWS variable as well
	if err := v.BindEnv("region", "SCRAPEMETA_REGION", "AWS_REGION"); err != nil {
		return nil, fmt.Errorf("failed to bind region env: %w", err)
	}

	if err := bindFlags(cmd, v); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for obvious operator mistakes.
func (c *Config) Validate() error {
	if c.Region == "" {
		return fmt.Errorf("region must not be empty")
	}
	if c.Env == "" {
		return fmt.Errorf("environment tag must not be empty")
	}
	if c.SampleSize < 0 {
		return fmt.Errorf("sample size must not be negative")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("region", "ap-southeast-2")
	v.SetDefault("env", "dev")
	v.SetDefault("live", false)
	v.SetDefault("sample_size", 25)
	v.SetDefault("log_level", "info")
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := map[string]string{
		"region":       "region",
		"endpoint":     "endpoint",
		"env":          "env",
		"live":         "live",
		"cache-bucket": "cache_bucket",
		"sample":       "sample_size",
		"report":       "report_file",
		"log-level":    "log_level",
	}

	for flag, key := range flags {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}
