// Package config loads pscprobe configuration from defaults, an optional YAML file,
// an optional .env file, and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Defaults applied when a key is unset.
const (
	DefaultDatabase   = "etl_monitoring"
	DefaultCollection = "pipeline_logs"
	DefaultTimeout    = 5 * time.Second
	DefaultAuthor     = "unknown_author"
	DefaultService    = "local-run"
	DefaultImageTag   = "unknown_tag"
	DefaultMetricsJob = "pscprobe"
)

// Environment variables read by the deployed job. These names predate pscprobe
// and are set by the Cloud Run job definition, so they are bound explicitly.
const (
	EnvSinkURI    = "MONGO_URI"
	EnvDatabase   = "MONGO_DB_NAME"
	EnvCollection = "MONGO_COLLECTION"
	EnvAuthor     = "AUTHOR_NAME"
	EnvService    = "K_SERVICE"
	EnvImageTag   = "IMAGE_TAG"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Sink     SinkConfig     `mapstructure:"sink"`
	Identity IdentityConfig `mapstructure:"identity"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// SinkConfig describes the database that is both the probe target and the log sink.
type SinkConfig struct {
	URI        string        `mapstructure:"uri"`
	Database   string        `mapstructure:"database"`
	Collection string        `mapstructure:"collection"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// IdentityConfig is recorded in every log entry.
type IdentityConfig struct {
	Author   string `mapstructure:"author"`
	Service  string `mapstructure:"service"`
	ImageTag string `mapstructure:"image_tag"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig controls the end-of-run push to a Prometheus Pushgateway.
// Push is disabled when PushgatewayURL is empty.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// Default returns a Config populated with every documented default.
func Default() *Config {
	return &Config{
		Sink: SinkConfig{
			Database:   DefaultDatabase,
			Collection: DefaultCollection,
			Timeout:    DefaultTimeout,
		},
		Identity: IdentityConfig{
			Author:   DefaultAuthor,
			Service:  DefaultService,
			ImageTag: DefaultImageTag,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Job: DefaultMetricsJob,
		},
	}
}

// Load reads configuration. configPath may be empty, in which case ./pscprobe.yaml and
// /etc/pscprobe/pscprobe.yaml are tried. envFile may be empty or point to a missing
// file; variables it defines never override ones already present in the environment.
func Load(configPath, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	v := viper.New()

	v.SetDefault("sink.uri", "")
	v.SetDefault("sink.database", DefaultDatabase)
	v.SetDefault("sink.collection", DefaultCollection)
	v.SetDefault("sink.timeout", DefaultTimeout.String())
	v.SetDefault("identity.author", DefaultAuthor)
	v.SetDefault("identity.service", DefaultService)
	v.SetDefault("identity.image_tag", DefaultImageTag)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", DefaultMetricsJob)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("pscprobe")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/pscprobe")
	}

	// Environment variables override (PSCPROBE_SINK_TIMEOUT, etc.)
	v.SetEnvPrefix("PSCPROBE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	_ = v.BindEnv("sink.uri", EnvSinkURI, "PSCPROBE_SINK_URI")
	_ = v.BindEnv("sink.database", EnvDatabase, "PSCPROBE_SINK_DATABASE")
	_ = v.BindEnv("sink.collection", EnvCollection, "PSCPROBE_SINK_COLLECTION")
	_ = v.BindEnv("identity.author", EnvAuthor, "PSCPROBE_IDENTITY_AUTHOR")
	_ = v.BindEnv("identity.service", EnvService, "PSCPROBE_IDENTITY_SERVICE")
	_ = v.BindEnv("identity.image_tag", EnvImageTag, "PSCPROBE_IDENTITY_IMAGE_TAG")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks values that cannot be defaulted. A missing sink URI is valid:
// it selects the fallback-only path.
func (c *Config) Validate() error {
	if c.Sink.Timeout <= 0 {
		return fmt.Errorf("%w: sink.timeout must be positive, got %s", ErrInvalidConfig, c.Sink.Timeout)
	}
	if c.Sink.Database == "" || c.Sink.Collection == "" {
		return fmt.Errorf("%w: sink.database and sink.collection must not be empty", ErrInvalidConfig)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("%w: logging.format must be json or text, got %q", ErrInvalidConfig, c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: logging.level must be debug, info, warn or error, got %q", ErrInvalidConfig, c.Logging.Level)
	}
	return nil
}

// HasSinkURI reports whether a sink connection string is configured.
func (c *Config) HasSinkURI() bool {
	return strings.TrimSpace(c.Sink.URI) != ""
}

// RedactedURI returns the sink URI with any password masked.
func (c *Config) RedactedURI() string {
	return RedactURI(c.Sink.URI)
}

// RedactURI masks the password of a connection string. Unparseable input is
// replaced entirely so it can never leak credentials into output.
func RedactURI(uri string) string {
	if uri == "" {
		return ""
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "<unparseable uri>"
	}
	return u.Redacted()
}
