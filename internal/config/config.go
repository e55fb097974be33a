package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Model      ModelConfig      `yaml:"model" mapstructure:"model"`
	Remote     RemoteConfig     `yaml:"remote" mapstructure:"remote"`
	Explain    ExplainConfig    `yaml:"explain" mapstructure:"explain"`
	Auth       AuthConfig       `yaml:"auth" mapstructure:"auth"`
	RateLimit  RateLimitConfig  `yaml:"ratelimit" mapstructure:"ratelimit"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	AWS        AWSConfig        `yaml:"aws" mapstructure:"aws"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port             int      `yaml:"port" mapstructure:"port"`
	ReadTimeoutSecs  int      `yaml:"read_timeout_secs" mapstructure:"read_timeout_secs"`
	WriteTimeoutSecs int      `yaml:"write_timeout_secs" mapstructure:"write_timeout_secs"`
	CORSOrigins      []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StoreConfig configures the model artifact registry.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ModelConfig selects the classifier backing the service.
type ModelConfig struct {
	// Backend is "local" (evaluate an artifact in-process) or "remote"
	// (call the Python model service).
	Backend string `yaml:"backend" mapstructure:"backend"`
	// Source locates the artifact for the local backend: a file path,
	// s3://bucket/key or store://name[@version].
	Source string `yaml:"source" mapstructure:"source"`
}

// RemoteConfig configures the remote model service client.
type RemoteConfig struct {
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int           `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64       `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst       int           `yaml:"burst" mapstructure:"burst"`
	Retry       RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Circuit     CircuitConfig `yaml:"circuit" mapstructure:"circuit"`
}

// RetryConfig configures retries of remote model calls.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// CircuitConfig configures the remote model circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ExplainConfig configures explanation output.
type ExplainConfig struct {
	// TopK truncates explanations by default; 0 returns every feature.
	TopK            int `yaml:"top_k" mapstructure:"top_k"`
	SummaryFeatures int `yaml:"summary_features" mapstructure:"summary_features"`
}

// AuthConfig lists accepted x-api-key values. Empty disables the check.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys" mapstructure:"api_keys"`
}

// RateLimitConfig configures the API's request limiter. A zero rate
// disables it.
type RateLimitConfig struct {
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	Burst          int     `yaml:"burst" mapstructure:"burst"`
}

// BatchConfig configures batch scoring.
type BatchConfig struct {
	MaxConcurrency int `yaml:"max_concurrency" mapstructure:"max_concurrency"`
}

// AWSConfig configures S3 artifact loading.
type AWSConfig struct {
	Region string `yaml:"region" mapstructure:"region"`
}

// MonitoringConfig configures background alerting.
type MonitoringConfig struct {
	Enabled            bool    `yaml:"enabled" mapstructure:"enabled"`
	CheckIntervalSecs  int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	WebhookURL         string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	ErrorRateThreshold float64 `yaml:"error_rate_threshold" mapstructure:"error_rate_threshold"`
	MinRequests        int     `yaml:"min_requests" mapstructure:"min_requests"`
	// LatencyThresholdMs alerts on slow windows; 0 disables the check.
	LatencyThresholdMs float64 `yaml:"latency_threshold_ms" mapstructure:"latency_threshold_ms"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ENVMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout_secs", 10)
	v.SetDefault("server.write_timeout_secs", 30)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "envmon.db")
	v.SetDefault("model.backend", "local")
	v.SetDefault("model.source", "ebm_model.json")
	v.SetDefault("remote.base_url", "http://ml:8000")
	v.SetDefault("remote.timeout_secs", 10)
	v.SetDefault("remote.rate_per_sec", 50)
	v.SetDefault("remote.burst", 10)
	v.SetDefault("remote.retry.max_attempts", 3)
	v.SetDefault("remote.retry.initial_backoff_ms", 200)
	v.SetDefault("remote.retry.max_backoff_ms", 2000)
	v.SetDefault("remote.circuit.failure_threshold", 5)
	v.SetDefault("remote.circuit.reset_timeout_secs", 30)
	v.SetDefault("explain.top_k", 0)
	v.SetDefault("explain.summary_features", 3)
	v.SetDefault("ratelimit.requests_per_sec", 0)
	v.SetDefault("ratelimit.burst", 20)
	v.SetDefault("batch.max_concurrency", 8)
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.error_rate_threshold", 0.10)
	v.SetDefault("monitoring.min_requests", 20)
	v.SetDefault("monitoring.latency_threshold_ms", 1000)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is "serve",
// "predict", "batch" or "registry".
func (c *Config) Validate(mode string) error {
	var problems []string

	needsModel := mode == "serve" || mode == "predict" || mode == "batch"
	if needsModel {
		switch c.Model.Backend {
		case "local":
			if c.Model.Source == "" {
				problems = append(problems, "model.source is required for the local backend")
			}
		case "remote":
			if c.Remote.BaseURL == "" {
				problems = append(problems, "remote.base_url is required for the remote backend")
			}
		default:
			problems = append(problems, fmt.Sprintf("model.backend must be local or remote, got %q", c.Model.Backend))
		}
	}

	if mode == "registry" || (needsModel && c.Model.Backend == "local" && strings.HasPrefix(c.Model.Source, "store://")) {
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			problems = append(problems, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
		}
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	}

	if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		problems = append(problems, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}

	if mode == "batch" && c.Batch.MaxConcurrency <= 0 {
		problems = append(problems, "batch.max_concurrency must be positive")
	}

	if mode == "serve" && c.Monitoring.Enabled && c.Monitoring.WebhookURL == "" {
		problems = append(problems, "monitoring.webhook_url is required when monitoring is enabled")
	}

	if c.Explain.TopK < 0 {
		problems = append(problems, "explain.top_k must not be negative")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
