package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Learning   LearningConfig   `yaml:"learning" mapstructure:"learning"`
	Sync       SyncConfig       `yaml:"sync" mapstructure:"sync"`
	Platforms  PlatformsConfig  `yaml:"platforms" mapstructure:"platforms"`
	Scheduler  SchedulerConfig  `yaml:"scheduler" mapstructure:"scheduler"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP control surface.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// LearningConfig tunes the learning engine and the scheduled learning cycle.
type LearningConfig struct {
	// MinCitations is the per-domain citation floor below which the learning
	// cycle skips a domain entirely.
	MinCitations int `yaml:"min_citations" mapstructure:"min_citations"`
	// ImprovementThreshold is the minimum predicted score gain (points)
	// before the cycle auto-applies updates.
	ImprovementThreshold float64 `yaml:"improvement_threshold" mapstructure:"improvement_threshold"`
	// MaxAutoApply caps how many critical/high updates one cycle applies.
	MaxAutoApply int `yaml:"max_auto_apply" mapstructure:"max_auto_apply"`
}

// SyncConfig tunes the synchronization engine.
type SyncConfig struct {
	// QueueSize bounds the operation channel; QueueChange rejects when full.
	QueueSize int `yaml:"queue_size" mapstructure:"queue_size"`
	// MaxAttempts is the total delivery attempts per platform (first try
	// included).
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
	// RetryBackoffMs is the linear backoff unit: delay = retry_count × unit.
	RetryBackoffMs int `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	// BreakerFailureThreshold trips a platform's circuit breaker after this
	// many consecutive failed operations. Zero disables breakers.
	BreakerFailureThreshold int `yaml:"breaker_failure_threshold" mapstructure:"breaker_failure_threshold"`
	BreakerResetTimeoutSecs int `yaml:"breaker_reset_timeout_secs" mapstructure:"breaker_reset_timeout_secs"`
}

// PlatformsConfig configures the simulated platform adapters.
type PlatformsConfig struct {
	// Names lists the target platforms; defaults to the five supported ones.
	Names []string `yaml:"names" mapstructure:"names"`
	// BaseLatencyMs is the simulated per-call latency midpoint.
	BaseLatencyMs int `yaml:"base_latency_ms" mapstructure:"base_latency_ms"`
	// FailureRate is the simulated per-call failure probability (0..1).
	FailureRate float64 `yaml:"failure_rate" mapstructure:"failure_rate"`
	// RatePerSec rate-limits outbound calls per platform. Zero = unlimited.
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// SchedulerConfig tunes the job scheduler.
type SchedulerConfig struct {
	// TickMs is the dispatch loop resolution.
	TickMs int `yaml:"tick_ms" mapstructure:"tick_ms"`
	// Disabled lists job ids that start disabled.
	Disabled []string `yaml:"disabled" mapstructure:"disabled"`
}

// MonitoringConfig configures the background health checker and alerter.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	BacklogThreshold     int     `yaml:"backlog_threshold" mapstructure:"backlog_threshold"`
	JobErrorThreshold    int64   `yaml:"job_error_threshold" mapstructure:"job_error_threshold"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VISIBILITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "visibility.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("learning.min_citations", 5)
	v.SetDefault("learning.improvement_threshold", 5.0)
	v.SetDefault("learning.max_auto_apply", 10)
	v.SetDefault("sync.queue_size", 256)
	v.SetDefault("sync.max_attempts", 3)
	v.SetDefault("sync.retry_backoff_ms", 1000)
	v.SetDefault("sync.breaker_failure_threshold", 5)
	v.SetDefault("sync.breaker_reset_timeout_secs", 30)
	v.SetDefault("platforms.names", []string{"chatgpt", "claude", "perplexity", "gemini", "copilot"})
	v.SetDefault("platforms.base_latency_ms", 120)
	v.SetDefault("platforms.failure_rate", 0.05)
	v.SetDefault("platforms.rate_per_sec", 10.0)
	v.SetDefault("scheduler.tick_ms", 1000)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.backlog_threshold", 100)
	v.SetDefault("monitoring.job_error_threshold", 3)

	// Read config file (optional)
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
