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
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Invoker   InvokerConfig   `yaml:"invoker" mapstructure:"invoker"`
	Classify  ClassifyConfig  `yaml:"classify" mapstructure:"classify"`
	Resolve   ResolveConfig   `yaml:"resolve" mapstructure:"resolve"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Keys      KeysConfig      `yaml:"keys" mapstructure:"keys"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// InvokerConfig configures source invocation.
type InvokerConfig struct {
	TimeoutSecs        int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts        int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffSecs float64 `yaml:"initial_backoff_secs" mapstructure:"initial_backoff_secs"`
	BackoffMultiplier  float64 `yaml:"backoff_multiplier" mapstructure:"backoff_multiplier"`
	BreakerThreshold   int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs   int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// ClassifyConfig configures the similarity classifier.
type ClassifyConfig struct {
	TopK int `yaml:"top_k" mapstructure:"top_k"`
}

// ResolveConfig configures the resolution pipeline.
type ResolveConfig struct {
	MaxAgencies int `yaml:"max_agencies" mapstructure:"max_agencies"`
	Fanout      int `yaml:"fanout" mapstructure:"fanout"`
}

// AnthropicConfig holds Anthropic API settings for the reasoning
// collaborator.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// KeysConfig holds caller-supplied credentials for sources that
// require them, keyed by source name or agency.
type KeysConfig struct {
	USDA     string `yaml:"usda" mapstructure:"usda"`
	CBP      string `yaml:"cbp" mapstructure:"cbp"`
	Commerce string `yaml:"commerce" mapstructure:"commerce"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HSCOMPASS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "hscompass.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("invoker.timeout_secs", 10)
	v.SetDefault("invoker.max_attempts", 3)
	v.SetDefault("invoker.initial_backoff_secs", 1.0)
	v.SetDefault("invoker.backoff_multiplier", 2.0)
	v.SetDefault("invoker.breaker_threshold", 5)
	v.SetDefault("invoker.breaker_reset_secs", 30)
	v.SetDefault("classify.top_k", 3)
	v.SetDefault("resolve.max_agencies", 5)
	v.SetDefault("resolve.fanout", 5)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")

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
