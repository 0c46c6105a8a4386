// internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Network    NetworkConfig    `mapstructure:"network" yaml:"network"`
	Perception PerceptionConfig `mapstructure:"perception" yaml:"perception"`
	Oracle     OracleConfig     `mapstructure:"oracle" yaml:"oracle"`
	Flow       FlowConfig       `mapstructure:"flow" yaml:"flow"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args            []string `mapstructure:"args" yaml:"args"`
	ViewportWidth   int      `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight  int      `mapstructure:"viewport_height" yaml:"viewport_height"`
}

// NetworkConfig tunes navigation and settle behavior.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	SettleTimeout     time.Duration `mapstructure:"settle_timeout" yaml:"settle_timeout"`
	QuietPeriod       time.Duration `mapstructure:"quiet_period" yaml:"quiet_period"`
}

// PerceptionConfig toggles the candidate filters.
type PerceptionConfig struct {
	VisibilityFilter  bool `mapstructure:"visibility_filter" yaml:"visibility_filter"`
	SemanticFilter    bool `mapstructure:"semantic_filter" yaml:"semantic_filter"`
	LocationScoring   bool `mapstructure:"location_scoring" yaml:"location_scoring"`
	EnrichConcurrency int  `mapstructure:"enrich_concurrency" yaml:"enrich_concurrency"`
}

// OracleConfig configures the decision oracle and its LLM backend.
type OracleConfig struct {
	Provider    string        `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	// RequestsPerMinute bounds the call rate into the LLM API.
	RequestsPerMinute int `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// FlowConfig holds the defaults for flow invocations.
type FlowConfig struct {
	MaxSteps         int           `mapstructure:"max_steps" yaml:"max_steps"`
	InterStepDelay   time.Duration `mapstructure:"inter_step_delay" yaml:"inter_step_delay"`
	CaptureArtifacts bool          `mapstructure:"capture_artifacts" yaml:"capture_artifacts"`
	// HaltOnExecutionError stops the loop when a step's strategies are
	// exhausted instead of recording the failure and continuing.
	HaltOnExecutionError bool `mapstructure:"halt_on_execution_error" yaml:"halt_on_execution_error"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "uxray")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 800)

	// -- Network --
	v.SetDefault("network.navigation_timeout", "45s")
	v.SetDefault("network.settle_timeout", "10s")
	v.SetDefault("network.quiet_period", "500ms")

	// -- Perception --
	v.SetDefault("perception.visibility_filter", true)
	v.SetDefault("perception.semantic_filter", true)
	v.SetDefault("perception.location_scoring", true)
	v.SetDefault("perception.enrich_concurrency", 4)

	// -- Oracle --
	v.SetDefault("oracle.provider", "gemini")
	v.SetDefault("oracle.model", "gemini-2.5-flash")
	v.SetDefault("oracle.api_timeout", "60s")
	v.SetDefault("oracle.temperature", 0.2)
	v.SetDefault("oracle.max_tokens", 2048)
	v.SetDefault("oracle.requests_per_minute", 30)

	// -- Flow --
	v.SetDefault("flow.max_steps", 10)
	v.SetDefault("flow.inter_step_delay", "1s")
	v.SetDefault("flow.capture_artifacts", false)
	v.SetDefault("flow.halt_on_execution_error", false)
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Unreachable with defaults only.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	v.BindEnv("oracle.api_key", "UXRAY_ORACLE_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("browser viewport dimensions must be positive")
	}
	if c.Flow.MaxSteps <= 0 {
		return fmt.Errorf("flow.max_steps must be a positive integer")
	}
	if c.Flow.InterStepDelay < 0 {
		return fmt.Errorf("flow.inter_step_delay must not be negative")
	}
	if c.Perception.EnrichConcurrency <= 0 {
		return fmt.Errorf("perception.enrich_concurrency must be a positive integer")
	}
	if c.Oracle.RequestsPerMinute <= 0 {
		return fmt.Errorf("oracle.requests_per_minute must be a positive integer")
	}
	return nil
}
