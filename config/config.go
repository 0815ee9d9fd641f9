// Package config loads kernel configuration from layered sources: built-in
// defaults, an optional .env file, KERNEL_-prefixed environment variables,
// and finally an explicit partial Config struct supplied by the embedding
// program. Later layers win. Grounded on the falcon example's viper +
// godotenv bootstrap.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the fully resolved kernel configuration.
type Config struct {
	Execution  ExecutionConfig  `mapstructure:"execution"`
	Security   SecurityConfig   `mapstructure:"security"`
	Resilience ResilienceConfig `mapstructure:"resilience"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// TelemetryConfig controls whether the kernel emits structured logs,
// metrics, and traces through goa.design/clue and OpenTelemetry, or stays
// fully silent (the default, since no collector is assumed to be running).
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// ExecutionConfig controls dispatch behavior.
type ExecutionConfig struct {
	DefaultDetailLevel string `mapstructure:"default_detail_level"`
	MaxParallel        int    `mapstructure:"max_parallel"`
	ToolTimeoutMs      int    `mapstructure:"tool_timeout_ms"`
	IdempotencyTTLMs   int    `mapstructure:"idempotency_ttl_ms"`
	PerServerRPS       float64 `mapstructure:"per_server_rps"`
}

// SecurityConfig controls authorization and auditing.
type SecurityConfig struct {
	RequireAuth bool   `mapstructure:"require_auth"`
	AuditEnabled bool  `mapstructure:"audit_enabled"`
	AuditPath   string `mapstructure:"audit_path"`
}

// ResilienceConfig controls retry and degradation behavior.
type ResilienceConfig struct {
	MaxRetries          int     `mapstructure:"max_retries"`
	RetryBackoffMs      int     `mapstructure:"retry_backoff_ms"`
	GracefulDegradation bool    `mapstructure:"graceful_degradation"`
	MinCompleteness     float64 `mapstructure:"min_completeness"`
}

// ToolTimeout returns the configured tool timeout as a duration.
func (c ExecutionConfig) ToolTimeout() time.Duration {
	return time.Duration(c.ToolTimeoutMs) * time.Millisecond
}

// IdempotencyTTL returns the configured idempotency key TTL as a duration.
func (c ExecutionConfig) IdempotencyTTL() time.Duration {
	return time.Duration(c.IdempotencyTTLMs) * time.Millisecond
}

// RetryBackoff returns the configured base retry backoff as a duration.
func (c ResilienceConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMs) * time.Millisecond
}

// Defaults returns the kernel's built-in configuration baseline.
func Defaults() Config {
	return Config{
		Execution: ExecutionConfig{
			DefaultDetailLevel: "standard",
			MaxParallel:        6,
			ToolTimeoutMs:      30000,
			IdempotencyTTLMs:   300000,
			PerServerRPS:       0,
		},
		Security: SecurityConfig{
			RequireAuth:  false,
			AuditEnabled: true,
			AuditPath:    "data/audit",
		},
		Resilience: ResilienceConfig{
			MaxRetries:          2,
			RetryBackoffMs:      1000,
			GracefulDegradation: true,
			MinCompleteness:     0.5,
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
		},
	}
}

// Load resolves configuration from defaults, an optional .env file at
// envPath (missing file is not an error), KERNEL_-prefixed environment
// variables, and finally overrides from a caller-supplied partial config.
// Zero-valued string, integer, and float fields in overrides are treated as
// "not set" and do not clobber lower layers. Boolean fields are the
// exception: explicit false cannot be distinguished from unset in a plain
// struct overlay, so a non-nil overrides always sets every boolean field.
func Load(envPath string, overrides *Config) (Config, error) {
	_ = godotenv.Load(envPath) // missing .env is fine; values simply stay unset

	v := viper.New()
	setDefaults(v, Defaults())

	v.SetEnvPrefix("KERNEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The audit settings also answer to their short names.
	_ = v.BindEnv("security.audit_enabled", "KERNEL_AUDIT_ENABLED")
	_ = v.BindEnv("security.audit_path", "KERNEL_AUDIT_PATH")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	if overrides != nil {
		applyOverrides(&cfg, overrides)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("execution.default_detail_level", d.Execution.DefaultDetailLevel)
	v.SetDefault("execution.max_parallel", d.Execution.MaxParallel)
	v.SetDefault("execution.tool_timeout_ms", d.Execution.ToolTimeoutMs)
	v.SetDefault("execution.idempotency_ttl_ms", d.Execution.IdempotencyTTLMs)
	v.SetDefault("execution.per_server_rps", d.Execution.PerServerRPS)

	v.SetDefault("security.require_auth", d.Security.RequireAuth)
	v.SetDefault("security.audit_enabled", d.Security.AuditEnabled)
	v.SetDefault("security.audit_path", d.Security.AuditPath)

	v.SetDefault("resilience.max_retries", d.Resilience.MaxRetries)
	v.SetDefault("resilience.retry_backoff_ms", d.Resilience.RetryBackoffMs)
	v.SetDefault("resilience.graceful_degradation", d.Resilience.GracefulDegradation)
	v.SetDefault("resilience.min_completeness", d.Resilience.MinCompleteness)

	v.SetDefault("telemetry.enabled", d.Telemetry.Enabled)
}

// applyOverrides merges a caller-supplied partial config over cfg, field by
// field, treating zero values as unset except for booleans, which are
// always copied.
func applyOverrides(cfg *Config, o *Config) {
	if o.Execution.DefaultDetailLevel != "" {
		cfg.Execution.DefaultDetailLevel = o.Execution.DefaultDetailLevel
	}
	if o.Execution.MaxParallel != 0 {
		cfg.Execution.MaxParallel = o.Execution.MaxParallel
	}
	if o.Execution.ToolTimeoutMs != 0 {
		cfg.Execution.ToolTimeoutMs = o.Execution.ToolTimeoutMs
	}
	if o.Execution.IdempotencyTTLMs != 0 {
		cfg.Execution.IdempotencyTTLMs = o.Execution.IdempotencyTTLMs
	}
	if o.Execution.PerServerRPS != 0 {
		cfg.Execution.PerServerRPS = o.Execution.PerServerRPS
	}
	if o.Security.AuditPath != "" {
		cfg.Security.AuditPath = o.Security.AuditPath
	}
	cfg.Security.RequireAuth = o.Security.RequireAuth
	cfg.Security.AuditEnabled = o.Security.AuditEnabled

	if o.Resilience.MaxRetries != 0 {
		cfg.Resilience.MaxRetries = o.Resilience.MaxRetries
	}
	if o.Resilience.RetryBackoffMs != 0 {
		cfg.Resilience.RetryBackoffMs = o.Resilience.RetryBackoffMs
	}
	if o.Resilience.MinCompleteness != 0 {
		cfg.Resilience.MinCompleteness = o.Resilience.MinCompleteness
	}
	cfg.Resilience.GracefulDegradation = o.Resilience.GracefulDegradation

	cfg.Telemetry.Enabled = o.Telemetry.Enabled
}
