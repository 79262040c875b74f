// Package config provides configuration structures and loading logic for the
// governance engine.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

// Config holds the global configuration for the engine.
type Config struct {
	Server     ServerConfig      `yaml:"server"`
	Telemetry  TelemetryConfig   `yaml:"telemetry"`
	Logging    LoggingConfig     `yaml:"logging"`
	Governance GovernanceConfig  `yaml:"governance"`
	Evaluators []EvaluatorConfig `yaml:"evaluators"`
	Ledger     LedgerConfig      `yaml:"ledger"`
	Archive    ArchiveConfig     `yaml:"archive"`
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Environment  string `yaml:"environment"`
	Insecure     bool   `yaml:"insecure"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// GovernanceConfig holds the coordinator, breaker and rate limit settings.
type GovernanceConfig struct {
	GlobalDeadline   time.Duration   `yaml:"global_deadline"`
	EvaluatorTimeout time.Duration   `yaml:"evaluator_timeout"`
	Breaker          BreakerConfig   `yaml:"breaker"`
	RateLimit        RateLimitConfig `yaml:"rate_limit"`
}

// BreakerConfig holds per-evaluator circuit breaker settings.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	Window           time.Duration `yaml:"window"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

// RateLimitConfig holds the submission rate limit. A zero rate disables it.
type RateLimitConfig struct {
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// EvaluatorConfig describes one evaluator endpoint. Address may be empty,
// in which case the built-in local evaluator for the role is used.
type EvaluatorConfig struct {
	Role      string        `yaml:"role"`
	Name      string        `yaml:"name"`
	Address   string        `yaml:"address"`
	Threshold float64       `yaml:"threshold"`
	DomainMin float64       `yaml:"domain_min"`
	DomainMax float64       `yaml:"domain_max"`
	Timeout   time.Duration `yaml:"timeout"`
}

// LedgerConfig holds the attestation ledger settings. An empty path selects
// the in-memory store.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// ArchiveConfig holds the archival sink settings.
type ArchiveConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultSpecs returns the built-in panel of five evaluators with their
// canonical thresholds and metric domains.
func DefaultSpecs() []domain.EvaluatorSpec {
	return []domain.EvaluatorSpec{
		{Role: domain.RoleCoherence, Name: "narrative-coherence", Threshold: 4.0, Domain: domain.MetricDomain{Min: 0, Max: 5}, Timeout: 2 * time.Second},
		{Role: domain.RoleFactuality, Name: "truth-safety", Threshold: 1.5, Domain: domain.MetricDomain{Min: 0, Max: 3}, Timeout: 2 * time.Second},
		{Role: domain.RoleFairness, Name: "fairness", Threshold: 0.95, Domain: domain.MetricDomain{Min: 0, Max: 1}, Timeout: 2 * time.Second},
		{Role: domain.RoleLegal, Name: "legal-risk", Threshold: 0, Domain: domain.MetricDomain{Min: 0, Max: 1}, Timeout: 2 * time.Second},
		{Role: domain.RoleTransparency, Name: "transparency", Threshold: 0.5, Domain: domain.MetricDomain{Min: 0, Max: 1}, Timeout: 2 * time.Second},
	}
}

// Load reads configuration from a file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{
		// Defaults
		Server: ServerConfig{
			Address: ":8090",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Governance: GovernanceConfig{
			GlobalDeadline:   5 * time.Second,
			EvaluatorTimeout: 2 * time.Second,
			Breaker: BreakerConfig{
				FailureThreshold: 3,
				Window:           30 * time.Second,
				Cooldown:         10 * time.Second,
			},
		},
	}

	if path != "" {
		//nolint:gosec // Config file path is controlled by admin/operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("ARBITER_LISTEN_ADDR"); val != "" {
		cfg.Server.Address = val
	}

	if val := os.Getenv("ARBITER_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("ARBITER_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}
	if val := os.Getenv("ARBITER_ENVIRONMENT"); val != "" {
		cfg.Telemetry.Environment = val
	}

	if val := os.Getenv("ARBITER_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}

	if val := os.Getenv("ARBITER_LEDGER_PATH"); val != "" {
		cfg.Ledger.Path = val
	}

	if val := os.Getenv("ARBITER_GLOBAL_DEADLINE"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Governance.GlobalDeadline = d
		}
	}
	if val := os.Getenv("ARBITER_RATE_PER_SECOND"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Governance.RateLimit.RatePerSecond = f
		}
	}
}

// Validate performs validation of the entire configuration.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging configuration: %w", err)
	}
	if err := c.Governance.Validate(); err != nil {
		return fmt.Errorf("governance configuration: %w", err)
	}
	if err := c.validateEvaluators(); err != nil {
		return fmt.Errorf("evaluator configuration: %w", err)
	}
	return nil
}

// Validate performs validation of server configuration.
func (c *ServerConfig) Validate() error {
	if strings.TrimSpace(c.Address) == "" {
		c.Address = ":8090"
	}
	return nil
}

// Validate performs validation of logging configuration.
func (c *LoggingConfig) Validate() error {
	if strings.TrimSpace(c.Level) == "" {
		c.Level = "info"
	}
	level := strings.TrimSpace(strings.ToLower(c.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Level = level
		return nil
	default:
		return fmt.Errorf("invalid log level %q, supported levels: debug, info, warn, error", c.Level)
	}
}

// Validate performs validation of governance configuration.
func (c *GovernanceConfig) Validate() error {
	if c.GlobalDeadline <= 0 {
		c.GlobalDeadline = 5 * time.Second
	}
	if c.EvaluatorTimeout <= 0 {
		c.EvaluatorTimeout = 2 * time.Second
	}
	if c.EvaluatorTimeout > c.GlobalDeadline {
		return fmt.Errorf("evaluator_timeout %s exceeds global_deadline %s", c.EvaluatorTimeout, c.GlobalDeadline)
	}
	if c.RateLimit.RatePerSecond < 0 {
		return fmt.Errorf("rate_per_second must not be negative")
	}
	if c.RateLimit.RatePerSecond > 0 && c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 1
	}
	return nil
}

// validateEvaluators checks that the evaluator list, when present, names
// each of the five roles exactly once. An empty list selects the built-in
// defaults.
func (c *Config) validateEvaluators() error {
	if len(c.Evaluators) == 0 {
		return nil
	}

	seen := make(map[domain.EvaluatorRole]bool, len(domain.Roles()))
	for i, ec := range c.Evaluators {
		role := domain.EvaluatorRole(ec.Role)
		if !domain.ValidRole(role) {
			return fmt.Errorf("evaluator %d: unknown role %q: %w", i, ec.Role, domain.ErrConfigInvalid)
		}
		if seen[role] {
			return fmt.Errorf("evaluator %d: duplicate role %q: %w", i, ec.Role, domain.ErrConfigInvalid)
		}
		seen[role] = true
		if ec.DomainMax <= ec.DomainMin {
			return fmt.Errorf("evaluator %q: metric domain [%g, %g] is empty: %w", ec.Role, ec.DomainMin, ec.DomainMax, domain.ErrConfigInvalid)
		}
		if role != domain.RoleLegal && !(domain.MetricDomain{Min: ec.DomainMin, Max: ec.DomainMax}).Contains(ec.Threshold) {
			return fmt.Errorf("evaluator %q: threshold %g outside metric domain [%g, %g]: %w", ec.Role, ec.Threshold, ec.DomainMin, ec.DomainMax, domain.ErrConfigInvalid)
		}
	}
	for _, role := range domain.Roles() {
		if !seen[role] {
			return fmt.Errorf("missing evaluator for role %q: %w", role, domain.ErrConfigInvalid)
		}
	}
	return nil
}

// Specs converts the configured evaluator list into resolved specs in
// canonical role order, falling back to the built-in defaults when the list
// is empty. Validate must have succeeded first.
func (c *Config) Specs() []domain.EvaluatorSpec {
	if len(c.Evaluators) == 0 {
		specs := DefaultSpecs()
		for i := range specs {
			if c.Governance.EvaluatorTimeout > 0 {
				specs[i].Timeout = c.Governance.EvaluatorTimeout
			}
		}
		return specs
	}

	byRole := make(map[domain.EvaluatorRole]EvaluatorConfig, len(c.Evaluators))
	for _, ec := range c.Evaluators {
		byRole[domain.EvaluatorRole(ec.Role)] = ec
	}

	specs := make([]domain.EvaluatorSpec, 0, len(domain.Roles()))
	for _, role := range domain.Roles() {
		ec := byRole[role]
		timeout := ec.Timeout
		if timeout <= 0 {
			timeout = c.Governance.EvaluatorTimeout
		}
		name := ec.Name
		if name == "" {
			name = string(role)
		}
		specs = append(specs, domain.EvaluatorSpec{
			Role:      role,
			Name:      name,
			Address:   ec.Address,
			Threshold: ec.Threshold,
			Domain:    domain.MetricDomain{Min: ec.DomainMin, Max: ec.DomainMax},
			Timeout:   timeout,
		})
	}
	return specs
}
