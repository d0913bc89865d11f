package config

import (
	"fmt"
	"time"

	"github.com/vigilhq/vigil/internal/alerts"
	"github.com/vigilhq/vigil/internal/notify"
)

// AlertsConfig holds alert system configuration.
type AlertsConfig struct {
	// Enabled is the master switch for the alert system (default: true).
	Enabled bool `mapstructure:"enabled"`

	// Tick is the manager's evaluation loop interval (default: 1s).
	Tick time.Duration `mapstructure:"tick"`

	// Rules is the list of alert rules. Empty means use the defaults.
	Rules []RuleConfig `mapstructure:"rules"`

	// Sinks maps sink roles ("default", "error", "critical") to targets.
	Sinks []SinkConfig `mapstructure:"sinks"`
}

// RuleConfig represents a single metric-threshold rule in configuration.
type RuleConfig struct {
	// Name is the unique identifier for the rule and its alert.
	Name string `mapstructure:"name"`

	// Metric is the "category.name" series key to evaluate.
	Metric string `mapstructure:"metric"`

	// Threshold is the value compared against the trailing average.
	Threshold float64 `mapstructure:"threshold"`

	// Operator is the comparison operator (default: ">").
	Operator string `mapstructure:"operator"`

	// Duration is how long the violation must persist before triggering.
	Duration time.Duration `mapstructure:"duration"`

	// CheckInterval overrides how often the condition is evaluated.
	CheckInterval time.Duration `mapstructure:"check_interval"`

	// Severity is the alert severity name (default: "warning").
	Severity string `mapstructure:"severity"`

	// Category groups the alert (default: "metrics").
	Category string `mapstructure:"category"`

	// Description is an optional human-readable summary.
	Description string `mapstructure:"description"`

	// Enabled indicates whether the rule is active (default: true).
	Enabled *bool `mapstructure:"enabled"`
}

// IsEnabled returns whether the rule is enabled (defaults to true if not set).
func (r *RuleConfig) IsEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

// SinkConfig represents one notification sink in configuration.
type SinkConfig struct {
	// Role selects which alerts this sink receives: "default", "error",
	// or "critical".
	Role string `mapstructure:"role"`

	// Type is the sink type: "slack", "discord", or "webhook".
	Type string `mapstructure:"type"`

	// URL is the webhook endpoint.
	URL string `mapstructure:"url"`

	// Timeout bounds a single delivery (default: 10s).
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultRules returns the built-in rule set applied when no rules are
// configured.
func DefaultRules() []RuleConfig {
	return []RuleConfig{
		{
			Name:      "high_cpu_usage",
			Metric:    "system.cpu_percent",
			Threshold: 90,
			Operator:  ">",
			Duration:  5 * time.Minute,
			Severity:  "warning",
			Category:  "system",
		},
		{
			Name:      "high_memory_usage",
			Metric:    "system.memory_percent",
			Threshold: 90,
			Operator:  ">",
			Duration:  5 * time.Minute,
			Severity:  "warning",
			Category:  "system",
		},
		{
			Name:      "high_disk_usage",
			Metric:    "system.disk_root_percent",
			Threshold: 90,
			Operator:  ">",
			Severity:  "warning",
			Category:  "system",
		},
		{
			Name:      "high_error_rate",
			Metric:    "log_levels.ERROR",
			Threshold: 10,
			Operator:  ">",
			Duration:  time.Minute,
			Severity:  "error",
			Category:  "logs",
		},
		{
			Name:      "task_failures",
			Metric:    "tasks.failed",
			Threshold: 3,
			Operator:  ">=",
			Duration:  5 * time.Minute,
			Severity:  "error",
			Category:  "tasks",
		},
		{
			Name:      "high_api_latency",
			Metric:    "api.response_time",
			Threshold: 2000,
			Operator:  ">",
			Duration:  5 * time.Minute,
			Severity:  "warning",
			Category:  "api",
		},
	}
}

// validateAlerts validates rule and sink definitions. Severity and operator
// names must parse; sink roles and types must be known.
func validateAlerts(cfg *AlertsConfig) error {
	seen := make(map[string]bool, len(cfg.Rules))
	for i := range cfg.Rules {
		rule := &cfg.Rules[i]
		if rule.Name == "" {
			return fmt.Errorf("alerts.rules[%d]: name cannot be empty", i)
		}
		if seen[rule.Name] {
			return fmt.Errorf("alerts.rules: duplicate rule name %q", rule.Name)
		}
		seen[rule.Name] = true

		if rule.Metric == "" {
			return fmt.Errorf("alert rule %q: metric cannot be empty", rule.Name)
		}
		if rule.Operator != "" {
			if _, err := alerts.ParseOperator(rule.Operator); err != nil {
				return fmt.Errorf("alert rule %q: %w", rule.Name, err)
			}
		}
		if rule.Severity != "" {
			if _, err := alerts.ParseSeverity(rule.Severity); err != nil {
				return fmt.Errorf("alert rule %q: %w", rule.Name, err)
			}
		}
		if rule.Duration < 0 {
			return fmt.Errorf("alert rule %q: duration cannot be negative", rule.Name)
		}
	}

	for i := range cfg.Sinks {
		sink := &cfg.Sinks[i]
		switch sink.Role {
		case alerts.SinkDefault, alerts.SinkError, alerts.SinkCritical:
		default:
			return fmt.Errorf("alerts.sinks[%d]: role must be one of default, error, critical, got %q", i, sink.Role)
		}
		switch sink.Type {
		case "slack", "discord", "webhook", "http":
		default:
			return fmt.Errorf("alert sink %q: unknown type %q", sink.Role, sink.Type)
		}
		if sink.URL == "" {
			return fmt.Errorf("alert sink %q: url cannot be empty", sink.Role)
		}
		if sink.Timeout == 0 {
			sink.Timeout = notify.DefaultTimeout
		}
	}

	return nil
}
