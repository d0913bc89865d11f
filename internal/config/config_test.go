package config

import (
	"strings"
	"testing"
	"time"

	"github.com/vigilhq/vigil/internal/alerts"
)

func validConfig() *Config {
	return &Config{
		Log:     LogConfig{Level: "info", Path: "vigil.log"},
		Metrics: MetricsConfig{Capacity: 1000},
		Sampler: SamplerConfig{Interval: 10 * time.Second, DiskPath: "/"},
		Alerts:  AlertsConfig{Enabled: true, Tick: time.Second},
		Storage: StorageConfig{Enabled: false, Path: "vigil.db", RetentionDays: 7},
	}
}

func TestValidate_OK(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_LogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Level = "verbose"
	if err := Validate(cfg); err == nil {
		t.Error("expected error for unknown log level")
	}
}

func TestValidate_Capacity(t *testing.T) {
	cfg := validConfig()
	cfg.Metrics.Capacity = 0
	if err := Validate(cfg); err == nil {
		t.Error("expected error for zero capacity")
	}
}

func TestValidate_SamplerInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Sampler.Interval = 100 * time.Millisecond
	if err := Validate(cfg); err == nil {
		t.Error("expected error for sub-second interval")
	}
}

func TestValidate_Storage(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Enabled = true
	cfg.Storage.Path = ""
	if err := Validate(cfg); err == nil {
		t.Error("expected error for enabled storage without path")
	}
}

func TestValidate_Rules(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RuleConfig)
		wantErr string
	}{
		{"empty name", func(r *RuleConfig) { r.Name = "" }, "name cannot be empty"},
		{"empty metric", func(r *RuleConfig) { r.Metric = "" }, "metric cannot be empty"},
		{"bad operator", func(r *RuleConfig) { r.Operator = "~" }, "unknown operator"},
		{"bad severity", func(r *RuleConfig) { r.Severity = "fatal" }, "unknown severity"},
		{"negative duration", func(r *RuleConfig) { r.Duration = -time.Second }, "cannot be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := RuleConfig{
				Name:      "r",
				Metric:    "system.cpu_percent",
				Threshold: 90,
				Operator:  ">",
				Severity:  "warning",
			}
			tt.mutate(&rule)

			cfg := validConfig()
			cfg.Alerts.Rules = []RuleConfig{rule}

			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected %q in error, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_DuplicateRuleNames(t *testing.T) {
	cfg := validConfig()
	cfg.Alerts.Rules = []RuleConfig{
		{Name: "dup", Metric: "m"},
		{Name: "dup", Metric: "m"},
	}
	if err := Validate(cfg); err == nil {
		t.Error("expected error for duplicate rule names")
	}
}

func TestValidate_Sinks(t *testing.T) {
	cfg := validConfig()
	cfg.Alerts.Sinks = []SinkConfig{{Role: "pager", Type: "slack", URL: "http://x"}}
	if err := Validate(cfg); err == nil {
		t.Error("expected error for unknown sink role")
	}

	cfg.Alerts.Sinks = []SinkConfig{{Role: "default", Type: "smtp", URL: "http://x"}}
	if err := Validate(cfg); err == nil {
		t.Error("expected error for unknown sink type")
	}

	cfg.Alerts.Sinks = []SinkConfig{{Role: "default", Type: "slack", URL: ""}}
	if err := Validate(cfg); err == nil {
		t.Error("expected error for empty sink url")
	}

	cfg.Alerts.Sinks = []SinkConfig{{Role: "critical", Type: "discord", URL: "http://x"}}
	if err := Validate(cfg); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if cfg.Alerts.Sinks[0].Timeout == 0 {
		t.Error("expected default timeout applied")
	}
}

func TestRuleConfig_IsEnabled(t *testing.T) {
	rule := RuleConfig{}
	if !rule.IsEnabled() {
		t.Error("expected rules enabled by default")
	}

	disabled := false
	rule.Enabled = &disabled
	if rule.IsEnabled() {
		t.Error("expected rule disabled")
	}
}

func TestDefaultRules(t *testing.T) {
	rules := DefaultRules()
	if len(rules) != 6 {
		t.Fatalf("expected 6 default rules, got %d", len(rules))
	}

	// Every default rule must survive validation and parse cleanly
	cfg := validConfig()
	cfg.Alerts.Rules = rules
	if err := Validate(cfg); err != nil {
		t.Fatalf("default rules failed validation: %v", err)
	}

	byName := map[string]RuleConfig{}
	for _, r := range rules {
		byName[r.Name] = r
		if _, err := alerts.ParseSeverity(r.Severity); err != nil {
			t.Errorf("rule %s: %v", r.Name, err)
		}
	}

	cpu := byName["high_cpu_usage"]
	if cpu.Metric != "system.cpu_percent" || cpu.Threshold != 90 || cpu.Duration != 5*time.Minute {
		t.Errorf("unexpected high_cpu_usage rule: %+v", cpu)
	}

	disk := byName["high_disk_usage"]
	if disk.Duration != 0 {
		t.Errorf("expected high_disk_usage to trigger immediately, got %s", disk.Duration)
	}

	failures := byName["task_failures"]
	if failures.Operator != ">=" {
		t.Errorf("expected >= for task_failures, got %q", failures.Operator)
	}
}
