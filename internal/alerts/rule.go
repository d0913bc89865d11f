package alerts

import (
	"fmt"
	"sync"
	"time"

	"github.com/vigilhq/vigil/internal/logger"
	"github.com/vigilhq/vigil/internal/metrics"
)

// DefaultCheckInterval is how often a rule's condition is re-evaluated.
const DefaultCheckInterval = time.Minute

// averageWindow is the trailing window a metric rule averages over.
const averageWindow = time.Minute

// ConditionFunc evaluates a rule's condition. An error means the condition
// could not be evaluated; the rule never triggers on a broken check.
type ConditionFunc func() (bool, error)

// Checker is a registered rule the manager evaluates each sweep.
type Checker interface {
	// RuleName returns the rule's unique name.
	RuleName() string
	// BoundAlert returns the alert the rule drives.
	BoundAlert() *Alert
	// Check evaluates the rule and reports whether its alert needs attention.
	Check() bool
	// Close releases any resources held by the rule (metric observers).
	Close()
}

// Rule evaluates a boolean condition on a schedule and drives an Alert's
// state transitions.
type Rule struct {
	name        string
	description string
	condition   ConditionFunc
	alert       *Alert

	mu            sync.Mutex
	checkInterval time.Duration
	lastCheck     time.Time
	lastValue     bool

	now func() time.Time
}

// RuleOption configures a Rule.
type RuleOption func(*Rule)

// WithCheckInterval sets the minimum spacing between condition evaluations.
func WithCheckInterval(d time.Duration) RuleOption {
	return func(r *Rule) {
		if d > 0 {
			r.checkInterval = d
		}
	}
}

// WithRuleClock overrides the time source. Used by tests.
func WithRuleClock(now func() time.Time) RuleOption {
	return func(r *Rule) {
		r.now = now
	}
}

// NewRule creates a rule that drives alert when condition reports true.
func NewRule(name, description string, condition ConditionFunc, alert *Alert, opts ...RuleOption) (*Rule, error) {
	if name == "" {
		return nil, fmt.Errorf("rule name is required")
	}
	if condition == nil {
		return nil, fmt.Errorf("rule %q: condition is required", name)
	}
	if alert == nil {
		return nil, fmt.Errorf("rule %q: alert is required", name)
	}

	r := &Rule{
		name:          name,
		description:   description,
		condition:     condition,
		alert:         alert,
		checkInterval: DefaultCheckInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RuleName returns the rule's unique name.
func (r *Rule) RuleName() string {
	return r.name
}

// BoundAlert returns the alert this rule drives.
func (r *Rule) BoundAlert() *Alert {
	return r.alert
}

// Close is a no-op for plain rules.
func (r *Rule) Close() {}

// Check evaluates the condition if the check interval has elapsed and drives
// the alert accordingly. Between scheduled ticks it is cheap and idempotent,
// reporting only whether the alert currently needs attention.
func (r *Rule) Check() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.lastCheck) < r.checkInterval {
		return r.alert.Status().IsAttentionWorthy()
	}
	r.lastCheck = now

	result, err := r.evaluate()
	if err != nil {
		// Fail safe: never alert on a broken check.
		logger.Error("alert rule condition failed", "rule", r.name, "error", err.Error())
		return false
	}
	r.lastValue = result

	if result {
		r.alert.Trigger(nil)
		return true
	}

	if r.alert.AutoResolves() {
		r.alert.Resolve()
	}
	return false
}

// evaluate runs the condition with panic containment.
func (r *Rule) evaluate() (result bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = false
			err = fmt.Errorf("condition panicked: %v", rec)
		}
	}()
	return r.condition()
}

// MetricSource is the slice of the metric store a metric rule needs.
type MetricSource interface {
	Average(name string, window time.Duration) (float64, bool)
	Observe(name string, fn metrics.ObserverFunc) metrics.ObserverHandle
	Unobserve(handle metrics.ObserverHandle)
}

// MetricRuleConfig describes a threshold rule over a metric series.
// Name and Metric are required; Operator defaults to ">".
type MetricRuleConfig struct {
	Name          string
	Metric        string
	Threshold     float64
	Operator      string
	Description   string
	Duration      time.Duration
	CheckInterval time.Duration
	Severity      Severity
	Category      string
}

// MetricRule evaluates a metric-threshold-over-duration condition. It checks
// on the rule schedule and additionally re-evaluates whenever a fresh point
// arrives on its metric.
type MetricRule struct {
	*Rule

	source    MetricSource
	metric    string
	threshold float64
	op        Operator
	duration  time.Duration

	mu             sync.Mutex
	violationStart time.Time

	handle metrics.ObserverHandle
}

// NewMetricRule builds a metric rule and registers its observer on the
// source. Configuration errors (missing fields, unknown operator) fail fast.
func NewMetricRule(source MetricSource, cfg MetricRuleConfig, opts ...RuleOption) (*MetricRule, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("metric rule name is required")
	}
	if cfg.Metric == "" {
		return nil, fmt.Errorf("rule %q: metric is required", cfg.Name)
	}
	if source == nil {
		return nil, fmt.Errorf("rule %q: metric source is required", cfg.Name)
	}

	opStr := cfg.Operator
	if opStr == "" {
		opStr = ">"
	}
	op, err := ParseOperator(opStr)
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", cfg.Name, err)
	}

	description := cfg.Description
	if description == "" {
		description = fmt.Sprintf("Alert when %s %s %g", cfg.Metric, op, cfg.Threshold)
	}

	category := cfg.Category
	if category == "" {
		category = "metrics"
	}

	mr := &MetricRule{
		source:    source,
		metric:    cfg.Metric,
		threshold: cfg.Threshold,
		op:        op,
		duration:  cfg.Duration,
	}

	alert := NewAlert(cfg.Name, description,
		WithSeverity(cfg.Severity),
		WithCategory(category),
	)

	ruleOpts := opts
	if cfg.CheckInterval > 0 {
		ruleOpts = append([]RuleOption{WithCheckInterval(cfg.CheckInterval)}, opts...)
	}

	rule, err := NewRule(cfg.Name, description, mr.condition, alert, ruleOpts...)
	if err != nil {
		return nil, err
	}
	mr.Rule = rule

	// A fresh data point re-evaluates the rule immediately; the scheduled
	// tick remains the safety net when no new points arrive.
	mr.handle = source.Observe(cfg.Metric, func(string, float64) {
		mr.Check()
	})

	return mr, nil
}

// Metric returns the name of the series the rule watches.
func (mr *MetricRule) Metric() string {
	return mr.metric
}

// Close unregisters the rule's metric observer.
func (mr *MetricRule) Close() {
	if mr.handle != "" {
		mr.source.Unobserve(mr.handle)
		mr.handle = ""
	}
}

// condition averages the metric over the trailing window and applies the
// threshold, requiring the violation to persist for the configured duration.
func (mr *MetricRule) condition() (bool, error) {
	value, ok := mr.source.Average(mr.metric, averageWindow)
	if !ok {
		// No data in the window: not evaluable, no violation.
		return false, nil
	}

	violation := mr.op.Compare(value, mr.threshold)

	mr.mu.Lock()
	defer mr.mu.Unlock()

	now := mr.Rule.now()
	if !violation {
		mr.violationStart = time.Time{}
		return false, nil
	}

	if mr.violationStart.IsZero() {
		mr.violationStart = now
	}
	if mr.duration <= 0 {
		return true, nil
	}
	return now.Sub(mr.violationStart) >= mr.duration, nil
}
