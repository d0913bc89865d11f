package alerts

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vigilhq/vigil/internal/metrics"
)

// fakeSource is a scriptable MetricSource.
type fakeSource struct {
	mu         sync.Mutex
	avg        float64
	ok         bool
	observers  int
	unobserved int
	callbacks  map[metrics.ObserverHandle]metrics.ObserverFunc
}

func newFakeSource() *fakeSource {
	return &fakeSource{callbacks: make(map[metrics.ObserverHandle]metrics.ObserverFunc)}
}

func (f *fakeSource) set(avg float64, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.avg = avg
	f.ok = ok
}

func (f *fakeSource) Average(name string, window time.Duration) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.avg, f.ok
}

func (f *fakeSource) Observe(name string, fn metrics.ObserverFunc) metrics.ObserverHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observers++
	handle := metrics.ObserverHandle(fmt.Sprintf("h%d", f.observers))
	f.callbacks[handle] = fn
	return handle
}

func (f *fakeSource) Unobserve(handle metrics.ObserverHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unobserved++
	delete(f.callbacks, handle)
}

func TestRule_Validation(t *testing.T) {
	alert := NewAlert("a", "d")
	cond := func() (bool, error) { return false, nil }

	if _, err := NewRule("", "d", cond, alert); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := NewRule("r", "d", nil, alert); err == nil {
		t.Error("expected error for nil condition")
	}
	if _, err := NewRule("r", "d", cond, nil); err == nil {
		t.Error("expected error for nil alert")
	}
}

func TestRule_TriggerAndAutoResolve(t *testing.T) {
	clock := newFakeClock()
	firing := true
	alert := NewAlert("a", "d", WithAlertClock(clock.Now))
	rule, err := NewRule("r", "d",
		func() (bool, error) { return firing, nil },
		alert,
		WithCheckInterval(time.Minute),
		WithRuleClock(clock.Now),
	)
	if err != nil {
		t.Fatal(err)
	}

	if !rule.Check() {
		t.Fatal("expected firing condition to trigger")
	}
	if alert.Status() != StatusActive {
		t.Errorf("expected active, got %s", alert.Status())
	}

	// Between ticks the rule just reports the alert state
	firing = false
	if !rule.Check() {
		t.Error("expected cached result before the interval elapses")
	}
	if alert.Status() != StatusActive {
		t.Error("alert must not change between scheduled evaluations")
	}

	clock.Advance(time.Minute)
	if rule.Check() {
		t.Error("expected cleared condition to resolve")
	}
	if alert.Status() != StatusResolved {
		t.Errorf("expected resolved, got %s", alert.Status())
	}
}

func TestRule_ConditionErrorFailsSafe(t *testing.T) {
	alert := NewAlert("a", "d")
	rule, err := NewRule("r", "d",
		func() (bool, error) { return true, fmt.Errorf("broken probe") },
		alert,
	)
	if err != nil {
		t.Fatal(err)
	}

	if rule.Check() {
		t.Error("expected broken condition to never trigger")
	}
	if alert.Status() != StatusResolved {
		t.Errorf("expected resolved, got %s", alert.Status())
	}
}

func TestRule_ConditionPanicContained(t *testing.T) {
	alert := NewAlert("a", "d")
	rule, err := NewRule("r", "d",
		func() (bool, error) { panic("boom") },
		alert,
	)
	if err != nil {
		t.Fatal(err)
	}

	if rule.Check() {
		t.Error("expected panicking condition to never trigger")
	}
}

func TestMetricRule_Validation(t *testing.T) {
	source := newFakeSource()

	if _, err := NewMetricRule(source, MetricRuleConfig{Metric: "m"}); err == nil {
		t.Error("expected error for missing name")
	}
	if _, err := NewMetricRule(source, MetricRuleConfig{Name: "r"}); err == nil {
		t.Error("expected error for missing metric")
	}
	if _, err := NewMetricRule(nil, MetricRuleConfig{Name: "r", Metric: "m"}); err == nil {
		t.Error("expected error for nil source")
	}
	if _, err := NewMetricRule(source, MetricRuleConfig{
		Name: "r", Metric: "m", Operator: "~>",
	}); err == nil {
		t.Error("expected error for unknown operator")
	}
}

func TestMetricRule_Defaults(t *testing.T) {
	source := newFakeSource()
	rule, err := NewMetricRule(source, MetricRuleConfig{
		Name:      "high_latency",
		Metric:    "api.response_time",
		Threshold: 2000,
	})
	if err != nil {
		t.Fatal(err)
	}

	info := rule.BoundAlert().Info()
	if info.Description != "Alert when api.response_time > 2000" {
		t.Errorf("unexpected synthesized description %q", info.Description)
	}
	if info.Category != "metrics" {
		t.Errorf("expected category metrics, got %s", info.Category)
	}
	if rule.Metric() != "api.response_time" {
		t.Errorf("unexpected metric %q", rule.Metric())
	}
	if source.observers != 1 {
		t.Errorf("expected one registered observer, got %d", source.observers)
	}
}

func TestMetricRule_ImmediateTrigger(t *testing.T) {
	clock := newFakeClock()
	source := newFakeSource()
	source.set(95, true)

	rule, err := NewMetricRule(source, MetricRuleConfig{
		Name:      "high_cpu",
		Metric:    "system.cpu_percent",
		Threshold: 90,
	}, WithRuleClock(clock.Now))
	if err != nil {
		t.Fatal(err)
	}
	rule.BoundAlert().now = clock.Now

	if !rule.Check() {
		t.Fatal("expected violation with zero duration to trigger immediately")
	}
	if rule.BoundAlert().Status() != StatusActive {
		t.Errorf("expected active, got %s", rule.BoundAlert().Status())
	}
}

func TestMetricRule_DurationDebounce(t *testing.T) {
	clock := newFakeClock()
	source := newFakeSource()
	source.set(95, true)

	rule, err := NewMetricRule(source, MetricRuleConfig{
		Name:          "high_cpu",
		Metric:        "system.cpu_percent",
		Threshold:     90,
		Duration:      2 * time.Minute,
		CheckInterval: 30 * time.Second,
	}, WithRuleClock(clock.Now))
	if err != nil {
		t.Fatal(err)
	}
	rule.BoundAlert().now = clock.Now

	// Violation begins but the persistence window has not elapsed
	if rule.Check() {
		t.Fatal("expected no trigger before duration elapses")
	}

	clock.Advance(time.Minute)
	if rule.Check() {
		t.Fatal("one minute in, still below the required duration")
	}

	clock.Advance(time.Minute)
	if !rule.Check() {
		t.Fatal("expected trigger once the violation persisted for the duration")
	}
	if rule.BoundAlert().Status() != StatusActive {
		t.Errorf("expected active, got %s", rule.BoundAlert().Status())
	}
}

func TestMetricRule_ViolationResetOnRecovery(t *testing.T) {
	clock := newFakeClock()
	source := newFakeSource()
	source.set(95, true)

	rule, err := NewMetricRule(source, MetricRuleConfig{
		Name:          "high_cpu",
		Metric:        "system.cpu_percent",
		Threshold:     90,
		Duration:      2 * time.Minute,
		CheckInterval: 30 * time.Second,
	}, WithRuleClock(clock.Now))
	if err != nil {
		t.Fatal(err)
	}
	rule.BoundAlert().now = clock.Now

	rule.Check() // violation starts

	// Recovery clears the violation window
	clock.Advance(time.Minute)
	source.set(50, true)
	rule.Check()

	// Violation resumes; the duration counts from here, not the first breach
	clock.Advance(time.Minute)
	source.set(95, true)
	if rule.Check() {
		t.Fatal("expected the persistence window to restart after recovery")
	}

	clock.Advance(2 * time.Minute)
	if !rule.Check() {
		t.Fatal("expected trigger after a full uninterrupted violation window")
	}
}

func TestMetricRule_AbsentDataKeepsViolationWindow(t *testing.T) {
	clock := newFakeClock()
	source := newFakeSource()
	source.set(95, true)

	rule, err := NewMetricRule(source, MetricRuleConfig{
		Name:          "high_cpu",
		Metric:        "system.cpu_percent",
		Threshold:     90,
		Duration:      2 * time.Minute,
		CheckInterval: 30 * time.Second,
	}, WithRuleClock(clock.Now))
	if err != nil {
		t.Fatal(err)
	}
	rule.BoundAlert().now = clock.Now

	rule.Check() // violation starts

	// A gap in the data is "not evaluable", not a recovery
	clock.Advance(time.Minute)
	source.set(0, false)
	if rule.Check() {
		t.Fatal("absent data must not trigger")
	}

	clock.Advance(time.Minute)
	source.set(95, true)
	if !rule.Check() {
		t.Fatal("expected trigger: the violation window survived the data gap")
	}
}

func TestMetricRule_ObserverDrivenCheck(t *testing.T) {
	clock := newFakeClock()
	source := newFakeSource()
	source.set(95, true)

	rule, err := NewMetricRule(source, MetricRuleConfig{
		Name:      "high_cpu",
		Metric:    "system.cpu_percent",
		Threshold: 90,
	}, WithRuleClock(clock.Now))
	if err != nil {
		t.Fatal(err)
	}
	rule.BoundAlert().now = clock.Now

	// A fresh data point runs the check without waiting for the schedule
	for _, fn := range source.callbacks {
		fn("system.cpu_percent", 95)
	}
	if rule.BoundAlert().Status() != StatusActive {
		t.Errorf("expected observer callback to trigger, got %s", rule.BoundAlert().Status())
	}
}

func TestMetricRule_CloseUnregistersObserver(t *testing.T) {
	source := newFakeSource()
	rule, err := NewMetricRule(source, MetricRuleConfig{
		Name: "r", Metric: "m", Threshold: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	rule.Close()
	if source.unobserved != 1 {
		t.Errorf("expected observer unregistered, got %d", source.unobserved)
	}

	// Close is idempotent
	rule.Close()
	if source.unobserved != 1 {
		t.Errorf("expected single unregistration, got %d", source.unobserved)
	}
}
