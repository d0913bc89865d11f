package alerts

import (
	"context"
	"sync"
	"time"

	"github.com/vigilhq/vigil/internal/logger"
	"github.com/vigilhq/vigil/internal/notify"
)

// Sink role names used for severity routing.
const (
	SinkDefault  = "default"
	SinkError    = "error"
	SinkCritical = "critical"
)

// DefaultHistoryLimit caps the in-memory alert history; oldest entries are
// trimmed.
const DefaultHistoryLimit = 1000

// HistoryEntry is an append-only record of a manager action.
type HistoryEntry struct {
	Action    string
	AlertName string
	Timestamp time.Time
	Details   map[string]any
}

// HistoryStore persists history entries. Optional; delivery is best-effort.
type HistoryStore interface {
	SaveEntry(ctx context.Context, entry HistoryEntry) error
}

// Summary describes the manager's current state.
type Summary struct {
	ActiveAlerts   int
	TotalAlerts    int
	TotalRules     int
	Sinks          []string
	SeverityCounts map[string]int
}

// Manager owns the set of alerts and rules, runs the periodic
// evaluation/auto-resolve/notify loop, records history, and routes
// notifications to sinks by severity.
type Manager struct {
	mu      sync.Mutex
	alerts  map[string]*Alert
	rules   map[string]Checker
	sinks   map[string]notify.Sink
	history []HistoryEntry

	source       MetricSource
	historyStore HistoryStore
	historyLimit int

	tick          time.Duration
	notifyTimeout time.Duration
	now           func() time.Time

	startMu sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTick sets the background loop interval.
func WithTick(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.tick = d
		}
	}
}

// WithNotifyTimeout bounds a single notification dispatch.
func WithNotifyTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.notifyTimeout = d
		}
	}
}

// WithHistoryLimit caps the in-memory history length.
func WithHistoryLimit(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.historyLimit = n
		}
	}
}

// WithHistoryStore sets the optional history persistence backend.
func WithHistoryStore(hs HistoryStore) ManagerOption {
	return func(m *Manager) {
		m.historyStore = hs
	}
}

// WithManagerClock overrides the time source. Used by tests.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates an alert manager reading metrics from source.
func NewManager(source MetricSource, opts ...ManagerOption) *Manager {
	m := &Manager{
		alerts:        make(map[string]*Alert),
		rules:         make(map[string]Checker),
		sinks:         make(map[string]notify.Sink),
		source:        source,
		historyLimit:  DefaultHistoryLimit,
		tick:          time.Second,
		notifyTimeout: notify.DefaultTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterSink registers a notification sink under a role name
// ("default", "error", "critical"). A later registration replaces an
// earlier one under the same role.
func (m *Manager) RegisterSink(role string, sink notify.Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks[role] = sink
}

// AddAlert registers an alert. A later alert with the same name replaces the
// earlier one.
func (m *Manager) AddAlert(alert *Alert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[alert.Name()] = alert
	logger.Info("added alert", "alert", alert.Name())
}

// AddRule registers a rule, auto-registering its alert when not already
// present.
func (m *Manager) AddRule(rule Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rules[rule.RuleName()] = rule
	alert := rule.BoundAlert()
	if _, ok := m.alerts[alert.Name()]; !ok {
		m.alerts[alert.Name()] = alert
	}
	logger.Info("added rule", "rule", rule.RuleName())
}

// AddMetricRule builds a metric-threshold rule, registers it, and returns
// it. Configuration errors fail fast.
func (m *Manager) AddMetricRule(cfg MetricRuleConfig, opts ...RuleOption) (*MetricRule, error) {
	rule, err := NewMetricRule(m.source, cfg, opts...)
	if err != nil {
		return nil, err
	}
	m.AddRule(rule)
	return rule, nil
}

// RemoveAlert removes an alert by name. Returns false when absent.
func (m *Manager) RemoveAlert(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.alerts[name]; !ok {
		return false
	}
	delete(m.alerts, name)
	logger.Info("removed alert", "alert", name)
	return true
}

// RemoveRule removes a rule by name, releasing its metric observer.
// Returns false when absent.
func (m *Manager) RemoveRule(name string) bool {
	m.mu.Lock()
	rule, ok := m.rules[name]
	if ok {
		delete(m.rules, name)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	rule.Close()
	logger.Info("removed rule", "rule", name)
	return true
}

// GetAlert returns the alert with the given name.
func (m *Manager) GetAlert(name string) (*Alert, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	alert, ok := m.alerts[name]
	return alert, ok
}

// TriggerAlert manually triggers an alert, creating it when absent.
// An empty description defaults to the name; the canonical severity default
// is Warning.
func (m *Manager) TriggerAlert(name, description string, severity Severity, category string, details map[string]any) *Alert {
	m.mu.Lock()
	alert, ok := m.alerts[name]
	if !ok {
		if description == "" {
			description = name
		}
		if category == "" {
			category = "general"
		}
		alert = NewAlert(name, description,
			WithSeverity(severity),
			WithCategory(category),
		)
		m.alerts[name] = alert
	}
	m.mu.Unlock()

	alert.Trigger(details)

	info := alert.Info()
	m.appendHistory(HistoryEntry{
		Action:    "trigger",
		AlertName: name,
		Timestamp: m.now(),
		Details: map[string]any{
			"severity": info.Severity.String(),
			"category": info.Category,
			"manual":   true,
		},
	})
	logger.Info("manually triggered alert", "alert", name)
	return alert
}

// AcknowledgeAlert acknowledges an active alert. Returns false when the
// alert is absent or not active.
func (m *Manager) AcknowledgeAlert(name, user string) bool {
	alert, ok := m.GetAlert(name)
	if !ok {
		return false
	}
	if !alert.Acknowledge(user) {
		return false
	}

	m.appendHistory(HistoryEntry{
		Action:    "acknowledge",
		AlertName: name,
		Timestamp: m.now(),
		Details:   map[string]any{"user": user},
	})
	logger.Info("acknowledged alert", "alert", name, "user", user)
	return true
}

// ResolveAlert resolves an alert. Returns false when absent or already
// resolved.
func (m *Manager) ResolveAlert(name string) bool {
	alert, ok := m.GetAlert(name)
	if !ok {
		return false
	}
	if !alert.Resolve() {
		return false
	}

	m.appendHistory(HistoryEntry{
		Action:    "resolve",
		AlertName: name,
		Timestamp: m.now(),
		Details:   map[string]any{"manual": true},
	})
	logger.Info("resolved alert", "alert", name)
	return true
}

// SilenceAlert silences or unsilences an alert. Returns false when absent.
func (m *Manager) SilenceAlert(name string, silence bool) bool {
	alert, ok := m.GetAlert(name)
	if !ok {
		return false
	}
	alert.Silence(silence)

	action := "silence"
	if !silence {
		action = "unsilence"
	}
	m.appendHistory(HistoryEntry{
		Action:    action,
		AlertName: name,
		Timestamp: m.now(),
	})
	logger.Info(action+"d alert", "alert", name)
	return true
}

// GetActiveAlerts returns snapshots of all alerts needing attention
// (Active or Acknowledged).
func (m *Manager) GetActiveAlerts() []Info {
	m.mu.Lock()
	alerts := make([]*Alert, 0, len(m.alerts))
	for _, alert := range m.alerts {
		alerts = append(alerts, alert)
	}
	m.mu.Unlock()

	var out []Info
	for _, alert := range alerts {
		info := alert.Info()
		if info.Status.IsAttentionWorthy() {
			out = append(out, info)
		}
	}
	return out
}

// AlertHistory returns up to limit most recent history entries, newest
// first.
func (m *Manager) AlertHistory(limit int) []HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.history)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]HistoryEntry, n)
	for i := 0; i < n; i++ {
		out[i] = m.history[len(m.history)-1-i]
	}
	return out
}

// Status returns a summary of the manager's state.
func (m *Manager) Status() Summary {
	active := m.GetActiveAlerts()

	m.mu.Lock()
	defer m.mu.Unlock()

	sinks := make([]string, 0, len(m.sinks))
	for name := range m.sinks {
		sinks = append(sinks, name)
	}

	counts := map[string]int{
		SeverityInfo.String():     0,
		SeverityWarning.String():  0,
		SeverityError.String():    0,
		SeverityCritical.String(): 0,
	}
	for _, info := range active {
		counts[info.Severity.String()]++
	}

	return Summary{
		ActiveAlerts:   len(active),
		TotalAlerts:    len(m.alerts),
		TotalRules:     len(m.rules),
		Sinks:          sinks,
		SeverityCounts: counts,
	}
}

// Start launches the background evaluation loop. Idempotent.
func (m *Manager) Start(ctx context.Context) {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	if m.started {
		return
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.loop()
	logger.Info("alert manager started")
}

// Stop cancels the loop and waits for the in-flight iteration. Idempotent;
// no further notifications are dispatched after Stop returns.
func (m *Manager) Stop() {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	if !m.started {
		return
	}
	m.started = false
	m.cancel()
	m.wg.Wait()
	logger.Info("alert manager stopped")
}

// loop runs the evaluate/auto-resolve/notify cycle once per tick.
func (m *Manager) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.CheckRules()
			m.autoResolveSweep()
			m.notifySweep()
		}
	}
}

// CheckRules evaluates every registered rule. A failing rule never stops
// the sweep.
func (m *Manager) CheckRules() {
	m.mu.Lock()
	rules := make([]Checker, 0, len(m.rules))
	for _, rule := range m.rules {
		rules = append(rules, rule)
	}
	m.mu.Unlock()

	for _, rule := range rules {
		m.checkRule(rule)
	}
}

func (m *Manager) checkRule(rule Checker) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("alert rule check panicked", "rule", rule.RuleName(), "panic", r)
		}
	}()
	rule.Check()
}

// autoResolveSweep resolves every alert whose auto-resolve timeout elapsed.
func (m *Manager) autoResolveSweep() {
	m.mu.Lock()
	alerts := make([]*Alert, 0, len(m.alerts))
	for _, alert := range m.alerts {
		alerts = append(alerts, alert)
	}
	m.mu.Unlock()

	for _, alert := range alerts {
		if !alert.ShouldAutoResolve() {
			continue
		}
		if !alert.Resolve() {
			continue
		}
		info := alert.Info()
		logger.Info("auto-resolved alert", "alert", info.Name)
		m.appendHistory(HistoryEntry{
			Action:    "auto_resolve",
			AlertName: info.Name,
			Timestamp: m.now(),
			Details: map[string]any{
				"severity":     info.Severity.String(),
				"category":     info.Category,
				"triggered_at": info.TriggeredAt,
				"resolved_at":  info.ResolvedAt,
			},
		})
	}
}

// notifySweep dispatches a notification for every alert that is due one.
// Dispatches run concurrently, each bounded by the notify timeout, so one
// slow sink cannot stall the rest of the sweep.
func (m *Manager) notifySweep() {
	m.mu.Lock()
	alerts := make([]*Alert, 0, len(m.alerts))
	for _, alert := range m.alerts {
		alerts = append(alerts, alert)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, alert := range alerts {
		if !alert.ShouldNotify() {
			continue
		}
		alert.markNotified(m.now())

		info := alert.Info()
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.dispatch(info)
		}()
	}
	wg.Wait()
}

// dispatch routes one alert notification to a sink chosen by severity.
// Sink failures are logged; the alert's logical state is unaffected.
func (m *Manager) dispatch(info Info) {
	role, sink := m.sinkFor(info.Severity)
	if sink == nil {
		logger.Error("no notification sink registered", "alert", info.Name, "severity", info.Severity.String())
		return
	}

	title, message := formatNotification(info)

	ctx, cancel := context.WithTimeout(context.Background(), m.notifyTimeout)
	defer cancel()

	if err := sink.Send(ctx, message, title, info.Severity.String()); err != nil {
		logger.Error("notification delivery failed",
			"alert", info.Name,
			"sink", role,
			"error", err.Error())
		return
	}

	logger.Info("sent notification", "alert", info.Name, "sink", role)
	m.appendHistory(HistoryEntry{
		Action:    "notify",
		AlertName: info.Name,
		Timestamp: m.now(),
		Details: map[string]any{
			"sink":     role,
			"severity": info.Severity.String(),
			"status":   info.Status.String(),
		},
	})
}

// sinkFor picks a sink by severity: Critical prefers the "critical" sink,
// Error prefers the "error" sink, everything falls back to "default".
func (m *Manager) sinkFor(severity Severity) (string, notify.Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if severity == SeverityCritical {
		if sink, ok := m.sinks[SinkCritical]; ok {
			return SinkCritical, sink
		}
	}
	if severity == SeverityError {
		if sink, ok := m.sinks[SinkError]; ok {
			return SinkError, sink
		}
	}
	return SinkDefault, m.sinks[SinkDefault]
}

// appendHistory records an entry in the bounded in-memory log and persists
// it best-effort when a history store is configured.
func (m *Manager) appendHistory(entry HistoryEntry) {
	m.mu.Lock()
	m.history = append(m.history, entry)
	if len(m.history) > m.historyLimit {
		m.history = m.history[len(m.history)-m.historyLimit:]
	}
	hs := m.historyStore
	m.mu.Unlock()

	if hs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hs.SaveEntry(ctx, entry); err != nil {
		logger.Warn("failed to persist alert history entry",
			"alert", entry.AlertName,
			"action", entry.Action,
			"error", err.Error())
	}
}
