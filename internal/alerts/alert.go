package alerts

import (
	"sync"
	"time"
)

// Default lifecycle timings.
const (
	DefaultResolveAfter     = 5 * time.Minute
	DefaultReminderInterval = 30 * time.Minute
)

// Alert is a single alert's lifecycle state machine. All transitions are
// serialized by an internal mutex so a concurrent check-then-trigger cannot
// lose updates.
type Alert struct {
	mu sync.Mutex

	name        string
	description string
	severity    Severity
	category    string

	status           Status
	triggeredAt      time.Time
	resolvedAt       time.Time
	acknowledgedAt   time.Time
	acknowledgedBy   string
	lastNotification time.Time
	triggerCount     int
	details          map[string]any

	autoResolve      bool
	resolveAfter     time.Duration
	reminderInterval time.Duration
	silenced         bool

	now func() time.Time
}

// AlertOption configures an Alert.
type AlertOption func(*Alert)

// WithSeverity sets the alert severity.
func WithSeverity(s Severity) AlertOption {
	return func(a *Alert) {
		a.severity = s
	}
}

// WithCategory sets the alert category.
func WithCategory(c string) AlertOption {
	return func(a *Alert) {
		a.category = c
	}
}

// WithAutoResolve controls automatic resolution after the given duration of
// being triggered.
func WithAutoResolve(enabled bool, after time.Duration) AlertOption {
	return func(a *Alert) {
		a.autoResolve = enabled
		if after > 0 {
			a.resolveAfter = after
		}
	}
}

// WithReminderInterval sets the spacing between reminder notifications.
func WithReminderInterval(d time.Duration) AlertOption {
	return func(a *Alert) {
		a.reminderInterval = d
	}
}

// WithSilenced creates the alert pre-silenced.
func WithSilenced(silenced bool) AlertOption {
	return func(a *Alert) {
		a.silenced = silenced
	}
}

// WithAlertClock overrides the time source. Used by tests.
func WithAlertClock(now func() time.Time) AlertOption {
	return func(a *Alert) {
		a.now = now
	}
}

// NewAlert creates an alert in the Resolved (quiescent) state.
func NewAlert(name, description string, opts ...AlertOption) *Alert {
	a := &Alert{
		name:             name,
		description:      description,
		severity:         SeverityWarning,
		category:         "general",
		status:           StatusResolved,
		autoResolve:      true,
		resolveAfter:     DefaultResolveAfter,
		reminderInterval: DefaultReminderInterval,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the alert's unique name.
func (a *Alert) Name() string {
	return a.name
}

// Trigger activates the alert. Re-triggering an Active or Acknowledged alert
// only replaces the details and returns false ("not newly triggered").
func (a *Alert) Trigger(details map[string]any) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status.IsAttentionWorthy() {
		a.details = details
		return false
	}

	a.status = StatusActive
	a.triggeredAt = a.now()
	a.resolvedAt = time.Time{}
	a.lastNotification = time.Time{}
	a.triggerCount++
	a.details = details
	return true
}

// Acknowledge marks an Active alert as acknowledged by user. Returns false
// from any other state.
func (a *Alert) Acknowledge(user string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status != StatusActive {
		return false
	}

	a.status = StatusAcknowledged
	a.acknowledgedAt = a.now()
	a.acknowledgedBy = user
	return true
}

// Resolve transitions an Active or Acknowledged alert back to Resolved.
// Returns false when already Resolved.
func (a *Alert) Resolve() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status == StatusResolved {
		return false
	}

	a.status = StatusResolved
	a.resolvedAt = a.now()
	return true
}

// Silence enables or disables notifications for the alert.
func (a *Alert) Silence(silenced bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.silenced = silenced
}

// ShouldAutoResolve reports whether the alert has been triggered long enough
// to resolve automatically.
func (a *Alert) ShouldAutoResolve() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.autoResolve {
		return false
	}
	if a.status == StatusResolved {
		return false
	}
	return a.now().Sub(a.triggeredAt) >= a.resolveAfter
}

// ShouldNotify reports whether a notification is due. Silenced alerts never
// notify. Critical Active alerts are reminded at half the reminder interval.
func (a *Alert) ShouldNotify() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.silenced {
		return false
	}

	if a.lastNotification.IsZero() {
		return a.status != StatusResolved
	}

	elapsed := a.now().Sub(a.lastNotification)

	switch a.status {
	case StatusAcknowledged:
		return elapsed >= a.reminderInterval
	case StatusActive:
		if a.severity == SeverityCritical {
			return elapsed >= a.reminderInterval/2
		}
		return elapsed >= a.reminderInterval
	default:
		return false
	}
}

// markNotified stamps the last notification time. Called by the manager's
// notify sweep.
func (a *Alert) markNotified(t time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastNotification = t
}

// Status returns the current lifecycle state.
func (a *Alert) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Severity returns the alert severity.
func (a *Alert) Severity() Severity {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.severity
}

// AutoResolves reports whether the alert resolves automatically when its
// rule's condition clears.
func (a *Alert) AutoResolves() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.autoResolve
}

// TriggerCount returns how many times the alert has newly triggered.
func (a *Alert) TriggerCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.triggerCount
}

// Info is a point-in-time copy of an alert's state for display and
// notification. Zero times mean "not set".
type Info struct {
	Name             string
	Description      string
	Severity         Severity
	Category         string
	Status           Status
	TriggeredAt      time.Time
	ResolvedAt       time.Time
	AcknowledgedAt   time.Time
	AcknowledgedBy   string
	LastNotification time.Time
	TriggerCount     int
	Details          map[string]any
	AutoResolve      bool
	ResolveAfter     time.Duration
	Silenced         bool
}

// Info returns a snapshot of the alert. The details map is copied so the
// caller cannot race the state machine.
func (a *Alert) Info() Info {
	a.mu.Lock()
	defer a.mu.Unlock()

	var details map[string]any
	if a.details != nil {
		details = make(map[string]any, len(a.details))
		for k, v := range a.details {
			details[k] = v
		}
	}

	return Info{
		Name:             a.name,
		Description:      a.description,
		Severity:         a.severity,
		Category:         a.category,
		Status:           a.status,
		TriggeredAt:      a.triggeredAt,
		ResolvedAt:       a.resolvedAt,
		AcknowledgedAt:   a.acknowledgedAt,
		AcknowledgedBy:   a.acknowledgedBy,
		LastNotification: a.lastNotification,
		TriggerCount:     a.triggerCount,
		Details:          details,
		AutoResolve:      a.autoResolve,
		ResolveAfter:     a.resolveAfter,
		Silenced:         a.silenced,
	}
}
