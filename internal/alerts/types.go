// Package alerts provides threshold-based alerting: alert lifecycle state
// machines, rule evaluation against the metric store, and rate-limited
// notification dispatch.
package alerts

import (
	"fmt"
)

// Severity is an alert severity level, ordered by escalation.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns the lowercase name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// ParseSeverity converts a severity name to a Severity. Unknown names are an
// error, never a silent default.
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "info":
		return SeverityInfo, nil
	case "warning":
		return SeverityWarning, nil
	case "error":
		return SeverityError, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return 0, fmt.Errorf("unknown severity %q (want info, warning, error, or critical)", s)
	}
}

// Status represents an alert's lifecycle state.
type Status string

const (
	// StatusResolved is the initial and quiescent state.
	StatusResolved Status = "resolved"
	// StatusActive indicates the alert has been triggered.
	StatusActive Status = "active"
	// StatusAcknowledged indicates an operator has seen the active alert.
	StatusAcknowledged Status = "acknowledged"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsAttentionWorthy returns true if the status is Active or Acknowledged.
func (s Status) IsAttentionWorthy() bool {
	return s == StatusActive || s == StatusAcknowledged
}

// Operator defines comparison operators for alert thresholds.
type Operator string

const (
	OpGreaterThan    Operator = ">"
	OpLessThan       Operator = "<"
	OpGreaterOrEqual Operator = ">="
	OpLessOrEqual    Operator = "<="
	OpEqual          Operator = "=="
	OpNotEqual       Operator = "!="
)

// String returns the string representation of the operator.
func (o Operator) String() string {
	return string(o)
}

// Compare evaluates the comparison between value and threshold using the operator.
// Returns true if the comparison is satisfied.
func (o Operator) Compare(value, threshold float64) bool {
	switch o {
	case OpGreaterThan:
		return value > threshold
	case OpLessThan:
		return value < threshold
	case OpGreaterOrEqual:
		return value >= threshold
	case OpLessOrEqual:
		return value <= threshold
	case OpEqual:
		return value == threshold
	case OpNotEqual:
		return value != threshold
	default:
		return false
	}
}

// IsValid returns true if the operator is a recognized operator.
func (o Operator) IsValid() bool {
	switch o {
	case OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual, OpEqual, OpNotEqual:
		return true
	default:
		return false
	}
}

// ParseOperator converts a string to an Operator. Unknown operators are an
// error; rule construction must fail fast rather than default.
func ParseOperator(s string) (Operator, error) {
	op := Operator(s)
	if !op.IsValid() {
		return "", fmt.Errorf("unknown operator %q (want one of > >= < <= == !=)", s)
	}
	return op, nil
}
