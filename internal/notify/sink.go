// Package notify provides notification sinks for alert delivery.
//
// Sinks are capability interfaces: the alert manager routes a formatted
// message to a sink and treats delivery as best-effort. Failures are
// returned to the caller for logging, never retried here.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single delivery so a slow sink cannot stall the
// notify sweep.
const DefaultTimeout = 10 * time.Second

// Sink delivers a notification to an external target.
type Sink interface {
	// Send delivers message with the given title and severity level name.
	Send(ctx context.Context, message, title, level string) error
}

// New creates a sink of the given type ("slack", "discord", or "webhook")
// pointed at url. Unknown types are an error.
func New(sinkType, url string, timeout time.Duration) (Sink, error) {
	if url == "" {
		return nil, fmt.Errorf("notify: %s sink requires a url", sinkType)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := &http.Client{Timeout: timeout}

	switch sinkType {
	case "slack":
		return &SlackSink{url: url, client: client}, nil
	case "discord":
		return &DiscordSink{url: url, client: client}, nil
	case "webhook", "http":
		return &WebhookSink{url: url, client: client}, nil
	default:
		return nil, fmt.Errorf("notify: unknown sink type %q", sinkType)
	}
}

// levelLabel renders a severity level name for chat messages.
func levelLabel(level string) string {
	switch level {
	case "critical":
		return "[CRITICAL]"
	case "error":
		return "[ERROR]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}
