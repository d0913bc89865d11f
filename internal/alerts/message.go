package alerts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
)

// formatNotification renders an alert snapshot into a notification title and
// body. Times are humanized relative to now so chat sinks read naturally.
func formatNotification(info Info) (title, message string) {
	title = "Alert: " + info.Name

	var b strings.Builder
	if info.Description != "" {
		b.WriteString(info.Description)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Status: %s\n", info.Status)
	fmt.Fprintf(&b, "Severity: %s\n", info.Severity)
	fmt.Fprintf(&b, "Category: %s\n", info.Category)

	if !info.TriggeredAt.IsZero() {
		fmt.Fprintf(&b, "Triggered: %s\n", humanize.Time(info.TriggeredAt))
	}
	if info.Status == StatusAcknowledged && !info.AcknowledgedAt.IsZero() {
		fmt.Fprintf(&b, "Acknowledged: %s by %s\n", humanize.Time(info.AcknowledgedAt), info.AcknowledgedBy)
	}
	if info.TriggerCount > 1 {
		fmt.Fprintf(&b, "Trigger count: %d\n", info.TriggerCount)
	}

	if len(info.Details) > 0 {
		keys := make([]string, 0, len(info.Details))
		for k := range info.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("Details:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %v\n", k, info.Details[k])
		}
	}

	return title, strings.TrimRight(b.String(), "\n")
}
