package backoffice

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// FormatContext renders snap as markdown for the model's system
// instructions. Sections without records are omitted; an empty snapshot
// yields "". now anchors the relative "updated" labels.
func FormatContext(snap Snapshot, now time.Time) string {
	var sb strings.Builder

	section := func(title string, recs []Record) {
		if len(recs) == 0 {
			return
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("## ")
		sb.WriteString(title)
		sb.WriteByte('\n')
		for i, r := range recs {
			if i > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(formatRecord(r, now))
		}
	}

	section("Clients", snap.Clients)
	section("Campaigns", snap.Campaigns)
	section("Tasks", snap.Tasks)

	if sb.Len() == 0 {
		return ""
	}
	return "# Back-office data\n\n" + sb.String()
}

// formatRecord renders one record as a bullet line:
//
//	- Acme (id 42; owner: Dana, status: active; updated 2h ago)
func formatRecord(r Record, now time.Time) string {
	parts := []string{"id " + r.ID}

	if len(r.Fields) > 0 {
		keys := make([]string, 0, len(r.Fields))
		for k := range r.Fields {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		kv := make([]string, 0, len(keys))
		for _, k := range keys {
			kv = append(kv, fmt.Sprintf("%s: %s", k, r.Fields[k]))
		}
		parts = append(parts, strings.Join(kv, ", "))
	}
	if !r.UpdatedAt.IsZero() {
		parts = append(parts, "updated "+formatRelativeTime(now.Sub(r.UpdatedAt)))
	}
	return fmt.Sprintf("- %s (%s)", r.Name, strings.Join(parts, "; "))
}

// formatRelativeTime converts a duration to a compact label such as
// "just now", "30s ago", "2m ago", "5h ago" or "3d ago".
func formatRelativeTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < 5*time.Second:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
