package history

import (
	"strings"
)

// activityHeading marks the legacy activity-log section in WP Markdown files
const activityHeading = "## Activity Log"

// entrySeparator is the en-dash field separator used by the legacy tooling
const entrySeparator = " – "

// ParseActivityLog extracts raw history entries from the `## Activity Log`
// section of a WP Markdown body. Bullet lines follow the legacy shape
//
//   - {timestamp} – {actor} – [shell_pid={pid} –] lane={lane} – {note}
//
// Lines that do not parse are skipped; this is best-effort extraction from
// hand-maintained files, not a strict grammar.
func ParseActivityLog(body string) []any {
	var entries []any
	inSection := false
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "## ") {
			inSection = trimmed == activityHeading
			continue
		}
		if !inSection || !strings.HasPrefix(trimmed, "- ") {
			continue
		}
		fields := strings.Split(strings.TrimPrefix(trimmed, "- "), entrySeparator)
		if len(fields) < 3 {
			continue
		}
		entry := map[string]any{
			"timestamp": strings.TrimSpace(fields[0]),
			"actor":     strings.TrimSpace(fields[1]),
		}
		for _, field := range fields[2:] {
			field = strings.TrimSpace(field)
			if value, ok := strings.CutPrefix(field, "lane="); ok {
				entry["lane"] = strings.TrimSpace(value)
				break
			}
		}
		if _, ok := entry["lane"]; !ok {
			continue
		}
		entries = append(entries, any(entry))
	}
	return entries
}

// ChainFromDocument builds a transition chain from a full WP document,
// preferring structured frontmatter history and falling back to the
// Markdown activity log when the frontmatter carries none. The input
// frontmatter map is not mutated.
func ChainFromDocument(fm map[string]any, body, wpID string) (TransitionChain, error) {
	if raw, ok := fm["history"].([]any); ok && len(raw) > 0 {
		return BuildTransitionChain(fm, wpID)
	}
	merged := make(map[string]any, len(fm)+1)
	for k, v := range fm {
		merged[k] = v
	}
	if entries := ParseActivityLog(body); len(entries) > 0 {
		merged["history"] = entries
	}
	return BuildTransitionChain(merged, wpID)
}
