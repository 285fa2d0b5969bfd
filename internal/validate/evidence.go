package validate

import (
	"fmt"
)

// ValidateDoneEvidence checks every stored event entering done for a
// complete review payload. Forced done events are exempt — force already
// carries its own reason. Each missing sub-field is its own finding so a
// report pinpoints exactly what a reviewer must supply.
func ValidateDoneEvidence(raws []map[string]any) []string {
	var findings []string
	for _, raw := range raws {
		if stringOr(raw, "to_lane", "") != "done" {
			continue
		}
		if force, ok := raw["force"].(bool); ok && force {
			continue
		}
		id := stringOr(raw, "event_id", "<no id>")
		report := func(format string, args ...any) {
			findings = append(findings, fmt.Sprintf("event %s: %s", id, fmt.Sprintf(format, args...)))
		}

		evidence, present := raw["evidence"]
		if !present || evidence == nil {
			report("done transition has no evidence")
			continue
		}
		evidenceMap, ok := evidence.(map[string]any)
		if !ok {
			report("evidence is not a dict")
			continue
		}
		review, ok := evidenceMap["review"].(map[string]any)
		if !ok {
			report("evidence has no review object")
			continue
		}
		for _, field := range []string{"reviewer", "verdict", "reference"} {
			if stringOr(review, field, "") == "" {
				report("evidence review is missing %s", field)
			}
		}
	}
	return findings
}
