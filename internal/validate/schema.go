// Package validate checks events, logs, snapshots, and derived views for
// corruption and illegal state. Expected-but-invalid input is reported as
// findings (strings), never as errors: callers decide severity. Errors are
// reserved for structural corruption such as unreadable files.
package validate

import (
	"fmt"
	"regexp"

	"github.com/cloud-shuttle/muster/pkg/types"
)

var (
	uuidHyphenated = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	uuidBare       = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)
	ulidShape      = regexp.MustCompile(`^[0-9A-HJKMNP-TV-Z]{26}$`)
)

// validEventID accepts ULID and UUID (hyphenated or bare) shapes
func validEventID(id string) bool {
	return uuidHyphenated.MatchString(id) || uuidBare.MatchString(id) || ulidShape.MatchString(id)
}

// requiredEventFields must be present on every stored event. force is
// required too: the writer always serializes it, so an absent key means
// a hand-edited or truncated record, not false.
var requiredEventFields = []string{
	"event_id", "feature_slug", "wp_id", "from_lane", "to_lane", "at", "actor", "execution_mode", "force",
}

// ValidateEventSchema checks one stored event, decoded as a loose JSON
// object so that wrong field types surface as findings rather than decode
// errors. Schema validation operates on already-stored events and expects
// canonical lane values: alias spellings are flagged, not resolved.
// Unknown extra fields are never flagged, for forward compatibility.
func ValidateEventSchema(raw map[string]any) []string {
	var findings []string
	id := stringOr(raw, "event_id", "<no id>")
	report := func(format string, args ...any) {
		findings = append(findings, fmt.Sprintf("event %s: %s", id, fmt.Sprintf(format, args...)))
	}

	for _, field := range requiredEventFields {
		if v, ok := raw[field]; !ok || v == nil || v == "" {
			report("missing required field %q", field)
		}
	}
	if eid, ok := raw["event_id"].(string); ok && eid != "" && !validEventID(eid) {
		report("event_id %q is not a ULID or UUID", eid)
	}
	for _, field := range []string{"from_lane", "to_lane"} {
		v, ok := raw[field]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			report("%s is not a string", field)
			continue
		}
		if types.IsCanonical(s) {
			continue
		}
		if _, err := types.EnsureLane(s); err == nil {
			report("%s %q is a legacy alias, not a canonical lane", field, s)
		} else {
			report("%s %q is not a valid lane", field, s)
		}
	}

	force := false
	if v, ok := raw["force"]; ok {
		b, isBool := v.(bool)
		if !isBool {
			report("force is not a boolean")
		} else {
			force = b
		}
	}
	if force && stringOr(raw, "reason", "") == "" {
		report("force=true requires a reason")
	}
	if stringOr(raw, "from_lane", "") == string(types.LaneForReview) &&
		stringOr(raw, "to_lane", "") == string(types.LaneInProgress) &&
		stringOr(raw, "review_ref", "") == "" && !force {
		report("for_review -> in_progress requires a review_ref")
	}
	if mode, ok := raw["execution_mode"].(string); ok && mode != "" && !types.ValidExecutionMode(mode) {
		report("invalid execution_mode %q", mode)
	}
	if at, ok := raw["at"].(string); ok && at != "" {
		if _, err := (types.StatusEvent{At: at}).AtTime(); err != nil {
			report("at %q is not an ISO-8601 timestamp", at)
		}
	}
	return findings
}

// ValidateEventSchemas runs schema validation over a whole raw log
func ValidateEventSchemas(raws []map[string]any) []string {
	var findings []string
	for _, raw := range raws {
		findings = append(findings, ValidateEventSchema(raw)...)
	}
	return findings
}

func stringOr(raw map[string]any, key, fallback string) string {
	if v, ok := raw[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
