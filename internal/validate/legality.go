package validate

import (
	"fmt"

	"github.com/cloud-shuttle/muster/internal/eventlog"
	"github.com/cloud-shuttle/muster/pkg/types"
)

// ValidateTransitionLegality replays events in canonical order and checks
// every unforced event's (from, to) pair against the legal-transition
// table. Forced transitions are exempt: force is the documented escape
// hatch and legality findings for it would only be noise. Continuity
// breaks — an event whose from_lane is not the lane its predecessor left
// the work package in — are also reported.
func ValidateTransitionLegality(events []types.StatusEvent) []string {
	var findings []string
	lastLane := map[string]types.Lane{}
	for _, ev := range eventlog.SortEvents(events) {
		if prev, seen := lastLane[ev.WPID]; seen && prev != ev.FromLane && !ev.Force {
			findings = append(findings, fmt.Sprintf(
				"event %s: %s was in %s but event claims from_lane %s",
				ev.EventID, ev.WPID, prev, ev.FromLane))
		}
		if !ev.Force && !types.TransitionAllowed(ev.FromLane, ev.ToLane) {
			findings = append(findings, fmt.Sprintf(
				"event %s: illegal transition %s -> %s for %s",
				ev.EventID, ev.FromLane, ev.ToLane, ev.WPID))
		}
		lastLane[ev.WPID] = ev.ToLane
	}
	return findings
}
