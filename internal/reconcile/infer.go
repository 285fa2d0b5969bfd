package reconcile

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloud-shuttle/muster/pkg/types"
)

// ReconcileActor is the actor recorded on reconciliation-suggested events
const ReconcileActor = "reconcile"

// ReconcileResult is the ephemeral output of a reconciliation scan. It is
// never persisted: either discarded (dry run) or each suggested event is
// independently re-validated and appended through the normal emission path.
type ReconcileResult struct {
	SuggestedEvents []types.StatusEvent `json:"suggested_events"`
	DriftDetected   bool                `json:"drift_detected"`
	Details         []string            `json:"details"`
	Errors          []string            `json:"errors"`
	Stats           map[string]int      `json:"stats"`
}

// targetLane applies the evidence policy for one work package, in strict
// priority order. Returns the inferred target lane, an optional detail
// note, and whether the drift is actionable.
func targetLane(current types.Lane, merged bool, commitCount int) (types.Lane, string, bool) {
	switch {
	case types.IsTerminal(current):
		return "", fmt.Sprintf("already %s; skipped", current), false
	case current == types.LaneBlocked:
		return "", "blocked; no automatic advancement, manual review recommended", false
	case merged && (current == types.LanePlanned || current == types.LaneClaimed || current == types.LaneInProgress):
		return types.LaneForReview, "", true
	case merged && current == types.LaneForReview:
		// Promotion to done needs reviewer evidence this engine cannot fabricate
		return "", "branch merged but lane is for_review; promotion to done requires reviewer evidence", false
	case commitCount > 0 && current == types.LanePlanned:
		return types.LaneClaimed, "", true
	case commitCount > 0 && current == types.LaneClaimed:
		return types.LaneInProgress, "", true
	default:
		return "", "", false
	}
}

// laneAdvancementChain expands a (current, target) gap into the minimal
// sequence of single-step transitions along the canonical forward
// progression. If any intermediate hop is not in the legal-transition
// table, the whole chain is abandoned — all or nothing per WP, never an
// illegal jump or a partial chain.
func laneAdvancementChain(current, target types.Lane) [][2]types.Lane {
	from, to := -1, -1
	for i, lane := range types.ForwardProgression {
		if lane == current {
			from = i
		}
		if lane == target {
			to = i
		}
	}
	if from < 0 || to < 0 || to <= from {
		return nil
	}
	var chain [][2]types.Lane
	for i := from; i < to; i++ {
		step := [2]types.Lane{types.ForwardProgression[i], types.ForwardProgression[i+1]}
		if !types.TransitionAllowed(step[0], step[1]) {
			return nil
		}
		chain = append(chain, step)
	}
	return chain
}

// evidenceReason summarizes why reconciliation believes a WP moved
func evidenceReason(wpID string, commitCount int, merged bool) string {
	var parts []string
	if commitCount > 0 {
		parts = append(parts, fmt.Sprintf("%d commit(s) referencing %s", commitCount, wpID))
	}
	if merged {
		parts = append(parts, "branch merged into default branch")
	}
	return "reconcile: " + strings.Join(parts, "; ")
}

// SuggestEvents computes candidate status events from merged evidence.
// Every candidate is independently re-validated through the transition
// rules before it enters the result; a rejected candidate becomes a
// detail message, not a failure of the whole run.
func SuggestEvents(featureSlug string, snap types.StatusSnapshot,
	evidence map[string][]CommitInfo, merged map[string]bool) *ReconcileResult {

	result := &ReconcileResult{Stats: map[string]int{}}

	wpIDs := map[string]bool{}
	for wpID := range evidence {
		wpIDs[wpID] = true
	}
	for wpID := range merged {
		wpIDs[wpID] = true
	}
	ordered := make([]string, 0, len(wpIDs))
	for wpID := range wpIDs {
		ordered = append(ordered, wpID)
	}
	sort.Strings(ordered)
	result.Stats["wps_scanned"] = len(ordered)

	// Replay orders events by (at, event_id), so every suggested event gets
	// a strictly increasing stamp; a shared one would fold multi-step
	// chains in arbitrary order.
	base := time.Now().UTC()
	for _, wpID := range ordered {
		// A WP with evidence but no events yet starts from planned
		current := types.LanePlanned
		if state, ok := snap.WorkPackages[wpID]; ok {
			current = state.Lane
		}
		commitCount := len(evidence[wpID])

		target, note, actionable := targetLane(current, merged[wpID], commitCount)
		if note != "" {
			result.Details = append(result.Details, fmt.Sprintf("%s: %s", wpID, note))
			if !actionable && current == types.LaneForReview && merged[wpID] {
				result.DriftDetected = true
			}
		}
		if !actionable {
			continue
		}

		chain := laneAdvancementChain(current, target)
		if len(chain) == 0 {
			result.Details = append(result.Details, fmt.Sprintf(
				"%s: no legal advancement chain from %s to %s; skipped", wpID, current, target))
			continue
		}

		reason := evidenceReason(wpID, commitCount, merged[wpID])
		for _, step := range chain {
			check := types.TransitionCheck{
				From:          step[0],
				To:            step[1],
				Actor:         ReconcileActor,
				ExecutionMode: types.ExecDirectRepo,
			}
			if step[1] == types.LaneForReview {
				// The mined implementation evidence satisfies this guard;
				// reviewer evidence is never pre-satisfied.
				present := true
				check.EvidencePresent = &present
			}
			if ok, why := types.ValidateTransition(check); !ok {
				result.Details = append(result.Details, fmt.Sprintf(
					"%s: candidate %s -> %s rejected: %s", wpID, step[0], step[1], why))
				break
			}
			at := base.Add(time.Duration(len(result.SuggestedEvents)) * time.Microsecond)
			result.SuggestedEvents = append(result.SuggestedEvents, types.StatusEvent{
				FeatureSlug:   featureSlug,
				WPID:          wpID,
				FromLane:      step[0],
				ToLane:        step[1],
				At:            at.Format(time.RFC3339Nano),
				Actor:         ReconcileActor,
				ExecutionMode: types.ExecDirectRepo,
				Reason:        reason,
			})
		}
	}

	if len(result.SuggestedEvents) > 0 {
		result.DriftDetected = true
	}
	result.Stats["events_suggested"] = len(result.SuggestedEvents)
	return result
}
