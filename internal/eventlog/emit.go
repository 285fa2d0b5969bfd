package eventlog

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cloud-shuttle/muster/pkg/types"
)

// Emit is the normal event-append path: it fills in identity fields,
// enforces the event-level invariants, checks the transition against the
// feature's current replayed state, appends, and re-materializes. Every
// write — human CLI, legacy migration, reconciliation — goes through here.
func (s *Store) Emit(ev types.StatusEvent) (types.StatusEvent, error) {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.At == "" {
		// Nanosecond resolution: replay sorts by (at, event_id) and event
		// IDs are random, so second-resolution stamps would fold rapid
		// sequential emits in arbitrary order
		ev.At = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if ev.ExecutionMode == "" {
		ev.ExecutionMode = types.ExecDirectRepo
	}
	if ev.WPID == "" {
		return ev, fmt.Errorf("event has no wp_id")
	}
	if !types.ValidExecutionMode(string(ev.ExecutionMode)) {
		return ev, fmt.Errorf("invalid execution_mode %q", ev.ExecutionMode)
	}
	if ev.Force && ev.Reason == "" {
		return ev, fmt.Errorf("forced transition for %s requires a reason", ev.WPID)
	}
	if ev.FromLane == types.LaneForReview && ev.ToLane == types.LaneInProgress &&
		ev.ReviewRef == "" && !ev.Force {
		return ev, fmt.Errorf("review rejection for %s requires a review_ref", ev.WPID)
	}

	events, err := s.ReadEvents()
	if err != nil {
		return ev, err
	}
	current := Reduce(ev.FeatureSlug, events)
	if state, ok := current.WorkPackages[ev.WPID]; ok && state.Lane != ev.FromLane && !ev.Force {
		return ev, fmt.Errorf("%s is in lane %s, not %s", ev.WPID, state.Lane, ev.FromLane)
	}

	check := types.TransitionCheck{
		From:          ev.FromLane,
		To:            ev.ToLane,
		Force:         ev.Force,
		Actor:         ev.Actor,
		ExecutionMode: ev.ExecutionMode,
	}
	if ev.ToLane == types.LaneDone {
		present := ev.Evidence.Complete() || ev.ReviewRef != ""
		check.EvidencePresent = &present
	}
	if ok, reason := types.ValidateTransition(check); !ok {
		return ev, fmt.Errorf("rejecting event for %s: %s", ev.WPID, reason)
	}

	if err := s.Append(ev); err != nil {
		return ev, err
	}
	if _, _, err := s.Materialize(ev.FeatureSlug); err != nil {
		return ev, fmt.Errorf("event appended but materialization failed: %w", err)
	}
	return ev, nil
}
