package eventlog

import (
	"sort"
	"time"

	"github.com/cloud-shuttle/muster/pkg/types"
)

// SortEvents returns a copy of events ordered by (at, event_id). This is
// the mechanism that makes replay independent of on-disk append order:
// concurrent worktree processes may interleave appends, but each assigns
// a timestamp and a globally unique event ID. Unparseable timestamps fall
// back to raw string comparison rather than failing the fold.
func SortEvents(events []types.StatusEvent) []types.StatusEvent {
	sorted := append([]types.StatusEvent{}, events...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ki, kj := sortKey(sorted[i]), sortKey(sorted[j])
		if ki != kj {
			return ki < kj
		}
		return sorted[i].EventID < sorted[j].EventID
	})
	return sorted
}

// sortKey normalizes timestamps so events written with different UTC
// offsets still order by instant
func sortKey(ev types.StatusEvent) string {
	if t, err := ev.AtTime(); err == nil {
		return t.UTC().Format("2006-01-02T15:04:05.000000000Z")
	}
	return ev.At
}

// Reduce folds an event list into a snapshot. It is a pure function of
// the event set: any permutation of the input produces the same result.
// The summary is recomputed in full from the final work-package map, never
// maintained incrementally.
func Reduce(featureSlug string, events []types.StatusEvent) types.StatusSnapshot {
	snap := types.EmptySnapshot(featureSlug)
	sorted := SortEvents(events)
	for _, ev := range sorted {
		state := snap.WorkPackages[ev.WPID]
		state.Lane = ev.ToLane
		state.Actor = ev.Actor
		state.LastTransitionAt = ev.At
		state.LastEventID = ev.EventID
		if ev.Force {
			state.ForceCount++
		}
		snap.WorkPackages[ev.WPID] = state
	}
	for _, state := range snap.WorkPackages {
		snap.Summary[state.Lane]++
	}
	snap.EventCount = len(sorted)
	if len(sorted) > 0 {
		snap.LastEventID = sorted[len(sorted)-1].EventID
	}
	return snap
}

// Materialize replays the event log and writes the snapshot. It is
// idempotent: when the freshly folded content matches the snapshot already
// on disk, no write happens and the file stays byte-identical. Returns the
// effective snapshot and whether the file changed.
func (s *Store) Materialize(featureSlug string) (types.StatusSnapshot, bool, error) {
	events, err := s.ReadEvents()
	if err != nil {
		return types.StatusSnapshot{}, false, err
	}
	snap := Reduce(featureSlug, events)

	if existing, err := s.ReadSnapshot(); err == nil && existing != nil && existing.ContentEquals(snap) {
		return *existing, false, nil
	}

	snap.MaterializedAt = time.Now().UTC().Format(time.RFC3339)
	if err := s.writeSnapshot(snap); err != nil {
		return types.StatusSnapshot{}, false, err
	}
	return snap, true, nil
}
