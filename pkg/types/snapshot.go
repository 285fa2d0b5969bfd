package types

// WPState is the per-work-package projection inside a snapshot. A work
// package is created implicitly by its first event and never deleted;
// cancellation is a lane value, not removal.
type WPState struct {
	Lane             Lane   `json:"lane"`
	Actor            string `json:"actor"`
	LastTransitionAt string `json:"last_transition_at"`
	LastEventID      string `json:"last_event_id"`
	ForceCount       int    `json:"force_count"`
}

// StatusSnapshot is a materialized projection of a feature's event log.
// It is a cache: always rebuildable by replay, never authoritative.
type StatusSnapshot struct {
	FeatureSlug    string             `json:"feature_slug"`
	MaterializedAt string             `json:"materialized_at"`
	EventCount     int                `json:"event_count"`
	LastEventID    string             `json:"last_event_id"`
	WorkPackages   map[string]WPState `json:"work_packages"`
	Summary        map[Lane]int       `json:"summary"`
}

// EmptySnapshot returns the snapshot of a feature with no events
func EmptySnapshot(featureSlug string) StatusSnapshot {
	return StatusSnapshot{
		FeatureSlug:  featureSlug,
		WorkPackages: map[string]WPState{},
		Summary:      map[Lane]int{},
	}
}

// ContentEquals compares everything replay determines, ignoring
// materialized_at (which records when the fold ran, not what it produced)
func (s StatusSnapshot) ContentEquals(other StatusSnapshot) bool {
	if s.FeatureSlug != other.FeatureSlug ||
		s.EventCount != other.EventCount ||
		s.LastEventID != other.LastEventID ||
		len(s.WorkPackages) != len(other.WorkPackages) ||
		len(s.Summary) != len(other.Summary) {
		return false
	}
	for id, wp := range s.WorkPackages {
		if other.WorkPackages[id] != wp {
			return false
		}
	}
	for lane, n := range s.Summary {
		if other.Summary[lane] != n {
			return false
		}
	}
	return true
}
