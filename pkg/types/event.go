package types

import (
	"fmt"
	"time"
)

// ExecutionMode records where a transition was performed
type ExecutionMode string

const (
	// ExecWorktree means the actor operated in an isolated git worktree
	ExecWorktree ExecutionMode = "worktree"
	// ExecDirectRepo means the actor operated directly in the main checkout
	ExecDirectRepo ExecutionMode = "direct_repo"
)

// ValidExecutionMode reports whether the value is a known execution mode
func ValidExecutionMode(v string) bool {
	return v == string(ExecWorktree) || v == string(ExecDirectRepo)
}

// ReviewEvidence records who approved a work package and where the
// approval lives
type ReviewEvidence struct {
	Reviewer  string `json:"reviewer"`
	Verdict   string `json:"verdict"`
	Reference string `json:"reference"`
}

// DoneEvidence is the structured payload expected on transitions into done
type DoneEvidence struct {
	Review *ReviewEvidence `json:"review,omitempty"`
}

// Complete reports whether every review sub-field is populated
func (e *DoneEvidence) Complete() bool {
	if e == nil || e.Review == nil {
		return false
	}
	return e.Review.Reviewer != "" && e.Review.Verdict != "" && e.Review.Reference != ""
}

// StatusEvent is one immutable fact in a feature's append-only event log.
// Events are never mutated or deleted once appended.
type StatusEvent struct {
	EventID       string        `json:"event_id"`
	FeatureSlug   string        `json:"feature_slug"`
	WPID          string        `json:"wp_id"`
	FromLane      Lane          `json:"from_lane"`
	ToLane        Lane          `json:"to_lane"`
	At            string        `json:"at"` // ISO-8601; kept as stored for byte-stable replay
	Actor         string        `json:"actor"`
	Force         bool          `json:"force"`
	ExecutionMode ExecutionMode `json:"execution_mode"`
	Reason        string        `json:"reason,omitempty"`
	ReviewRef     string        `json:"review_ref,omitempty"`
	Evidence      *DoneEvidence `json:"evidence,omitempty"`
}

// AtTime parses the event timestamp. RFC 3339 is the on-disk format; a
// bare date-time without offset is tolerated for hand-migrated logs.
func (e StatusEvent) AtTime() (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, e.At); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05", e.At); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", e.At)
}
