// Package types defines core data structures for Muster
package types

import (
	"errors"
	"fmt"
	"strings"
)

// Lane represents the canonical workflow state of a work package
type Lane string

const (
	LanePlanned    Lane = "planned"
	LaneClaimed    Lane = "claimed"
	LaneInProgress Lane = "in_progress"
	LaneForReview  Lane = "for_review"
	LaneDone       Lane = "done"
	LaneBlocked    Lane = "blocked"
	LaneCanceled   Lane = "canceled"
)

// ErrInvalidLane is returned when a lane value cannot be resolved
var ErrInvalidLane = errors.New("invalid lane")

// laneAliases maps legacy lane spellings to canonical lanes.
// Old frontmatter and activity logs use these freely.
var laneAliases = map[string]Lane{
	"todo":      LanePlanned,
	"backlog":   LanePlanned,
	"ready":     LanePlanned,
	"doing":     LaneInProgress,
	"wip":       LaneInProgress,
	"active":    LaneInProgress,
	"reviewing": LaneForReview,
	"review":    LaneForReview,
	"in_review": LaneForReview,
	"complete":  LaneDone,
	"completed": LaneDone,
	"finished":  LaneDone,
	"on_hold":   LaneBlocked,
	"cancelled": LaneCanceled,
}

// canonicalLanes is the closed set of valid lane values
var canonicalLanes = map[Lane]bool{
	LanePlanned:    true,
	LaneClaimed:    true,
	LaneInProgress: true,
	LaneForReview:  true,
	LaneDone:       true,
	LaneBlocked:    true,
	LaneCanceled:   true,
}

// ForwardProgression is the canonical forward path of a work package
var ForwardProgression = []Lane{
	LanePlanned, LaneClaimed, LaneInProgress, LaneForReview, LaneDone,
}

// EnsureLane resolves a raw lane value (trimmed, lowercased, alias-expanded)
// to its canonical form. Unrecognized values return ErrInvalidLane.
func EnsureLane(value string) (Lane, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if canonicalLanes[Lane(v)] {
		return Lane(v), nil
	}
	if lane, ok := laneAliases[v]; ok {
		return lane, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidLane, value)
}

// IsCanonical reports whether the value is already a canonical lane.
// Aliases are not canonical.
func IsCanonical(value string) bool {
	return canonicalLanes[Lane(value)]
}

// IsTerminal reports whether a lane permits no further transitions
func IsTerminal(lane Lane) bool {
	return lane == LaneDone || lane == LaneCanceled
}

// legalTransitions is the allow-list of lane pairs. Any transition not
// listed here requires force. Terminal lanes have no outgoing entries.
var legalTransitions = map[Lane][]Lane{
	LanePlanned:    {LaneClaimed, LaneBlocked, LaneCanceled},
	LaneClaimed:    {LaneInProgress, LaneBlocked, LaneCanceled},
	LaneInProgress: {LaneForReview, LanePlanned, LaneBlocked, LaneCanceled},
	LaneForReview:  {LaneDone, LaneInProgress, LaneBlocked, LaneCanceled},
	LaneBlocked:    {LaneInProgress, LaneCanceled},
}

// TransitionAllowed reports whether (from, to) is in the legal-transition table
func TransitionAllowed(from, to Lane) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionCheck carries everything ValidateTransition needs to judge one move.
// Guard fields are tri-state: nil means the caller has no knowledge of that
// condition and the guard is not evaluated.
type TransitionCheck struct {
	From            Lane
	To              Lane
	Force           bool
	Actor           string
	ExecutionMode   ExecutionMode
	SubtasksDone    *bool
	EvidencePresent *bool
}

// ValidateTransition checks lane-pair legality plus any supplied guard
// conditions. Force bypasses the pair table but not the caller's obligation
// to supply a reason (enforced at the emission/validation layer, not here).
func ValidateTransition(check TransitionCheck) (bool, string) {
	if check.Force {
		return true, ""
	}
	if IsTerminal(check.From) {
		return false, fmt.Sprintf("lane %s is terminal; no transitions permitted", check.From)
	}
	if !TransitionAllowed(check.From, check.To) {
		return false, fmt.Sprintf("illegal transition %s -> %s", check.From, check.To)
	}
	if check.To == LaneForReview && check.SubtasksDone != nil && !*check.SubtasksDone {
		return false, "cannot enter for_review with incomplete subtasks"
	}
	if check.To == LaneForReview && check.EvidencePresent != nil && !*check.EvidencePresent {
		return false, "cannot enter for_review without implementation evidence"
	}
	if check.From == LaneForReview && check.To == LaneDone {
		if check.EvidencePresent == nil || !*check.EvidencePresent {
			return false, "for_review -> done requires review evidence (or force)"
		}
	}
	return true, ""
}
