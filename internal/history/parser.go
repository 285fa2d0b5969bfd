// Package history normalizes legacy work-package activity history into
// typed transition chains. The inputs are loosely structured frontmatter
// blobs and Markdown activity logs written by several generations of
// tooling, so every function here tolerates real-world messiness: missing
// actors, alias lane spellings, duplicated entries, and gaps between the
// recorded history and the declared current lane.
package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/cloud-shuttle/muster/pkg/types"
)

// MigrationActor is attributed to synthesized transitions that no human
// or agent actually performed
const MigrationActor = "migration"

// NormalizedHistoryEntry is one cleaned-up history record
type NormalizedHistoryEntry struct {
	Lane      types.Lane
	Actor     string
	Timestamp string
}

// Transition is a single lane move derived from history
type Transition struct {
	From      types.Lane
	To        types.Lane
	Timestamp string
	Actor     string
	Evidence  *types.DoneEvidence
}

// TransitionChain bundles the ordered transitions derived for one work
// package plus bookkeeping about the raw input
type TransitionChain struct {
	Transitions    []Transition
	HistoryEntries int
	HasEvidence    bool
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// entryString reads the first non-empty value among keys. YAML decodes
// unquoted timestamps into time.Time, so those are rendered back as
// RFC3339 instead of being dropped.
func entryString(entry map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := entry[key].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		case time.Time:
			return v.UTC().Format(time.RFC3339)
		}
	}
	return ""
}

// NormalizeEntries converts raw history entries into typed form. Non-map
// and lane-less entries are skipped; lane aliases are resolved; a missing
// actor falls back to MigrationActor and a missing timestamp to a
// generated one. Input order is preserved — callers are responsible for
// supplying chronological order.
func NormalizeEntries(rawHistory []any) []NormalizedHistoryEntry {
	var entries []NormalizedHistoryEntry
	for _, raw := range rawHistory {
		entry, ok := toStringMap(raw)
		if !ok {
			continue
		}
		laneValue := entryString(entry, "lane")
		if laneValue == "" {
			continue
		}
		lane, err := types.EnsureLane(laneValue)
		if err != nil {
			continue
		}
		actor := entryString(entry, "actor", "agent")
		if actor == "" {
			actor = MigrationActor
		}
		ts := entryString(entry, "timestamp", "at")
		if ts == "" {
			ts = nowStamp()
		}
		entries = append(entries, NormalizedHistoryEntry{Lane: lane, Actor: actor, Timestamp: ts})
	}
	return entries
}

// toStringMap accepts both map[string]any and the map[any]any shape older
// YAML decoders produce
func toStringMap(raw any) (map[string]any, bool) {
	switch m := raw.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			key, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[key] = v
		}
		return out, true
	default:
		return nil, false
	}
}

// CollapseDuplicates removes consecutive repeats of the same lane, keeping
// the first occurrence's actor and timestamp. Non-consecutive repeats are
// legitimate lane round-trips and are preserved.
func CollapseDuplicates(entries []NormalizedHistoryEntry) []NormalizedHistoryEntry {
	var out []NormalizedHistoryEntry
	for _, entry := range entries {
		if len(out) > 0 && out[len(out)-1].Lane == entry.Lane {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// PairTransitions turns adjacent entry pairs into transitions. Each
// transition takes the timestamp and actor of its destination entry.
// A single entry yields no transitions.
func PairTransitions(entries []NormalizedHistoryEntry) []Transition {
	var transitions []Transition
	for i := 0; i+1 < len(entries); i++ {
		transitions = append(transitions, Transition{
			From:      entries[i].Lane,
			To:        entries[i+1].Lane,
			Timestamp: entries[i+1].Timestamp,
			Actor:     entries[i+1].Actor,
		})
	}
	return transitions
}

// GapFill reconciles recorded history against the frontmatter's declared
// current lane, synthesizing at most one transition attributed to
// MigrationActor. The input slice is never mutated.
//
// Cases:
//  1. no history, current == planned: nothing to record
//  2. no history, current != planned: one bootstrap planned -> current
//  3. last known lane == current: no-op
//  4. last known lane != current: one appended last -> current
func GapFill(existing []Transition, lastKnown *types.Lane, current types.Lane, now string) []Transition {
	if lastKnown == nil {
		if current == types.LanePlanned {
			return nil
		}
		return []Transition{{
			From:      types.LanePlanned,
			To:        current,
			Timestamp: now,
			Actor:     MigrationActor,
		}}
	}
	if *lastKnown == current {
		return existing
	}
	out := append([]Transition{}, existing...)
	return append(out, Transition{
		From:      *lastKnown,
		To:        current,
		Timestamp: now,
		Actor:     MigrationActor,
	})
}

// ExtractDoneEvidence derives review evidence from frontmatter. Evidence
// exists only when the review was approved and a reviewer is named; the
// synthesized reference marks the evidence as migrated, not original.
func ExtractDoneEvidence(fm map[string]any, wpID string) *types.DoneEvidence {
	status := entryString(fm, "review_status")
	if !strings.EqualFold(status, "approved") {
		return nil
	}
	reviewer := entryString(fm, "reviewed_by")
	if reviewer == "" {
		return nil
	}
	return &types.DoneEvidence{Review: &types.ReviewEvidence{
		Reviewer:  reviewer,
		Verdict:   "approved",
		Reference: fmt.Sprintf("frontmatter-migration:%s", wpID),
	}}
}

// BuildTransitionChain derives the full transition chain for one work
// package from its frontmatter: normalize, collapse, pair, then gap-fill
// against the declared current lane. Done transitions carry any extracted
// review evidence. The frontmatter map and its nested history list are
// never mutated.
func BuildTransitionChain(fm map[string]any, wpID string) (TransitionChain, error) {
	laneValue := entryString(fm, "lane")
	if laneValue == "" {
		return TransitionChain{}, fmt.Errorf("work package %s frontmatter has no lane", wpID)
	}
	current, err := types.EnsureLane(laneValue)
	if err != nil {
		return TransitionChain{}, fmt.Errorf("work package %s: %w", wpID, err)
	}

	rawHistory, _ := fm["history"].([]any)
	entries := NormalizeEntries(rawHistory)
	collapsed := CollapseDuplicates(entries)
	transitions := PairTransitions(collapsed)

	var lastKnown *types.Lane
	if len(collapsed) > 0 {
		lane := collapsed[len(collapsed)-1].Lane
		lastKnown = &lane
	}
	transitions = GapFill(transitions, lastKnown, current, nowStamp())

	evidence := ExtractDoneEvidence(fm, wpID)
	hasEvidence := false
	if evidence != nil {
		for i := range transitions {
			if transitions[i].To == types.LaneDone {
				transitions[i].Evidence = evidence
				hasEvidence = true
			}
		}
	}

	return TransitionChain{
		Transitions:    transitions,
		HistoryEntries: len(rawHistory),
		HasEvidence:    hasEvidence,
	}, nil
}
