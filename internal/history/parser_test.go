package history

import (
	"reflect"
	"testing"
	"time"

	"github.com/cloud-shuttle/muster/pkg/types"
)

func TestNormalizeEntries(t *testing.T) {
	raw := []any{
		map[string]any{"lane": "planned", "actor": "alice", "timestamp": "2026-01-01T10:00:00Z"},
		map[string]any{"lane": "doing", "agent": "bob", "at": "2026-01-02T10:00:00Z"},
		"not a map",
		map[string]any{"note": "no lane here"},
		map[string]any{"lane": "not-a-lane"},
		map[string]any{"lane": "done"},
	}
	entries := NormalizeEntries(raw)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d: %+v", len(entries), entries)
	}
	if entries[0].Lane != types.LanePlanned || entries[0].Actor != "alice" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	// "doing" is the legacy alias for in_progress; "agent" is the legacy actor key
	if entries[1].Lane != types.LaneInProgress {
		t.Errorf("alias doing must normalize to in_progress, got %s", entries[1].Lane)
	}
	if entries[1].Actor != "bob" || entries[1].Timestamp != "2026-01-02T10:00:00Z" {
		t.Errorf("legacy keys not honored: %+v", entries[1])
	}
	if entries[2].Actor != MigrationActor {
		t.Errorf("missing actor must fall back to %q, got %q", MigrationActor, entries[2].Actor)
	}
	if entries[2].Timestamp == "" {
		t.Error("missing timestamp must be filled in")
	}
}

func TestNormalizeEntries_UnquotedYAMLTimestamps(t *testing.T) {
	// yaml.v3 decodes an unquoted `timestamp: 2026-01-01T10:00:00Z` into
	// time.Time, not string. The recorded chronology must survive instead
	// of falling back to a generated stamp.
	raw := []any{
		map[string]any{"lane": "planned", "actor": "alice",
			"timestamp": time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)},
		map[string]any{"lane": "claimed", "actor": "bob",
			"timestamp": time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)},
	}
	entries := NormalizeEntries(raw)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(entries), entries)
	}
	if entries[0].Timestamp != "2026-01-01T10:00:00Z" {
		t.Errorf("first timestamp = %q, want 2026-01-01T10:00:00Z", entries[0].Timestamp)
	}
	if entries[1].Timestamp != "2026-01-02T10:00:00Z" {
		t.Errorf("second timestamp = %q, want 2026-01-02T10:00:00Z", entries[1].Timestamp)
	}
}

func TestNormalizeEntries_MapAnyAny(t *testing.T) {
	raw := []any{
		map[any]any{"lane": "claimed", "actor": "carol"},
	}
	entries := NormalizeEntries(raw)
	if len(entries) != 1 || entries[0].Lane != types.LaneClaimed {
		t.Fatalf("map[any]any entries must normalize, got %+v", entries)
	}
}

func TestCollapseDuplicates(t *testing.T) {
	entries := []NormalizedHistoryEntry{
		{Lane: types.LanePlanned, Actor: "a", Timestamp: "t1"},
		{Lane: types.LanePlanned, Actor: "b", Timestamp: "t2"},
		{Lane: types.LaneInProgress, Actor: "c", Timestamp: "t3"},
		{Lane: types.LanePlanned, Actor: "d", Timestamp: "t4"},
	}
	collapsed := CollapseDuplicates(entries)
	if len(collapsed) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(collapsed))
	}
	// First occurrence wins for consecutive duplicates
	if collapsed[0].Actor != "a" {
		t.Errorf("consecutive duplicate must keep the first entry, got actor %q", collapsed[0].Actor)
	}
	// Non-consecutive repeats are round-trips, not duplicates
	if collapsed[2].Lane != types.LanePlanned {
		t.Errorf("round-trip back to planned must survive, got %s", collapsed[2].Lane)
	}
}

func TestPairTransitions(t *testing.T) {
	entries := []NormalizedHistoryEntry{
		{Lane: types.LanePlanned, Actor: "alice", Timestamp: "t1"},
		{Lane: types.LaneClaimed, Actor: "bob", Timestamp: "t2"},
		{Lane: types.LaneInProgress, Actor: "carol", Timestamp: "t3"},
	}
	transitions := PairTransitions(entries)
	if len(transitions) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(transitions))
	}
	want := Transition{From: types.LanePlanned, To: types.LaneClaimed, Timestamp: "t2", Actor: "bob"}
	if transitions[0] != want {
		t.Errorf("transition takes destination timestamp/actor: got %+v", transitions[0])
	}
	if got := PairTransitions(entries[:1]); got != nil {
		t.Errorf("single entry must yield no transitions, got %+v", got)
	}
}

func TestGapFill(t *testing.T) {
	inProgress := types.LaneInProgress

	// Case 1: no history, current planned — nothing to record
	if got := GapFill(nil, nil, types.LanePlanned, "now"); got != nil {
		t.Errorf("case 1 must yield nil, got %+v", got)
	}

	// Case 2: no history, current elsewhere — bootstrap transition
	got := GapFill(nil, nil, types.LaneDone, "now")
	if len(got) != 1 || got[0].From != types.LanePlanned || got[0].To != types.LaneDone {
		t.Errorf("case 2 must bootstrap planned -> done, got %+v", got)
	}
	if got[0].Actor != MigrationActor {
		t.Errorf("synthesized transition must be attributed to %q", MigrationActor)
	}

	// Case 3: history agrees with current lane — no-op
	existing := []Transition{{From: types.LanePlanned, To: types.LaneInProgress, Timestamp: "t", Actor: "a"}}
	got = GapFill(existing, &inProgress, types.LaneInProgress, "now")
	if len(got) != 1 {
		t.Errorf("case 3 must not append, got %+v", got)
	}

	// Case 4: history behind current lane — one appended transition
	got = GapFill(existing, &inProgress, types.LaneForReview, "now")
	if len(got) != 2 || got[1].From != types.LaneInProgress || got[1].To != types.LaneForReview {
		t.Errorf("case 4 must append in_progress -> for_review, got %+v", got)
	}
}

func TestGapFill_DoesNotMutateInput(t *testing.T) {
	inProgress := types.LaneInProgress
	existing := make([]Transition, 1, 4)
	existing[0] = Transition{From: types.LanePlanned, To: types.LaneInProgress, Timestamp: "t", Actor: "a"}
	snapshot := append([]Transition{}, existing...)

	GapFill(existing, &inProgress, types.LaneDone, "now")
	if !reflect.DeepEqual(existing, snapshot) {
		t.Errorf("input slice mutated: %+v", existing)
	}
}

func TestExtractDoneEvidence(t *testing.T) {
	fm := map[string]any{"review_status": "Approved", "reviewed_by": "dana"}
	evidence := ExtractDoneEvidence(fm, "WP03")
	if evidence == nil {
		t.Fatal("approved + reviewer must yield evidence")
	}
	if evidence.Review.Reviewer != "dana" || evidence.Review.Verdict != "approved" {
		t.Errorf("unexpected evidence: %+v", evidence.Review)
	}
	if evidence.Review.Reference != "frontmatter-migration:WP03" {
		t.Errorf("reference must mark the migration origin, got %q", evidence.Review.Reference)
	}

	if ExtractDoneEvidence(map[string]any{"review_status": "pending", "reviewed_by": "dana"}, "WP03") != nil {
		t.Error("non-approved review must yield no evidence")
	}
	if ExtractDoneEvidence(map[string]any{"review_status": "approved"}, "WP03") != nil {
		t.Error("approved without reviewer must yield no evidence")
	}
}

func TestBuildTransitionChain(t *testing.T) {
	fm := map[string]any{
		"lane": "done",
		"history": []any{
			map[string]any{"lane": "planned", "actor": "alice", "timestamp": "2026-01-01T10:00:00Z"},
			map[string]any{"lane": "doing", "actor": "alice", "timestamp": "2026-01-02T10:00:00Z"},
			map[string]any{"lane": "doing", "actor": "alice", "timestamp": "2026-01-02T11:00:00Z"},
			map[string]any{"lane": "for_review", "actor": "bob", "timestamp": "2026-01-03T10:00:00Z"},
		},
		"review_status": "approved",
		"reviewed_by":   "bob",
	}
	chain, err := BuildTransitionChain(fm, "WP01")
	if err != nil {
		t.Fatalf("BuildTransitionChain: %v", err)
	}
	if chain.HistoryEntries != 4 {
		t.Errorf("HistoryEntries = %d, want 4", chain.HistoryEntries)
	}
	// planned->in_progress, in_progress->for_review from history, plus
	// gap-fill for_review->done against the declared lane
	if len(chain.Transitions) != 3 {
		t.Fatalf("expected 3 transitions, got %+v", chain.Transitions)
	}
	last := chain.Transitions[2]
	if last.From != types.LaneForReview || last.To != types.LaneDone {
		t.Errorf("gap-fill must close for_review -> done, got %+v", last)
	}
	if last.Actor != MigrationActor {
		t.Errorf("gap-fill actor = %q, want %q", last.Actor, MigrationActor)
	}
	if !chain.HasEvidence || last.Evidence == nil {
		t.Error("done transition must carry the extracted evidence")
	}
	if chain.Transitions[0].Evidence != nil {
		t.Error("evidence must only attach to done transitions")
	}
}

func TestBuildTransitionChain_NoLane(t *testing.T) {
	if _, err := BuildTransitionChain(map[string]any{}, "WP01"); err == nil {
		t.Fatal("missing lane must be an error")
	}
	if _, err := BuildTransitionChain(map[string]any{"lane": "bogus"}, "WP01"); err == nil {
		t.Fatal("invalid lane must be an error")
	}
}

func TestBuildTransitionChain_NoHistory(t *testing.T) {
	chain, err := BuildTransitionChain(map[string]any{"lane": "in_progress"}, "WP02")
	if err != nil {
		t.Fatalf("BuildTransitionChain: %v", err)
	}
	if len(chain.Transitions) != 1 {
		t.Fatalf("expected one bootstrap transition, got %+v", chain.Transitions)
	}
	if chain.Transitions[0].From != types.LanePlanned || chain.Transitions[0].To != types.LaneInProgress {
		t.Errorf("bootstrap must be planned -> in_progress, got %+v", chain.Transitions[0])
	}
}

func TestParseActivityLog(t *testing.T) {
	body := `# WP04 — Widget pipeline

Some intro text.

## Activity Log

- 2026-01-01T09:00:00Z – alice – lane=planned – created
- 2026-01-02T09:00:00Z – alice – shell_pid=4242 – lane=doing – picked up
- malformed line without separators
- 2026-01-03T09:00:00Z – bob – note without a lane field

## Notes

- 2026-01-04T09:00:00Z – carol – lane=done – outside the section
`
	entries := ParseActivityLog(body)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(entries), entries)
	}
	first, ok := entries[0].(map[string]any)
	if !ok {
		t.Fatalf("entry is %T, want map", entries[0])
	}
	if first["lane"] != "planned" || first["actor"] != "alice" {
		t.Errorf("unexpected first entry: %+v", first)
	}
	second := entries[1].(map[string]any)
	if second["lane"] != "doing" {
		t.Errorf("lane field after shell_pid must parse, got %+v", second)
	}
}

func TestChainFromDocument_PrefersFrontmatterHistory(t *testing.T) {
	fm := map[string]any{
		"lane": "claimed",
		"history": []any{
			map[string]any{"lane": "planned", "actor": "alice", "timestamp": "t1"},
			map[string]any{"lane": "claimed", "actor": "alice", "timestamp": "t2"},
		},
	}
	body := "## Activity Log\n\n- t0 – bob – lane=done – stale\n"
	chain, err := ChainFromDocument(fm, body, "WP05")
	if err != nil {
		t.Fatalf("ChainFromDocument: %v", err)
	}
	if len(chain.Transitions) != 1 || chain.Transitions[0].To != types.LaneClaimed {
		t.Errorf("frontmatter history must win over the activity log: %+v", chain.Transitions)
	}
}

func TestChainFromDocument_FallsBackToActivityLog(t *testing.T) {
	fm := map[string]any{"lane": "in_progress"}
	body := `## Activity Log

- 2026-01-01T09:00:00Z – alice – lane=planned – created
- 2026-01-02T09:00:00Z – alice – lane=in_progress – started
`
	chain, err := ChainFromDocument(fm, body, "WP06")
	if err != nil {
		t.Fatalf("ChainFromDocument: %v", err)
	}
	if len(chain.Transitions) != 1 {
		t.Fatalf("expected 1 transition from the activity log, got %+v", chain.Transitions)
	}
	if chain.Transitions[0].Actor != "alice" {
		t.Errorf("activity log actor must be preserved, got %q", chain.Transitions[0].Actor)
	}
	if _, stillThere := fm["history"]; stillThere {
		t.Error("input frontmatter map must not be mutated")
	}
}
