// Package report renders snapshots, validation findings, and
// reconciliation results for the CLI, either as tables or as JSON
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/cloud-shuttle/muster/internal/index"
	"github.com/cloud-shuttle/muster/internal/reconcile"
	"github.com/cloud-shuttle/muster/pkg/types"
)

// JSON writes any report value as indented JSON
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Snapshot renders one feature's work packages and lane summary
func Snapshot(w io.Writer, snap types.StatusSnapshot) {
	fmt.Fprintf(w, "Feature: %s (%d events)\n", snap.FeatureSlug, snap.EventCount)

	ids := make([]string, 0, len(snap.WorkPackages))
	for id := range snap.WorkPackages {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"WP", "Lane", "Actor", "Last Transition", "Forced"})
	for _, id := range ids {
		wp := snap.WorkPackages[id]
		tw.AppendRow(table.Row{id, wp.Lane, wp.Actor, wp.LastTransitionAt, wp.ForceCount})
	}
	tw.Render()

	for _, lane := range types.ForwardProgression {
		if n := snap.Summary[lane]; n > 0 {
			fmt.Fprintf(w, "  %s: %d\n", lane, n)
		}
	}
	for _, lane := range []types.Lane{types.LaneBlocked, types.LaneCanceled} {
		if n := snap.Summary[lane]; n > 0 {
			fmt.Fprintf(w, "  %s: %d\n", lane, n)
		}
	}
}

// FeatureSummaries renders the cross-feature index view
func FeatureSummaries(w io.Writer, summaries []index.FeatureSummary) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Feature", "WPs", "Events", "Done", "In Progress", "Blocked"})
	for _, s := range summaries {
		tw.AppendRow(table.Row{
			s.FeatureSlug, s.WorkPackages, s.Events,
			s.Lanes[types.LaneDone], s.Lanes[types.LaneInProgress], s.Lanes[types.LaneBlocked],
		})
	}
	tw.Render()
}

// History renders one work package's events in replay order
func History(w io.Writer, events []types.StatusEvent) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events")
		return
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"At", "From", "To", "Actor", "Forced", "Reason"})
	for _, ev := range events {
		tw.AppendRow(table.Row{ev.At, ev.FromLane, ev.ToLane, ev.Actor, ev.Force, ev.Reason})
	}
	tw.Render()
}

// Findings prints validation findings one per line; returns how many are
// errors (as opposed to warnings)
func Findings(w io.Writer, findings []string) int {
	errors := 0
	for _, finding := range findings {
		fmt.Fprintln(w, finding)
		if len(finding) < 8 || finding[:8] != "WARNING:" {
			errors++
		}
	}
	if len(findings) == 0 {
		fmt.Fprintln(w, "✅ No findings")
	}
	return errors
}

// Reconciliation renders a reconcile result: suggested events, then
// details and per-repo errors
func Reconciliation(w io.Writer, result *reconcile.ReconcileResult) {
	if len(result.SuggestedEvents) > 0 {
		tw := table.NewWriter()
		tw.SetOutputMirror(w)
		tw.AppendHeader(table.Row{"WP", "From", "To", "Reason"})
		for _, ev := range result.SuggestedEvents {
			tw.AppendRow(table.Row{ev.WPID, ev.FromLane, ev.ToLane, ev.Reason})
		}
		tw.Render()
	} else {
		fmt.Fprintln(w, "No actionable drift detected")
	}
	for _, detail := range result.Details {
		fmt.Fprintf(w, "  note: %s\n", detail)
	}
	for _, errMsg := range result.Errors {
		fmt.Fprintf(w, "  error: %s\n", errMsg)
	}
	if n, ok := result.Stats["events_applied"]; ok {
		fmt.Fprintf(w, "Applied %d event(s)\n", n)
	}
}
