package reconcile

import (
	"fmt"
	"log"
	"os"

	"github.com/cloud-shuttle/muster/internal/bridge"
	"github.com/cloud-shuttle/muster/internal/eventlog"
	"github.com/cloud-shuttle/muster/internal/phase"
	"github.com/cloud-shuttle/muster/pkg/types"
)

// Options configures one reconciliation run
type Options struct {
	FeatureDir  string
	FeatureSlug string
	RepoRoot    string
	TargetRepos []string
	DryRun      bool
}

// Reconcile scans target repositories for WP evidence, computes suggested
// events, and (unless dry-running) applies each one through the normal
// emission path. Per-repo and per-event failures are recorded in the
// result so one bad repo or candidate never aborts the batch. Dry runs
// produce the same report shape as real runs and mutate nothing.
func Reconcile(opts Options) (*ReconcileResult, error) {
	store := eventlog.NewStore(opts.FeatureDir)
	snap, err := currentSnapshot(store, opts.FeatureSlug)
	if err != nil {
		return nil, err
	}

	evidence := map[string][]CommitInfo{}
	seen := map[string]map[string]bool{}
	merged := map[string]bool{}
	var repoErrors []string
	for _, repo := range opts.TargetRepos {
		if _, err := os.Stat(repo); err != nil {
			repoErrors = append(repoErrors, fmt.Sprintf("repo %s: %v", repo, err))
			continue
		}
		repoEvidence, err := ScanForWPCommits(repo, opts.FeatureSlug)
		if err != nil {
			repoErrors = append(repoErrors, fmt.Sprintf("repo %s: %v", repo, err))
			continue
		}
		for wpID, commits := range repoEvidence {
			if seen[wpID] == nil {
				seen[wpID] = map[string]bool{}
			}
			for _, info := range commits {
				if seen[wpID][info.SHA] {
					continue
				}
				seen[wpID][info.SHA] = true
				evidence[wpID] = append(evidence[wpID], info)
			}
		}
		for wpID := range mergedWPs(repo, opts.FeatureSlug) {
			merged[wpID] = true
		}
	}

	result := SuggestEvents(opts.FeatureSlug, snap, evidence, merged)
	result.Errors = append(repoErrors, result.Errors...)

	if opts.DryRun || len(result.SuggestedEvents) == 0 {
		return result, nil
	}

	ph, source, err := phase.Resolve(opts.RepoRoot, opts.FeatureSlug)
	if err != nil {
		return result, err
	}
	if ph == phase.PhaseCanonicalOnly {
		return result, fmt.Errorf(
			"rollout phase 0 (%s): event persistence is not enabled for %s; rerun with --dry-run",
			source, opts.FeatureSlug)
	}

	applied := 0
	for _, ev := range result.SuggestedEvents {
		if _, err := store.Emit(ev); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf(
				"applying %s -> %s for %s: %v", ev.FromLane, ev.ToLane, ev.WPID, err))
			continue
		}
		applied++
	}
	result.Stats["events_applied"] = applied

	if applied > 0 {
		final, _, err := store.Materialize(opts.FeatureSlug)
		if err != nil {
			return result, err
		}
		if err := bridge.UpdateAllViews(opts.FeatureDir, final, opts.RepoRoot); err != nil {
			return result, err
		}
	}
	return result, nil
}

// currentSnapshot prefers the on-disk snapshot, falls back to replaying
// the event log, and bottoms out at an empty snapshot when neither exists
func currentSnapshot(store *eventlog.Store, featureSlug string) (types.StatusSnapshot, error) {
	if snap, err := store.ReadSnapshot(); err == nil && snap != nil {
		return *snap, nil
	} else if err != nil {
		log.Printf("⚠️  Unreadable snapshot, replaying event log: %v", err)
	}
	events, err := store.ReadEvents()
	if err != nil {
		return types.StatusSnapshot{}, err
	}
	return eventlog.Reduce(featureSlug, events), nil
}
