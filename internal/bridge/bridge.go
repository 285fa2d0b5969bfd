// Package bridge projects canonical snapshot state into the legacy
// Markdown views: WP frontmatter `lane:` fields and the generated status
// block in tasks.md. The projection is strictly one-way (canonical to
// views, never the reverse) and idempotent — a view already showing the
// canonical lane is not rewritten, so file mtimes only move when content
// does.
package bridge

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cloud-shuttle/muster/internal/config"
	"github.com/cloud-shuttle/muster/internal/eventlog"
	"github.com/cloud-shuttle/muster/internal/frontmatter"
	"github.com/cloud-shuttle/muster/internal/phase"
	"github.com/cloud-shuttle/muster/pkg/types"
)

const (
	// StartMarker opens the generated status block in tasks.md
	StartMarker = "<!-- status-model:start -->"
	// EndMarker closes the generated status block in tasks.md
	EndMarker = "<!-- status-model:end -->"
	// TasksDirName holds the per-WP Markdown files inside a feature
	TasksDirName = "tasks"
	// TasksFileName is the feature-level task overview file
	TasksFileName = "tasks.md"
)

// LocateWPFile finds the Markdown file for a work package under a tasks
// directory, including lane-named subdirectories some workflows use.
// Returns the chosen path and how many files matched; zero matches is not
// an error here — callers decide severity.
func LocateWPFile(tasksDir, wpID string) (string, int, error) {
	patterns := []string{
		filepath.Join(tasksDir, wpID+"-*.md"),
		filepath.Join(tasksDir, "*", wpID+"-*.md"),
	}
	var matches []string
	for _, pattern := range patterns {
		found, err := filepath.Glob(pattern)
		if err != nil {
			return "", 0, fmt.Errorf("globbing %s: %w", pattern, err)
		}
		matches = append(matches, found...)
	}
	sort.Strings(matches)
	if len(matches) == 0 {
		return "", 0, nil
	}
	return matches[0], len(matches), nil
}

// UpdateFrontmatterViews rewrites the `lane:` frontmatter field of each
// work package's Markdown file to match the snapshot. Only the lane line
// changes; every other byte of the file is preserved. Files already
// showing the canonical lane are skipped entirely — no write, no mtime
// change. Missing directories and files are warnings; parse and write
// failures propagate.
func UpdateFrontmatterViews(featureDir string, snap types.StatusSnapshot) error {
	tasksDir := filepath.Join(featureDir, TasksDirName)
	if _, err := os.Stat(tasksDir); err != nil {
		log.Printf("⚠️  No tasks directory at %s; skipping frontmatter views", tasksDir)
		return nil
	}

	for _, wpID := range sortedWPIDs(snap) {
		target := snap.WorkPackages[wpID].Lane
		path, matches, err := LocateWPFile(tasksDir, wpID)
		if err != nil {
			return err
		}
		if matches == 0 {
			log.Printf("⚠️  No WP file for %s under %s", wpID, tasksDir)
			continue
		}
		if matches > 1 {
			log.Printf("⚠️  %d files match %s; using %s", matches, wpID, path)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		content := string(data)
		fm, _, err := frontmatter.Split(content)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if current, ok := frontmatter.StringField(fm, "lane"); ok {
			if resolved, err := types.EnsureLane(current); err == nil && resolved == target {
				continue
			}
		}

		updated, _, err := frontmatter.ReplaceField(content, "lane", string(target))
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	return nil
}

// RenderStatusBlock builds the generated tasks.md block, one
// `- WP_ID: lane` line per work package in ID order
func RenderStatusBlock(snap types.StatusSnapshot) string {
	var b strings.Builder
	b.WriteString(StartMarker + "\n")
	b.WriteString("## Work Package Status (generated)\n\n")
	for _, wpID := range sortedWPIDs(snap) {
		fmt.Fprintf(&b, "- %s: %s\n", wpID, snap.WorkPackages[wpID].Lane)
	}
	b.WriteString(EndMarker)
	return b.String()
}

// UpdateTasksMDViews maintains the generated status block in tasks.md:
// replaced in place when the markers exist (exactly once, never
// duplicated), appended when absent. A missing tasks.md is a no-op.
func UpdateTasksMDViews(featureDir string, snap types.StatusSnapshot) error {
	path := filepath.Join(featureDir, TasksFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}
	content := string(data)
	block := RenderStatusBlock(snap)

	start := strings.Index(content, StartMarker)
	end := strings.Index(content, EndMarker)
	var updated string
	switch {
	case start >= 0 && end > start:
		head := content[:start] + block
		tail := content[end+len(EndMarker):]
		// Collapse any further stale marker pairs so exactly one
		// generated block remains
		for {
			s := strings.Index(tail, StartMarker)
			e := strings.Index(tail, EndMarker)
			if s < 0 && e < 0 {
				break
			}
			if s < 0 || e <= s {
				return fmt.Errorf("%s has unbalanced status-model markers", path)
			}
			tail = tail[:s] + tail[e+len(EndMarker):]
		}
		updated = head + tail
	case start < 0 && end < 0:
		updated = strings.TrimRight(content, "\n") + "\n\n" + block + "\n"
	default:
		return fmt.Errorf("%s has unbalanced status-model markers", path)
	}

	if updated == content {
		return nil
	}
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ParseStatusBlockLanes extracts the WP -> lane lines from the generated
// block in a tasks.md document. ok is false when no block is present.
func ParseStatusBlockLanes(content string) (map[string]string, bool) {
	start := strings.Index(content, StartMarker)
	end := strings.Index(content, EndMarker)
	if start < 0 || end <= start {
		return nil, false
	}
	lanes := map[string]string{}
	for _, line := range strings.Split(content[start:end], "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "- ") {
			continue
		}
		parts := strings.SplitN(strings.TrimPrefix(line, "- "), ":", 2)
		if len(parts) != 2 {
			continue
		}
		lanes[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return lanes, true
}

// UpdateAllViews is the phase-gated projection entry point. Phase 0 writes
// nothing: legacy views are not yet trusted and stay hand-maintained.
// Phases 1 and 2 project both the frontmatter and tasks.md views. A phase
// resolution failure propagates — gating must never guess.
func UpdateAllViews(featureDir string, snap types.StatusSnapshot, repoRoot string) error {
	if repoRoot == "" {
		root, err := config.FindProjectRoot(featureDir)
		if err != nil {
			return err
		}
		repoRoot = root
	}
	ph, _, err := phase.Resolve(repoRoot, snap.FeatureSlug)
	if err != nil {
		return err
	}
	switch ph {
	case phase.PhaseCanonicalOnly:
		return nil
	case phase.PhaseDualWrite, phase.PhaseCutover:
		if err := UpdateFrontmatterViews(featureDir, snap); err != nil {
			return err
		}
		return UpdateTasksMDViews(featureDir, snap)
	default:
		return fmt.Errorf("unhandled rollout phase %d", int(ph))
	}
}

// MaterializeAndProject is the common post-append step: refresh the
// snapshot from the log, then push it through the phase gate
func MaterializeAndProject(featureDir, featureSlug, repoRoot string) (types.StatusSnapshot, error) {
	snap, _, err := eventlog.NewStore(featureDir).Materialize(featureSlug)
	if err != nil {
		return snap, err
	}
	return snap, UpdateAllViews(featureDir, snap, repoRoot)
}

func sortedWPIDs(snap types.StatusSnapshot) []string {
	ids := make([]string, 0, len(snap.WorkPackages))
	for id := range snap.WorkPackages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
