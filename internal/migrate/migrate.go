// Package migrate imports legacy WP Markdown files into the canonical
// event log. Each file's frontmatter history and activity log are parsed
// into a transition chain and replayed as status events; work packages
// that already have events are left alone, so migration is safe to rerun.
package migrate

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/google/uuid"

	"github.com/cloud-shuttle/muster/internal/bridge"
	"github.com/cloud-shuttle/muster/internal/eventlog"
	"github.com/cloud-shuttle/muster/internal/frontmatter"
	"github.com/cloud-shuttle/muster/internal/history"
	"github.com/cloud-shuttle/muster/pkg/types"
)

var wpFilePattern = regexp.MustCompile(`^(WP\d+)-`)

// Report summarizes one migration run
type Report struct {
	WorkPackages int
	Events       int
	Skipped      []string
}

// ImportFeature converts every legacy WP file under a feature's tasks
// directory into status events. Returns a report of what was imported
// and what was skipped.
func ImportFeature(featureDir, featureSlug string) (*Report, error) {
	store := eventlog.NewStore(featureDir)
	existing, err := store.ReadEvents()
	if err != nil {
		return nil, err
	}
	migrated := map[string]bool{}
	for _, ev := range existing {
		migrated[ev.WPID] = true
	}

	files, err := wpFiles(filepath.Join(featureDir, bridge.TasksDirName))
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, path := range files {
		wpID := wpFilePattern.FindStringSubmatch(filepath.Base(path))[1]
		if migrated[wpID] {
			report.Skipped = append(report.Skipped, fmt.Sprintf("%s: already has events", wpID))
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return report, fmt.Errorf("reading %s: %w", path, err)
		}
		fm, body, err := frontmatter.Split(string(data))
		if err != nil {
			return report, fmt.Errorf("%s: %w", path, err)
		}
		if id, ok := frontmatter.StringField(fm, "work_package_id"); ok && id != "" {
			wpID = id
		}

		chain, err := history.ChainFromDocument(fm, body, wpID)
		if err != nil {
			return report, fmt.Errorf("%s: %w", path, err)
		}
		for _, tr := range chain.Transitions {
			ev := types.StatusEvent{
				EventID:       uuid.NewString(),
				FeatureSlug:   featureSlug,
				WPID:          wpID,
				FromLane:      tr.From,
				ToLane:        tr.To,
				At:            tr.Timestamp,
				Actor:         tr.Actor,
				ExecutionMode: types.ExecDirectRepo,
				Evidence:      tr.Evidence,
			}
			// Gap-fill can synthesize jumps the transition table does not
			// allow (e.g. a bootstrap planned -> done); record them as
			// forced so they carry their provenance instead of tripping
			// legality validation later.
			if !types.TransitionAllowed(ev.FromLane, ev.ToLane) {
				ev.Force = true
				ev.Reason = "frontmatter migration gap-fill"
			}
			if err := store.Append(ev); err != nil {
				return report, err
			}
			report.Events++
		}
		migrated[wpID] = true
		report.WorkPackages++
	}

	if report.Events > 0 {
		if _, _, err := store.Materialize(featureSlug); err != nil {
			return report, err
		}
	}
	return report, nil
}

func wpFiles(tasksDir string) ([]string, error) {
	if _, err := os.Stat(tasksDir); err != nil {
		log.Printf("⚠️  No tasks directory at %s; nothing to migrate", tasksDir)
		return nil, nil
	}
	var files []string
	for _, pattern := range []string{filepath.Join(tasksDir, "WP*-*.md"), filepath.Join(tasksDir, "*", "WP*-*.md")} {
		found, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	var valid []string
	for _, path := range files {
		if wpFilePattern.MatchString(filepath.Base(path)) {
			valid = append(valid, path)
		}
	}
	sort.Strings(valid)
	return valid, nil
}
