package validate

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/cloud-shuttle/muster/internal/bridge"
	"github.com/cloud-shuttle/muster/internal/frontmatter"
	"github.com/cloud-shuttle/muster/internal/phase"
	"github.com/cloud-shuttle/muster/pkg/types"
)

// ValidateDerivedViews compares the legacy views against the canonical
// snapshot. Lane mismatches are advisory during dual-write (phase 1) and
// hard errors after cutover (phase 2), when views must be equivalent to
// canonical state. A missing WP file is an error at any phase: the bridge
// has nothing to project onto.
func ValidateDerivedViews(featureDir string, workPackages map[string]types.WPState, ph phase.Phase) []string {
	severity := "WARNING"
	if ph == phase.PhaseCutover {
		severity = "ERROR"
	}

	ids := make([]string, 0, len(workPackages))
	for id := range workPackages {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var findings []string
	tasksDir := filepath.Join(featureDir, bridge.TasksDirName)
	for _, wpID := range ids {
		canonical := workPackages[wpID].Lane
		path, matches, err := bridge.LocateWPFile(tasksDir, wpID)
		if err != nil || matches == 0 {
			findings = append(findings, fmt.Sprintf("ERROR: %s has no WP file under %s", wpID, tasksDir))
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			findings = append(findings, fmt.Sprintf("ERROR: %s: unreadable WP file %s", wpID, path))
			continue
		}
		fm, _, err := frontmatter.Split(string(data))
		if err != nil {
			findings = append(findings, fmt.Sprintf("ERROR: %s: %v", wpID, err))
			continue
		}
		raw, ok := frontmatter.StringField(fm, "lane")
		if !ok {
			findings = append(findings, fmt.Sprintf("%s: %s frontmatter has no lane (canonical: %s)", severity, wpID, canonical))
			continue
		}
		viewLane, err := types.EnsureLane(raw)
		if err != nil || viewLane != canonical {
			findings = append(findings, fmt.Sprintf(
				"%s: %s frontmatter lane %q does not match canonical lane %s",
				severity, wpID, raw, canonical))
		}
	}

	findings = append(findings, validateTasksMDBlock(featureDir, workPackages, ids, severity)...)
	return findings
}

func validateTasksMDBlock(featureDir string, workPackages map[string]types.WPState, ids []string, severity string) []string {
	data, err := os.ReadFile(filepath.Join(featureDir, bridge.TasksFileName))
	if err != nil {
		return nil
	}
	lanes, ok := bridge.ParseStatusBlockLanes(string(data))
	if !ok {
		return nil
	}
	var findings []string
	for _, wpID := range ids {
		canonical := workPackages[wpID].Lane
		listed, present := lanes[wpID]
		if !present {
			findings = append(findings, fmt.Sprintf(
				"%s: tasks.md status block has no line for %s", severity, wpID))
			continue
		}
		if listed != string(canonical) {
			findings = append(findings, fmt.Sprintf(
				"%s: tasks.md lists %s as %q, canonical lane is %s",
				severity, wpID, listed, canonical))
		}
	}
	return findings
}
