package validate

import (
	"fmt"
	"path/filepath"

	"github.com/cloud-shuttle/muster/internal/eventlog"
)

// ValidateMaterializationDrift verifies that the snapshot on disk is
// exactly what replaying the event log produces. Four drift conditions are
// detected; the absence of both files is not drift (nothing to validate).
// Unreadable or malformed files are corruption and error out.
func ValidateMaterializationDrift(featureDir string) ([]string, error) {
	store := eventlog.NewStore(featureDir)
	hasLog, hasSnap := store.HasLog(), store.HasSnapshot()

	if !hasLog && !hasSnap {
		return nil, nil
	}
	if hasSnap && !hasLog {
		return []string{fmt.Sprintf(
			"Materialization drift: snapshot %s exists but event log is missing",
			store.SnapshotPath())}, nil
	}
	if hasLog && !hasSnap {
		return []string{fmt.Sprintf(
			"Materialization drift: event log %s exists but snapshot is missing",
			store.LogPath())}, nil
	}

	events, err := store.ReadEvents()
	if err != nil {
		return nil, err
	}
	snap, err := store.ReadSnapshot()
	if err != nil {
		return nil, err
	}

	slug := snap.FeatureSlug
	if slug == "" {
		slug = filepath.Base(featureDir)
	}
	fresh := eventlog.Reduce(slug, events)

	var findings []string
	if snap.EventCount != fresh.EventCount {
		findings = append(findings, fmt.Sprintf(
			"Materialization drift: snapshot event_count %d does not match %d events in log",
			snap.EventCount, fresh.EventCount))
	}
	if !snap.ContentEquals(fresh) {
		findings = append(findings,
			"Materialization drift: snapshot content differs from replay of the event log")
	}
	return findings, nil
}
