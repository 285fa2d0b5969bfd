// Package eventlog owns the canonical status state of a feature: an
// append-only JSONL event log plus a materialized snapshot cache. The log
// is the sole system of record; the snapshot is always rebuildable by
// replay and must never be treated as authoritative.
package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloud-shuttle/muster/pkg/types"
)

const (
	// LogFilename is the append-only event log inside a feature directory
	LogFilename = "status.events.jsonl"
	// SnapshotFilename is the materialized snapshot cache
	SnapshotFilename = "status.json"
)

// Store reads and appends a single feature's event log and snapshot
type Store struct {
	dir string
}

// NewStore returns a store rooted at a feature directory
func NewStore(featureDir string) *Store {
	return &Store{dir: featureDir}
}

// Dir returns the feature directory this store operates on
func (s *Store) Dir() string {
	return s.dir
}

// LogPath returns the event log path
func (s *Store) LogPath() string {
	return filepath.Join(s.dir, LogFilename)
}

// SnapshotPath returns the snapshot path
func (s *Store) SnapshotPath() string {
	return filepath.Join(s.dir, SnapshotFilename)
}

// Append writes one event as a single JSON line. The file is opened in
// append mode and written with one write call so concurrent worktree
// processes cannot interleave partial lines.
func (s *Store) Append(ev types.StatusEvent) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("creating feature directory: %w", err)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	f, err := os.OpenFile(s.LogPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening event log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("appending event: %w", err)
	}
	return nil
}

// ReadEvents reads the full event log into memory. A missing log is not
// an error — it yields no events. A malformed line is corruption of
// canonical state and always errors.
func (s *Store) ReadEvents() ([]types.StatusEvent, error) {
	data, err := os.ReadFile(s.LogPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading event log: %w", err)
	}
	var events []types.StatusEvent
	for i, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var ev types.StatusEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return nil, fmt.Errorf("event log %s line %d: %w", s.LogPath(), i+1, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// ReadRawEvents reads the log as loose JSON objects for schema validation,
// which must be able to report shape problems (wrong field types, alias
// lanes) that the typed decoder would reject outright.
func (s *Store) ReadRawEvents() ([]map[string]any, error) {
	data, err := os.ReadFile(s.LogPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading event log: %w", err)
	}
	var raw []map[string]any
	for i, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		obj := map[string]any{}
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			return nil, fmt.Errorf("event log %s line %d: %w", s.LogPath(), i+1, err)
		}
		raw = append(raw, obj)
	}
	return raw, nil
}

// HasLog reports whether the event log file exists
func (s *Store) HasLog() bool {
	_, err := os.Stat(s.LogPath())
	return err == nil
}

// HasSnapshot reports whether the snapshot file exists
func (s *Store) HasSnapshot() bool {
	_, err := os.Stat(s.SnapshotPath())
	return err == nil
}

// ReadSnapshot reads the materialized snapshot. A missing file yields nil
// without error; malformed JSON errors.
func (s *Store) ReadSnapshot() (*types.StatusSnapshot, error) {
	data, err := os.ReadFile(s.SnapshotPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	var snap types.StatusSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", s.SnapshotPath(), err)
	}
	if snap.WorkPackages == nil {
		snap.WorkPackages = map[string]types.WPState{}
	}
	if snap.Summary == nil {
		snap.Summary = map[types.Lane]int{}
	}
	return &snap, nil
}

func (s *Store) writeSnapshot(snap types.StatusSnapshot) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("creating feature directory: %w", err)
	}
	// encoding/json sorts map keys, so equal content serializes to equal bytes
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	if err := os.WriteFile(s.SnapshotPath(), append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}
