// Package index maintains a cross-feature SQLite cache of status events
// so commands spanning many features do not re-read every JSONL log. Like
// the snapshot, the index is rebuildable from the logs and never
// authoritative.
package index

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cloud-shuttle/muster/internal/eventlog"
	"github.com/cloud-shuttle/muster/pkg/types"
)

// Store manages the event index database
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the index database at the given path
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	// WAL plus a busy timeout so concurrent worktree processes syncing the
	// index do not trip over each other's locks
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configuring index: %w", err)
		}
	}
	store := &Store{DB: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.DB.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		event_id       TEXT PRIMARY KEY,
		feature_slug   TEXT NOT NULL,
		wp_id          TEXT NOT NULL,
		from_lane      TEXT NOT NULL,
		to_lane        TEXT NOT NULL,
		at             TEXT NOT NULL,
		actor          TEXT NOT NULL,
		force_flag     INTEGER NOT NULL DEFAULT 0,
		execution_mode TEXT NOT NULL,
		reason         TEXT,
		review_ref     TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_events_feature ON events(feature_slug);
	CREATE INDEX IF NOT EXISTS idx_events_wp ON events(feature_slug, wp_id);
	`
	if _, err := s.DB.Exec(schema); err != nil {
		return fmt.Errorf("initializing index schema: %w", err)
	}
	return nil
}

// SyncFeature mirrors a feature's events into the index. Events are
// immutable, so already-indexed IDs are simply ignored.
func (s *Store) SyncFeature(featureSlug string, events []types.StatusEvent) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return fmt.Errorf("beginning index sync: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO events
		(event_id, feature_slug, wp_id, from_lane, to_lane, at, actor, force_flag, execution_mode, reason, review_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing index insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		force := 0
		if ev.Force {
			force = 1
		}
		if _, err := stmt.Exec(ev.EventID, featureSlug, ev.WPID, string(ev.FromLane),
			string(ev.ToLane), ev.At, ev.Actor, force, string(ev.ExecutionMode),
			ev.Reason, ev.ReviewRef); err != nil {
			return fmt.Errorf("indexing event %s: %w", ev.EventID, err)
		}
	}
	return tx.Commit()
}

// FeatureSummary aggregates one feature's indexed state
type FeatureSummary struct {
	FeatureSlug  string
	WorkPackages int
	Events       int
	Lanes        map[types.Lane]int
}

// FeatureSummaries returns per-feature lane distributions, computed by
// replaying each feature's indexed events through the same fold as
// materialization
func (s *Store) FeatureSummaries() ([]FeatureSummary, error) {
	rows, err := s.DB.Query(`SELECT DISTINCT feature_slug FROM events ORDER BY feature_slug`)
	if err != nil {
		return nil, fmt.Errorf("querying features: %w", err)
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, err
		}
		slugs = append(slugs, slug)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var summaries []FeatureSummary
	for _, slug := range slugs {
		events, err := s.FeatureEvents(slug)
		if err != nil {
			return nil, err
		}
		snap := eventlog.Reduce(slug, events)
		summaries = append(summaries, FeatureSummary{
			FeatureSlug:  slug,
			WorkPackages: len(snap.WorkPackages),
			Events:       snap.EventCount,
			Lanes:        snap.Summary,
		})
	}
	return summaries, nil
}

// FeatureEvents returns all indexed events for one feature
func (s *Store) FeatureEvents(featureSlug string) ([]types.StatusEvent, error) {
	return s.queryEvents(`SELECT event_id, feature_slug, wp_id, from_lane, to_lane, at, actor, force_flag, execution_mode, reason, review_ref
		FROM events WHERE feature_slug = ?`, featureSlug)
}

// WPHistory returns one work package's indexed events in replay order
func (s *Store) WPHistory(featureSlug, wpID string) ([]types.StatusEvent, error) {
	events, err := s.queryEvents(`SELECT event_id, feature_slug, wp_id, from_lane, to_lane, at, actor, force_flag, execution_mode, reason, review_ref
		FROM events WHERE feature_slug = ? AND wp_id = ?`, featureSlug, wpID)
	if err != nil {
		return nil, err
	}
	return eventlog.SortEvents(events), nil
}

func (s *Store) queryEvents(query string, args ...any) ([]types.StatusEvent, error) {
	rows, err := s.DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []types.StatusEvent
	for rows.Next() {
		var ev types.StatusEvent
		var force int
		var reason, reviewRef sql.NullString
		if err := rows.Scan(&ev.EventID, &ev.FeatureSlug, &ev.WPID, &ev.FromLane,
			&ev.ToLane, &ev.At, &ev.Actor, &force, &ev.ExecutionMode,
			&reason, &reviewRef); err != nil {
			return nil, err
		}
		ev.Force = force != 0
		ev.Reason = reason.String
		ev.ReviewRef = reviewRef.String
		events = append(events, ev)
	}
	return events, rows.Err()
}
