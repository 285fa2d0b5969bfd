// Package watch keeps a feature's snapshot and legacy views current by
// re-materializing whenever the event log grows — typically because agent
// worktree processes are appending concurrently.
package watch

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cloud-shuttle/muster/internal/bridge"
	"github.com/cloud-shuttle/muster/internal/eventlog"
)

// debounce coalesces bursts of appends into one materialization
const debounce = 200 * time.Millisecond

// Feature watches a feature directory until the context is cancelled,
// re-materializing and re-projecting views after each change to the event
// log. Materialization failures are logged and the watch continues; the
// next append gets another chance.
func Feature(ctx context.Context, featureDir, featureSlug, repoRoot string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(featureDir); err != nil {
		return fmt.Errorf("watching %s: %w", featureDir, err)
	}
	log.Printf("👀 Watching %s", filepath.Join(featureDir, eventlog.LogFilename))

	var timer *time.Timer
	refresh := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != eventlog.LogFilename {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case refresh <- struct{}{}:
				default:
				}
			})
		case <-refresh:
			if _, err := bridge.MaterializeAndProject(featureDir, featureSlug, repoRoot); err != nil {
				log.Printf("⚠️  Refresh failed: %v", err)
			} else {
				log.Printf("✅ Materialized %s", featureSlug)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("⚠️  Watch error: %v", err)
		}
	}
}
