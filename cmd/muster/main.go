// Package main is the entry point for the Muster CLI
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cloud-shuttle/muster/internal/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "muster",
		Short: "Track work packages through Kanban lanes with an event-sourced status model",
		Long: `Muster keeps multi-agent delivery work honest. Every work-package lane
change is an immutable event in an append-only log; snapshots, legacy
Markdown views, and cross-feature indexes are all derived projections.
Muster validates that nothing drifts, and reconciles planning state
against the git evidence agents actually left behind.`,
		Version: "0.1.0",
	}

	rootCmd.AddCommand(
		initCmd(),
		emitCmd(),
		materializeCmd(),
		statusCmd(),
		logCmd(),
		validateCmd(),
		syncViewsCmd(),
		reconcileCmd(),
		migrateCmd(),
		watchCmd(),
		worktreeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// requireProject locates the project root and loads its configuration
func requireProject() (string, *config.Config, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", nil, err
	}
	root, err := config.FindProjectRoot(dir)
	if err != nil {
		return "", nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return "", nil, fmt.Errorf("loading config: %w", err)
	}
	return root, cfg, nil
}

// requireFeature resolves a feature slug to its backing directory
func requireFeature(root string, cfg *config.Config, slug string) (string, error) {
	if slug == "" {
		return "", fmt.Errorf("--feature is required")
	}
	dir := cfg.FeatureDir(root, slug)
	if _, err := os.Stat(dir); err != nil {
		return "", fmt.Errorf("feature %s not found at %s", slug, dir)
	}
	return dir, nil
}

func indexPath(root string) string {
	return filepath.Join(root, config.MarkerDir, "index.db")
}
