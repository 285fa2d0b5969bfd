package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cloud-shuttle/muster/internal/bridge"
	"github.com/cloud-shuttle/muster/internal/config"
	"github.com/cloud-shuttle/muster/internal/eventlog"
	"github.com/cloud-shuttle/muster/internal/index"
	"github.com/cloud-shuttle/muster/internal/migrate"
	"github.com/cloud-shuttle/muster/internal/phase"
	"github.com/cloud-shuttle/muster/internal/reconcile"
	"github.com/cloud-shuttle/muster/internal/report"
	"github.com/cloud-shuttle/muster/internal/validate"
	"github.com/cloud-shuttle/muster/internal/watch"
	"github.com/cloud-shuttle/muster/internal/worktree"
	"github.com/cloud-shuttle/muster/pkg/types"
)

const defaultConfig = `# Muster configuration
status_model:
  # 0 = canonical only, 1 = dual-write legacy views, 2 = views must match
  default_phase: 1
  features: {}

reconcile:
  repos: []

layout:
  features_dir: features
  worktree_dir: .muster/worktrees
`

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize Muster in the current project",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.Getwd()
			if err != nil {
				return err
			}
			musterDir := filepath.Join(dir, config.MarkerDir)
			if _, err := os.Stat(musterDir); err == nil {
				return fmt.Errorf("already initialized in %s", musterDir)
			}
			if err := os.MkdirAll(musterDir, 0755); err != nil {
				return fmt.Errorf("creating %s: %w", musterDir, err)
			}
			configPath := filepath.Join(musterDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(defaultConfig), 0644); err != nil {
				return fmt.Errorf("writing default config: %w", err)
			}
			if err := os.MkdirAll(filepath.Join(dir, "features"), 0755); err != nil {
				return fmt.Errorf("creating features directory: %w", err)
			}

			fmt.Printf("🐑 Initialized Muster in %s\n", musterDir)
			fmt.Println("\nNext steps:")
			fmt.Println("  mkdir features/<slug>")
			fmt.Println("  muster emit --feature <slug> --wp WP01 --from planned --to claimed --actor you")
			fmt.Println("  muster status --feature <slug>")
			return nil
		},
	}
}

func emitCmd() *cobra.Command {
	var (
		feature, wp, from, to, actor, mode string
		reason, reviewRef                  string
		reviewer, verdict, reference       string
		force                              bool
	)
	cmd := &cobra.Command{
		Use:   "emit",
		Short: "Record a work-package lane transition",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, cfg, err := requireProject()
			if err != nil {
				return err
			}
			featureDir, err := requireFeature(root, cfg, feature)
			if err != nil {
				return err
			}
			fromLane, err := types.EnsureLane(from)
			if err != nil {
				return err
			}
			toLane, err := types.EnsureLane(to)
			if err != nil {
				return err
			}
			ev := types.StatusEvent{
				FeatureSlug:   feature,
				WPID:          wp,
				FromLane:      fromLane,
				ToLane:        toLane,
				Actor:         actor,
				Force:         force,
				ExecutionMode: types.ExecutionMode(mode),
				Reason:        reason,
				ReviewRef:     reviewRef,
			}
			if reviewer != "" {
				ev.Evidence = &types.DoneEvidence{Review: &types.ReviewEvidence{
					Reviewer:  reviewer,
					Verdict:   verdict,
					Reference: reference,
				}}
			}

			stored, err := eventlog.NewStore(featureDir).Emit(ev)
			if err != nil {
				return err
			}
			snap, err := eventlog.NewStore(featureDir).ReadSnapshot()
			if err == nil && snap != nil {
				if err := bridge.UpdateAllViews(featureDir, *snap, root); err != nil {
					return err
				}
			}
			fmt.Printf("✅ %s: %s -> %s (event %s)\n", wp, fromLane, toLane, stored.EventID)
			return nil
		},
	}
	cmd.Flags().StringVar(&feature, "feature", "", "feature slug")
	cmd.Flags().StringVar(&wp, "wp", "", "work package ID, e.g. WP01")
	cmd.Flags().StringVar(&from, "from", "", "current lane")
	cmd.Flags().StringVar(&to, "to", "", "target lane")
	cmd.Flags().StringVar(&actor, "actor", "", "who is performing the transition")
	cmd.Flags().StringVar(&mode, "mode", string(types.ExecDirectRepo), "execution mode: worktree or direct_repo")
	cmd.Flags().BoolVar(&force, "force", false, "bypass the transition table (requires --reason)")
	cmd.Flags().StringVar(&reason, "reason", "", "why this transition is being made")
	cmd.Flags().StringVar(&reviewRef, "review-ref", "", "review reference for rejections")
	cmd.Flags().StringVar(&reviewer, "reviewer", "", "review evidence: reviewer")
	cmd.Flags().StringVar(&verdict, "verdict", "", "review evidence: verdict")
	cmd.Flags().StringVar(&reference, "reference", "", "review evidence: reference")
	_ = cmd.MarkFlagRequired("feature")
	_ = cmd.MarkFlagRequired("wp")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func materializeCmd() *cobra.Command {
	var feature string
	cmd := &cobra.Command{
		Use:   "materialize",
		Short: "Fold the event log into status.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, cfg, err := requireProject()
			if err != nil {
				return err
			}
			featureDir, err := requireFeature(root, cfg, feature)
			if err != nil {
				return err
			}
			snap, changed, err := eventlog.NewStore(featureDir).Materialize(feature)
			if err != nil {
				return err
			}
			if changed {
				fmt.Printf("✅ Materialized %d event(s) for %s\n", snap.EventCount, feature)
			} else {
				fmt.Printf("✅ Snapshot already current (%d event(s))\n", snap.EventCount)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&feature, "feature", "", "feature slug")
	_ = cmd.MarkFlagRequired("feature")
	return cmd
}

func statusCmd() *cobra.Command {
	var (
		feature string
		all     bool
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show work-package status for a feature or the whole project",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, cfg, err := requireProject()
			if err != nil {
				return err
			}
			if all {
				return statusAll(root, cfg, asJSON)
			}
			featureDir, err := requireFeature(root, cfg, feature)
			if err != nil {
				return err
			}
			store := eventlog.NewStore(featureDir)
			snap, err := store.ReadSnapshot()
			if err != nil {
				return err
			}
			if snap == nil {
				fresh := eventlog.Reduce(feature, nil)
				if events, err := store.ReadEvents(); err == nil {
					fresh = eventlog.Reduce(feature, events)
				}
				snap = &fresh
			}
			if asJSON {
				return report.JSON(os.Stdout, snap)
			}
			report.Snapshot(os.Stdout, *snap)
			return nil
		},
	}
	cmd.Flags().StringVar(&feature, "feature", "", "feature slug")
	cmd.Flags().BoolVar(&all, "all", false, "summarize every feature via the event index")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}

// statusAll refreshes the cross-feature index from every feature's event
// log, then renders the aggregate view
func statusAll(root string, cfg *config.Config, asJSON bool) error {
	idx, err := index.Open(indexPath(root))
	if err != nil {
		return err
	}
	defer idx.Close()

	featuresDir := filepath.Join(root, cfg.FeaturesDir)
	entries, err := os.ReadDir(featuresDir)
	if err != nil {
		return fmt.Errorf("reading features directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		slug := entry.Name()
		events, err := eventlog.NewStore(filepath.Join(featuresDir, slug)).ReadEvents()
		if err != nil {
			return err
		}
		if len(events) == 0 {
			continue
		}
		if err := idx.SyncFeature(slug, events); err != nil {
			return err
		}
	}

	summaries, err := idx.FeatureSummaries()
	if err != nil {
		return err
	}
	if asJSON {
		return report.JSON(os.Stdout, summaries)
	}
	report.FeatureSummaries(os.Stdout, summaries)
	return nil
}

func logCmd() *cobra.Command {
	var (
		feature string
		wp      string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show a work package's transition history",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, cfg, err := requireProject()
			if err != nil {
				return err
			}
			featureDir, err := requireFeature(root, cfg, feature)
			if err != nil {
				return err
			}
			idx, err := index.Open(indexPath(root))
			if err != nil {
				return err
			}
			defer idx.Close()

			events, err := eventlog.NewStore(featureDir).ReadEvents()
			if err != nil {
				return err
			}
			if err := idx.SyncFeature(feature, events); err != nil {
				return err
			}
			history, err := idx.WPHistory(feature, wp)
			if err != nil {
				return err
			}
			if asJSON {
				return report.JSON(os.Stdout, history)
			}
			report.History(os.Stdout, history)
			return nil
		},
	}
	cmd.Flags().StringVar(&feature, "feature", "", "feature slug")
	cmd.Flags().StringVar(&wp, "wp", "", "work package ID, e.g. WP01")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	_ = cmd.MarkFlagRequired("feature")
	_ = cmd.MarkFlagRequired("wp")
	return cmd
}

func validateCmd() *cobra.Command {
	var feature string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the event log, snapshot, and derived views for corruption and drift",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, cfg, err := requireProject()
			if err != nil {
				return err
			}
			featureDir, err := requireFeature(root, cfg, feature)
			if err != nil {
				return err
			}
			store := eventlog.NewStore(featureDir)

			var findings []string
			raws, err := store.ReadRawEvents()
			if err != nil {
				return err
			}
			findings = append(findings, validate.ValidateEventSchemas(raws)...)
			findings = append(findings, validate.ValidateDoneEvidence(raws)...)

			if events, err := store.ReadEvents(); err == nil {
				findings = append(findings, validate.ValidateTransitionLegality(events)...)
			}

			drift, err := validate.ValidateMaterializationDrift(featureDir)
			if err != nil {
				return err
			}
			findings = append(findings, drift...)

			if snap, err := store.ReadSnapshot(); err == nil && snap != nil {
				ph, _, err := phase.Resolve(root, feature)
				if err != nil {
					return err
				}
				if ph != phase.PhaseCanonicalOnly {
					findings = append(findings, validate.ValidateDerivedViews(featureDir, snap.WorkPackages, ph)...)
				}
			}

			if errors := report.Findings(os.Stdout, findings); errors > 0 {
				return fmt.Errorf("%d validation error(s)", errors)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&feature, "feature", "", "feature slug")
	_ = cmd.MarkFlagRequired("feature")
	return cmd
}

func syncViewsCmd() *cobra.Command {
	var feature string
	cmd := &cobra.Command{
		Use:   "sync-views",
		Short: "Project canonical state into legacy frontmatter and tasks.md views",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, cfg, err := requireProject()
			if err != nil {
				return err
			}
			featureDir, err := requireFeature(root, cfg, feature)
			if err != nil {
				return err
			}
			snap, err := bridge.MaterializeAndProject(featureDir, feature, root)
			if err != nil {
				return err
			}
			fmt.Printf("✅ Projected %d work package(s)\n", len(snap.WorkPackages))
			return nil
		},
	}
	cmd.Flags().StringVar(&feature, "feature", "", "feature slug")
	_ = cmd.MarkFlagRequired("feature")
	return cmd
}

func reconcileCmd() *cobra.Command {
	var (
		feature string
		repos   []string
		dryRun  bool
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Infer planning-state corrections from git evidence in target repos",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, cfg, err := requireProject()
			if err != nil {
				return err
			}
			featureDir, err := requireFeature(root, cfg, feature)
			if err != nil {
				return err
			}
			targets := repos
			if len(targets) == 0 {
				targets = cfg.ReconcileRepos
			}
			if len(targets) == 0 {
				targets = []string{root}
			}
			result, err := reconcile.Reconcile(reconcile.Options{
				FeatureDir:  featureDir,
				FeatureSlug: feature,
				RepoRoot:    root,
				TargetRepos: targets,
				DryRun:      dryRun,
			})
			if result != nil {
				if asJSON {
					_ = report.JSON(os.Stdout, result)
				} else {
					report.Reconciliation(os.Stdout, result)
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&feature, "feature", "", "feature slug")
	cmd.Flags().StringArrayVar(&repos, "repo", nil, "target repository to scan (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report suggested events without applying them")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	_ = cmd.MarkFlagRequired("feature")
	return cmd
}

func migrateCmd() *cobra.Command {
	var feature string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Import legacy WP Markdown files into the event log",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, cfg, err := requireProject()
			if err != nil {
				return err
			}
			featureDir, err := requireFeature(root, cfg, feature)
			if err != nil {
				return err
			}
			rep, err := migrate.ImportFeature(featureDir, feature)
			if err != nil {
				return err
			}
			fmt.Printf("✅ Imported %d event(s) from %d work package(s)\n", rep.Events, rep.WorkPackages)
			for _, skipped := range rep.Skipped {
				fmt.Printf("  skipped %s\n", skipped)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&feature, "feature", "", "feature slug")
	_ = cmd.MarkFlagRequired("feature")
	return cmd
}

func watchCmd() *cobra.Command {
	var feature string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-materialize and re-project views whenever the event log changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, cfg, err := requireProject()
			if err != nil {
				return err
			}
			featureDir, err := requireFeature(root, cfg, feature)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return watch.Feature(ctx, featureDir, feature, root)
		},
	}
	cmd.Flags().StringVar(&feature, "feature", "", "feature slug")
	_ = cmd.MarkFlagRequired("feature")
	return cmd
}

func worktreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worktree",
		Short: "Manage per-WP agent worktrees",
	}

	newManager := func() (*worktree.Manager, error) {
		root, cfg, err := requireProject()
		if err != nil {
			return nil, err
		}
		return worktree.NewManager(root, filepath.Join(root, cfg.WorktreeDir)), nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <feature> <wp>",
		Short: "Create a worktree and branch for a work package",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := newManager()
			if err != nil {
				return err
			}
			path, err := mgr.Add(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("✅ Worktree at %s (branch %s)\n", path, worktree.BranchName(args[0], args[1]))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "remove <feature> <wp>",
		Short: "Remove a work package's worktree (the branch is kept)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := newManager()
			if err != nil {
				return err
			}
			return mgr.Remove(args[0], args[1])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List managed worktrees",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := newManager()
			if err != nil {
				return err
			}
			paths, err := mgr.List()
			if err != nil {
				return err
			}
			for _, path := range paths {
				fmt.Println(path)
			}
			return nil
		},
	})
	return cmd
}
