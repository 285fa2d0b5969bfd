// Package config handles Muster configuration
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// MarkerDir is the directory that marks a Muster project root
const MarkerDir = ".muster"

// FeatureConfig carries per-feature overrides from config.yaml
type FeatureConfig struct {
	Phase *int `mapstructure:"phase"`
}

// Config holds Muster configuration
type Config struct {
	// Status-model rollout
	DefaultPhase int
	Features     map[string]FeatureConfig

	// Reconciliation
	ReconcileRepos []string

	// Layout
	FeaturesDir string
	WorktreeDir string
}

// Load reads .muster/config.yaml layered under MUSTER_ environment
// variables. A missing config file yields defaults; a malformed one errors.
func Load(repoRoot string) (*Config, error) {
	v := viper.New()
	path := filepath.Join(repoRoot, MarkerDir, "config.yaml")

	v.SetDefault("status_model.default_phase", 1)
	v.SetDefault("layout.features_dir", "features")
	v.SetDefault("layout.worktree_dir", filepath.Join(MarkerDir, "worktrees"))

	v.SetEnvPrefix("MUSTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{
		DefaultPhase:   v.GetInt("status_model.default_phase"),
		Features:       map[string]FeatureConfig{},
		ReconcileRepos: v.GetStringSlice("reconcile.repos"),
		FeaturesDir:    v.GetString("layout.features_dir"),
		WorktreeDir:    v.GetString("layout.worktree_dir"),
	}
	if err := v.UnmarshalKey("status_model.features", &cfg.Features); err != nil {
		return nil, fmt.Errorf("parsing feature config: %w", err)
	}
	return cfg, nil
}

// FeatureDir returns the directory backing one feature
func (c *Config) FeatureDir(repoRoot, featureSlug string) string {
	return filepath.Join(repoRoot, c.FeaturesDir, featureSlug)
}

// FindProjectRoot locates the Muster project root by searching upward for
// the marker directory
func FindProjectRoot(start string) (string, error) {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, MarkerDir)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not a muster project (or any parent up to root)")
		}
		dir = parent
	}
}
