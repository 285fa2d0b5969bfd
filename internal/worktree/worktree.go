// Package worktree creates and manages per-WP git worktrees for agent
// workspaces. Each work package gets an isolated checkout on a branch
// named `<feature-slug>/<wp-id>` — the same branch shape the
// reconciliation engine mines for evidence.
package worktree

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Manager creates and manages git worktrees under a project
type Manager struct {
	repoDir     string // main repository checkout
	worktreeDir string // where worktrees are created (.muster/worktrees)
}

// NewManager returns a manager rooted at the main checkout
func NewManager(repoDir, worktreeDir string) *Manager {
	return &Manager{repoDir: repoDir, worktreeDir: worktreeDir}
}

// BranchName is the canonical agent branch for a work package
func BranchName(featureSlug, wpID string) string {
	return featureSlug + "/" + wpID
}

// Path returns the worktree checkout path for a work package
func (m *Manager) Path(featureSlug, wpID string) string {
	return filepath.Join(m.worktreeDir, featureSlug+"-"+wpID)
}

// Add creates a worktree and branch for a work package. A stale worktree
// at the same path from an interrupted run is removed first.
func (m *Manager) Add(featureSlug, wpID string) (string, error) {
	if err := os.MkdirAll(m.worktreeDir, 0755); err != nil {
		return "", fmt.Errorf("creating worktree directory: %w", err)
	}
	path := m.Path(featureSlug, wpID)
	m.cleanupStale(path)

	cmd := exec.Command("git", "worktree", "add", "-b", BranchName(featureSlug, wpID), path)
	cmd.Dir = m.repoDir
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("creating worktree: %w\n%s", err, output)
	}
	return path, nil
}

// Remove removes a work package's worktree; the branch is left for
// reconciliation evidence. A worktree that no longer exists is not an
// error.
func (m *Manager) Remove(featureSlug, wpID string) error {
	path := m.Path(featureSlug, wpID)
	cmd := exec.Command("git", "worktree", "remove", path)
	cmd.Dir = m.repoDir
	output, err := cmd.CombinedOutput()
	if err != nil {
		out := string(output)
		if strings.Contains(out, "is not a working tree") ||
			strings.Contains(out, "No such file or directory") {
			return nil
		}
		return fmt.Errorf("removing worktree: %w\n%s", err, output)
	}
	return nil
}

// List returns the worktree paths currently registered under the managed
// directory
func (m *Manager) List() ([]string, error) {
	cmd := exec.Command("git", "worktree", "list", "--porcelain")
	cmd.Dir = m.repoDir
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("listing worktrees: %w", err)
	}
	var paths []string
	for _, line := range strings.Split(string(output), "\n") {
		path, ok := strings.CutPrefix(line, "worktree ")
		if !ok {
			continue
		}
		if filepath.Dir(path) == m.worktreeDir {
			paths = append(paths, path)
		}
	}
	return paths, nil
}

// cleanupStale removes any leftover registration and directory at a path
func (m *Manager) cleanupStale(path string) {
	cmd := exec.Command("git", "worktree", "remove", "--force", path)
	cmd.Dir = m.repoDir
	_ = cmd.Run() // Ignore errors

	if _, err := os.Stat(path); err == nil {
		_ = os.RemoveAll(path)
	}

	cmd = exec.Command("git", "worktree", "prune")
	cmd.Dir = m.repoDir
	_ = cmd.Run() // Ignore errors, best-effort cleanup
}
