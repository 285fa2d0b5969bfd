package worktree_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloud-shuttle/muster/internal/worktree"
)

// setupTestRepo creates a temporary git repository for testing
func setupTestRepo(t *testing.T) (string, *worktree.Manager) {
	t.Helper()

	tmpDir := t.TempDir()

	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = tmpDir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}

	run("init")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test User")

	if err := os.WriteFile(filepath.Join(tmpDir, "README.md"), []byte("# Test Repo\n"), 0644); err != nil {
		t.Fatalf("Failed to create initial file: %v", err)
	}
	run("add", "README.md")
	run("commit", "-m", "Initial commit")
	run("branch", "-M", "main")

	worktreeDir := filepath.Join(tmpDir, ".muster", "worktrees")
	return tmpDir, worktree.NewManager(tmpDir, worktreeDir)
}

func TestBranchName(t *testing.T) {
	if got := worktree.BranchName("checkout-flow", "WP01"); got != "checkout-flow/WP01" {
		t.Errorf("BranchName = %q", got)
	}
}

func TestManager_Add(t *testing.T) {
	baseDir, mgr := setupTestRepo(t)

	path, err := mgr.Add("checkout-flow", "WP01")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := os.Stat(filepath.Join(path, "README.md")); err != nil {
		t.Error("worktree must contain the repository files")
	}

	// The branch shape must match what reconciliation mines
	cmd := exec.Command("git", "branch", "--format=%(refname:short)")
	cmd.Dir = baseDir
	out, err := cmd.Output()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "checkout-flow/WP01") {
		t.Errorf("branch checkout-flow/WP01 not created:\n%s", out)
	}
}

func TestManager_Path(t *testing.T) {
	_, mgr := setupTestRepo(t)
	path := mgr.Path("checkout-flow", "WP01")
	if filepath.Base(path) != "checkout-flow-WP01" {
		t.Errorf("Path = %q", path)
	}
}

func TestManager_Remove(t *testing.T) {
	baseDir, mgr := setupTestRepo(t)

	path, err := mgr.Add("checkout-flow", "WP01")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := mgr.Remove("checkout-flow", "WP01"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("worktree directory must be gone")
	}

	// The branch stays behind as reconciliation evidence
	cmd := exec.Command("git", "branch", "--format=%(refname:short)")
	cmd.Dir = baseDir
	out, err := cmd.Output()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "checkout-flow/WP01") {
		t.Error("branch must survive worktree removal")
	}
}

func TestManager_RemoveMissingIsNoop(t *testing.T) {
	_, mgr := setupTestRepo(t)
	if err := mgr.Remove("checkout-flow", "WP99"); err != nil {
		t.Errorf("removing a nonexistent worktree must not error, got %v", err)
	}
}

func TestManager_List(t *testing.T) {
	_, mgr := setupTestRepo(t)

	if _, err := mgr.Add("checkout-flow", "WP01"); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.Add("checkout-flow", "WP02"); err != nil {
		t.Fatal(err)
	}

	paths, err := mgr.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 worktrees, got %v", paths)
	}
	for _, p := range paths {
		if !strings.Contains(filepath.Base(p), "checkout-flow-WP") {
			t.Errorf("unexpected worktree path %s", p)
		}
	}

	// The main checkout is not under the managed directory
	for _, p := range paths {
		if p == mgr.Path("", "") {
			t.Errorf("main checkout leaked into the list: %s", p)
		}
	}
}
