// Package reconcile infers planning-state corrections from external
// implementation evidence: branches and commits in target repositories
// that reference work packages. It proposes legal transition chains but
// never fabricates evidence that requires human judgment — a reviewer
// approval cannot be mined out of git history.
package reconcile

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

const (
	// commandTimeout bounds single git lookups (branch listing, one-commit logs)
	commandTimeout = 30 * time.Second
	// historyScanTimeout bounds full-history scans across all refs
	historyScanTimeout = 60 * time.Second
)

// wpIDPattern mines work-package IDs out of branch names and commit
// messages. Best-effort heuristic extraction is the point here, not a
// strict grammar.
var wpIDPattern = regexp.MustCompile(`WP\d{2}`)

// CommitInfo is evidence of WP-linked git activity in a target repository
type CommitInfo struct {
	SHA     string `json:"sha"`
	Branch  string `json:"branch,omitempty"`
	Message string `json:"message"`
	Author  string `json:"author"`
	Date    string `json:"date"`
}

// gitFieldSep separates commit fields in --format output; the unit
// separator cannot appear in commit messages git prints on one line
const gitFieldSep = "\x1f"

// runGit executes one git command with a bounded timeout. Output is
// decoded as UTF-8 with lossy replacement so non-UTF8 commit data cannot
// poison a scan.
func runGit(dir string, timeout time.Duration, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("git %s timed out after %s", args[0], timeout)
	}
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.ToValidUTF8(string(out), "�"), nil
}

func parseCommitLine(line string) (CommitInfo, bool) {
	fields := strings.Split(line, gitFieldSep)
	if len(fields) < 4 || fields[0] == "" {
		return CommitInfo{}, false
	}
	return CommitInfo{
		SHA:     fields[0],
		Message: fields[1],
		Author:  fields[2],
		Date:    fields[3],
	}, true
}

// ScanForWPCommits mines one repository for WP evidence through two
// independent channels: branch names containing the feature slug, and
// commit messages across all refs that mention it. Evidence is
// deduplicated by commit SHA per WP. A timeout on one lookup is logged
// and skipped; it does not abort the scan.
func ScanForWPCommits(repoPath, featureSlug string) (map[string][]CommitInfo, error) {
	evidence := map[string][]CommitInfo{}
	seen := map[string]map[string]bool{}
	record := func(wpID string, info CommitInfo) {
		if seen[wpID] == nil {
			seen[wpID] = map[string]bool{}
		}
		if seen[wpID][info.SHA] {
			return
		}
		seen[wpID][info.SHA] = true
		evidence[wpID] = append(evidence[wpID], info)
	}

	// Channel one: feature branches named for a WP
	branches, err := runGit(repoPath, commandTimeout, "branch", "-a", "--format=%(refname:short)")
	if err != nil {
		return nil, err
	}
	format := "--format=%H" + gitFieldSep + "%s" + gitFieldSep + "%an" + gitFieldSep + "%cI"
	for _, branch := range strings.Split(branches, "\n") {
		branch = strings.TrimSpace(branch)
		if branch == "" || !strings.Contains(branch, featureSlug) {
			continue
		}
		wpID := wpIDPattern.FindString(branch)
		if wpID == "" {
			continue
		}
		out, err := runGit(repoPath, commandTimeout, "log", "-1", format, branch)
		if err != nil {
			log.Printf("⚠️  Skipping branch %s: %v", branch, err)
			continue
		}
		if info, ok := parseCommitLine(strings.TrimSpace(out)); ok {
			info.Branch = branch
			record(wpID, info)
		}
	}

	// Channel two: commit messages across all refs mentioning the feature
	out, err := runGit(repoPath, historyScanTimeout,
		"log", "--all", "--grep="+featureSlug, format)
	if err != nil {
		log.Printf("⚠️  Skipping commit-message scan of %s: %v", repoPath, err)
		return evidence, nil
	}
	for _, line := range strings.Split(out, "\n") {
		info, ok := parseCommitLine(strings.TrimSpace(line))
		if !ok {
			continue
		}
		for _, wpID := range dedupe(wpIDPattern.FindAllString(info.Message, -1)) {
			record(wpID, info)
		}
	}
	return evidence, nil
}

// mergedWPs returns the WPs whose feature branches are merged into the
// default branch; main is tried first, then master
func mergedWPs(repoPath, featureSlug string) map[string]bool {
	merged := map[string]bool{}
	for _, base := range []string{"main", "master"} {
		out, err := runGit(repoPath, commandTimeout,
			"branch", "-a", "--merged", base, "--format=%(refname:short)")
		if err != nil {
			continue
		}
		for _, branch := range strings.Split(out, "\n") {
			branch = strings.TrimSpace(branch)
			if branch == "" || !strings.Contains(branch, featureSlug) {
				continue
			}
			if wpID := wpIDPattern.FindString(branch); wpID != "" {
				merged[wpID] = true
			}
		}
		return merged
	}
	return merged
}

func dedupe(values []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
