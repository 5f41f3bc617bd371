// Package worktree provisions isolated, branch-scoped git worktrees for
// task execution.
package worktree

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Manager provisions worktrees rooted at a single repository.
type Manager struct {
	repoRoot string
}

// NewManager creates a manager for the repository at repoRoot.
func NewManager(repoRoot string) *Manager {
	return &Manager{repoRoot: repoRoot}
}

// IsRepo reports whether path is inside a git repository.
func IsRepo(path string) bool {
	cmd := exec.Command("git", "-C", path, "rev-parse", "--git-dir")
	return cmd.Run() == nil
}

// IsWorktree reports whether path is a git working tree.
func IsWorktree(path string) bool {
	cmd := exec.Command("git", "-C", path, "rev-parse", "--is-inside-work-tree")
	out, err := cmd.Output()
	return err == nil && strings.TrimSpace(string(out)) == "true"
}

// commonDir returns the resolved common git directory for path, which is
// shared by every worktree of the same repository.
func commonDir(path string) (string, error) {
	cmd := exec.Command("git", "-C", path, "rev-parse", "--git-common-dir")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("rev-parse --git-common-dir in %s: %w", path, err)
	}
	dir := strings.TrimSpace(string(out))
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(path, dir)
	}
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return "", fmt.Errorf("resolve git common dir %s: %w", dir, err)
	}
	return resolved, nil
}

// Ensure guarantees an isolated worktree exists at path on branch.
//
// An existing path must be a worktree of the same repository as the
// manager's root: identity is compared via the shared git common
// directory, not mere worktree-ness, so a checkout of some other repo
// at the same path is a collision, not a workspace. An absent path is
// created with a new branch; if the branch already exists (a resumed
// run), the worktree attaches to it instead. Repeated calls are
// side-effect free once the worktree exists.
func (m *Manager) Ensure(path, branch string) error {
	if _, err := os.Stat(path); err == nil {
		if !IsWorktree(path) {
			return fmt.Errorf("worktree path exists but is not a git worktree: %s", path)
		}
		rootCommon, err := commonDir(m.repoRoot)
		if err != nil {
			return err
		}
		wtCommon, err := commonDir(path)
		if err != nil {
			return err
		}
		if rootCommon != wtCommon {
			return fmt.Errorf("worktree path %s belongs to a different repository (%s, expected %s)",
				path, wtCommon, rootCommon)
		}
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat worktree path %s: %w", path, err)
	}

	// New branch first; attach to the existing branch when that fails.
	addCmd := exec.Command("git", "worktree", "add", "-b", branch, path)
	addCmd.Dir = m.repoRoot
	if output, err := addCmd.CombinedOutput(); err != nil {
		attachCmd := exec.Command("git", "worktree", "add", path, branch)
		attachCmd.Dir = m.repoRoot
		if attachOutput, attachErr := attachCmd.CombinedOutput(); attachErr != nil {
			return fmt.Errorf("failed to create worktree %s: %w (output: %s; attach output: %s)",
				path, attachErr, strings.TrimSpace(string(output)), strings.TrimSpace(string(attachOutput)))
		}
	}
	return nil
}

// Head returns the current commit of the repository at path.
func Head(path string) string {
	cmd := exec.Command("git", "-C", path, "rev-parse", "HEAD")
	out, err := cmd.Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}
