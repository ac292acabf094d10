package git

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// tokenEnv carries the push credential to the credential helper.
const tokenEnv = "IJSYNC_GIT_TOKEN"

// ChangeSet is the working tree status after synchronization.
type ChangeSet struct {
	Created   []string
	Modified  []string
	Deleted   []string
	Untracked []string
}

// Client provides git operations on a working tree
type Client interface {
	// Add stages the given paths
	Add(ctx context.Context, paths ...string) error
	// Status reports pending changes
	Status(ctx context.Context) (ChangeSet, error)
	// CreateBranch creates and checks out a new local branch
	CreateBranch(ctx context.Context, name string) error
	// SetIdentity configures the committer for this repository
	SetIdentity(ctx context.Context, name, email string) error
	// Commit records the staged changes
	Commit(ctx context.Context, message string) error
	// Push publishes a branch and sets its upstream
	Push(ctx context.Context, remote, branch string) error
	// ResetToRemote fetches branch from remote and force checks it out,
	// discarding local changes. It returns the checked out commit.
	ResetToRemote(ctx context.Context, remote, branch string) (string, error)
}

// ShellClient implements Client by shelling out to the git command
type ShellClient struct {
	dir   string
	token string
}

// NewShellClient creates a git client for the working tree at dir. The token,
// when non-empty, authenticates HTTPS pushes.
func NewShellClient(dir, token string) *ShellClient {
	return &ShellClient{
		dir:   dir,
		token: token,
	}
}

// Add stages paths into the index
func (c *ShellClient) Add(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"add", "--"}, paths...)
	if _, err := c.run(ctx, args...); err != nil {
		return fmt.Errorf("git add failed: %w", err)
	}
	return nil
}

// Status parses `git status --porcelain` into a ChangeSet
func (c *ShellClient) Status(ctx context.Context) (ChangeSet, error) {
	out, err := c.run(ctx, "status", "--porcelain=v1", "-z")
	if err != nil {
		return ChangeSet{}, fmt.Errorf("git status failed: %w", err)
	}
	return parsePorcelain(out), nil
}

// CreateBranch creates and checks out a new branch from HEAD
func (c *ShellClient) CreateBranch(ctx context.Context, name string) error {
	if _, err := c.run(ctx, "checkout", "-b", name); err != nil {
		return fmt.Errorf("git checkout -b %s failed: %w", name, err)
	}
	return nil
}

// SetIdentity sets user.name and user.email in the repository config
func (c *ShellClient) SetIdentity(ctx context.Context, name, email string) error {
	if _, err := c.run(ctx, "config", "user.name", name); err != nil {
		return fmt.Errorf("git config user.name failed: %w", err)
	}
	if _, err := c.run(ctx, "config", "user.email", email); err != nil {
		return fmt.Errorf("git config user.email failed: %w", err)
	}
	return nil
}

// Commit commits the index
func (c *ShellClient) Commit(ctx context.Context, message string) error {
	if _, err := c.run(ctx, "commit", "-m", message); err != nil {
		return fmt.Errorf("git commit failed: %w", err)
	}
	return nil
}

// Push pushes branch to remote and sets it as upstream
func (c *ShellClient) Push(ctx context.Context, remote, branch string) error {
	cmd := c.command(ctx, "push", "-u", remote, branch)
	c.configureAuth(cmd)
	if _, err := c.runCommand(cmd); err != nil {
		return fmt.Errorf("git push %s %s failed: %w", remote, branch, err)
	}
	return nil
}

// ResetToRemote fetches remote/branch and checks it out as branch
func (c *ShellClient) ResetToRemote(ctx context.Context, remote, branch string) (string, error) {
	cmd := c.command(ctx, "fetch", remote, branch)
	c.configureAuth(cmd)
	if _, err := c.runCommand(cmd); err != nil {
		return "", fmt.Errorf("git fetch %s %s failed: %w", remote, branch, err)
	}

	if _, err := c.run(ctx, "checkout", "-f", "-B", branch, remote+"/"+branch); err != nil {
		return "", fmt.Errorf("git checkout %s failed: %w", branch, err)
	}

	out, err := c.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// configureAuth sets up token authentication for HTTPS remotes.
// The token is passed via environment variable and read by a credential
// helper, so it never appears in argv or in error output.
func (c *ShellClient) configureAuth(cmd *exec.Cmd) {
	if c.token == "" {
		return
	}
	cmd.Env = append(cmd.Env, "GIT_TERMINAL_PROMPT=0", tokenEnv+"="+c.token)
	cmd.Args = insertGitFlags(cmd.Args,
		"-c", "credential.helper=",
		"-c", `credential.helper=!f() { echo "username=x-access-token"; echo "password=$`+tokenEnv+`"; }; f`,
	)
}

func (c *ShellClient) command(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", c.dir}, args...)...)
	cmd.Env = os.Environ()
	return cmd
}

func (c *ShellClient) run(ctx context.Context, args ...string) (string, error) {
	return c.runCommand(c.command(ctx, args...))
}

// runCommand executes a command and returns an error with its output on failure
func (c *ShellClient) runCommand(cmd *exec.Cmd) (string, error) {
	output, err := cmd.CombinedOutput()
	if err != nil {
		out := strings.TrimSpace(string(output))
		if c.token != "" {
			out = strings.ReplaceAll(out, c.token, "***")
		}
		return "", fmt.Errorf("%w: %s", err, out)
	}
	return string(output), nil
}

// insertGitFlags inserts flags immediately after the "git" command name,
// before the subcommand (e.g. "push").
func insertGitFlags(args []string, flags ...string) []string {
	if len(args) == 0 {
		return flags
	}
	result := make([]string, 0, len(args)+len(flags))
	result = append(result, args[0])
	result = append(result, flags...)
	result = append(result, args[1:]...)
	return result
}

// parsePorcelain parses NUL-separated `git status --porcelain=v1 -z` output.
// Index and worktree columns are both considered, so staged and unstaged
// modifications count alike.
func parsePorcelain(out string) ChangeSet {
	var cs ChangeSet
	entries := strings.Split(out, "\x00")
	for i := 0; i < len(entries); i++ {
		entry := entries[i]
		if len(entry) < 4 {
			continue
		}
		x, y, path := entry[0], entry[1], entry[3:]

		switch {
		case x == '?' && y == '?':
			cs.Untracked = append(cs.Untracked, path)
		case x == 'R' || x == 'C':
			// renamed/copied entries are followed by their source path
			i++
			cs.Created = append(cs.Created, path)
		case x == 'A':
			cs.Created = append(cs.Created, path)
		case x == 'D' || y == 'D':
			cs.Deleted = append(cs.Deleted, path)
		case x == 'M' || y == 'M':
			cs.Modified = append(cs.Modified, path)
		}
	}
	return cs
}
