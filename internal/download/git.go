package download

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	gogit "github.com/go-git/go-git/v5"

	"github.com/repofetch/repofetch/internal/gitremote"
)

// Cloner is the clone capability the executor depends on. The production
// implementation shells out to the git binary; tests substitute a stub to
// observe the constructed URLs.
type Cloner interface {
	Clone(ctx context.Context, url, dest string, depth int, branch string) error
	Checkout(ctx context.Context, dir, commit string) error
}

// GitRunner shells out to the external git binary for clone operations.
// HEAD resolution after checkout is done in-process; everything that
// touches the network goes through the real git client.
type GitRunner struct {
	gitPath string
	logger  *slog.Logger
}

// NewGitRunner creates a runner using the given binary path, defaulting
// to "git" on PATH.
func NewGitRunner(gitPath string, logger *slog.Logger) *GitRunner {
	if gitPath == "" {
		gitPath = "git"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GitRunner{gitPath: gitPath, logger: logger}
}

// Clone runs `git clone` with the given depth and branch. The URL may
// embed credentials; it is masked before any log line.
func (g *GitRunner) Clone(ctx context.Context, url, dest string, depth int, branch string) error {
	args := []string{"clone"}
	if depth > 0 {
		args = append(args, "--depth", fmt.Sprintf("%d", depth))
	}
	if branch != "" {
		args = append(args, "--branch", branch, "--single-branch")
	}
	args = append(args, url, dest)

	g.logger.Debug("running git clone",
		"url", gitremote.Mask(url),
		"dest", dest,
		"depth", depth,
		"branch", branch,
	)

	cmd := exec.CommandContext(ctx, g.gitPath, args...)
	// Never let git block on an interactive credential prompt.
	cmd.Env = append(os.Environ(),
		"GIT_TERMINAL_PROMPT=0",
		"GCM_INTERACTIVE=never",
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return classifyGitFailure(err, string(output), url)
	}
	return nil
}

// Checkout moves the work tree to a specific commit. Used when the
// requested ref is an absolute commit id that clone --branch cannot take.
func (g *GitRunner) Checkout(ctx context.Context, dir, commit string) error {
	cmd := exec.CommandContext(ctx, g.gitPath, "-C", dir, "checkout", "--detach", commit)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	output, err := cmd.CombinedOutput()
	if err != nil {
		return NewError(ClassCloneFailed, fmt.Sprintf("checkout of %s failed", commit), err).
			WithContext("output", strings.TrimSpace(string(output)))
	}
	return nil
}

// classifyGitFailure maps git's stderr chatter onto an error class. The
// message is preserved so the retry pattern list can still match it.
func classifyGitFailure(err error, output, url string) *Error {
	msg := strings.ToLower(output)

	class := ClassCloneFailed
	switch {
	case strings.Contains(msg, "authentication failed"),
		strings.Contains(msg, "could not read username"),
		strings.Contains(msg, "invalid credentials"):
		class = ClassAuthFailed
	case strings.Contains(msg, "repository not found"),
		strings.Contains(msg, "not found"):
		class = ClassNotFound
	case strings.Contains(msg, "could not resolve host"),
		strings.Contains(msg, "connection timed out"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "early eof"),
		strings.Contains(msg, "rpc failed"):
		class = ClassNetwork
	}

	e := NewError(class, fmt.Sprintf("git clone failed: %s", strings.TrimSpace(output)), err)
	return e.WithContext("url", gitremote.Mask(url))
}

// HeadCommit resolves the checked-out commit id of a work tree.
func HeadCommit(path string) (string, error) {
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return "", fmt.Errorf("opening repository: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	return head.Hash().String(), nil
}
