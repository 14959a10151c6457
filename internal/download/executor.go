package download

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/repofetch/repofetch/internal/gitremote"
	"github.com/repofetch/repofetch/internal/mirror"
)

// Executor performs a single retrieval attempt for one method. It never
// retries; sequencing attempts and falling back across methods is the
// orchestrator's job.
type Executor struct {
	client   *Client
	git      Cloner
	selector *mirror.Selector
	logger   *slog.Logger
}

// NewExecutor wires the transfer client, git runner, and mirror selector.
func NewExecutor(client *Client, git Cloner, selector *mirror.Selector, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{client: client, git: git, selector: selector, logger: logger}
}

// Run dispatches one attempt of the given method and returns a fresh
// Result. Failures come back as classified errors.
func (e *Executor) Run(ctx context.Context, method Method, opts Options) (*Result, error) {
	if opts.Repo.Owner == "" || opts.Repo.Name == "" {
		return nil, Errorf(ClassInputInvalid, "repository is required")
	}
	if opts.Ref == "" {
		opts.Ref = gitremote.DefaultRef
	}
	if opts.Dest == "" {
		opts.Dest = "."
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	e.logger.Info("starting retrieval attempt",
		"method", method,
		"repo", opts.Repo.String(),
		"ref", opts.Ref.String(),
	)

	switch method {
	case MethodMirror:
		return e.runMirror(ctx, opts)
	case MethodDirect:
		return e.runDirect(ctx, opts)
	case MethodClone:
		return e.runClone(ctx, opts)
	default:
		return nil, Errorf(ClassInputInvalid, "method %q cannot be executed", method)
	}
}

// runMirror relays the transfer through the best-ranked proxy mirror.
// Clone transfers through a proxy need a credential source; its absence
// is fatal for this method.
func (e *Executor) runMirror(ctx context.Context, opts Options) (*Result, error) {
	kind := mirror.TransferClone
	if opts.Ref.IsPullRequest() {
		// Pull-request merge refs cannot be passed to clone --branch.
		kind = mirror.TransferArchive
	}

	m := e.selector.Best(ctx, kind)
	if m == nil {
		return nil, Errorf(ClassMirrorUnavailable, "no mirror supports %s transfer", kind)
	}

	if kind == mirror.TransferArchive {
		url := gitremote.ProxyURL(m.BaseURL, opts.Repo.ArchiveURL(opts.Ref))
		url, err := e.embedMirrorAuth(url, m, opts)
		if err != nil {
			return nil, err
		}
		return e.archiveFlow(ctx, url, nil, m.Name, MethodMirror, opts)
	}

	relayed := gitremote.ProxyURL(m.BaseURL, opts.Repo.CloneURL())

	username, password := m.Username, m.Password
	if !m.HasCredentials() {
		if opts.Token == "" {
			return nil, Errorf(ClassAuthFailed,
				"mirror clone needs credentials: mirror %s embeds none and no token was supplied", m.Name)
		}
		username, password = "git", opts.Token
	}

	authed, err := gitremote.WithAuth(relayed, username, password)
	if err != nil {
		return nil, NewError(ClassInputInvalid, "building mirror clone URL", err)
	}
	return e.cloneFlow(ctx, authed, m.Name, MethodMirror, opts)
}

// embedMirrorAuth adds whichever credential source exists to a relayed
// archive URL. Archive transfers work anonymously, so none is fine.
func (e *Executor) embedMirrorAuth(url string, m *mirror.Descriptor, opts Options) (string, error) {
	switch {
	case m.HasCredentials():
		authed, err := gitremote.WithAuth(url, m.Username, m.Password)
		if err != nil {
			return "", NewError(ClassInputInvalid, "building mirror archive URL", err)
		}
		return authed, nil
	case opts.Token != "":
		authed, err := gitremote.WithAuth(url, "git", opts.Token)
		if err != nil {
			return "", NewError(ClassInputInvalid, "building mirror archive URL", err)
		}
		return authed, nil
	default:
		return url, nil
	}
}

// runDirect goes straight to the origin: a token-authenticated clone when
// possible, otherwise an anonymous archive download.
func (e *Executor) runDirect(ctx context.Context, opts Options) (*Result, error) {
	if opts.Token != "" && !opts.Ref.IsPullRequest() {
		authed, err := gitremote.WithAuth(opts.Repo.CloneURL(), "git", opts.Token)
		if err != nil {
			return nil, NewError(ClassInputInvalid, "building direct clone URL", err)
		}
		return e.cloneFlow(ctx, authed, "", MethodDirect, opts)
	}

	headers := map[string]string{}
	if opts.Token != "" {
		headers["Authorization"] = "token " + opts.Token
	}
	return e.archiveFlow(ctx, opts.Repo.ArchiveURL(opts.Ref), headers, "", MethodDirect, opts)
}

// runClone invokes the external git binary against the origin.
func (e *Executor) runClone(ctx context.Context, opts Options) (*Result, error) {
	if opts.Ref.IsPullRequest() {
		// No clonable ref; take the archive path form instead.
		headers := map[string]string{}
		if opts.Token != "" {
			headers["Authorization"] = "token " + opts.Token
		}
		return e.archiveFlow(ctx, opts.Repo.ArchiveURL(opts.Ref), headers, "", MethodClone, opts)
	}

	url := opts.Repo.CloneURL()
	if opts.Token != "" {
		authed, err := gitremote.WithAuth(url, "git", opts.Token)
		if err != nil {
			return nil, NewError(ClassInputInvalid, "building clone URL", err)
		}
		url = authed
	}
	return e.cloneFlow(ctx, url, "", MethodClone, opts)
}

// cloneFlow clones into the destination and resolves the checked-out
// commit. Transfer timing covers the clone invocation only.
func (e *Executor) cloneFlow(ctx context.Context, url, mirrorName string, method Method, opts Options) (*Result, error) {
	if err := e.prepareDest(opts); err != nil {
		return nil, err
	}

	depth := opts.CloneDepth
	branch := opts.Ref.Branch()
	if opts.Ref.IsCommit() {
		// A shallow clone has no guarantee of containing an arbitrary
		// commit; fetch full history and detach onto it afterwards.
		depth = 0
		branch = ""
	}

	target := opts.Dest
	indirect, err := needsIndirectClone(opts.Dest)
	if err != nil {
		return nil, err
	}

	var stagingDir string
	if indirect {
		stagingDir, err = os.MkdirTemp("", "repofetch-clone-")
		if err != nil {
			return nil, NewError(ClassFileSystem, "creating staging directory", err)
		}
		defer os.RemoveAll(stagingDir)
		// Clone under the repository's short name, then relocate the
		// contents; git refuses to clone into a non-empty directory.
		target = filepath.Join(stagingDir, opts.Repo.Name)
	}

	start := time.Now()
	if err := e.git.Clone(ctx, url, target, depth, branch); err != nil {
		return nil, err
	}
	duration := time.Since(start)

	if opts.Ref.IsCommit() {
		if err := e.git.Checkout(ctx, target, opts.Ref.String()); err != nil {
			return nil, err
		}
	}

	if indirect {
		if err := moveContents(target, opts.Dest); err != nil {
			return nil, err
		}
	}

	commit := e.resolveCommit(opts)
	size := dirSize(opts.Dest)

	e.logger.Info("clone complete",
		"repo", opts.Repo.String(),
		"dest", opts.Dest,
		"size", size,
		"duration", duration,
	)

	return &Result{
		Success:      true,
		Method:       method,
		Mirror:       mirrorName,
		DownloadTime: duration,
		SpeedMBps:    speedMBps(size, duration),
		Size:         size,
		CommitID:     commit,
		Ref:          opts.Ref.String(),
	}, nil
}

// archiveFlow downloads an archive, extracts it, and relocates the
// content root into the destination. Transfer timing and size come from
// the HTTP transfer alone; extraction is excluded.
func (e *Executor) archiveFlow(ctx context.Context, url string, headers map[string]string, mirrorName string, method Method, opts Options) (*Result, error) {
	tmpDir, err := os.MkdirTemp("", "repofetch-")
	if err != nil {
		return nil, NewError(ClassFileSystem, "creating temporary directory", err)
	}
	// Removes both the archive file and the extraction tree.
	defer os.RemoveAll(tmpDir)

	archivePath := filepath.Join(tmpDir, "archive.bin")
	stats, err := e.client.FetchArchive(ctx, url, headers, archivePath)
	if err != nil {
		return nil, err
	}

	extractDir := filepath.Join(tmpDir, "content")
	if err := os.MkdirAll(extractDir, 0755); err != nil {
		return nil, NewError(ClassFileSystem, "creating extraction directory", err)
	}
	if err := extractArchive(archivePath, extractDir); err != nil {
		return nil, err
	}

	root, err := contentRoot(extractDir)
	if err != nil {
		return nil, err
	}

	if err := e.prepareDest(opts); err != nil {
		return nil, err
	}
	if err := moveContents(root, opts.Dest); err != nil {
		return nil, err
	}

	commit := e.resolveCommit(opts)

	e.logger.Info("archive transfer complete",
		"repo", opts.Repo.String(),
		"dest", opts.Dest,
		"size", stats.Bytes,
		"duration", stats.Duration,
		"chunked", stats.Chunked,
	)

	return &Result{
		Success:      true,
		Method:       method,
		Mirror:       mirrorName,
		DownloadTime: stats.Duration,
		SpeedMBps:    speedMBps(stats.Bytes, stats.Duration),
		Size:         stats.Bytes,
		CommitID:     commit,
		Ref:          opts.Ref.String(),
	}, nil
}

// prepareDest clears pre-existing destination contents when asked to.
func (e *Executor) prepareDest(opts Options) error {
	if !opts.CleanDest {
		return nil
	}
	entries, err := os.ReadDir(opts.Dest)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return NewError(ClassFileSystem, "reading destination", err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(opts.Dest, entry.Name())); err != nil {
			return NewError(ClassFileSystem, fmt.Sprintf("cleaning %s", entry.Name()), err)
		}
	}
	return nil
}

// resolveCommit queries the checked-out HEAD, falling back to the
// requested ref string when the destination has no usable repository
// (as with extracted archives).
func (e *Executor) resolveCommit(opts Options) string {
	commit, err := HeadCommit(opts.Dest)
	if err != nil {
		e.logger.Debug("could not resolve HEAD, reporting requested ref",
			"dest", opts.Dest, "error", err)
		return opts.Ref.String()
	}
	return commit
}

// needsIndirectClone reports whether the clone must stage elsewhere and
// relocate: the current directory always does, as does any existing
// non-empty destination.
func needsIndirectClone(dest string) (bool, error) {
	abs, err := filepath.Abs(dest)
	if err != nil {
		return false, NewError(ClassFileSystem, "resolving destination", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return false, NewError(ClassFileSystem, "resolving working directory", err)
	}
	if abs == cwd {
		return true, nil
	}

	entries, err := os.ReadDir(abs)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, NewError(ClassFileSystem, "reading destination", err)
	}
	return len(entries) > 0, nil
}
