package gitremote

import (
	"regexp"
	"strings"
)

// Ref is a revision specifier: a branch name, tag name, full ref path
// (refs/heads/*, refs/tags/*, refs/pull/<n>/merge), or a commit id.
type Ref string

// DefaultRef is used when the caller does not name a revision.
const DefaultRef Ref = "main"

var (
	commitRe    = regexp.MustCompile(`^[0-9a-f]{40}$`)
	pullMergeRe = regexp.MustCompile(`^refs/pull/\d+/merge$`)
)

// IsCommit reports whether the ref is an absolute commit id.
func (r Ref) IsCommit() bool {
	return commitRe.MatchString(string(r))
}

// IsPullRequest reports whether the ref is a pull-request merge ref.
// These cannot be passed to clone --branch and must use archive path form.
func (r Ref) IsPullRequest() bool {
	return pullMergeRe.MatchString(string(r))
}

// Branch returns the ref in the form accepted by a clone --branch
// argument: full heads/tags ref paths are stripped to their short name.
// Commit ids and pull-request refs have no branch form and return "".
func (r Ref) Branch() string {
	if r.IsCommit() || r.IsPullRequest() {
		return ""
	}
	s := string(r)
	s = strings.TrimPrefix(s, "refs/heads/")
	s = strings.TrimPrefix(s, "refs/tags/")
	return s
}

// ArchivePath returns the repository-relative archive path for the ref.
// The ref spelling is preserved: "main" maps to archive/main.zip while
// "refs/pull/42/merge" maps to archive/refs/pull/42/merge.zip.
func (r Ref) ArchivePath() string {
	return "archive/" + string(r) + ".zip"
}

func (r Ref) String() string {
	return string(r)
}
