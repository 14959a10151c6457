package gitremote

import (
	"fmt"
	"strings"
)

// Repo identifies a repository on the origin host.
type Repo struct {
	Owner string
	Name  string
}

// ParseRepo parses an "owner/name" identifier. A trailing ".git" suffix
// and a full origin URL prefix are tolerated.
func ParseRepo(s string) (Repo, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "https://"+OriginHost+"/")
	s = strings.TrimPrefix(s, "http://"+OriginHost+"/")
	s = strings.TrimSuffix(s, ".git")
	s = strings.Trim(s, "/")

	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Repo{}, fmt.Errorf("invalid repository %q: expected owner/name", s)
	}
	return Repo{Owner: parts[0], Name: parts[1]}, nil
}

func (r Repo) String() string {
	return r.Owner + "/" + r.Name
}

// CloneURL returns the direct origin clone URL.
func (r Repo) CloneURL() string {
	return fmt.Sprintf("https://%s/%s/%s.git", OriginHost, r.Owner, r.Name)
}

// ArchiveURL returns the direct origin archive URL for the given ref.
func (r Repo) ArchiveURL(ref Ref) string {
	return fmt.Sprintf("https://%s/%s/%s/%s", OriginHost, r.Owner, r.Name, ref.ArchivePath())
}
