package gitremote

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// OriginHost is the direct origin for repository retrieval.
const OriginHost = "github.com"

// Parsed holds the credential-free form of a remote URL plus any
// credentials that were embedded in its authority component.
type Parsed struct {
	Base     string // URL with the userinfo stripped
	Host     string
	Username string
	Password string
}

// HasAuth reports whether the original URL carried embedded credentials.
func (p Parsed) HasAuth() bool {
	return p.Username != "" || p.Password != ""
}

// Parse splits a URL into its credential-free base and any embedded
// credentials.
func Parse(raw string) (Parsed, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Parsed{}, fmt.Errorf("parsing URL: %w", err)
	}
	if u.Host == "" {
		return Parsed{}, fmt.Errorf("URL has no host: %q", raw)
	}

	p := Parsed{Host: u.Host}
	if u.User != nil {
		p.Username = u.User.Username()
		p.Password, _ = u.User.Password()
		u.User = nil
	}
	p.Base = u.String()
	return p, nil
}

// SplitAuth is the fail-soft form of Parse: on malformed input it logs a
// warning and returns the original string as the base with no credentials.
func SplitAuth(raw string) Parsed {
	p, err := Parse(raw)
	if err != nil {
		slog.Default().Warn("unparseable remote URL, using it as-is", "url", Mask(raw), "error", err)
		return Parsed{Base: raw}
	}
	return p
}

// WithAuth embeds the given credentials into the URL authority. Values are
// percent-encoded by the URL serializer.
func WithAuth(base, username, password string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base URL has no host: %q", base)
	}
	if password == "" {
		u.User = url.User(username)
	} else {
		u.User = url.UserPassword(username, password)
	}
	return u.String(), nil
}

// Mask redacts the credentials in a URL for log output. The password keeps
// its first and last four characters (entirely starred when eight or
// fewer), the username its first two and last one (entirely starred when
// three or fewer). Never use the result as a request target.
func Mask(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "[INVALID_URL]"
	}
	if u.User == nil {
		return raw
	}

	username := maskValue(u.User.Username(), 2, 1, 3)
	if password, ok := u.User.Password(); ok {
		u.User = url.UserPassword(username, maskValue(password, 4, 4, 8))
	} else {
		u.User = url.User(username)
	}
	return u.String()
}

// maskValue keeps front leading and back trailing characters of s, starring
// the middle. Values of threshold length or shorter are fully starred.
func maskValue(s string, front, back, threshold int) string {
	if len(s) <= threshold {
		return "***"
	}
	return s[:front] + "***" + s[len(s)-back:]
}

// IsDirectOrigin reports whether the URL addresses the origin host rather
// than a relay.
func IsDirectOrigin(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == OriginHost || strings.HasSuffix(host, "."+OriginHost)
}

// IsProxyAddress reports whether the URL follows the proxy-relay
// convention, i.e. embeds a full origin URL as its path suffix.
func IsProxyAddress(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.Contains(u.Path, "://")
}

// ProxyURL nests an origin URL under a proxy base. The origin URL is kept
// verbatim as a path suffix; re-encoding it would break the relay contract.
func ProxyURL(proxyBase, originURL string) string {
	return strings.TrimSuffix(proxyBase, "/") + "/" + originURL
}
