package gitremote

import (
	"net/url"
	"strings"
)

// sensitiveParams lists query parameter names whose values must never
// reach log output. Covers generic token/key variants plus the signed-URL
// parameters of the major cloud providers. Compared case-insensitively.
var sensitiveParams = map[string]struct{}{
	"token":               {},
	"access_token":        {},
	"private_token":       {},
	"auth":                {},
	"authorization":       {},
	"key":                 {},
	"api_key":             {},
	"apikey":              {},
	"secret":              {},
	"password":            {},
	"credential":          {},
	"credentials":         {},
	"signature":           {},
	"sig":                 {},
	"x-amz-signature":     {},
	"x-amz-credential":    {},
	"x-amz-security-token": {},
	"x-goog-signature":    {},
	"x-goog-credential":   {},
	"sv":                  {},
	"se":                  {},
	"sp":                  {},
	"sr":                  {},
	"st":                  {},
}

// Sanitize strips authority credentials and redacts sensitive query
// parameter values. Every URL headed for a log line goes through here.
func Sanitize(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "[INVALID_URL]"
	}

	u.User = nil

	if u.RawQuery != "" {
		q := u.Query()
		changed := false
		for name := range q {
			if _, ok := sensitiveParams[strings.ToLower(name)]; ok {
				q.Set(name, "REDACTED")
				changed = true
			}
		}
		if changed {
			u.RawQuery = q.Encode()
		}
	}

	return u.String()
}
