package mirror

import "time"

// Transfer kinds a mirror can relay. The selector filters descriptors by
// the kind the executor intends to use through the proxy.
const (
	TransferClone   = "clone"
	TransferArchive = "archive"
)

// Builtin returns the built-in proxy mirror list. Priorities encode an
// empirical reliability ordering; user configuration can disable entries
// or prepend its own.
func Builtin() []Descriptor {
	return []Descriptor{
		{
			Name:     "ghproxy",
			BaseURL:  "https://ghproxy.net",
			Priority: 1,
			Enabled:  true,
			Timeout:  10 * time.Second,
			Methods:  []string{TransferClone, TransferArchive},
			Regions:  []string{"global"},
		},
		{
			Name:     "gh-proxy",
			BaseURL:  "https://gh-proxy.com",
			Priority: 2,
			Enabled:  true,
			Timeout:  10 * time.Second,
			Methods:  []string{TransferClone, TransferArchive},
			Regions:  []string{"global"},
		},
		{
			Name:     "gitmirror",
			BaseURL:  "https://hub.gitmirror.com",
			Priority: 3,
			Enabled:  true,
			Timeout:  10 * time.Second,
			Methods:  []string{TransferClone, TransferArchive},
			Regions:  []string{"asia"},
		},
		{
			Name:     "ghps",
			BaseURL:  "https://ghps.cc",
			Priority: 4,
			Enabled:  true,
			Timeout:  10 * time.Second,
			Methods:  []string{TransferArchive},
			Regions:  []string{"asia"},
		},
	}
}
