package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/repofetch/repofetch/internal/download"
	"github.com/repofetch/repofetch/internal/mirror"
)

// Config is the top-level configuration
type Config struct {
	Auth     AuthConfig     `yaml:"auth"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Transfer TransferConfig `yaml:"transfer"`
	Mirrors  MirrorsConfig  `yaml:"mirrors"`
	History  HistoryConfig  `yaml:"history"`
}

// AuthConfig holds the origin credential. Usually supplied through the
// REPOFETCH_TOKEN environment variable rather than the file.
type AuthConfig struct {
	Token string `yaml:"token"`
}

// FetchConfig holds retry and method-selection settings
type FetchConfig struct {
	Method     string   `yaml:"method"`
	MaxRetries int      `yaml:"max_retries"`
	Fallback   bool     `yaml:"fallback"`
	Timeout    Duration `yaml:"timeout"`
	CloneDepth int      `yaml:"clone_depth"`
	CleanDest  bool     `yaml:"clean_dest"`
}

// Duration accepts YAML scalars in time.ParseDuration form ("90s", "2m").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

// TransferConfig holds chunked-download settings
type TransferConfig struct {
	ChunkSizeBytes    int64 `yaml:"chunk_size_bytes"`
	MaxParallelChunks int   `yaml:"max_parallel_chunks"`
}

// MirrorsConfig holds mirror-selection settings. At most one
// user-supplied mirror joins the built-in list.
type MirrorsConfig struct {
	SpeedTest      bool               `yaml:"speed_test"`
	DisableBuiltin bool               `yaml:"disable_builtin"`
	User           *mirror.Descriptor `yaml:"user"`
}

// HistoryConfig holds fetch-history store settings
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// envOverrides are the environment variables honored on top of the file.
type envOverrides struct {
	Token      string `envconfig:"TOKEN"`
	Method     string `envconfig:"METHOD"`
	MaxRetries int    `envconfig:"MAX_RETRIES"`
	DBPath     string `envconfig:"DB_PATH"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Fetch: FetchConfig{
			Method:     string(download.MethodAuto),
			MaxRetries: 3,
			Fallback:   true,
			Timeout:    Duration(10 * time.Minute),
			CloneDepth: 1,
		},
		Transfer: TransferConfig{
			ChunkSizeBytes:    download.DefaultChunkSize,
			MaxParallelChunks: download.DefaultMaxParallelChunks,
		},
		Mirrors: MirrorsConfig{
			SpeedTest: false,
		},
		History: HistoryConfig{
			Enabled: true,
			DBPath:  "",
		},
	}
}

// Load reads a config file from the given path and applies environment
// overrides. An empty path yields the defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() (string, error) {
	searchPaths := []string{
		"repofetch.yaml",
		"/etc/repofetch/repofetch.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(home, ".config", "repofetch", "repofetch.yaml"),
		)
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", searchPaths)
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process("repofetch", &env); err != nil {
		return err
	}
	if env.Token != "" {
		c.Auth.Token = env.Token
	}
	if env.Method != "" {
		c.Fetch.Method = env.Method
	}
	if env.MaxRetries > 0 {
		c.Fetch.MaxRetries = env.MaxRetries
	}
	if env.DBPath != "" {
		c.History.DBPath = env.DBPath
	}
	return nil
}

func (c *Config) validate() error {
	if _, err := download.ParseMethod(c.Fetch.Method); err != nil {
		return fmt.Errorf("fetch.method: %w", err)
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must not be negative")
	}
	if c.Transfer.ChunkSizeBytes <= 0 {
		return fmt.Errorf("transfer.chunk_size_bytes must be positive")
	}
	if c.Transfer.MaxParallelChunks <= 0 {
		return fmt.Errorf("transfer.max_parallel_chunks must be positive")
	}
	if c.Mirrors.User != nil {
		if c.Mirrors.User.Name == "" || c.Mirrors.User.BaseURL == "" {
			return fmt.Errorf("mirrors.user needs both name and base_url")
		}
	}
	if c.Mirrors.DisableBuiltin && c.Mirrors.User == nil {
		return fmt.Errorf("mirrors.disable_builtin requires a mirrors.user entry")
	}
	return nil
}

// MirrorList merges the built-in descriptors with the optional
// user-supplied one. The user entry is appended last; its priority field
// still decides its rank.
func (c *Config) MirrorList() []mirror.Descriptor {
	var list []mirror.Descriptor
	if !c.Mirrors.DisableBuiltin {
		list = append(list, mirror.Builtin()...)
	}
	if c.Mirrors.User != nil {
		u := *c.Mirrors.User
		// Listing a mirror in the config is opting in.
		u.Enabled = true
		list = append(list, u)
	}
	return list
}

// Method returns the configured fetch method. Validation at load time
// guarantees it parses.
func (c *Config) Method() download.Method {
	m, _ := download.ParseMethod(c.Fetch.Method)
	return m
}

// HistoryDBPath resolves the history database location, defaulting to
// the user cache directory.
func (c *Config) HistoryDBPath() string {
	if c.History.DBPath != "" {
		return c.History.DBPath
	}
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "repofetch.db"
	}
	return filepath.Join(cacheDir, "repofetch", "history.db")
}
