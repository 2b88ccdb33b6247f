package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Catalog contains the audiobookshelf server connection.
type Catalog struct {
	URL            string   `toml:"url"`
	Token          string   `toml:"token"`
	LibraryIDs     []string `toml:"library_ids"`
	RequestTimeout int      `toml:"request_timeout"`
}

// Run contains batching and pacing settings for one enrichment pass.
type Run struct {
	BatchSize                int  `toml:"batch_size"`
	PauseSeconds             int  `toml:"pause_seconds"`
	PauseJitterSeconds       int  `toml:"pause_jitter_seconds"`
	PauseEvery               int  `toml:"pause_every"`
	SearchPauseSeconds       int  `toml:"search_pause_seconds"`
	SourcePauseMillis        int  `toml:"source_pause_ms"`
	RefreshDays              int  `toml:"refresh_days"`
	DryRun                   bool `toml:"dry_run"`
	MaxConsecutiveRateLimits int  `toml:"max_consecutive_rate_limits"`
	RecoveryPauseSeconds     int  `toml:"recovery_pause_seconds"`
}

// Sources contains rating source client settings.
type Sources struct {
	AudibleRegions     []string `toml:"audible_regions"`
	PreferItemLanguage bool     `toml:"prefer_item_language"`
	GoodreadsEnabled   bool     `toml:"goodreads_enabled"`
	RequestTimeout     int      `toml:"request_timeout"`
	MinRequestInterval int      `toml:"min_request_interval_ms"`
	MaxRetries         int      `toml:"max_retries"`
	UserAgents         []string `toml:"user_agents"`
}

// Resolver contains identifier matching thresholds and retry spacing.
type Resolver struct {
	AcceptanceThreshold float64 `toml:"acceptance_threshold"`
	MinMargin           float64 `toml:"min_margin"`
	RetryBaseHours      int     `toml:"retry_base_hours"`
	RetryMaxDays        int     `toml:"retry_max_days"`
	MaxFailures         int     `toml:"max_failures"`
}

// Merge contains the metadata write policy.
type Merge struct {
	// ScalarPolicy is one of "never", "placeholder", or "always".
	ScalarPolicy string   `toml:"scalar_policy"`
	Placeholders []string `toml:"placeholders"`
}

// Ledger selects the history store backend.
type Ledger struct {
	// Backend is one of "json", "sqlite", "postgres", or "memory".
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
	DSN     string `toml:"dsn"`
}

// Paths contains state, log, and report directories.
type Paths struct {
	StateDir  string `toml:"state_dir"`
	LogDir    string `toml:"log_dir"`
	ReportDir string `toml:"report_dir"`
}

// Notifications contains ntfy and dashboard env-file settings.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	EnvFile        string `toml:"env_file"`
	OnlyOnChange   bool   `toml:"only_on_change"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for shelfrate.
//
// Configuration sections by subsystem:
//   - Catalog: audiobookshelf URL, token, and libraries to walk
//   - Run: batch size, pacing, staleness, dry-run
//   - Sources: Audible regions, Goodreads toggle, HTTP pacing
//   - Resolver: match thresholds and retry spacing for misses
//   - Merge: scalar field overwrite policy
//   - Ledger: history store backend
//   - Paths: state, log, and report directories
//   - Notifications: ntfy topic and dashboard env file
//   - Logging: log format and level
type Config struct {
	Catalog       Catalog       `toml:"catalog"`
	Run           Run           `toml:"run"`
	Sources       Sources       `toml:"sources"`
	Resolver      Resolver      `toml:"resolver"`
	Merge         Merge         `toml:"merge"`
	Ledger        Ledger        `toml:"ledger"`
	Paths         Paths         `toml:"paths"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and environment fallbacks applied.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file).DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("shelfrate.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state, log, and report directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.Paths.ReportDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "shelfrate.lock")
}

// CatalogTimeout returns the catalog HTTP timeout.
func (c *Config) CatalogTimeout() time.Duration {
	return time.Duration(c.Catalog.RequestTimeout) * time.Second
}

// SourceTimeout returns the per-call timeout for rating source requests.
func (c *Config) SourceTimeout() time.Duration {
	return time.Duration(c.Sources.RequestTimeout) * time.Second
}

// PauseInterval returns the fixed pause between items.
func (c *Config) PauseInterval() time.Duration {
	return time.Duration(c.Run.PauseSeconds) * time.Second
}

// Staleness returns the age after which a rated item is refreshed.
func (c *Config) Staleness() time.Duration {
	return time.Duration(c.Run.RefreshDays) * 24 * time.Hour
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
