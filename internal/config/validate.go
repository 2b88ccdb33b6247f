package config

import (
	"errors"
	"fmt"
	"strings"
)

// KnownAudibleRegions lists the Audible storefronts the source clients support.
var KnownAudibleRegions = []string{"us", "de"}

// Validate ensures the configuration is usable. Catalog credentials are
// checked separately by RequireCatalog so offline commands can run without them.
func (c *Config) Validate() error {
	if err := c.validateRun(); err != nil {
		return err
	}
	if err := c.validateSources(); err != nil {
		return err
	}
	if err := c.validateResolver(); err != nil {
		return err
	}
	if err := c.validateMerge(); err != nil {
		return err
	}
	if err := c.validateLedger(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

// RequireCatalog ensures the audiobookshelf connection settings are present.
func (c *Config) RequireCatalog() error {
	if c.Catalog.URL == "" {
		return errors.New("catalog.url is required. Set ABS_URL env var or edit the config file (create with 'shelfrate config init')")
	}
	if !strings.HasPrefix(c.Catalog.URL, "http://") && !strings.HasPrefix(c.Catalog.URL, "https://") {
		return fmt.Errorf("catalog.url must start with http:// or https://, got %q", c.Catalog.URL)
	}
	if c.Catalog.Token == "" {
		return errors.New("catalog.token is required. Set API_TOKEN env var or edit the config file")
	}
	if len(c.Catalog.LibraryIDs) == 0 {
		return errors.New("catalog.library_ids must list at least one library. Set LIBRARY_IDS env var or edit the config file")
	}
	return nil
}

func (c *Config) validateRun() error {
	if err := ensurePositiveMap(map[string]int{
		"run.batch_size":                  c.Run.BatchSize,
		"run.refresh_days":                c.Run.RefreshDays,
		"run.max_consecutive_rate_limits": c.Run.MaxConsecutiveRateLimits,
		"catalog.request_timeout":         c.Catalog.RequestTimeout,
	}); err != nil {
		return err
	}
	return ensureNonNegativeMap(map[string]int{
		"run.pause_seconds":          c.Run.PauseSeconds,
		"run.pause_jitter_seconds":   c.Run.PauseJitterSeconds,
		"run.search_pause_seconds":   c.Run.SearchPauseSeconds,
		"run.source_pause_ms":        c.Run.SourcePauseMillis,
		"run.recovery_pause_seconds": c.Run.RecoveryPauseSeconds,
	})
}

func (c *Config) validateSources() error {
	if len(c.Sources.AudibleRegions) == 0 && !c.Sources.GoodreadsEnabled {
		return errors.New("sources: at least one audible region or goodreads must be enabled")
	}
	for _, region := range c.Sources.AudibleRegions {
		if !containsString(KnownAudibleRegions, region) {
			return fmt.Errorf("sources.audible_regions: unsupported region %q (supported: %s)", region, strings.Join(KnownAudibleRegions, ", "))
		}
	}
	if err := ensurePositiveMap(map[string]int{
		"sources.request_timeout": c.Sources.RequestTimeout,
	}); err != nil {
		return err
	}
	return ensureNonNegativeMap(map[string]int{
		"sources.min_request_interval_ms": c.Sources.MinRequestInterval,
		"sources.max_retries":             c.Sources.MaxRetries,
	})
}

func (c *Config) validateResolver() error {
	if c.Resolver.AcceptanceThreshold <= 0 || c.Resolver.AcceptanceThreshold >= 1 {
		return errors.New("resolver.acceptance_threshold must be between 0 and 1 (exclusive)")
	}
	if c.Resolver.MinMargin < 0 || c.Resolver.MinMargin >= 1 {
		return errors.New("resolver.min_margin must be in [0, 1)")
	}
	return ensurePositiveMap(map[string]int{
		"resolver.retry_base_hours": c.Resolver.RetryBaseHours,
		"resolver.retry_max_days":   c.Resolver.RetryMaxDays,
		"resolver.max_failures":     c.Resolver.MaxFailures,
	})
}

func (c *Config) validateMerge() error {
	switch c.Merge.ScalarPolicy {
	case ScalarPolicyNever, ScalarPolicyPlaceholder, ScalarPolicyAlways:
		return nil
	default:
		return fmt.Errorf("merge.scalar_policy: unsupported value %q (use never, placeholder, or always)", c.Merge.ScalarPolicy)
	}
}

func (c *Config) validateLedger() error {
	switch c.Ledger.Backend {
	case LedgerBackendJSON, LedgerBackendSQLite:
		if c.Ledger.Path == "" {
			return fmt.Errorf("ledger.path must be set for the %s backend", c.Ledger.Backend)
		}
	case LedgerBackendPostgres:
		if c.Ledger.DSN == "" {
			return errors.New("ledger.dsn must be set for the postgres backend (or set LEDGER_DSN)")
		}
	case LedgerBackendMemory:
	default:
		return fmt.Errorf("ledger.backend: unsupported value %q", c.Ledger.Backend)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

func ensureNonNegativeMap(values map[string]int) error {
	for key, value := range values {
		if value < 0 {
			return fmt.Errorf("%s must not be negative", key)
		}
	}
	return nil
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
