package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeCatalog(); err != nil {
		return err
	}
	if err := c.normalizeRun(); err != nil {
		return err
	}
	c.normalizeSources()
	c.normalizeMerge()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeLedger(); err != nil {
		return err
	}
	if err := c.normalizeNotifications(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeCatalog() error {
	if strings.TrimSpace(c.Catalog.URL) == "" {
		if value, ok := os.LookupEnv("ABS_URL"); ok {
			c.Catalog.URL = value
		}
	}
	c.Catalog.URL = strings.TrimRight(strings.TrimSpace(c.Catalog.URL), "/")

	if strings.TrimSpace(c.Catalog.Token) == "" {
		if value, ok := os.LookupEnv("API_TOKEN"); ok {
			c.Catalog.Token = value
		}
	}
	c.Catalog.Token = strings.TrimSpace(c.Catalog.Token)

	if len(c.Catalog.LibraryIDs) == 0 {
		if value, ok := os.LookupEnv("LIBRARY_IDS"); ok {
			c.Catalog.LibraryIDs = strings.Split(value, ",")
		}
	}
	c.Catalog.LibraryIDs = dedupe(c.Catalog.LibraryIDs, false)
	return nil
}

// normalizeRun applies the container environment on top of file values so the
// same image keeps working with its documented variables.
func (c *Config) normalizeRun() error {
	for _, override := range []struct {
		env    string
		target *int
	}{
		{"BATCH_SIZE", &c.Run.BatchSize},
		{"SLEEP_TIMER", &c.Run.PauseSeconds},
		{"REFRESH_DAYS", &c.Run.RefreshDays},
	} {
		value, ok := os.LookupEnv(override.env)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%s: %w", override.env, err)
		}
		*override.target = parsed
	}
	if value, ok := os.LookupEnv("DRY_RUN"); ok && strings.TrimSpace(value) != "" {
		parsed, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(value)))
		if err != nil {
			return fmt.Errorf("DRY_RUN: %w", err)
		}
		c.Run.DryRun = parsed
	}
	if c.Run.PauseEvery <= 0 {
		c.Run.PauseEvery = defaultPauseEvery
	}
	return nil
}

func (c *Config) normalizeSources() {
	c.Sources.AudibleRegions = dedupe(c.Sources.AudibleRegions, true)
	c.Sources.UserAgents = dedupe(c.Sources.UserAgents, false)
}

func (c *Config) normalizeMerge() {
	c.Merge.ScalarPolicy = strings.ToLower(strings.TrimSpace(c.Merge.ScalarPolicy))
	if c.Merge.ScalarPolicy == "" {
		c.Merge.ScalarPolicy = defaultScalarPolicy
	}
	c.Merge.Placeholders = dedupe(c.Merge.Placeholders, true)
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ReportDir) == "" {
		c.Paths.ReportDir = filepath.Join(c.Paths.StateDir, "reports")
	}
	if c.Paths.ReportDir, err = expandPath(c.Paths.ReportDir); err != nil {
		return fmt.Errorf("paths.report_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLedger() error {
	c.Ledger.Backend = strings.ToLower(strings.TrimSpace(c.Ledger.Backend))
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = defaultLedgerBackend
	}
	if strings.TrimSpace(c.Ledger.DSN) == "" {
		if value, ok := os.LookupEnv("LEDGER_DSN"); ok {
			c.Ledger.DSN = value
		}
	}
	c.Ledger.DSN = strings.TrimSpace(c.Ledger.DSN)

	if strings.TrimSpace(c.Ledger.Path) == "" {
		switch c.Ledger.Backend {
		case LedgerBackendJSON:
			c.Ledger.Path = filepath.Join(c.Paths.StateDir, defaultLedgerFile)
		case LedgerBackendSQLite:
			c.Ledger.Path = filepath.Join(c.Paths.StateDir, defaultLedgerSQLiteFile)
		}
	}
	var err error
	if c.Ledger.Path, err = expandPath(strings.TrimSpace(c.Ledger.Path)); err != nil {
		return fmt.Errorf("ledger.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeNotifications() error {
	if strings.TrimSpace(c.Notifications.NtfyTopic) == "" {
		if value, ok := os.LookupEnv("NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = value
		}
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	var err error
	if c.Notifications.EnvFile, err = expandPath(strings.TrimSpace(c.Notifications.EnvFile)); err != nil {
		return fmt.Errorf("notifications.env_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func dedupe(values []string, lower bool) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if lower {
			value = strings.ToLower(value)
		}
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
