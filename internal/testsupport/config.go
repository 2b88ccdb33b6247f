package testsupport

import (
	"path/filepath"
	"testing"

	"shelfrate/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Pacing is disabled and the ledger is in memory unless overridden.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Catalog.URL = "http://abs.invalid"
	cfgVal.Catalog.Token = "test"
	cfgVal.Catalog.LibraryIDs = []string{"lib"}
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.ReportDir = filepath.Join(base, "reports")
	cfgVal.Ledger.Backend = config.LedgerBackendMemory
	cfgVal.Run.PauseSeconds = 0
	cfgVal.Run.PauseJitterSeconds = 0
	cfgVal.Run.SearchPauseSeconds = 0
	cfgVal.Run.SourcePauseMillis = 0
	cfgVal.Run.RecoveryPauseSeconds = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithCatalogURL points the catalog client at a test server.
func WithCatalogURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Catalog.URL = url
	}
}

// WithDryRun enables dry-run mode.
func WithDryRun() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Run.DryRun = true
	}
}

// WithJSONLedger stores the ledger as JSON under the state directory.
func WithJSONLedger() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ledger.Backend = config.LedgerBackendJSON
		b.cfg.Ledger.Path = filepath.Join(b.baseDir, "state", "ledger.json")
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
