package config

const (
	defaultConfigPath                  = "~/.config/shelfrate/config.toml"
	defaultStateDir                    = "~/.local/share/shelfrate"
	defaultLogDir                      = "~/.local/share/shelfrate/logs"
	defaultReportDir                   = "~/.local/share/shelfrate/reports"
	defaultCatalogTimeout              = 30
	defaultBatchSize                   = 150
	defaultPauseSeconds                = 6
	defaultPauseJitterSeconds          = 2
	defaultPauseEvery                  = 1
	defaultSearchPauseSeconds          = 10
	defaultSourcePauseMillis           = 1000
	defaultRefreshDays                 = 90
	defaultMaxConsecutiveRateLimits    = 3
	defaultRecoveryPauseSeconds        = 60
	defaultSourceTimeout               = 20
	defaultMinRequestIntervalMillis    = 1500
	defaultSourceMaxRetries            = 2
	defaultAcceptanceThreshold         = 0.75
	defaultMinMargin                   = 0.05
	defaultRetryBaseHours              = 24
	defaultRetryMaxDays                = 30
	defaultMaxFailures                 = 5
	defaultScalarPolicy                = ScalarPolicyPlaceholder
	defaultLedgerBackend               = LedgerBackendJSON
	defaultLedgerFile                  = "ledger.json"
	defaultLedgerSQLiteFile            = "ledger.db"
	defaultNotificationsRequestTimeout = 10
	defaultLogFormat                   = "auto"
	defaultLogLevel                    = "info"
)

// Scalar overwrite policies for language, publisher, and year.
const (
	ScalarPolicyNever       = "never"
	ScalarPolicyPlaceholder = "placeholder"
	ScalarPolicyAlways      = "always"
)

// Ledger backends.
const (
	LedgerBackendJSON     = "json"
	LedgerBackendSQLite   = "sqlite"
	LedgerBackendPostgres = "postgres"
	LedgerBackendMemory   = "memory"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Catalog: Catalog{
			RequestTimeout: defaultCatalogTimeout,
		},
		Run: Run{
			BatchSize:                defaultBatchSize,
			PauseSeconds:             defaultPauseSeconds,
			PauseJitterSeconds:       defaultPauseJitterSeconds,
			PauseEvery:               defaultPauseEvery,
			SearchPauseSeconds:       defaultSearchPauseSeconds,
			SourcePauseMillis:        defaultSourcePauseMillis,
			RefreshDays:              defaultRefreshDays,
			MaxConsecutiveRateLimits: defaultMaxConsecutiveRateLimits,
			RecoveryPauseSeconds:     defaultRecoveryPauseSeconds,
		},
		Sources: Sources{
			AudibleRegions:     []string{"us", "de"},
			PreferItemLanguage: true,
			GoodreadsEnabled:   true,
			RequestTimeout:     defaultSourceTimeout,
			MinRequestInterval: defaultMinRequestIntervalMillis,
			MaxRetries:         defaultSourceMaxRetries,
		},
		Resolver: Resolver{
			AcceptanceThreshold: defaultAcceptanceThreshold,
			MinMargin:           defaultMinMargin,
			RetryBaseHours:      defaultRetryBaseHours,
			RetryMaxDays:        defaultRetryMaxDays,
			MaxFailures:         defaultMaxFailures,
		},
		Merge: Merge{
			ScalarPolicy: defaultScalarPolicy,
		},
		Ledger: Ledger{
			Backend: defaultLedgerBackend,
		},
		Paths: Paths{
			StateDir:  defaultStateDir,
			LogDir:    defaultLogDir,
			ReportDir: defaultReportDir,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotificationsRequestTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
