package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"shelfrate/internal/catalog"
	"shelfrate/internal/ledger"
	"shelfrate/internal/logging"
	"shelfrate/internal/report"
	"shelfrate/internal/sources"
)

var envKeys = []string{"ABS_URL", "API_TOKEN", "LIBRARY_IDS", "BATCH_SIZE", "SLEEP_TIMER", "REFRESH_DAYS", "DRY_RUN", "NTFY_TOPIC", "LEDGER_DSN"}

type cliTestEnv struct {
	baseDir    string
	configPath string
	stateDir   string
	reportDir  string
	ledgerPath string
}

type configOverrides struct {
	catalogURL string
	token      string
	libraries  string
	ntfyTopic  string
}

func setupCLITestEnv(t *testing.T, overrides configOverrides) *cliTestEnv {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Chdir(base)

	env := &cliTestEnv{
		baseDir:    base,
		configPath: filepath.Join(base, "config.toml"),
		stateDir:   filepath.Join(base, "state"),
		reportDir:  filepath.Join(base, "reports"),
		ledgerPath: filepath.Join(base, "state", "ledger.json"),
	}
	writeTestConfig(t, env, overrides)
	return env
}

func writeTestConfig(t *testing.T, env *cliTestEnv, o configOverrides) {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "[catalog]\nurl = %q\ntoken = %q\n", o.catalogURL, o.token)
	if o.libraries != "" {
		fmt.Fprintf(&b, "library_ids = [%q]\n", o.libraries)
	}
	fmt.Fprintf(&b, "\n[ledger]\nbackend = \"json\"\npath = %q\n", env.ledgerPath)
	fmt.Fprintf(&b, "\n[paths]\nstate_dir = %q\nlog_dir = %q\nreport_dir = %q\n",
		env.stateDir, filepath.Join(env.baseDir, "logs"), env.reportDir)
	fmt.Fprintf(&b, "\n[notifications]\nntfy_topic = %q\n", o.ntfyTopic)
	if err := os.WriteFile(env.configPath, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if env != nil {
		args = append([]string{"--config", env.configPath}, args...)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q\n--- output ---\n%s", needle, haystack)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t, configOverrides{})
	target := filepath.Join(env.baseDir, "generated", "config.toml")

	out, _, err := runCLI(t, nil, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, nil, "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}

	out, _, err = runCLI(t, nil, "--config", target, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "Warning: catalog.url is required")
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	env := setupCLITestEnv(t, configOverrides{catalogURL: "http://abs.local", token: "secret-token", libraries: "lib"})

	out, _, err := runCLI(t, env, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "secret-token") {
		t.Fatalf("token leaked in output:\n%s", out)
	}
	requireContains(t, out, redacted)
	requireContains(t, out, "http://abs.local")
}

func TestEnvFileLoadedBeforeConfig(t *testing.T) {
	env := setupCLITestEnv(t, configOverrides{catalogURL: "http://abs.local", token: "t"})
	envFile := filepath.Join(env.baseDir, "custom.env")
	if err := os.WriteFile(envFile, []byte("LIBRARY_IDS=lib_from_env\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	out, _, err := runCLI(t, env, "--env-file", envFile, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "lib_from_env")

	if _, _, err := runCLI(t, env, "--env-file", filepath.Join(env.baseDir, "missing.env"), "config", "show"); err == nil {
		t.Fatal("expected an explicit missing env file to fail")
	}
}

func TestLedgerCommands(t *testing.T) {
	env := setupCLITestEnv(t, configOverrides{})
	store, err := ledger.OpenJSON(env.ledgerPath, logging.NewNop())
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	history := ledger.New(store, ledger.DefaultPolicy())
	item := catalog.Item{ID: "li_1", LibraryID: "lib", Title: "Dune"}
	snapshot := []sources.Record{{Source: "audible.com", Family: sources.FamilyAudible, Overall: sources.Float(4.6), RatingCount: sources.Int(120)}}
	if _, err := history.RecordSuccess(context.Background(), item, snapshot, time.Now()); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
	if err := history.Close(); err != nil {
		t.Fatalf("close ledger: %v", err)
	}

	out, _, err := runCLI(t, env, "ledger", "list")
	if err != nil {
		t.Fatalf("ledger list: %v", err)
	}
	requireContains(t, out, "lib_li_1")
	requireContains(t, out, "Dune")
	requireContains(t, out, "Last Updated")

	out, _, err = runCLI(t, env, "ledger", "list", "--failed")
	if err != nil {
		t.Fatalf("ledger list --failed: %v", err)
	}
	requireContains(t, out, "No ledger entries")

	out, _, err = runCLI(t, env, "ledger", "show", "lib_li_1")
	if err != nil {
		t.Fatalf("ledger show: %v", err)
	}
	requireContains(t, out, `"item_id": "li_1"`)

	out, _, err = runCLI(t, env, "ledger", "forget", "lib_li_1")
	if err != nil {
		t.Fatalf("ledger forget: %v", err)
	}
	requireContains(t, out, "Forgot lib_li_1")

	out, _, err = runCLI(t, env, "ledger", "list")
	if err != nil {
		t.Fatalf("ledger list after forget: %v", err)
	}
	requireContains(t, out, "No ledger entries")

	if _, _, err := runCLI(t, env, "ledger", "show", "lib_li_1"); err == nil {
		t.Fatal("expected show of a forgotten key to fail")
	}
}

func TestReportShow(t *testing.T) {
	env := setupCLITestEnv(t, configOverrides{})

	out, _, err := runCLI(t, env, "report", "show")
	if err != nil {
		t.Fatalf("report show: %v", err)
	}
	requireContains(t, out, "No run report found")

	rep := report.Report{
		Timestamp:    time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		RunID:        "run-1",
		Status:       "completed",
		Duration:     "2m5s",
		UpdatedCount: 2,
		Unmatched: []report.Unmatched{{
			ItemID: "li_9",
			Title:  "Lost Book",
			Author: "Somebody",
			Reason: "ambiguous_match",
			Candidates: []report.Candidate{
				{Source: "audible.com", Identifier: "B000000001", Score: 0.8},
			},
		}},
	}
	if _, err := report.Write(env.reportDir, rep); err != nil {
		t.Fatalf("write report: %v", err)
	}

	out, _, err = runCLI(t, env, "report", "show")
	if err != nil {
		t.Fatalf("report show: %v", err)
	}
	requireContains(t, out, "Run run-1")
	requireContains(t, out, "Lost Book")
	requireContains(t, out, "B000000001 0.80")
	requireContains(t, out, "Unmatched Title")

	out, _, err = runCLI(t, env, "report", "show", "--json")
	if err != nil {
		t.Fatalf("report show --json: %v", err)
	}
	requireContains(t, out, `"runId": "run-1"`)
}

func TestRunRequiresCatalog(t *testing.T) {
	env := setupCLITestEnv(t, configOverrides{})

	_, _, err := runCLI(t, env, "run", "--dry-run")
	if err == nil || !strings.Contains(err.Error(), "catalog.url is required") {
		t.Fatalf("expected catalog requirement error, got %v", err)
	}
}

func TestLookupValidatesQuery(t *testing.T) {
	env := setupCLITestEnv(t, configOverrides{})

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no query", []string{"lookup"}, "lookup needs"},
		{"bad asin", []string{"lookup", "--asin", "short"}, "invalid ASIN"},
		{"bad isbn", []string{"lookup", "--isbn", "978-0-306-40615-8"}, "invalid ISBN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runCLI(t, env, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestTestNotify(t *testing.T) {
	var (
		mu     sync.Mutex
		titles []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		mu.Lock()
		titles = append(titles, r.Header.Get("Title"))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	env := setupCLITestEnv(t, configOverrides{ntfyTopic: srv.URL + "/abs"})
	out, _, err := runCLI(t, env, "test-notify")
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "Test notification sent")
	mu.Lock()
	defer mu.Unlock()
	if len(titles) != 1 {
		t.Fatalf("ntfy requests = %d, want 1", len(titles))
	}

	quiet := setupCLITestEnv(t, configOverrides{})
	out, _, err = runCLI(t, quiet, "test-notify")
	if err != nil {
		t.Fatalf("test-notify without topic: %v", err)
	}
	requireContains(t, out, "Notification not sent")
}
