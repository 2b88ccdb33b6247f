package notifications

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"shelfrate/internal/fileutil"
)

// EnvFile writes the last run summary as shell variables for the host
// dashboard. Only NotifyRun writes; events are ignored.
type EnvFile struct {
	path string
}

// NewEnvFile returns an EnvFile writing to path.
func NewEnvFile(path string) *EnvFile {
	return &EnvFile{path: path}
}

// Path returns the destination file.
func (e *EnvFile) Path() string { return e.path }

// NotifyRun replaces the env file with the summary.
func (e *EnvFile) NotifyRun(_ context.Context, s Summary) error {
	subject, icon, header := envHeadline(s)
	body := fmt.Sprintf("Proc: %d | New: %d | Rec: %d | ASIN+: %d | ISBN+: %d | Unm: %d | Err: %d",
		s.Processed, s.Updated, s.Recycled, s.NewASINs, s.NewISBNs, s.Unmatched, s.Failed)
	if s.Status == StatusAborted {
		body += " | ⚠️ ABORTED (Rate Limit)"
	}
	if s.DryRun {
		body += " | DRY RUN"
	}

	logName := ""
	if s.LogFile != "" {
		logName = filepath.Base(s.LogFile)
	}

	var b strings.Builder
	writeVar(&b, "ABS_SUBJECT", subject)
	writeVar(&b, "ABS_ICON", icon)
	writeVar(&b, "ABS_HEADER", header)
	writeVar(&b, "ABS_DURATION", formatDuration(s.Duration))
	writeVar(&b, "ABS_REPORT_BODY", body)
	writeVar(&b, "ABS_LOG_FILE", logName)
	writeVar(&b, "ABS_RUN_ID", s.RunID)
	if err := fileutil.WriteFileAtomic(e.path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write env file: %w", err)
	}
	return nil
}

// Notify ignores events; the env file only reflects whole runs.
func (e *EnvFile) Notify(context.Context, Event, Payload) error { return nil }

func envHeadline(s Summary) (subject, icon, header string) {
	switch {
	case s.Status == StatusAborted:
		return "ABS Ratings: Abbruch 🛑", "alert", "Rate Limit erkannt!"
	case s.Status == StatusFailed || s.Failed > 0:
		return "ABS Ratings: Fehler ❌", "alert", "Fehler aufgetreten!"
	case s.Updated+s.Recycled+s.NewASINs+s.NewISBNs > 0:
		return "ABS Ratings: Erfolg ✅", "normal", "Update abgeschlossen"
	default:
		return "ABS Ratings: Info ℹ️", "normal", "Keine Änderungen"
	}
}

// writeVar emits NAME='value'. Single quotes inside value are closed,
// escaped, and reopened so the file stays sourceable.
func writeVar(b *strings.Builder, name, value string) {
	b.WriteString(name)
	b.WriteString("='")
	b.WriteString(strings.ReplaceAll(value, "'", `'\''`))
	b.WriteString("'\n")
}
