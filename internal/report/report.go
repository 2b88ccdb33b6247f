package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"shelfrate/internal/catalog"
	"shelfrate/internal/fileutil"
)

const (
	latestFile    = "latest.json"
	fileTimestamp = "20060102-150405"
)

// Candidate is a near miss shown alongside an unmatched item.
type Candidate struct {
	Source     string  `json:"source"`
	Identifier string  `json:"identifier"`
	Title      string  `json:"title"`
	Author     string  `json:"author,omitempty"`
	Score      float64 `json:"score"`
}

// Unmatched describes an item resolution could not settle.
type Unmatched struct {
	ItemID     string      `json:"itemId"`
	LibraryID  string      `json:"libraryId,omitempty"`
	Title      string      `json:"title"`
	Author     string      `json:"author,omitempty"`
	Reason     string      `json:"reason"`
	Candidates []Candidate `json:"candidates,omitempty"`
	LastCheck  time.Time   `json:"lastCheck"`
}

// Patch is a metadata change computed during a dry run.
type Patch struct {
	ItemID string        `json:"itemId"`
	Title  string        `json:"title"`
	Fields []string      `json:"fields"`
	Patch  catalog.Patch `json:"patch"`
}

// Report summarizes one run.
type Report struct {
	Timestamp      time.Time   `json:"timestamp"`
	RunID          string      `json:"runId"`
	Status         string      `json:"status"`
	Reason         string      `json:"reason,omitempty"`
	DryRun         bool        `json:"dryRun"`
	Duration       string      `json:"duration,omitempty"`
	ProcessedCount int         `json:"processedCount"`
	UpdatedCount   int         `json:"updatedCount"`
	RecycledCount  int         `json:"recycledCount"`
	StaleCount     int         `json:"staleCount"`
	FailedCount    int         `json:"failedCount"`
	SkippedCount   int         `json:"skippedCount"`
	NewASINCount   int         `json:"newAsinCount"`
	NewISBNCount   int         `json:"newIsbnCount"`
	Unmatched      []Unmatched `json:"unmatched"`
	Patches        []Patch     `json:"patches,omitempty"`
}

// Write stores r as report-<timestamp>.json and latest.json in dir and
// returns the timestamped path.
func Write(dir string, r Report) (string, error) {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	if r.Unmatched == nil {
		r.Unmatched = []Unmatched{}
	}
	path := filepath.Join(dir, "report-"+r.Timestamp.UTC().Format(fileTimestamp)+".json")
	if err := fileutil.WriteJSONAtomic(path, r); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := fileutil.WriteJSONAtomic(filepath.Join(dir, latestFile), r); err != nil {
		return "", fmt.Errorf("write latest report: %w", err)
	}
	return path, nil
}

// ErrNoReport is returned by Latest when no run has written a report.
var ErrNoReport = errors.New("no report written yet")

// Latest reads latest.json from dir.
func Latest(dir string) (Report, error) {
	data, err := os.ReadFile(filepath.Join(dir, latestFile))
	if errors.Is(err, os.ErrNotExist) {
		return Report{}, ErrNoReport
	}
	if err != nil {
		return Report{}, fmt.Errorf("read latest report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return Report{}, fmt.Errorf("decode latest report: %w", err)
	}
	return r, nil
}
