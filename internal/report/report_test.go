package report

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"shelfrate/internal/catalog"
)

func TestWriteCreatesTimestampedAndLatest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	desc := "⭐ Ratings & Infos<br>⭐"
	r := Report{
		Timestamp:    ts,
		RunID:        "run-1",
		Status:       "completed",
		DryRun:       true,
		UpdatedCount: 2,
		Patches: []Patch{{
			ItemID: "li_1",
			Title:  "Dune",
			Fields: []string{"description"},
			Patch:  catalog.Patch{Description: &desc},
		}},
	}

	path, err := Write(dir, r)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if want := filepath.Join(dir, "report-20260304-050607.json"); path != want {
		t.Fatalf("path = %q, want %q", path, want)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stat report: %v", err)
	}

	latest, err := Latest(dir)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.RunID != "run-1" || latest.UpdatedCount != 2 || !latest.DryRun {
		t.Fatalf("latest = %+v", latest)
	}
	if len(latest.Patches) != 1 || latest.Patches[0].Patch.Description == nil || *latest.Patches[0].Patch.Description != desc {
		t.Fatalf("patches = %+v", latest.Patches)
	}
	if latest.Unmatched == nil {
		t.Fatal("unmatched should encode as an empty list")
	}
}

func TestWriteOmitsPatchesOutsideDryRun(t *testing.T) {
	dir := t.TempDir()
	if _, err := Write(dir, Report{RunID: "run-2", Status: "completed"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, latestFile))
	if err != nil {
		t.Fatalf("read latest: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := raw["patches"]; ok {
		t.Fatal("patches should be omitted when empty")
	}
	if list, ok := raw["unmatched"].([]any); !ok || len(list) != 0 {
		t.Fatalf("unmatched = %#v, want []", raw["unmatched"])
	}
}

func TestLatestWithoutReport(t *testing.T) {
	if _, err := Latest(t.TempDir()); !errors.Is(err, ErrNoReport) {
		t.Fatalf("err = %v, want ErrNoReport", err)
	}
}

func TestUnmatchedListPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), UnmatchedFile)
	list, err := OpenUnmatched(path)
	if err != nil {
		t.Fatalf("OpenUnmatched: %v", err)
	}
	list.Upsert(Unmatched{ItemID: "b", Title: "Zeta", Reason: "no_match"})
	list.Upsert(Unmatched{ItemID: "a", Title: "alpha", Reason: "ambiguous_match",
		Candidates: []Candidate{{Source: "audible_us", Identifier: "B000000001", Title: "Alpha", Score: 0.8}}})
	list.Upsert(Unmatched{Title: "ignored"})
	if err := list.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reopened, err := OpenUnmatched(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	entries := reopened.Entries()
	if len(entries) != 2 || entries[0].ItemID != "a" || entries[1].ItemID != "b" {
		t.Fatalf("entries = %+v", entries)
	}
	if len(entries[0].Candidates) != 1 {
		t.Fatalf("candidates = %+v", entries[0].Candidates)
	}

	if !reopened.Remove("a") {
		t.Fatal("Remove(a) = false")
	}
	if reopened.Remove("missing") {
		t.Fatal("Remove(missing) = true")
	}
	if err := reopened.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	final, err := OpenUnmatched(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if final.Len() != 1 {
		t.Fatalf("len = %d, want 1", final.Len())
	}
}

func TestUnmatchedSaveSkipsCleanList(t *testing.T) {
	path := filepath.Join(t.TempDir(), UnmatchedFile)
	list, err := OpenUnmatched(path)
	if err != nil {
		t.Fatalf("OpenUnmatched: %v", err)
	}
	if err := list.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("clean list should not be written, stat err = %v", err)
	}
}

func TestOpenUnmatchedRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), UnmatchedFile)
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := OpenUnmatched(path); err == nil {
		t.Fatal("expected decode error")
	}
}
