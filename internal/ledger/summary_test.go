package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteSummary_RoundTrips(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "summary.json")
	want := RunSummary{
		RunID:        "sma-AAPL",
		StartingCash: 1_000_000,
		EndingEquity: 1_050_000,
		TotalFills:   12,
		MaxDrawdown:  0.08,
	}

	if err := WriteSummary(path, want); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	var got RunSummary
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestWriteSummary_OverwritesExisting(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "summary.json")
	if err := WriteSummary(path, RunSummary{RunID: "first"}); err != nil {
		t.Fatalf("first WriteSummary: %v", err)
	}
	if err := WriteSummary(path, RunSummary{RunID: "second"}); err != nil {
		t.Fatalf("second WriteSummary: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var got RunSummary
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.RunID != "second" {
		t.Errorf("RunID = %q, want %q", got.RunID, "second")
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("leftover temp file: %s", e.Name())
		}
	}
}
