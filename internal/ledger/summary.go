package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// RunSummary is the small JSON artifact a sweep writes per backtest run, so
// a sweep's orchestrator can rank runs without re-parsing each equity curve.
type RunSummary struct {
	RunID        string  `json:"run_id"`
	StartingCash float64 `json:"starting_cash"`
	EndingEquity float64 `json:"ending_equity"`
	TotalFills   int     `json:"total_fills"`
	MaxDrawdown  float64 `json:"max_drawdown"`
}

// WriteSummary atomically writes summary as JSON to path: it writes to a
// temp file in the same directory and renames over the destination, so a
// reader never observes a partially written summary.
func WriteSummary(path string, summary RunSummary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".summary-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp summary file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp summary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp summary file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp summary file: %w", err)
	}
	return nil
}
