package runner

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"backtester/internal/backtester"
)

func TestRun_AllSucceedAndWriteSummaries(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	specs := []Spec{
		{
			Name:        "a",
			SummaryPath: filepath.Join(dir, "a.json"),
			Run: func(ctx context.Context) (backtester.Summary, error) {
				return backtester.Summary{FinalCash: 1}, nil
			},
		},
		{
			Name:        "b",
			SummaryPath: filepath.Join(dir, "b.json"),
			Run: func(ctx context.Context) (backtester.Summary, error) {
				return backtester.Summary{FinalCash: 2}, nil
			},
		},
	}

	results, err := Run(context.Background(), specs, 2, nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	for _, name := range []string{"a", "b"} {
		data, err := os.ReadFile(filepath.Join(dir, name+".json"))
		if err != nil {
			t.Fatalf("summary file for %s not written: %v", name, err)
		}
		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("summary for %s is not valid JSON: %v", name, err)
		}
	}
}

func TestRun_PropagatesFirstError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	specs := []Spec{
		{
			Name: "fails",
			Run: func(ctx context.Context) (backtester.Summary, error) {
				return backtester.Summary{}, boom
			},
		},
	}

	_, err := Run(context.Background(), specs, 1, nil)
	if err == nil {
		t.Fatal("expected Run to propagate the spec's error")
	}
}

func TestRun_CancelsRemainingOnError(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	specs := []Spec{
		{
			Name: "fails-fast",
			Run: func(ctx context.Context) (backtester.Summary, error) {
				return backtester.Summary{}, errors.New("immediate failure")
			},
		},
		{
			Name: "observes-cancellation",
			Run: func(ctx context.Context) (backtester.Summary, error) {
				close(started)
				<-ctx.Done()
				return backtester.Summary{}, ctx.Err()
			},
		},
	}

	_, err := Run(context.Background(), specs, 2, nil)
	if err == nil {
		t.Fatal("expected an error from the sweep")
	}
	<-started
}
