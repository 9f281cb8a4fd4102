package csvsource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestFullTickFormat(t *testing.T) {
	t.Parallel()

	path := writeTempFile(t, "timestamp_ms,symbol,price,volume,bid,ask,bid_size,ask_size\n"+
		"1000,AAPL,100.5,10,100.0,101.0,50,60\n")

	r, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ticks, err := r.ReadAllTicks(context.Background())
	if err != nil {
		t.Fatalf("ReadAllTicks: %v", err)
	}
	if len(ticks) != 1 {
		t.Fatalf("expected 1 tick, got %d", len(ticks))
	}

	tick := ticks[0]
	if tick.Symbol != "AAPL" || tick.Price != 100.5 || tick.Bid != 100.0 || tick.Ask != 101.0 {
		t.Errorf("unexpected parsed tick: %+v", tick)
	}
}

func TestLegacyTickFormat(t *testing.T) {
	t.Parallel()

	path := writeTempFile(t, "timestamp_ms,price,volume\n1000,50.0,5\n")

	r, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ticks, err := r.ReadAllTicks(context.Background())
	if err != nil {
		t.Fatalf("ReadAllTicks: %v", err)
	}
	if len(ticks) != 1 {
		t.Fatalf("expected 1 tick, got %d", len(ticks))
	}

	tick := ticks[0]
	if tick.Symbol != unknownSymbol {
		t.Errorf("expected sentinel symbol, got %q", tick.Symbol)
	}
	if tick.Bid != 50.0 || tick.Ask != 50.0 || tick.BidSize != 5 || tick.AskSize != 5 {
		t.Errorf("expected bid/ask/sizes derived from price/volume, got %+v", tick)
	}
}

func TestBarFormatDetectedByHeader(t *testing.T) {
	t.Parallel()

	path := writeTempFile(t, "timestamp_s,open,high,low,close,volume\n1,10,12,9,11,100\n")

	r, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	bars, err := r.ReadAllBars(context.Background())
	if err != nil {
		t.Fatalf("ReadAllBars: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("expected 1 bar, got %d", len(bars))
	}

	ticks, err := r.ReadAllTicks(context.Background())
	if err != nil {
		t.Fatalf("ReadAllTicks: %v", err)
	}
	if len(ticks) != 0 {
		t.Errorf("expected no ticks from a bar-format file, got %d", len(ticks))
	}

	bar := bars[0]
	if bar.Open != 10 || bar.High != 12 || bar.Low != 9 || bar.Close != 11 || bar.Volume != 100 {
		t.Errorf("unexpected parsed bar: %+v", bar)
	}
}
