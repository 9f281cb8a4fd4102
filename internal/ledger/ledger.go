// Package ledger writes the two durable output streams a backtest produces:
// a trade log (one row per fill) and an equity curve (one row per recorded
// mark-to-market snapshot). Both are opened once, written incrementally and
// closed at the end of a run — flushing after every row so a crash mid-run
// leaves a readable prefix rather than a truncated file.
package ledger

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"backtester/internal/model"
)

// TradeLogWriter appends one CSV row per fill: timestamp, symbol, type
// (BUY/SELL), quantity, price, resulting cash. Prices are formatted through
// shopspring/decimal so the on-disk record never carries float64's binary
// rounding artifacts.
type TradeLogWriter struct {
	file   *os.File
	writer *csv.Writer
}

// NewTradeLogWriter creates (or truncates) path and writes its header row.
func NewTradeLogWriter(path string) (*TradeLogWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create trade log %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{"timestamp", "symbol", "type", "quantity", "price", "cash"}); err != nil {
		f.Close()
		return nil, fmt.Errorf("write trade log header: %w", err)
	}
	w.Flush()

	return &TradeLogWriter{file: f, writer: w}, nil
}

// Write appends fill as one row, paired with the ledger cash balance left
// after applying it, and flushes immediately.
func (t *TradeLogWriter) Write(fill model.Fill, resultingCash float64) error {
	row := []string{
		fill.Timestamp.UTC().Format(time.RFC3339Nano),
		fill.Symbol,
		fill.Side.String(),
		decimal.NewFromFloat(fill.Quantity).String(),
		decimal.NewFromFloat(fill.Price).String(),
		decimal.NewFromFloat(resultingCash).String(),
	}
	if err := t.writer.Write(row); err != nil {
		return fmt.Errorf("write trade row: %w", err)
	}
	t.writer.Flush()
	return t.writer.Error()
}

// Close flushes and closes the underlying file.
func (t *TradeLogWriter) Close() error {
	t.writer.Flush()
	if err := t.writer.Error(); err != nil {
		t.file.Close()
		return err
	}
	return t.file.Close()
}

// EquityCurveWriter appends one CSV row per recorded snapshot: timestamp,
// total equity (cash plus mark-to-market holdings value).
type EquityCurveWriter struct {
	file   *os.File
	writer *csv.Writer
}

// NewEquityCurveWriter creates (or truncates) path and writes its header row.
func NewEquityCurveWriter(path string) (*EquityCurveWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create equity curve %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{"timestamp", "equity"}); err != nil {
		f.Close()
		return nil, fmt.Errorf("write equity curve header: %w", err)
	}
	w.Flush()

	return &EquityCurveWriter{file: f, writer: w}, nil
}

// Write appends one equity snapshot and flushes immediately. cash and
// holdings are accepted separately so callers (and tests) can reason about
// the breakdown even though only their sum is persisted, matching the
// donor reference's equity-curve format.
func (e *EquityCurveWriter) Write(ts time.Time, cash, holdings, total float64) error {
	row := []string{
		ts.UTC().Format(time.RFC3339Nano),
		decimal.NewFromFloat(total).String(),
	}
	if err := e.writer.Write(row); err != nil {
		return fmt.Errorf("write equity row: %w", err)
	}
	e.writer.Flush()
	return e.writer.Error()
}

// Close flushes and closes the underlying file.
func (e *EquityCurveWriter) Close() error {
	e.writer.Flush()
	if err := e.writer.Error(); err != nil {
		e.file.Close()
		return err
	}
	return e.file.Close()
}
