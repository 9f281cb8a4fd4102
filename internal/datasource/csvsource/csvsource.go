// Package csvsource reads tick and bar history from CSV files, auto-
// detecting bar-format files from their header and tolerating both the
// full 8-column tick format and a legacy 3-column one.
package csvsource

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"backtester/internal/model"
)

const unknownSymbol = "UNKNOWN"

// Reader loads one CSV file once at construction and serves its contents
// through the DataSource contract.
type Reader struct {
	path  string
	ticks []model.Tick
	bars  []model.Bar
}

// New opens path, reads its header to detect bar vs. tick format, and
// parses every row. A CSV read error, or a row with too few fields or an
// unparseable timestamp, is returned as an error; a numeric field that does
// not parse is read as 0. The file handle is closed before New returns —
// Reader holds only the parsed, in-memory result.
func New(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header from %s: %w", path, err)
	}

	isBar := containsFold(header, "open")

	r := &Reader{path: path}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		if isBar {
			bar, ok := parseBarRow(record)
			if !ok {
				return nil, fmt.Errorf("malformed bar row in %s: %v", path, record)
			}
			r.bars = append(r.bars, bar)
			continue
		}

		tick, ok := parseTickRow(record)
		if !ok {
			return nil, fmt.Errorf("malformed tick row in %s: %v", path, record)
		}
		r.ticks = append(r.ticks, tick)
	}

	sort.SliceStable(r.ticks, func(i, j int) bool {
		return r.ticks[i].Timestamp.Before(r.ticks[j].Timestamp)
	})
	sort.SliceStable(r.bars, func(i, j int) bool {
		return r.bars[i].Timestamp.Before(r.bars[j].Timestamp)
	})

	return r, nil
}

// ReadAllTicks returns every tick parsed from the file, already sorted.
func (r *Reader) ReadAllTicks(ctx context.Context) ([]model.Tick, error) {
	return r.ticks, nil
}

// ReadAllBars returns every bar parsed from the file, already sorted. A
// tick-format file yields an empty slice, not an error.
func (r *Reader) ReadAllBars(ctx context.Context) ([]model.Bar, error) {
	return r.bars, nil
}

func containsFold(fields []string, substr string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), substr) {
			return true
		}
	}
	return false
}

// parseTickRow parses the full 8-column format (timestamp_ms, symbol,
// price, volume, bid, ask, bid_size, ask_size) or, when fewer fields are
// present, the legacy 3-column format (timestamp_ms, price, volume) —
// defaulting symbol to a sentinel and treating price as both bid and ask.
func parseTickRow(record []string) (model.Tick, bool) {
	switch {
	case len(record) >= 8:
		ms, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
		if err != nil {
			return model.Tick{}, false
		}
		price := mustFloat(record[2])
		volume := mustFloat(record[3])
		bid := mustFloat(record[4])
		ask := mustFloat(record[5])
		bidSize := mustFloat(record[6])
		askSize := mustFloat(record[7])
		return model.Tick{
			Symbol:    strings.TrimSpace(record[1]),
			Timestamp: time.UnixMilli(ms).UTC(),
			Price:     price,
			Volume:    volume,
			Bid:       bid,
			Ask:       ask,
			BidSize:   bidSize,
			AskSize:   askSize,
		}, true

	case len(record) >= 3:
		ms, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
		if err != nil {
			return model.Tick{}, false
		}
		price := mustFloat(record[1])
		volume := mustFloat(record[2])
		return model.Tick{
			Symbol:    unknownSymbol,
			Timestamp: time.UnixMilli(ms).UTC(),
			Price:     price,
			Volume:    volume,
			Bid:       price,
			Ask:       price,
			BidSize:   volume,
			AskSize:   volume,
		}, true

	default:
		return model.Tick{}, false
	}
}

// parseBarRow parses the 6-column bar format: timestamp_s, open, high, low,
// close, volume. Symbol is not carried in this format and defaults to a
// sentinel.
func parseBarRow(record []string) (model.Bar, bool) {
	if len(record) < 6 {
		return model.Bar{}, false
	}
	secs, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
	if err != nil {
		return model.Bar{}, false
	}
	return model.Bar{
		Symbol:    unknownSymbol,
		Timestamp: time.Unix(secs, 0).UTC(),
		Open:      mustFloat(record[1]),
		High:      mustFloat(record[2]),
		Low:       mustFloat(record[3]),
		Close:     mustFloat(record[4]),
		Volume:    mustFloat(record[5]),
	}, true
}

func mustFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
