// Package livesource adapts a WebSocket feed of JSON tick/bar event
// envelopes, one per message, into the same DataSource contract as a static file,
// buffering everything it receives until the feed closes or a configured
// duration elapses, then handing the core a plain materialized slice —
// the deterministic replay loop never touches the network directly.
package livesource

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"backtester/internal/model"
)

const (
	minReconnectDelay = time.Second
	maxReconnectDelay = 30 * time.Second
)

// envelope is the wire shape every event arrives wrapped in, dispatched on
// EventType the same way the donor project's exchange feed routes by
// "event_type".
type envelope struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

type wireTick struct {
	TimestampMS int64   `json:"timestamp_ms"`
	Symbol      string  `json:"symbol"`
	Price       float64 `json:"price"`
	Volume      float64 `json:"volume"`
	Bid         float64 `json:"bid"`
	Ask         float64 `json:"ask"`
	BidSize     float64 `json:"bid_size"`
	AskSize     float64 `json:"ask_size"`
}

type wireBar struct {
	TimestampS int64   `json:"timestamp_s"`
	Symbol     string  `json:"symbol"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	Volume     float64 `json:"volume"`
}

// Replay dials url, records every tick/bar event it receives for Duration
// (or until the feed closes), reconnecting with exponential backoff on
// disconnect, and serves the buffered result through ReadAllTicks /
// ReadAllBars once capture is complete.
type Replay struct {
	url      string
	duration time.Duration
	logger   *slog.Logger

	ticks []model.Tick
	bars  []model.Bar
}

// New builds a Replay source. Capture does not start until ReadAllTicks or
// ReadAllBars is first called.
func New(url string, duration time.Duration, logger *slog.Logger) *Replay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Replay{url: url, duration: duration, logger: logger.With("component", "livesource")}
}

// ReadAllTicks captures the feed (if not already captured) and returns the
// buffered ticks.
func (r *Replay) ReadAllTicks(ctx context.Context) ([]model.Tick, error) {
	if err := r.ensureCaptured(ctx); err != nil {
		return nil, err
	}
	return r.ticks, nil
}

// ReadAllBars captures the feed (if not already captured) and returns the
// buffered bars.
func (r *Replay) ReadAllBars(ctx context.Context) ([]model.Bar, error) {
	if err := r.ensureCaptured(ctx); err != nil {
		return nil, err
	}
	return r.bars, nil
}

func (r *Replay) ensureCaptured(ctx context.Context) error {
	if r.ticks != nil || r.bars != nil {
		return nil
	}
	return r.capture(ctx)
}

func (r *Replay) capture(ctx context.Context) error {
	deadline := time.Now().Add(r.duration)
	delay := minReconnectDelay

	for time.Now().Before(deadline) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, r.url, nil)
		if err != nil {
			r.logger.Warn("dial failed, backing off", "error", err, "delay", delay)
			if !sleepOrDone(ctx, delay) {
				return fmt.Errorf("capture cancelled during backoff: %w", ctx.Err())
			}
			delay = nextBackoff(delay)
			continue
		}

		delay = minReconnectDelay
		if err := r.drain(ctx, conn, deadline); err != nil {
			r.logger.Warn("connection dropped, reconnecting", "error", err)
			continue
		}
		break
	}

	// r.ticks/r.bars must be non-nil (even if empty) so ensureCaptured does
	// not re-run capture on a second call.
	if r.ticks == nil {
		r.ticks = []model.Tick{}
	}
	if r.bars == nil {
		r.bars = []model.Bar{}
	}
	return nil
}

func (r *Replay) drain(ctx context.Context, conn *websocket.Conn, deadline time.Time) error {
	defer conn.Close()

	for time.Now().Before(deadline) {
		conn.SetReadDeadline(deadline)
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env envelope
		if err := json.Unmarshal(message, &env); err != nil {
			r.logger.Warn("malformed envelope, skipping", "error", err)
			continue
		}

		switch env.EventType {
		case "tick":
			var wt wireTick
			if err := json.Unmarshal(env.Payload, &wt); err != nil {
				r.logger.Warn("malformed tick payload, skipping", "error", err)
				continue
			}
			r.ticks = append(r.ticks, model.Tick{
				Symbol:    wt.Symbol,
				Timestamp: time.UnixMilli(wt.TimestampMS).UTC(),
				Price:     wt.Price,
				Volume:    wt.Volume,
				Bid:       wt.Bid,
				Ask:       wt.Ask,
				BidSize:   wt.BidSize,
				AskSize:   wt.AskSize,
			})
		case "bar":
			var wb wireBar
			if err := json.Unmarshal(env.Payload, &wb); err != nil {
				r.logger.Warn("malformed bar payload, skipping", "error", err)
				continue
			}
			r.bars = append(r.bars, model.Bar{
				Symbol:    wb.Symbol,
				Timestamp: time.Unix(wb.TimestampS, 0).UTC(),
				Open:      wb.Open,
				High:      wb.High,
				Low:       wb.Low,
				Close:     wb.Close,
				Volume:    wb.Volume,
			})
		default:
			r.logger.Debug("unknown event type, skipping", "event_type", env.EventType)
		}
	}
	return nil
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxReconnectDelay {
		return maxReconnectDelay
	}
	return next
}
