// Package dashboard is the optional, read-only HTTP+WebSocket viewer that
// streams live equity-curve and fill events from an in-progress backtest
// (the run subcommand's --dashboard flag; the sweep subcommand does not wire
// it). It is an ambient convenience, not part of the deterministic core —
// nothing here affects a backtest's output.
package dashboard

import "time"

// EventType distinguishes the envelopes broadcast to dashboard clients.
type EventType string

const (
	EventFill     EventType = "fill"
	EventEquity   EventType = "equity"
	EventRunStart EventType = "run_start"
	EventRunEnd   EventType = "run_end"
)

// Event is the broadcast envelope: Type selects how Data should be decoded
// client-side.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// FillEventData mirrors one matching.Manager fill.
type FillEventData struct {
	RunName  string  `json:"run_name"`
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
}

// EquityEventData mirrors one RecordEquity sample.
type EquityEventData struct {
	RunName string  `json:"run_name"`
	Equity  float64 `json:"equity"`
}

// RunEventData marks the start or end of one backtest within a sweep.
type RunEventData struct {
	RunName string `json:"run_name"`
}

// NewFillEvent builds a fill broadcast envelope.
func NewFillEvent(runName, symbol, side string, quantity, price float64, ts time.Time) Event {
	return Event{
		Type:      EventFill,
		Timestamp: ts,
		Data:      FillEventData{RunName: runName, Symbol: symbol, Side: side, Quantity: quantity, Price: price},
	}
}

// NewEquityEvent builds an equity-sample broadcast envelope.
func NewEquityEvent(runName string, equity float64, ts time.Time) Event {
	return Event{Type: EventEquity, Timestamp: ts, Data: EquityEventData{RunName: runName, Equity: equity}}
}

// NewRunStartEvent / NewRunEndEvent bracket one backtest's lifetime on the
// dashboard's event stream.
func NewRunStartEvent(runName string, ts time.Time) Event {
	return Event{Type: EventRunStart, Timestamp: ts, Data: RunEventData{RunName: runName}}
}

func NewRunEndEvent(runName string, ts time.Time) Event {
	return Event{Type: EventRunEnd, Timestamp: ts, Data: RunEventData{RunName: runName}}
}
