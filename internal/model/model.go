// Package model defines the value types that flow through the backtesting
// engine: ticks, bars, orders and fills. None of these types carry behavior
// beyond simple derived accessors — the engine packages (bar, matching,
// backtester) own the logic that creates, mutates and consumes them.
package model

import "time"

// Side is the direction of an order or fill.
type Side int

const (
	BUY Side = iota
	SELL
)

func (s Side) String() string {
	if s == BUY {
		return "BUY"
	}
	return "SELL"
}

// OrderType selects how an order is matched against the top-of-book. An IOC
// order is a Limit order whose TimeInForce is IOC, not a distinct type.
type OrderType int

const (
	Market OrderType = iota
	Limit
)

// TimeInForce controls how long an order rests before it is cancelled.
type TimeInForce int

const (
	DAY TimeInForce = iota
	IOC
	GTC
)

// OrderStatus is the order's position in its state machine. Terminal states
// are Filled, Cancelled and Rejected — none of them transition further.
type OrderStatus int

const (
	Pending OrderStatus = iota
	PartiallyFilled
	Filled
	Cancelled
	Rejected
)

func (s OrderStatus) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case PartiallyFilled:
		return "PARTIALLY_FILLED"
	case Filled:
		return "FILLED"
	case Cancelled:
		return "CANCELLED"
	case Rejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Tick is a single market event: a last-trade print plus a top-of-book
// snapshot. Ticks are immutable once constructed and consumed exactly once
// by the simulation loop.
type Tick struct {
	Symbol    string
	Timestamp time.Time
	Price     float64 // last-trade price
	Volume    float64 // last-trade volume
	Bid       float64
	Ask       float64
	BidSize   float64
	AskSize   float64
}

// MidPrice returns the midpoint of the tick's quoted bid/ask.
func (t Tick) MidPrice() float64 {
	return (t.Bid + t.Ask) / 2
}

// Bar is a fixed-interval OHLCV aggregate for one symbol, emitted by the bar
// builder once its time window closes.
type Bar struct {
	Symbol    string
	Timestamp time.Time // aligned bar-start
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// OrderID uniquely and monotonically identifies an order within one backtest.
type OrderID uint64

// Order is a single resting or terminal order, owned exclusively by the
// matching engine. Strategies hold only its OrderID, never a pointer to the
// Order itself.
type Order struct {
	ID             OrderID
	Symbol         string
	Type           OrderType
	Side           Side
	TimeInForce    TimeInForce
	LimitPrice     float64 // meaningful only for Type == Limit
	Quantity       float64
	FilledQuantity float64
	AvgFillPrice   float64
	Status         OrderStatus
	SubmittedAt    time.Time
}

// RemainingQuantity returns the quantity still eligible to be filled.
func (o Order) RemainingQuantity() float64 {
	return o.Quantity - o.FilledQuantity
}

// IsActive reports whether the order can still receive fills.
func (o Order) IsActive() bool {
	return o.Status == Pending || o.Status == PartiallyFilled
}

// IsFilled reports whether the order has no remaining quantity.
func (o Order) IsFilled() bool {
	return o.Status == Filled
}

// Fill is one matching event against an order. Exactly one Fill is emitted
// per match; a zero-quantity fill is never generated.
type Fill struct {
	OrderID   OrderID
	Symbol    string
	Side      Side
	Quantity  float64
	Price     float64
	Timestamp time.Time
}
