// Package matching implements the order book, matching engine and portfolio
// ledger driven by the simulation loop: submission, tick-driven matching
// against a simulated top-of-book, slippage, fill application, and the
// cash/position/trade-log/equity-curve bookkeeping that makes a backtest's
// output the record of truth.
package matching

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"backtester/internal/ledger"
	"backtester/internal/model"
)

// SlippageConfig maps a symbol to its linear price-impact coefficient. A
// symbol absent from the map is treated as zero coefficient — no warning.
type SlippageConfig map[string]float64

// FillCallback is invoked once per generated fill. It is a single-valued
// function slot, not a broadcast; installing a new one replaces the old.
type FillCallback func(model.Fill) error

// Manager owns the order table, the per-symbol active-order index, the
// top-of-book, the portfolio ledger and the output sinks. It is the sole
// mutator of every Order it creates.
type Manager struct {
	cash         float64
	positions    map[string]float64
	orders       map[model.OrderID]*model.Order
	symbolOrders map[string][]model.OrderID
	book         *TopOfBook
	slippage     SlippageConfig
	fillCallback FillCallback
	nextOrderID  model.OrderID
	tradeLog     *ledger.TradeLogWriter
	equityCurve  *ledger.EquityCurveWriter
	logger       *slog.Logger
}

// Config bundles the construction-time parameters for a Manager.
type Config struct {
	InitialCash     float64
	Slippage        SlippageConfig
	TradeLogPath    string
	EquityCurvePath string
	Logger          *slog.Logger
}

// NewManager opens the trade-log and equity-curve sinks and returns a
// Manager seeded with InitialCash. Construction-time I/O failure (the sinks
// cannot be opened) is returned rather than panicking.
func NewManager(cfg Config) (*Manager, error) {
	tradeLog, err := ledger.NewTradeLogWriter(cfg.TradeLogPath)
	if err != nil {
		return nil, fmt.Errorf("open trade log: %w", err)
	}

	equityCurve, err := ledger.NewEquityCurveWriter(cfg.EquityCurvePath)
	if err != nil {
		tradeLog.Close()
		return nil, fmt.Errorf("open equity curve: %w", err)
	}

	slippage := cfg.Slippage
	if slippage == nil {
		slippage = SlippageConfig{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		cash:         cfg.InitialCash,
		positions:    make(map[string]float64),
		orders:       make(map[model.OrderID]*model.Order),
		symbolOrders: make(map[string][]model.OrderID),
		book:         NewTopOfBook(),
		slippage:     slippage,
		nextOrderID:  1,
		tradeLog:     tradeLog,
		equityCurve:  equityCurve,
		logger:       logger.With("component", "matching"),
	}, nil
}

// Close flushes and closes the output sinks.
func (m *Manager) Close() error {
	if err := m.tradeLog.Close(); err != nil {
		return err
	}
	return m.equityCurve.Close()
}

// SetFillCallback installs the function called on every generated fill.
func (m *Manager) SetFillCallback(cb FillCallback) {
	m.fillCallback = cb
}

// SubmitMarket creates a MARKET/DAY order. Quantity <= 0 is rejected
// silently: no order is created and the returned ID is the zero value.
func (m *Manager) SubmitMarket(symbol string, side model.Side, quantity float64) model.OrderID {
	if quantity <= 0 {
		return 0
	}
	order := &model.Order{
		Symbol:      symbol,
		Type:        model.Market,
		Side:        side,
		TimeInForce: DAYForMarket,
		Quantity:    quantity,
		Status:      model.Pending,
	}
	return m.addOrder(order)
}

// DAYForMarket is the implicit time-in-force of every market order.
const DAYForMarket = model.DAY

// SubmitLimit creates a LIMIT order with the given time-in-force. Quantity
// <= 0 is rejected silently.
func (m *Manager) SubmitLimit(symbol string, side model.Side, quantity, limitPrice float64, tif model.TimeInForce) model.OrderID {
	if quantity <= 0 {
		return 0
	}
	order := &model.Order{
		Symbol:      symbol,
		Type:        model.Limit,
		Side:        side,
		TimeInForce: tif,
		LimitPrice:  limitPrice,
		Quantity:    quantity,
		Status:      model.Pending,
	}
	return m.addOrder(order)
}

// Cancel transitions order-id to CANCELLED if it is currently PENDING or
// PARTIALLY_FILLED. Returns false for a non-existent or already-terminal
// order, leaving state unchanged.
func (m *Manager) Cancel(id model.OrderID) bool {
	order, ok := m.orders[id]
	if !ok || !order.IsActive() {
		return false
	}
	order.Status = model.Cancelled
	m.removeFromActiveIndex(id)
	return true
}

// Order returns a copy of the order for post-hoc lookup, or false if no
// order with that id was ever submitted.
func (m *Manager) Order(id model.OrderID) (model.Order, bool) {
	order, ok := m.orders[id]
	if !ok {
		return model.Order{}, false
	}
	return *order, true
}

// Cash returns the current ledger cash balance.
func (m *Manager) Cash() float64 { return m.cash }

// Position returns the signed share count held for symbol (0 if never traded).
func (m *Manager) Position(symbol string) float64 { return m.positions[symbol] }

func (m *Manager) addOrder(order *model.Order) model.OrderID {
	order.ID = m.nextOrderID
	m.nextOrderID++
	m.orders[order.ID] = order
	m.symbolOrders[order.Symbol] = append(m.symbolOrders[order.Symbol], order.ID)
	return order.ID
}

func (m *Manager) removeFromActiveIndex(id model.OrderID) {
	order, ok := m.orders[id]
	if !ok {
		return
	}
	ids := m.symbolOrders[order.Symbol]
	for i, existing := range ids {
		if existing == id {
			m.symbolOrders[order.Symbol] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(m.symbolOrders[order.Symbol]) == 0 {
		delete(m.symbolOrders, order.Symbol)
	}
}

// ProcessTick updates the top-of-book from tick, matches every active order
// on tick.Symbol in ascending order-id (submission order), then cancels any
// IOC order left unfilled by this pass.
func (m *Manager) ProcessTick(tick model.Tick) {
	m.book.OnTick(tick)
	m.matchSymbol(tick.Symbol, tick)
	m.cancelExpiredIOC(tick.Symbol)
}

// AttemptFills re-runs matching for every symbol with active orders against
// the current top-of-book, without ingesting a new tick. It gives orders
// submitted mid-iteration (from a callback) a chance at the latest snapshot
// on the next pass, never retroactively against the tick just processed.
func (m *Manager) AttemptFills() {
	symbols := make([]string, 0, len(m.symbolOrders))
	for symbol := range m.symbolOrders {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		quote := m.book.Get(symbol)
		if !quote.HasBid && !quote.HasAsk {
			continue
		}
		m.matchSymbolAgainstQuote(symbol, quote, nil)
	}
}

func (m *Manager) matchSymbol(symbol string, tick model.Tick) {
	quote := m.book.Get(symbol)
	m.matchSymbolAgainstQuote(symbol, quote, &tick)
}

// matchSymbolAgainstQuote evaluates every active order on symbol against
// quote, in ascending order-id. tick is non-nil only when this call is
// driven directly by ProcessTick, so MARKET orders and the volume cap can
// reference the originating tick's volume and timestamp; AttemptFills calls
// with tick == nil and falls back to the quote's displayed size alone.
func (m *Manager) matchSymbolAgainstQuote(symbol string, quote Quote, tick *model.Tick) {
	ids := append([]model.OrderID(nil), m.symbolOrders[symbol]...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var toRemove []model.OrderID
	for _, id := range ids {
		order, ok := m.orders[id]
		if !ok || !order.IsActive() {
			continue
		}

		eligible, refPrice := m.evaluate(order, quote)
		if !eligible {
			continue
		}

		remaining := order.RemainingQuantity()
		fillCap := remaining
		switch order.Side {
		case model.BUY:
			fillCap = min(fillCap, quote.AskSize)
		case model.SELL:
			fillCap = min(fillCap, quote.BidSize)
		}
		if tick != nil {
			fillCap = min(fillCap, tick.Volume)
		}
		if fillCap <= 0 {
			continue
		}

		fillPrice := applySlippage(refPrice, order.Side, fillCap, m.slippage[symbol])

		ts := quote.updatedAt
		if tick != nil {
			ts = tick.Timestamp
		}

		if m.fill(order, fillCap, fillPrice, ts) {
			m.book.ConsumeLiquidity(symbol, order.Side, fillCap)
		}

		if !order.IsActive() {
			toRemove = append(toRemove, id)
		}
	}

	for _, id := range toRemove {
		m.removeFromActiveIndex(id)
	}
}

// evaluate reports whether order is eligible to match against quote, and if
// so the reference price to fill at before slippage.
func (m *Manager) evaluate(order *model.Order, quote Quote) (eligible bool, refPrice float64) {
	switch order.Type {
	case model.Market:
		if !quote.HasBid || !quote.HasAsk {
			return false, 0
		}
		return true, (quote.Bid + quote.Ask) / 2
	case model.Limit:
		switch order.Side {
		case model.BUY:
			if quote.HasAsk && quote.Ask <= order.LimitPrice {
				return true, order.LimitPrice
			}
		case model.SELL:
			if quote.HasBid && quote.Bid >= order.LimitPrice {
				return true, order.LimitPrice
			}
		}
		return false, 0
	default:
		return false, 0
	}
}

// applySlippage worsens the reference price by the configured linear
// coefficient: BUY pays more, SELL receives less, proportional to quantity.
func applySlippage(reference float64, side model.Side, quantity, coeff float64) float64 {
	switch side {
	case model.BUY:
		return reference * (1 + coeff*quantity)
	default:
		return reference * (1 - coeff*quantity)
	}
}

// fill applies qty shares at price to order and the ledger, logs the trade
// and emits the fill callback. A BUY that would overdraw cash is rejected
// instead: the order transitions to REJECTED, no cash or position changes
// and no fill is emitted. Returns whether a fill was actually applied.
func (m *Manager) fill(order *model.Order, qty, price float64, ts time.Time) bool {
	notional := qty * price

	if order.Side == model.BUY && notional > m.cash {
		order.Status = model.Rejected
		m.logger.Warn("order rejected: insufficient cash",
			"order_id", order.ID, "symbol", order.Symbol, "notional", notional, "cash", m.cash)
		return false
	}

	switch order.Side {
	case model.BUY:
		m.cash -= notional
		m.positions[order.Symbol] += qty
	case model.SELL:
		m.cash += notional
		m.positions[order.Symbol] -= qty
	}

	newFilled := order.FilledQuantity + qty
	order.AvgFillPrice = (order.AvgFillPrice*order.FilledQuantity + price*qty) / newFilled
	order.FilledQuantity = newFilled

	if order.FilledQuantity >= order.Quantity {
		order.Status = model.Filled
	} else {
		order.Status = model.PartiallyFilled
	}

	fill := model.Fill{
		OrderID:   order.ID,
		Symbol:    order.Symbol,
		Side:      order.Side,
		Quantity:  qty,
		Price:     price,
		Timestamp: ts,
	}

	if err := m.tradeLog.Write(fill, m.cash); err != nil {
		m.logger.Error("trade log write failed", "error", err)
	}

	if m.fillCallback != nil {
		if err := m.fillCallback(fill); err != nil {
			m.logger.Error("fill callback returned error", "error", err, "order_id", order.ID)
		}
	}

	return true
}

// cancelExpiredIOC cancels every still-active IOC order on symbol after a
// tick's matching pass: an IOC order only rests for the single tick it was
// evaluated against, so any remainder — filled or not — is cancelled rather
// than left resting for a future tick.
func (m *Manager) cancelExpiredIOC(symbol string) {
	for _, id := range append([]model.OrderID(nil), m.symbolOrders[symbol]...) {
		order, ok := m.orders[id]
		if !ok || !order.IsActive() || order.TimeInForce != model.IOC {
			continue
		}
		order.Status = model.Cancelled
		m.removeFromActiveIndex(id)
	}
}

// Equity returns cash plus the mark-to-market value of every open position,
// priced at marketPrices. A symbol held but absent from marketPrices
// contributes zero — a stale or missing quote should never be silently
// treated as unchanged value.
func (m *Manager) Equity(marketPrices map[string]float64) float64 {
	holdings := 0.0
	for symbol, qty := range m.positions {
		if qty == 0 {
			continue
		}
		holdings += qty * marketPrices[symbol]
	}
	return m.cash + holdings
}

// RecordEquity appends one row to the equity curve: the portfolio's current
// Equity at ts.
func (m *Manager) RecordEquity(ts time.Time, marketPrices map[string]float64) error {
	holdings := 0.0
	for symbol, qty := range m.positions {
		if qty == 0 {
			continue
		}
		holdings += qty * marketPrices[symbol]
	}
	return m.equityCurve.Write(ts, m.cash, holdings, m.cash+holdings)
}
