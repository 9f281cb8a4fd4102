// Package backtester drives the single-threaded, cooperative simulation
// loop that ties a strategy, one or more data sources, a shared order
// manager and a bar builder/router together into one deterministic replay.
package backtester

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"backtester/internal/bar"
	"backtester/internal/matching"
	"backtester/internal/model"
	"backtester/internal/riskmonitor"
	"backtester/internal/strategy"
)

// DataSource supplies the tick and bar event stream a Backtester replays.
// Ticks from one source need not be sorted relative to another source — Run
// re-sorts the combined stream — but timestamps within one source should be
// non-decreasing.
type DataSource interface {
	ReadAllTicks(ctx context.Context) ([]model.Tick, error)
	ReadAllBars(ctx context.Context) ([]model.Bar, error)
}

// Summary is the post-hoc instrumentation hook Run returns: the final cash
// balance and the primary symbol's position, useful for tests and sweep
// reporting without re-parsing the equity curve.
type Summary struct {
	FinalCash             float64
	PrimarySymbolPosition float64
	TicksProcessed        int
	BarsEmitted           int
}

// Backtester owns one run's bar builders (one per symbol seen), the bar
// router, the shared order manager and the strategy under test.
type Backtester struct {
	primarySymbol string
	sources       []DataSource
	strategy      strategy.Strategy
	orders        *matching.Manager
	barInterval   time.Duration

	builders         map[string]*bar.Builder
	router           *bar.Router
	registeredSymbol map[string]bool
	lastPrice        map[string]float64

	risk     *riskmonitor.Monitor
	onEquity func(equity float64, ts time.Time)
	onFill   func(model.Fill)

	logger *slog.Logger
}

// New constructs a Backtester. orders must already be configured with the
// slippage table and output sinks it needs; Run installs the fill callback,
// and nothing here closes orders — the caller owns that lifecycle.
func New(primarySymbol string, sources []DataSource, strat strategy.Strategy, orders *matching.Manager, barInterval time.Duration, logger *slog.Logger) *Backtester {
	if logger == nil {
		logger = slog.Default()
	}

	return &Backtester{
		primarySymbol:    primarySymbol,
		sources:          sources,
		strategy:         strat,
		orders:           orders,
		barInterval:      barInterval,
		builders:         make(map[string]*bar.Builder),
		router:           bar.NewRouter(),
		registeredSymbol: make(map[string]bool),
		lastPrice:        make(map[string]float64),
		logger:           logger.With("component", "backtester"),
	}
}

// AddDataSource attaches an additional source, for multi-leg strategies.
// Must be called before Run.
func (b *Backtester) AddDataSource(src DataSource) {
	b.sources = append(b.sources, src)
}

// SetRiskMonitor installs a drawdown kill switch that observes every
// recorded equity sample; Run stops replaying (but still flushes
// in-progress bars) the moment it trips.
func (b *Backtester) SetRiskMonitor(m *riskmonitor.Monitor) {
	b.risk = m
}

// SetEquityObserver installs a callback invoked with every equity sample
// Run records, letting a caller (e.g. the live dashboard) mirror the
// equity curve without re-reading its CSV.
func (b *Backtester) SetEquityObserver(fn func(equity float64, ts time.Time)) {
	b.onEquity = fn
}

// SetFillObserver installs a callback invoked after the strategy's own
// OnFill on every generated fill, for the same dashboard-mirroring purpose.
func (b *Backtester) SetFillObserver(fn func(model.Fill)) {
	b.onFill = fn
}

// Run drains every data source, replays the combined tick stream in
// timestamp order against the strategy and order manager, routes any
// directly-supplied bars at their place in that same timeline, and flushes
// any bar still in progress once the stream is exhausted. It never reads
// time.Now(): every timestamp that reaches an output sink comes from the
// tick/bar stream itself, so identical inputs produce identical outputs
// regardless of wall-clock time.
func (b *Backtester) Run(ctx context.Context) (Summary, error) {
	b.orders.SetFillCallback(func(f model.Fill) error {
		err := b.strategy.OnFill(f)
		if b.onFill != nil {
			b.onFill(f)
		}
		return err
	})

	events, err := b.drainEvents(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("drain data sources: %w", err)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].timestamp().Before(events[j].timestamp())
	})

	summary := Summary{}
	var runErr error

replay:
	for _, evt := range events {
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("context cancelled: %w", err)
			break
		}

		symbol := evt.symbol()
		if !b.registeredSymbol[symbol] {
			b.router.Register(symbol, b.strategy)
			b.registeredSymbol[symbol] = true
		}

		if evt.isBar {
			b.lastPrice[symbol] = evt.bar.Close
			if err := b.router.RouteBar(evt.bar); err != nil {
				b.logger.Error("bar route failed", "error", err, "symbol", symbol)
			}
			summary.BarsEmitted++
			continue
		}

		tick := evt.tick
		b.lastPrice[symbol] = tick.Price

		if err := b.strategy.OnTick(tick); err != nil {
			b.logger.Error("strategy OnTick aborted run", "error", err, "symbol", symbol)
			runErr = fmt.Errorf("strategy OnTick: %w", err)
			summary.BarsEmitted += b.feedBar(tick)
			break
		}

		summary.TicksProcessed++
		summary.BarsEmitted += b.feedBar(tick)

		b.orders.ProcessTick(tick)
		b.orders.AttemptFills()

		if err := b.orders.RecordEquity(tick.Timestamp, b.lastPrice); err != nil {
			b.logger.Error("record equity failed", "error", err)
		}

		equity := b.orders.Equity(b.lastPrice)
		if b.onEquity != nil {
			b.onEquity(equity, tick.Timestamp)
		}
		if b.risk != nil {
			b.risk.Observe(equity)
			select {
			case <-b.risk.KillCh():
				b.logger.Warn("risk monitor tripped, stopping replay", "equity", equity)
				runErr = fmt.Errorf("risk monitor: max drawdown breached at equity %.2f", equity)
				break replay
			default:
			}
		}
	}

	summary.BarsEmitted += b.flushAll()

	summary.FinalCash = b.orders.Cash()
	summary.PrimarySymbolPosition = b.orders.Position(b.primarySymbol)

	return summary, runErr
}

// event is either a tick or a directly-supplied bar, so both can share one
// sorted timeline without a lossy conversion between the two shapes.
type event struct {
	isBar bool
	tick  model.Tick
	bar   model.Bar
}

func (e event) timestamp() time.Time {
	if e.isBar {
		return e.bar.Timestamp
	}
	return e.tick.Timestamp
}

func (e event) symbol() string {
	if e.isBar {
		return e.bar.Symbol
	}
	return e.tick.Symbol
}

// feedBar routes tick into its symbol's bar builder, lazily creating one on
// first sight, and routes a completed bar if one closed. Returns 1 if a bar
// was routed, 0 otherwise.
func (b *Backtester) feedBar(tick model.Tick) int {
	builder, ok := b.builders[tick.Symbol]
	if !ok {
		builder = bar.NewBuilder(b.barInterval)
		b.builders[tick.Symbol] = builder
	}

	completed, ok := builder.AddTick(tick)
	if !ok {
		return 0
	}

	if err := b.router.RouteBar(completed); err != nil {
		b.logger.Error("bar route failed", "error", err, "symbol", completed.Symbol)
	}
	return 1
}

// flushAll drains every builder's in-progress bar and routes it.
func (b *Backtester) flushAll() int {
	symbols := make([]string, 0, len(b.builders))
	for symbol := range b.builders {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	emitted := 0
	for _, symbol := range symbols {
		builder := b.builders[symbol]
		for {
			completed, ok := builder.Flush()
			if !ok {
				break
			}
			if err := b.router.RouteBar(completed); err != nil {
				b.logger.Error("bar route failed on flush", "error", err, "symbol", completed.Symbol)
			}
			emitted++
		}
	}
	return emitted
}

// drainEvents reads every source fully before replay begins: Run needs one
// combined, totally-ordered event stream, not an incremental one.
func (b *Backtester) drainEvents(ctx context.Context) ([]event, error) {
	var all []event
	for _, src := range b.sources {
		ticks, err := src.ReadAllTicks(ctx)
		if err != nil {
			return nil, err
		}
		for _, t := range ticks {
			all = append(all, event{tick: t})
		}

		bars, err := src.ReadAllBars(ctx)
		if err != nil {
			return nil, err
		}
		for _, barEvt := range bars {
			all = append(all, event{isBar: true, bar: barEvt})
		}
	}
	return all, nil
}
