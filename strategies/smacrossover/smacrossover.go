// Package smacrossover is a reference Strategy: a simple moving-average
// crossover that submits a one-share MARKET order on each golden/death
// cross. It is bar-driven — OnTick is a no-op — and exists primarily as an
// end-to-end fixture exercising the backtester, bar builder/router and
// order manager together.
package smacrossover

import (
	"log/slog"

	"backtester/internal/matching"
	"backtester/internal/model"
	"backtester/internal/strategy"
)

// movingAverage is a fixed-window simple moving average with O(1) updates.
type movingAverage struct {
	window int
	prices []float64
	sum    float64
}

func newMovingAverage(window int) *movingAverage {
	return &movingAverage{window: window}
}

func (m *movingAverage) update(price float64) {
	m.prices = append(m.prices, price)
	m.sum += price

	if len(m.prices) > m.window {
		m.sum -= m.prices[0]
		m.prices = m.prices[1:]
	}
}

func (m *movingAverage) ready() bool {
	return len(m.prices) == m.window
}

func (m *movingAverage) value() float64 {
	if !m.ready() {
		return 0
	}
	return m.sum / float64(m.window)
}

// SMACrossover embeds BaseStrategy so only OnBar needs overriding.
type SMACrossover struct {
	strategy.BaseStrategy

	orders *matching.Manager
	symbol string
	short  *movingAverage
	long   *movingAverage

	logger *slog.Logger
}

// New constructs a crossover strategy for symbol, trading through orders.
func New(orders *matching.Manager, symbol string, shortWindow, longWindow int, logger *slog.Logger) *SMACrossover {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMACrossover{
		orders: orders,
		symbol: symbol,
		short:  newMovingAverage(shortWindow),
		long:   newMovingAverage(longWindow),
		logger: logger.With("component", "smacrossover", "symbol", symbol),
	}
}

// OnBar updates both moving averages with bar.Close and submits a one-share
// MARKET order on a crossover: BUY on a golden cross (short crosses above
// long), SELL on a death cross (short crosses below long). Bars for any
// other symbol are ignored.
func (s *SMACrossover) OnBar(bar model.Bar) error {
	if bar.Symbol != s.symbol {
		return nil
	}

	wasReady := s.long.ready()
	prevShort, prevLong := s.short.value(), s.long.value()

	s.short.update(bar.Close)
	s.long.update(bar.Close)

	if !s.long.ready() {
		return nil
	}

	if wasReady {
		currShort, currLong := s.short.value(), s.long.value()
		switch {
		case prevShort < prevLong && currShort > currLong:
			s.logger.Info("golden cross, submitting BUY", "close", bar.Close)
			s.orders.SubmitMarket(s.symbol, model.BUY, 1)
		case prevShort > prevLong && currShort < currLong:
			s.logger.Info("death cross, submitting SELL", "close", bar.Close)
			s.orders.SubmitMarket(s.symbol, model.SELL, 1)
		}
	}

	return nil
}
