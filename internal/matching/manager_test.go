package matching

import (
	"path/filepath"
	"testing"
	"time"

	"backtester/internal/model"
)

func newTestManager(t *testing.T, cash float64, slippage SlippageConfig) *Manager {
	t.Helper()

	dir := t.TempDir()
	m, err := NewManager(Config{
		InitialCash:     cash,
		Slippage:        slippage,
		TradeLogPath:    filepath.Join(dir, "trades.csv"),
		EquityCurvePath: filepath.Join(dir, "equity.csv"),
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func tick(symbol string, ts time.Time, bid, ask, bidSize, askSize, volume float64) model.Tick {
	return model.Tick{
		Symbol:    symbol,
		Timestamp: ts,
		Price:     (bid + ask) / 2,
		Volume:    volume,
		Bid:       bid,
		Ask:       ask,
		BidSize:   bidSize,
		AskSize:   askSize,
	}
}

func TestCashNeutralRebalance(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, 1_000_000, nil)
	now := time.Unix(0, 0).UTC()

	m.SubmitMarket("AAPL", model.BUY, 500)
	m.SubmitMarket("MSFT", model.SELL, 500)

	m.ProcessTick(tick("AAPL", now, 100, 100, 1000, 1000, 1000))
	m.ProcessTick(tick("MSFT", now, 100, 100, 1000, 1000, 1000))

	if m.Cash() != 1_000_000 {
		t.Errorf("cash = %v, want 1,000,000", m.Cash())
	}
	if got := m.Position("AAPL"); got != 500 {
		t.Errorf("AAPL position = %v, want 500", got)
	}
	if got := m.Position("MSFT"); got != -500 {
		t.Errorf("MSFT position = %v, want -500", got)
	}
}

func TestPartialFillAcrossTicks(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, 1_000_000, nil)
	now := time.Unix(0, 0).UTC()

	id := m.SubmitLimit("TEST", model.BUY, 150, 100, model.DAY)

	m.ProcessTick(tick("TEST", now, 99, 100, 100, 100, 1000))
	order, _ := m.Order(id)
	if order.FilledQuantity != 100 || order.Status != model.PartiallyFilled || order.AvgFillPrice != 100 {
		t.Fatalf("after tick 1: %+v", order)
	}

	m.ProcessTick(tick("TEST", now.Add(time.Second), 99, 100, 100, 100, 1000))
	order, _ = m.Order(id)
	if order.FilledQuantity != 150 || order.Status != model.Filled || order.AvgFillPrice != 100 {
		t.Fatalf("after tick 2: %+v", order)
	}
	if want := 1_000_000 - 15_000.0; m.Cash() != want {
		t.Errorf("cash = %v, want %v", m.Cash(), want)
	}
}

func TestIOCExpiresUnfilled(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, 1_000_000, nil)
	now := time.Unix(0, 0).UTC()

	id := m.SubmitLimit("TEST", model.BUY, 100, 99, model.IOC)
	m.ProcessTick(tick("TEST", now, 99, 100, 100, 100, 1000))

	order, _ := m.Order(id)
	if order.Status != model.Cancelled || order.FilledQuantity != 0 {
		t.Fatalf("expected cancelled/unfilled IOC, got %+v", order)
	}
	if m.Cash() != 1_000_000 {
		t.Errorf("cash changed on an unfilled IOC: %v", m.Cash())
	}
}

func TestSlippageOnMarketOrder(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, 10_000, SlippageConfig{"TEST": 0.001})
	now := time.Unix(0, 0).UTC()

	m.SubmitMarket("TEST", model.BUY, 100)
	m.ProcessTick(tick("TEST", now, 50, 50, 1000, 1000, 1000))

	if want := 10_000 - 100*55.0; m.Cash() != want {
		t.Errorf("cash = %v, want %v", m.Cash(), want)
	}
	if got := m.Position("TEST"); got != 100 {
		t.Errorf("position = %v, want 100", got)
	}
}

func TestOrderIDsAreMonotonic(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, 1_000_000, nil)
	a := m.SubmitMarket("TEST", model.BUY, 1)
	b := m.SubmitMarket("TEST", model.SELL, 1)

	if !(b > a) {
		t.Errorf("expected strictly increasing order ids, got %d then %d", a, b)
	}
}

func TestCancelOnTerminalOrderReturnsFalse(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, 1_000_000, nil)
	id := m.SubmitMarket("TEST", model.BUY, 100)
	m.ProcessTick(tick("TEST", time.Unix(0, 0).UTC(), 50, 50, 1000, 1000, 1000))

	order, _ := m.Order(id)
	if order.Status != model.Filled {
		t.Fatalf("expected order filled before cancel attempt, got %+v", order)
	}
	if m.Cancel(id) {
		t.Error("expected Cancel on a FILLED order to return false")
	}
}

func TestInsufficientCashRejectsBuy(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, 100, nil)
	id := m.SubmitMarket("TEST", model.BUY, 100)
	m.ProcessTick(tick("TEST", time.Unix(0, 0).UTC(), 50, 50, 1000, 1000, 1000))

	order, _ := m.Order(id)
	if order.Status != model.Rejected {
		t.Fatalf("expected REJECTED, got %+v", order)
	}
	if m.Cash() != 100 {
		t.Errorf("cash changed on a rejected order: %v", m.Cash())
	}
}

func TestNonPositiveQuantityIsSilentlyIgnored(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, 1_000_000, nil)
	if id := m.SubmitMarket("TEST", model.BUY, 0); id != 0 {
		t.Errorf("expected zero order id for non-positive quantity, got %d", id)
	}
	if id := m.SubmitLimit("TEST", model.BUY, -5, 100, model.DAY); id != 0 {
		t.Errorf("expected zero order id for negative quantity, got %d", id)
	}
}
