package smacrossover

import (
	"path/filepath"
	"testing"

	"backtester/internal/matching"
	"backtester/internal/model"
)

func newTestOrders(t *testing.T) *matching.Manager {
	t.Helper()
	dir := t.TempDir()
	m, err := matching.NewManager(matching.Config{
		InitialCash:     1_000_000,
		TradeLogPath:    filepath.Join(dir, "trades.csv"),
		EquityCurvePath: filepath.Join(dir, "equity.csv"),
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestSMACrossover_IgnoresOtherSymbols(t *testing.T) {
	t.Parallel()

	orders := newTestOrders(t)
	s := New(orders, "TEST", 2, 3, nil)

	if err := s.OnBar(model.Bar{Symbol: "OTHER", Close: 100}); err != nil {
		t.Fatalf("OnBar returned error: %v", err)
	}
	if orders.Position("OTHER") != 0 {
		t.Error("expected no order submitted for an unrelated symbol")
	}
}

func TestSMACrossover_GoldenCrossSubmitsBuy(t *testing.T) {
	t.Parallel()

	orders := newTestOrders(t)
	s := New(orders, "TEST", 1, 2, nil)

	// short=1/long=2: dip then recovery puts short's 1-bar average back
	// above long's 2-bar average once both windows are warm.
	closes := []float64{20, 5, 20}
	for _, c := range closes {
		if err := s.OnBar(model.Bar{Symbol: "TEST", Close: c}); err != nil {
			t.Fatalf("OnBar returned error: %v", err)
		}
	}

	order, ok := orders.Order(1)
	if !ok {
		t.Fatal("expected an order submitted on the golden cross")
	}
	if order.Side != model.BUY {
		t.Errorf("expected a BUY on a golden cross, got %v", order.Side)
	}
}
