// Package riskmonitor tracks a running backtest's equity drawdown and
// trips a kill switch when it breaches a configured limit, generalizing
// the donor project's per-market USD-exposure kill switch to a single
// equity-curve metric suited to an offline sweep.
package riskmonitor

import (
	"sync"
)

// Snapshot is a point-in-time view of the monitor's state, safe to copy.
type Snapshot struct {
	PeakEquity    float64
	CurrentEquity float64
	Drawdown      float64 // (peak - current) / peak, 0 if peak <= 0
	KillTriggered bool
}

// Monitor watches one backtest's equity-curve samples and raises a kill
// signal once drawdown from the running peak reaches or exceeds maxDrawdown.
type Monitor struct {
	mu            sync.RWMutex
	maxDrawdown   float64
	peakEquity    float64
	currentEquity float64
	killTriggered bool
	killCh        chan struct{}
	killOnce      sync.Once
}

// New creates a monitor that trips once drawdown reaches maxDrawdown
// (expressed as a fraction, e.g. 0.2 for 20%). maxDrawdown <= 0 disables
// the check entirely — Observe never trips the kill switch.
func New(maxDrawdown float64) *Monitor {
	return &Monitor{
		maxDrawdown: maxDrawdown,
		killCh:      make(chan struct{}),
	}
}

// Observe records one equity sample, updating the running peak and
// evaluating the drawdown threshold. Safe for concurrent sweep use (one
// monitor per in-flight backtest, invoked from that backtest's own
// goroutine).
func (m *Monitor) Observe(equity float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.currentEquity = equity
	if equity > m.peakEquity {
		m.peakEquity = equity
	}

	if m.maxDrawdown <= 0 || m.peakEquity <= 0 {
		return
	}

	drawdown := (m.peakEquity - m.currentEquity) / m.peakEquity
	if drawdown >= m.maxDrawdown && !m.killTriggered {
		m.killTriggered = true
		m.killOnce.Do(func() { close(m.killCh) })
	}
}

// KillCh is closed exactly once, the moment the drawdown threshold is
// breached. A monitor with maxDrawdown <= 0 never closes it.
func (m *Monitor) KillCh() <-chan struct{} {
	return m.killCh
}

// Snapshot returns the monitor's current state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var drawdown float64
	if m.peakEquity > 0 {
		drawdown = (m.peakEquity - m.currentEquity) / m.peakEquity
	}

	return Snapshot{
		PeakEquity:    m.peakEquity,
		CurrentEquity: m.currentEquity,
		Drawdown:      drawdown,
		KillTriggered: m.killTriggered,
	}
}
