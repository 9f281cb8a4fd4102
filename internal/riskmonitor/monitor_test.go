package riskmonitor

import "testing"

func TestObserve_TripsOnDrawdownBreach(t *testing.T) {
	t.Parallel()

	m := New(0.2)
	m.Observe(100_000)
	m.Observe(110_000)

	select {
	case <-m.KillCh():
		t.Fatal("kill switch tripped before any drawdown")
	default:
	}

	m.Observe(85_000) // drawdown from peak 110,000 is ~22.7%, over 0.2

	select {
	case <-m.KillCh():
	default:
		t.Fatal("expected kill switch to trip past the drawdown threshold")
	}

	snap := m.Snapshot()
	if !snap.KillTriggered {
		t.Error("snapshot does not reflect the trip")
	}
	if snap.PeakEquity != 110_000 {
		t.Errorf("peak equity = %v, want 110,000", snap.PeakEquity)
	}
}

func TestObserve_DoesNotTripBelowThreshold(t *testing.T) {
	t.Parallel()

	m := New(0.5)
	m.Observe(100_000)
	m.Observe(90_000)

	select {
	case <-m.KillCh():
		t.Fatal("kill switch tripped under a 10% drawdown with a 50% limit")
	default:
	}
}

func TestNew_NonPositiveMaxDrawdownDisablesTrip(t *testing.T) {
	t.Parallel()

	m := New(0)
	m.Observe(100_000)
	m.Observe(1)

	select {
	case <-m.KillCh():
		t.Fatal("kill switch tripped despite maxDrawdown <= 0 disabling the check")
	default:
	}
}

func TestKillCh_ClosesOnlyOnce(t *testing.T) {
	t.Parallel()

	m := New(0.1)
	m.Observe(100_000)
	m.Observe(50_000)
	m.Observe(10_000) // would re-trigger the breach condition if not guarded

	// A second close on an already-closed channel panics; reading twice does not.
	<-m.KillCh()
	<-m.KillCh()
}
