package bar

import (
	"testing"

	"backtester/internal/model"
)

type recordingSubscriber struct {
	bars []model.Bar
}

func (r *recordingSubscriber) OnBar(b model.Bar) error {
	r.bars = append(r.bars, b)
	return nil
}

func TestRouter_RegisterIsIdempotent(t *testing.T) {
	t.Parallel()

	r := NewRouter()
	sub := &recordingSubscriber{}

	r.Register("TEST", sub)
	r.Register("TEST", sub)

	if err := r.RouteBar(model.Bar{Symbol: "TEST"}); err != nil {
		t.Fatalf("RouteBar returned error: %v", err)
	}

	if len(sub.bars) != 1 {
		t.Fatalf("expected exactly one delivery despite double registration, got %d", len(sub.bars))
	}
}

func TestRouter_RouteBarOnlyDeliversToRegisteredSymbol(t *testing.T) {
	t.Parallel()

	r := NewRouter()
	sub := &recordingSubscriber{}
	r.Register("AAPL", sub)

	r.RouteBar(model.Bar{Symbol: "MSFT"})

	if len(sub.bars) != 0 {
		t.Fatalf("expected no delivery for an unregistered symbol, got %d", len(sub.bars))
	}
}
