package bar

import "backtester/internal/model"

// Subscriber receives completed bars. It is satisfied by strategy.Strategy;
// kept narrow here so this package does not depend on the strategy package.
type Subscriber interface {
	OnBar(model.Bar) error
}

// Router is a symbol-keyed publish/subscribe layer. Registration is
// idempotent and delivery preserves registration order; it performs no
// filtering or transformation of the bar.
type Router struct {
	subscribers map[string][]Subscriber
}

// NewRouter creates an empty bar router.
func NewRouter() *Router {
	return &Router{subscribers: make(map[string][]Subscriber)}
}

// Register subscribes sub to bars for symbol. Registering the same
// subscriber twice for the same symbol is a no-op.
func (r *Router) Register(symbol string, sub Subscriber) {
	for _, existing := range r.subscribers[symbol] {
		if existing == sub {
			return
		}
	}
	r.subscribers[symbol] = append(r.subscribers[symbol], sub)
}

// RouteBar delivers bar to every subscriber registered under bar.Symbol, in
// registration order. The first subscriber error stops delivery and is
// returned to the caller.
func (r *Router) RouteBar(bar model.Bar) error {
	for _, sub := range r.subscribers[bar.Symbol] {
		if err := sub.OnBar(bar); err != nil {
			return err
		}
	}
	return nil
}
