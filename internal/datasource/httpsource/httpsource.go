// Package httpsource fetches tick history from a remote HTTP API and
// exposes it through the same DataSource contract as a local CSV file,
// paginating through the remote endpoint and rate-limiting its own
// requests so a sweep of backtests does not trip the remote's throttling.
package httpsource

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"backtester/internal/datasource"
	"backtester/internal/model"
)

const pageSize = 500

// tickPage is the JSON shape returned by one page of the remote endpoint.
type tickPage struct {
	Ticks []remoteTick `json:"ticks"`
}

type remoteTick struct {
	TimestampMS int64   `json:"timestamp_ms"`
	Symbol      string  `json:"symbol"`
	Price       float64 `json:"price"`
	Volume      float64 `json:"volume"`
	Bid         float64 `json:"bid"`
	Ask         float64 `json:"ask"`
	BidSize     float64 `json:"bid_size"`
	AskSize     float64 `json:"ask_size"`
}

// Source fetches a symbol's full tick history from a remote history API,
// one page at a time, and caches the result for subsequent ReadAllTicks
// calls within the same Source.
type Source struct {
	client  *resty.Client
	symbol  string
	limiter *datasource.TokenBucket

	cached []model.Tick
}

// New builds a Source against baseURL for symbol. requestsPerSecond caps
// the limiter; a value of 0 disables rate limiting.
func New(baseURL, symbol string, requestsPerSecond float64) *Source {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond)

	var limiter *datasource.TokenBucket
	if requestsPerSecond > 0 {
		limiter = datasource.NewTokenBucket(requestsPerSecond, requestsPerSecond)
	}

	return &Source{client: client, symbol: symbol, limiter: limiter}
}

// ReadAllTicks fetches and caches the symbol's full tick history,
// paginating until a short page signals the last one.
func (s *Source) ReadAllTicks(ctx context.Context) ([]model.Tick, error) {
	if s.cached != nil {
		return s.cached, nil
	}

	var all []model.Tick
	offset := 0
	for {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		var page tickPage
		resp, err := s.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"symbol": s.symbol,
				"offset": fmt.Sprintf("%d", offset),
				"limit":  fmt.Sprintf("%d", pageSize),
			}).
			SetResult(&page).
			Get("/ticks")
		if err != nil {
			return nil, fmt.Errorf("fetch tick page at offset %d: %w", offset, err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("fetch tick page at offset %d: remote returned %s", offset, resp.Status())
		}

		for _, rt := range page.Ticks {
			all = append(all, model.Tick{
				Symbol:    rt.Symbol,
				Timestamp: time.UnixMilli(rt.TimestampMS).UTC(),
				Price:     rt.Price,
				Volume:    rt.Volume,
				Bid:       rt.Bid,
				Ask:       rt.Ask,
				BidSize:   rt.BidSize,
				AskSize:   rt.AskSize,
			})
		}

		if len(page.Ticks) < pageSize {
			break
		}
		offset += pageSize
	}

	// Non-nil even when empty, so an empty history is cached too.
	if all == nil {
		all = []model.Tick{}
	}
	s.cached = all
	return all, nil
}

// ReadAllBars is always empty: this source only provides tick history.
func (s *Source) ReadAllBars(ctx context.Context) ([]model.Bar, error) {
	return nil, nil
}
