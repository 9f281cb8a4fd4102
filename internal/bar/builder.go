// Package bar aggregates a per-symbol tick stream into fixed-interval OHLCV
// bars, tolerating out-of-order arrival within the stream.
package bar

import (
	"sort"
	"time"

	"backtester/internal/model"
)

// Builder accumulates ticks for one symbol and emits completed bars on a
// fixed interval grid. One Builder exists per symbol so OHLC never mixes
// across symbols.
type Builder struct {
	interval time.Duration

	tickBuffer      []model.Tick
	currentBar      *model.Bar
	currentBarStart time.Time
	readyQueue      []model.Bar
}

// NewBuilder creates a bar builder for the given aggregation interval.
func NewBuilder(interval time.Duration) *Builder {
	return &Builder{interval: interval}
}

// AddTick buffers a tick, drains the buffer in timestamp order, and returns
// the oldest completed bar if one became ready. Call repeatedly; at most one
// bar is returned per call even if several completed.
func (b *Builder) AddTick(tick model.Tick) (model.Bar, bool) {
	b.tickBuffer = append(b.tickBuffer, tick)
	sort.SliceStable(b.tickBuffer, func(i, j int) bool {
		return b.tickBuffer[i].Timestamp.Before(b.tickBuffer[j].Timestamp)
	})

	b.processBufferedTicks()

	return b.popReady()
}

// Flush drains any buffered ticks, then yields the oldest ready bar. If none
// is queued but a bar is still in progress, that bar is returned and cleared.
// Callers invoke Flush repeatedly until it returns false.
func (b *Builder) Flush() (model.Bar, bool) {
	b.processBufferedTicks()

	if bar, ok := b.popReady(); ok {
		return bar, true
	}

	if b.currentBar != nil {
		bar := *b.currentBar
		b.currentBar = nil
		return bar, true
	}

	return model.Bar{}, false
}

func (b *Builder) popReady() (model.Bar, bool) {
	if len(b.readyQueue) == 0 {
		return model.Bar{}, false
	}
	bar := b.readyQueue[0]
	b.readyQueue = b.readyQueue[1:]
	return bar, true
}

// processBufferedTicks walks the sorted buffer, emitting a bar to the ready
// queue on every interval boundary it crosses.
func (b *Builder) processBufferedTicks() {
	for len(b.tickBuffer) > 0 {
		tick := b.tickBuffer[0]
		b.tickBuffer = b.tickBuffer[1:]

		if b.currentBar == nil {
			b.startNewBar(tick)
			continue
		}

		bucketEnd := b.currentBarStart.Add(b.interval)

		switch {
		case !tick.Timestamp.Before(bucketEnd):
			// Tick belongs to a later bucket: close the current bar and
			// advance one interval at a time until the tick fits.
			b.readyQueue = append(b.readyQueue, *b.currentBar)
			for {
				b.currentBarStart = b.currentBarStart.Add(b.interval)
				if tick.Timestamp.Before(b.currentBarStart.Add(b.interval)) {
					break
				}
			}
			b.startNewBarAt(tick, b.currentBarStart)

		case tick.Timestamp.Before(b.currentBarStart):
			// Late tick predating the current bucket: close current bar and
			// restart aligned to the late tick's own bucket. This is a lossy
			// policy — the already-emitted bar's OHLC is not revisited.
			b.readyQueue = append(b.readyQueue, *b.currentBar)
			b.startNewBar(tick)

		default:
			// Same bucket: update OHLCV in place.
			b.currentBar.High = max(b.currentBar.High, tick.Price)
			b.currentBar.Low = min(b.currentBar.Low, tick.Price)
			b.currentBar.Close = tick.Price
			b.currentBar.Volume += tick.Volume
		}
	}
}

// startNewBar aligns the bar-start down to the interval grid and initializes
// current_bar from tick.
func (b *Builder) startNewBar(tick model.Tick) {
	alignedStart := alignToInterval(tick.Timestamp, b.interval)
	b.startNewBarAt(tick, alignedStart)
}

func (b *Builder) startNewBarAt(tick model.Tick, start time.Time) {
	b.currentBarStart = start
	b.currentBar = &model.Bar{
		Symbol:    tick.Symbol,
		Timestamp: start,
		Open:      tick.Price,
		High:      tick.Price,
		Low:       tick.Price,
		Close:     tick.Price,
		Volume:    tick.Volume,
	}
}

// alignToInterval floors ts down to the nearest multiple of interval since
// the Unix epoch.
func alignToInterval(ts time.Time, interval time.Duration) time.Time {
	nanos := ts.UnixNano()
	step := interval.Nanoseconds()
	if step <= 0 {
		return ts
	}
	aligned := (nanos / step) * step
	return time.Unix(0, aligned).UTC()
}
