// Package tracker keeps one instrument's full state current by folding live
// partial updates into the trailing candle of a loaded series.
package tracker

import (
	"context"
	"fmt"
	"math"
	"sync"

	"MarketRelay/internal/calculator"
	"MarketRelay/internal/engine"
	"MarketRelay/internal/model"
)

// Provider is the consumer interface of the acquisition engine.
type Provider interface {
	LoadHistorical(ctx context.Context, symbol, rangeSelector string) (*model.InstrumentState, error)
	Subscribe(symbol string, cb engine.Callback) func()
}

// Tracker holds a single InstrumentState. Reload and Apply are serialized.
type Tracker struct {
	provider Provider
	symbol   string

	mu       sync.RWMutex
	state    model.InstrumentState
	onUpdate func(model.InstrumentState)

	unsubscribe func()
	closeOnce   sync.Once
}

// Track loads history for symbol and subscribes to live updates. onUpdate,
// if set, is called with a snapshot after every applied update.
func Track(ctx context.Context, p Provider, symbol, rangeSelector string, onUpdate func(model.InstrumentState)) (*Tracker, error) {
	state, err := p.LoadHistorical(ctx, symbol, rangeSelector)
	if err != nil {
		return nil, fmt.Errorf("track %s: %w", symbol, err)
	}
	t := &Tracker{provider: p, symbol: state.Symbol, state: *state, onUpdate: onUpdate}
	t.unsubscribe = p.Subscribe(state.Symbol, t.Apply)
	return t, nil
}

// Symbol returns the tracked symbol.
func (t *Tracker) Symbol() string { return t.symbol }

// Apply merges a partial update. When a series is present the trailing
// candle's close becomes the live price, its high and low widen to include
// it, and indicators are recomputed on a copy of the series.
func (t *Tracker) Apply(u model.QuoteUpdate) {
	t.mu.Lock()
	t.state.LastPrice = u.LastPrice
	t.state.Change = u.Change
	t.state.ChangePercent = u.ChangePercent
	t.state.MarketState = u.MarketState
	t.state.Provenance = u.Provenance

	if n := len(t.state.Series); n > 0 {
		raw := t.state.RawSeries()
		tail := &raw[n-1]
		tail.Close = u.LastPrice
		tail.High = math.Max(tail.High, u.LastPrice)
		tail.Low = math.Min(tail.Low, u.LastPrice)
		t.state.Series = calculator.Augment(raw)
	}
	var snap model.InstrumentState
	if t.onUpdate != nil {
		snap = t.state.Clone()
	}
	t.mu.Unlock()

	if t.onUpdate != nil {
		t.onUpdate(snap)
	}
}

// Reload replaces the whole state with a fresh load for rangeSelector.
func (t *Tracker) Reload(ctx context.Context, rangeSelector string) error {
	state, err := t.provider.LoadHistorical(ctx, t.symbol, rangeSelector)
	if err != nil {
		return fmt.Errorf("reload %s: %w", t.symbol, err)
	}
	t.mu.Lock()
	t.state = *state
	t.mu.Unlock()
	return nil
}

// Snapshot returns a deep copy of the current state.
func (t *Tracker) Snapshot() model.InstrumentState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.Clone()
}

// Close stops live updates. It is safe to call more than once.
func (t *Tracker) Close() {
	t.closeOnce.Do(t.unsubscribe)
}
