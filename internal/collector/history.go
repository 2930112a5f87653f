package collector

import (
	"context"
	"log"
	"time"

	"MarketRelay/internal/calculator"
	"MarketRelay/internal/metrics"
	"MarketRelay/internal/model"
)

// LoadHistorical races the full-series chart query until a well-formed series
// arrives. It never gives up on its own: only ctx ends the loop. Failed rounds
// are separated by a capped exponential backoff.
func (y *Yahoo) LoadHistorical(ctx context.Context, symbol, rangeSelector string) (*model.InstrumentState, error) {
	rng := LookupRange(rangeSelector)
	for attempt := 1; ; attempt++ {
		res, err := Race(ctx, y.racer, Request[*chartSeries]{
			Shape:   ShapeChart,
			Source:  "Yahoo Finance API",
			Target:  y.chartURL(symbol, rng.Interval, rng.Window, true),
			Timeout: y.opts.HistoryTimeout,
			Decode:  decodeSeries,
		})
		if err == nil {
			if attempt > 1 {
				log.Printf("[INFO] history %s (%s) loaded after %d attempts", symbol, rng.Selector, attempt)
			}
			return buildState(symbol, rng, res.Value, res.Provenance, y.now()), nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		wait := backoff(attempt, y.opts.BackoffInitial, y.opts.BackoffMax)
		metrics.HistoryRetries.WithLabelValues(symbol).Inc()
		log.Printf("[WARN] history %s (%s) attempt %d failed: %v, retrying in %v", symbol, rng.Selector, attempt, err, wait)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func backoff(attempt int, initial, ceiling time.Duration) time.Duration {
	if attempt > 30 {
		return ceiling
	}
	d := initial << uint(attempt-1)
	if d <= 0 || d > ceiling {
		return ceiling
	}
	return d
}

// buildState runs the indicator pipeline and derives the change fields.
// The upstream current price and previous close win over values computed
// from the series.
func buildState(symbol string, rng Range, s *chartSeries, prov model.Provenance, now time.Time) *model.InstrumentState {
	samples := s.samples
	last := samples[len(samples)-1]
	prevClose := last.Close
	if len(samples) > 1 {
		prevClose = samples[len(samples)-2].Close
	}

	ref := last.Close
	if s.meta.RegularMarketPrice != nil {
		ref = *s.meta.RegularMarketPrice
	}
	prev := prevClose
	if s.meta.ChartPreviousClose != nil {
		prev = *s.meta.ChartPreviousClose
	}

	state := &model.InstrumentState{
		Symbol:      symbol,
		Name:        s.meta.displayName(),
		Exchange:    s.meta.ExchangeName,
		Currency:    s.meta.Currency,
		Range:       rng.Selector,
		Series:      calculator.Augment(samples),
		LastPrice:   ref,
		Change:      ref - prev,
		MarketState: s.meta.marketState(now),
		Provenance:  prov,
	}
	if s.meta.Symbol != "" {
		state.Symbol = s.meta.Symbol
	}
	if state.Name == "" {
		state.Name = state.Symbol
	}
	if prev != 0 {
		state.ChangePercent = state.Change / prev * 100
	}
	return state
}
