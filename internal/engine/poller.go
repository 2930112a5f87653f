package engine

import (
	"time"

	"MarketRelay/internal/metrics"
)

func (e *Engine) startLoop(symbol string, gen uint64) {
	e.loopsMu.Lock()
	if e.closed {
		e.loopsMu.Unlock()
		return
	}
	e.loops[symbol]++
	e.wg.Add(1)
	e.loopsMu.Unlock()

	go func() {
		defer e.wg.Done()
		defer func() {
			e.loopsMu.Lock()
			if e.loops[symbol]--; e.loops[symbol] <= 0 {
				delete(e.loops, symbol)
			}
			e.loopsMu.Unlock()
		}()
		e.poll(symbol, gen)
	}()
}

// poll runs one live loop. It exits at the first tick boundary where gen is
// no longer the current generation of symbol.
func (e *Engine) poll(symbol string, gen uint64) {
	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	for {
		if !e.reg.isCurrent(symbol, gen) {
			return
		}
		e.tick(symbol, gen)

		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (e *Engine) tick(symbol string, gen uint64) {
	q, err := e.src.FetchQuote(e.ctx, symbol)
	if err != nil {
		// failures are silent; the watchdog sees the missing data
		metrics.Ticks.WithLabelValues(symbol, "failed").Inc()
		return
	}
	q.Symbol = symbol
	if !e.reg.publish(symbol, gen, *q) {
		metrics.Ticks.WithLabelValues(symbol, "superseded").Inc()
		return
	}
	metrics.Ticks.WithLabelValues(symbol, "ok").Inc()
	e.reg.observe(symbol, q.LastPrice, e.opts.Now())
}
