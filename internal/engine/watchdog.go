package engine

import (
	"log"
	"time"

	"MarketRelay/internal/metrics"
)

const (
	ReasonDead     = "dead"
	ReasonStagnant = "stagnant"
)

// RestartEvent describes one forced poller restart.
type RestartEvent struct {
	Symbol     string
	Generation uint64
	Reason     string
	At         time.Time
}

type ledgerEntry struct {
	lastData   time.Time
	lastPrice  float64
	hasPrice   bool
	lastChange time.Time
}

// observe records an accepted tick. Pruned symbols are not resurrected.
func (r *registry) observe(symbol string, price float64, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.ledger[symbol]
	if !ok {
		return
	}
	l.lastData = now
	if !l.hasPrice || price != l.lastPrice {
		l.lastChange = now
	}
	l.lastPrice = price
	l.hasPrice = true
}

func (r *registry) resetLedger(symbol string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.ledger[symbol]; ok {
		l.lastData = now
		l.lastChange = now
	}
}

func (r *registry) ledgerFor(symbol string) (ledgerEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.ledger[symbol]
	if !ok {
		return ledgerEntry{}, false
	}
	return *l, true
}

// check is the watchdog tick. Only subscribed symbols have a ledger entry.
func (e *Engine) check() {
	now := e.opts.Now()
	for _, symbol := range e.reg.symbols() {
		l, ok := e.reg.ledgerFor(symbol)
		if !ok {
			continue
		}
		switch {
		case now.Sub(l.lastData) > e.opts.DeadAfter:
			e.restart(symbol, ReasonDead)
		case l.hasPrice && now.Sub(l.lastChange) > e.opts.StagnantAfter:
			e.restart(symbol, ReasonStagnant)
		}
	}
}

// restart retires the running loop by bumping the generation, gives the new
// loop a fresh grace period and starts it.
func (e *Engine) restart(symbol, reason string) (uint64, bool) {
	if e.ctx.Err() != nil {
		return 0, false
	}
	gen, ok := e.reg.bump(symbol)
	if !ok {
		return 0, false
	}
	now := e.opts.Now()
	e.reg.resetLedger(symbol, now)
	metrics.Restarts.WithLabelValues(symbol, reason).Inc()
	log.Printf("[WARN] watchdog: %s looks %s, restarting poller (generation %d)", symbol, reason, gen)

	e.startLoop(symbol, gen)
	if e.opts.OnRestart != nil {
		e.opts.OnRestart(RestartEvent{Symbol: symbol, Generation: gen, Reason: reason, At: now})
	}
	return gen, true
}
