package engine

import (
	"log"
	"sort"
	"sync"
	"time"

	"MarketRelay/internal/model"
)

// Callback receives partial quote updates for one instrument.
type Callback func(model.QuoteUpdate)

type subscription struct {
	id uint64
	cb Callback
}

// entry exists while a symbol has at least one subscriber. publishMu
// serializes delivery against generation bumps so that a superseded loop
// cannot deliver once the bump has returned.
type entry struct {
	publishMu sync.Mutex
	subs      []subscription
}

// registry holds the subscription table, the generation tokens and the
// watchdog ledger. Generations are never pruned so they stay monotonic.
type registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	gens    map[string]uint64
	ledger  map[string]*ledgerEntry
	nextID  uint64
	closed  bool
}

func newRegistry() *registry {
	return &registry{
		entries: make(map[string]*entry),
		gens:    make(map[string]uint64),
		ledger:  make(map[string]*ledgerEntry),
	}
}

// add registers cb. created reports whether this was the first subscriber,
// in which case gen is a fresh generation the caller must start a loop for.
// Once retireAll has run, add registers nothing and returns id 0.
func (r *registry) add(symbol string, cb Callback, now time.Time) (id, gen uint64, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, r.gens[symbol], false
	}

	e, ok := r.entries[symbol]
	if !ok {
		e = &entry{}
		r.entries[symbol] = e
		r.gens[symbol]++
		r.ledger[symbol] = &ledgerEntry{lastData: now, lastChange: now}
		created = true
	}
	r.nextID++
	// copy on write: publishers iterate over a snapshot of subs
	e.subs = append(e.subs[:len(e.subs):len(e.subs)], subscription{id: r.nextID, cb: cb})
	return r.nextID, r.gens[symbol], created
}

// remove drops exactly one registration. When it was the last one the entry
// and its ledger are pruned and the generation is bumped to retire the loop.
func (r *registry) remove(symbol string, id uint64) (removed, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[symbol]
	if !ok {
		return false, false
	}
	next := make([]subscription, 0, len(e.subs))
	for _, s := range e.subs {
		if s.id == id {
			removed = true
			continue
		}
		next = append(next, s)
	}
	if !removed {
		return false, false
	}
	e.subs = next
	if len(next) == 0 {
		delete(r.entries, symbol)
		delete(r.ledger, symbol)
		r.gens[symbol]++
		last = true
	}
	return removed, last
}

func (r *registry) generation(symbol string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gens[symbol]
}

func (r *registry) isCurrent(symbol string, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[symbol]
	return ok && r.gens[symbol] == gen
}

// bump advances the generation of a subscribed symbol.
func (r *registry) bump(symbol string) (uint64, bool) {
	r.mu.Lock()
	e, ok := r.entries[symbol]
	r.mu.Unlock()
	if !ok {
		return 0, false
	}

	e.publishMu.Lock()
	defer e.publishMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[symbol] != e {
		return 0, false
	}
	r.gens[symbol]++
	return r.gens[symbol], true
}

// publish delivers u to every subscriber if gen is still current.
func (r *registry) publish(symbol string, gen uint64, u model.QuoteUpdate) bool {
	r.mu.Lock()
	e, ok := r.entries[symbol]
	r.mu.Unlock()
	if !ok {
		return false
	}

	e.publishMu.Lock()
	defer e.publishMu.Unlock()
	r.mu.Lock()
	if r.entries[symbol] != e || r.gens[symbol] != gen {
		r.mu.Unlock()
		return false
	}
	subs := e.subs
	r.mu.Unlock()

	for _, s := range subs {
		deliver(symbol, s.cb, u)
	}
	return true
}

func deliver(symbol string, cb Callback, u model.QuoteUpdate) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[ERROR] subscriber for %s panicked: %v", symbol, rec)
		}
	}()
	cb(u)
}

func (r *registry) symbols() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for s := range r.entries {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (r *registry) count(symbol string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[symbol]; ok {
		return len(e.subs)
	}
	return 0
}

// retireAll invalidates every running loop and clears all subscriptions.
func (r *registry) retireAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for s := range r.entries {
		r.gens[s]++
	}
	r.entries = make(map[string]*entry)
	r.ledger = make(map[string]*ledgerEntry)
}
