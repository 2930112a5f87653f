// Package engine turns a collector.Source into a subscription service:
// one live poller per subscribed symbol, generation tokens to retire stale
// pollers, and a watchdog that restarts dead or stagnant feeds.
package engine

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"MarketRelay/internal/collector"
	"MarketRelay/internal/metrics"
	"MarketRelay/internal/model"
)

// Options tunes the engine. Zero values take the defaults.
type Options struct {
	PollInterval     time.Duration
	WatchdogInterval time.Duration
	DeadAfter        time.Duration
	StagnantAfter    time.Duration
	Now              func() time.Time
	OnRestart        func(RestartEvent)
}

func (o *Options) setDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.WatchdogInterval <= 0 {
		o.WatchdogInterval = time.Second
	}
	if o.DeadAfter <= 0 {
		o.DeadAfter = 10 * time.Second
	}
	if o.StagnantAfter <= 0 {
		o.StagnantAfter = 4 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Engine is safe for concurrent use.
type Engine struct {
	src  collector.Source
	opts Options
	reg  *registry
	cron *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc

	loopsMu sync.Mutex
	loops   map[string]int
	closed  bool
	wg      sync.WaitGroup

	closeOnce sync.Once
}

// New creates an engine over src. Call Start to arm the watchdog.
func New(src collector.Source, opts Options) *Engine {
	opts.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		src:    src,
		opts:   opts,
		reg:    newRegistry(),
		cron:   cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		ctx:    ctx,
		cancel: cancel,
		loops:  make(map[string]int),
	}
}

// Start schedules the watchdog.
func (e *Engine) Start() {
	e.cron.Schedule(cron.Every(e.opts.WatchdogInterval), cron.FuncJob(e.check))
	e.cron.Start()
	log.Printf("[INFO] engine started (poll %s, watchdog %s)", e.opts.PollInterval, e.opts.WatchdogInterval)
}

// Close stops the watchdog, retires every poller and waits for them to exit.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		<-e.cron.Stop().Done()
		e.cancel()
		e.loopsMu.Lock()
		e.closed = true
		e.loopsMu.Unlock()
		e.reg.retireAll()
		e.wg.Wait()
		log.Println("[INFO] engine stopped")
	})
}

// Normalize canonicalizes a ticker symbol.
func Normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// LoadHistorical loads the full augmented state of symbol. It resolves only
// when a load succeeds, ctx is cancelled or the engine is closed.
func (e *Engine) LoadHistorical(ctx context.Context, symbol, rangeSelector string) (*model.InstrumentState, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(e.ctx, cancel)
	defer stop()

	return e.src.LoadHistorical(ctx, Normalize(symbol), rangeSelector)
}

// Subscribe registers cb for live updates of symbol. The first subscriber
// starts the poller. The returned function removes exactly this
// registration and is safe to call more than once. After Close nothing is
// registered and the returned function does nothing.
func (e *Engine) Subscribe(symbol string, cb Callback) (unsubscribe func()) {
	sym := Normalize(symbol)
	id, gen, created := e.reg.add(sym, cb, e.opts.Now())
	if id == 0 {
		log.Printf("[WARN] %s: subscribe after close ignored", sym)
		return func() {}
	}
	metrics.Subscribers.WithLabelValues(sym).Inc()
	if created {
		log.Printf("[INFO] %s: first subscriber, starting poller (generation %d)", sym, gen)
		e.startLoop(sym, gen)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			removed, last := e.reg.remove(sym, id)
			if !removed {
				return
			}
			metrics.Subscribers.WithLabelValues(sym).Dec()
			if last {
				log.Printf("[INFO] %s: last subscriber left, poller retired", sym)
			}
		})
	}
}

// Generation returns the current generation token of symbol.
func (e *Engine) Generation(symbol string) uint64 {
	return e.reg.generation(Normalize(symbol))
}

// Symbols lists the symbols that currently have subscribers.
func (e *Engine) Symbols() []string {
	return e.reg.symbols()
}

// Subscribers returns the number of registrations for symbol.
func (e *Engine) Subscribers(symbol string) int {
	return e.reg.count(Normalize(symbol))
}

func (e *Engine) activeLoops(symbol string) int {
	e.loopsMu.Lock()
	defer e.loopsMu.Unlock()
	return e.loops[symbol]
}
