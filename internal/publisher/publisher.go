// Package publisher fans accepted live quotes out to external sinks without
// ever blocking the poller that produced them.
package publisher

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"MarketRelay/internal/metrics"
	"MarketRelay/internal/model"
)

// Publisher is one downstream sink.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, u model.QuoteUpdate) error
	Close() error
}

type worker struct {
	sink  Publisher
	queue chan model.QuoteUpdate
}

// Dispatcher gives each sink its own bounded queue and goroutine. When a
// queue is full the update is dropped for that sink only.
type Dispatcher struct {
	workers []*worker
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher starts one worker per sink.
func NewDispatcher(buffer int, timeout time.Duration, sinks ...Publisher) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	d := &Dispatcher{timeout: timeout}
	for _, s := range sinks {
		w := &worker{sink: s, queue: make(chan model.QuoteUpdate, buffer)}
		d.workers = append(d.workers, w)
		d.wg.Add(1)
		go d.run(w)
	}
	return d
}

func (d *Dispatcher) run(w *worker) {
	defer d.wg.Done()
	for u := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := w.sink.Publish(ctx, u); err != nil {
			log.Printf("[WARN] publish %s to %s: %v", u.Symbol, w.sink.Name(), err)
		}
		cancel()
	}
}

// Handle enqueues u for every sink. It never blocks, so it can be used
// directly as a subscription callback.
func (d *Dispatcher) Handle(u model.QuoteUpdate) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	for _, w := range d.workers {
		select {
		case w.queue <- u:
		default:
			metrics.Dropped.WithLabelValues(w.sink.Name()).Inc()
		}
	}
}

// Close drains the queues and closes every sink.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	for _, w := range d.workers {
		close(w.queue)
	}
	d.mu.Unlock()

	d.wg.Wait()
	var errs []error
	for _, w := range d.workers {
		if err := w.sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
