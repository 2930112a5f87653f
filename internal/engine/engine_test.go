package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketRelay/internal/model"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock { return &fakeClock{t: time.Unix(1700000000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeSource serves quotes from a function. A non-nil gate blocks every
// fetch until it is closed.
type fakeSource struct {
	quote func(n int64) (float64, error)
	gate  chan struct{}
	calls atomic.Int64
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) FetchQuote(ctx context.Context, symbol string) (*model.QuoteUpdate, error) {
	n := f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	price, err := f.quote(n)
	if err != nil {
		return nil, err
	}
	return &model.QuoteUpdate{Symbol: symbol, LastPrice: price, MarketState: model.MarketRegular}, nil
}

func (f *fakeSource) LoadHistorical(ctx context.Context, symbol, rangeSelector string) (*model.InstrumentState, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func constant(p float64) func(int64) (float64, error) {
	return func(int64) (float64, error) { return p, nil }
}

func moving(n int64) (float64, error) { return 100 + float64(n), nil }

func down(int64) (float64, error) { return 0, errors.New("all forwarders failed") }

func newTestEngine(t *testing.T, src *fakeSource, clock *fakeClock, onRestart func(RestartEvent)) *Engine {
	t.Helper()
	opts := Options{PollInterval: 10 * time.Millisecond, OnRestart: onRestart}
	if clock != nil {
		opts.Now = clock.Now
	}
	e := New(src, opts)
	t.Cleanup(e.Close)
	return e
}

func TestSubscribe_DeliversUpdates(t *testing.T) {
	e := newTestEngine(t, &fakeSource{quote: moving}, nil, nil)

	var got atomic.Value
	unsub := e.Subscribe(" aapl ", func(u model.QuoteUpdate) { got.Store(u) })
	defer unsub()

	require.Eventually(t, func() bool { return got.Load() != nil }, time.Second, 5*time.Millisecond)
	u := got.Load().(model.QuoteUpdate)
	assert.Equal(t, "AAPL", u.Symbol)
	assert.Greater(t, u.LastPrice, 100.0)
	assert.Equal(t, []string{"AAPL"}, e.Symbols())
	assert.Equal(t, 1, e.activeLoops("AAPL"))
}

func TestSupersededGenerationPublishesNothing(t *testing.T) {
	src := &fakeSource{quote: constant(42), gate: make(chan struct{})}
	e := newTestEngine(t, src, nil, nil)

	var delivered atomic.Int64
	unsub := e.Subscribe("AAPL", func(model.QuoteUpdate) { delivered.Add(1) })
	defer unsub()

	// loop A is now blocked inside its first fetch
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)
	gen, ok := e.reg.bump("AAPL")
	require.True(t, ok)
	assert.Equal(t, uint64(2), gen)

	close(src.gate)
	require.Eventually(t, func() bool { return e.activeLoops("AAPL") == 0 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, delivered.Load())

	// the discarded tick leaves the watchdog ledger untouched
	l, ok := e.reg.ledgerFor("AAPL")
	require.True(t, ok)
	assert.False(t, l.hasPrice)
}

func TestRestartTwice_LeavesOneLoop(t *testing.T) {
	e := newTestEngine(t, &fakeSource{quote: moving}, nil, nil)
	unsub := e.Subscribe("MSFT", func(model.QuoteUpdate) {})
	defer unsub()

	before := e.Generation("MSFT")
	_, ok := e.restart("MSFT", ReasonDead)
	require.True(t, ok)
	_, ok = e.restart("MSFT", ReasonDead)
	require.True(t, ok)

	assert.Equal(t, before+2, e.Generation("MSFT"))
	require.Eventually(t, func() bool { return e.activeLoops("MSFT") == 1 }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return e.activeLoops("MSFT") != 1 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestWatchdog_DeadConnection(t *testing.T) {
	clock := newClock()
	var events []RestartEvent
	e := newTestEngine(t, &fakeSource{quote: down}, clock, func(ev RestartEvent) { events = append(events, ev) })
	unsub := e.Subscribe("TSLA", func(model.QuoteUpdate) {})
	defer unsub()

	e.check()
	assert.Empty(t, events)

	clock.Advance(11 * time.Second)
	before := e.Generation("TSLA")
	e.check()
	require.Len(t, events, 1)
	assert.Equal(t, ReasonDead, events[0].Reason)
	assert.Equal(t, "TSLA", events[0].Symbol)
	assert.Equal(t, before+1, e.Generation("TSLA"))

	// the new loop gets a fresh grace period
	e.check()
	assert.Len(t, events, 1)
}

func TestWatchdog_StagnantPrice(t *testing.T) {
	clock := newClock()
	var events []RestartEvent
	src := &fakeSource{quote: constant(10)}
	e := newTestEngine(t, src, clock, func(ev RestartEvent) { events = append(events, ev) })
	unsub := e.Subscribe("IBM", func(model.QuoteUpdate) {})
	defer unsub()

	require.Eventually(t, func() bool {
		l, ok := e.reg.ledgerFor("IBM")
		return ok && l.hasPrice
	}, time.Second, 5*time.Millisecond)

	clock.Advance(5 * time.Second)
	e.check()
	require.Len(t, events, 1)
	assert.Equal(t, ReasonStagnant, events[0].Reason)
}

func TestWatchdog_MovingPriceIsHealthy(t *testing.T) {
	clock := newClock()
	var events []RestartEvent
	e := newTestEngine(t, &fakeSource{quote: down}, clock, func(ev RestartEvent) { events = append(events, ev) })
	unsub := e.Subscribe("NVDA", func(model.QuoteUpdate) {})
	defer unsub()

	for i := 0; i < 5; i++ {
		e.reg.observe("NVDA", float64(100+i), clock.Now())
		clock.Advance(3 * time.Second)
		e.check()
	}
	assert.Empty(t, events)
}

func TestWatchdog_IgnoresUnsubscribedSymbols(t *testing.T) {
	clock := newClock()
	var events []RestartEvent
	e := newTestEngine(t, &fakeSource{quote: down}, clock, func(ev RestartEvent) { events = append(events, ev) })
	unsub := e.Subscribe("AMD", func(model.QuoteUpdate) {})
	unsub()

	clock.Advance(time.Minute)
	e.check()
	assert.Empty(t, events)
	_, ok := e.restart("AMD", ReasonDead)
	assert.False(t, ok)
}

func TestUnsubscribe_IdempotentAndPrunes(t *testing.T) {
	e := newTestEngine(t, &fakeSource{quote: moving}, nil, nil)
	var a, b atomic.Int64
	unsubA := e.Subscribe("AAPL", func(model.QuoteUpdate) { a.Add(1) })
	unsubB := e.Subscribe("AAPL", func(model.QuoteUpdate) { b.Add(1) })
	require.Equal(t, 2, e.Subscribers("AAPL"))
	gen := e.Generation("AAPL")

	unsubA()
	unsubA()
	assert.Equal(t, 1, e.Subscribers("AAPL"))
	assert.Equal(t, gen, e.Generation("AAPL"))

	unsubB()
	assert.Zero(t, e.Subscribers("AAPL"))
	assert.Empty(t, e.Symbols())
	assert.Equal(t, gen+1, e.Generation("AAPL"))
	_, ok := e.reg.ledgerFor("AAPL")
	assert.False(t, ok)
	require.Eventually(t, func() bool { return e.activeLoops("AAPL") == 0 }, time.Second, 5*time.Millisecond)
}

func TestGeneration_MonotonicAcrossResubscribe(t *testing.T) {
	e := newTestEngine(t, &fakeSource{quote: moving}, nil, nil)
	first := e.Subscribe("GOOG", func(model.QuoteUpdate) {})
	g1 := e.Generation("GOOG")
	first()
	second := e.Subscribe("GOOG", func(model.QuoteUpdate) {})
	defer second()
	assert.Greater(t, e.Generation("GOOG"), g1)
}

func TestCallbackMayUnsubscribeItself(t *testing.T) {
	e := newTestEngine(t, &fakeSource{quote: moving}, nil, nil)
	var calls atomic.Int64
	var unsub func()
	ready := make(chan struct{})
	unsub = e.Subscribe("META", func(model.QuoteUpdate) {
		<-ready
		calls.Add(1)
		unsub()
	})
	close(ready)

	require.Eventually(t, func() bool { return e.activeLoops("META") == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), calls.Load())
}

func TestLoadHistorical_CancelledByClose(t *testing.T) {
	e := New(&fakeSource{quote: moving}, Options{})
	errc := make(chan error, 1)
	go func() {
		_, err := e.LoadHistorical(context.Background(), "AAPL", "1D")
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	e.Close()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("LoadHistorical did not return after Close")
	}
}

func TestClose_StopsLoops(t *testing.T) {
	e := New(&fakeSource{quote: moving}, Options{PollInterval: 10 * time.Millisecond})
	e.Start()
	e.Subscribe("AAPL", func(model.QuoteUpdate) {})
	e.Subscribe("MSFT", func(model.QuoteUpdate) {})
	e.Close()

	assert.Zero(t, e.activeLoops("AAPL"))
	assert.Zero(t, e.activeLoops("MSFT"))
	assert.Empty(t, e.Symbols())
	_, ok := e.restart("AAPL", ReasonDead)
	assert.False(t, ok)
}

func TestSubscribe_AfterCloseIsNoop(t *testing.T) {
	src := &fakeSource{quote: moving}
	e := New(src, Options{PollInterval: 10 * time.Millisecond})
	e.Close()

	var delivered atomic.Int64
	unsub := e.Subscribe("AAPL", func(model.QuoteUpdate) { delivered.Add(1) })
	require.NotNil(t, unsub)
	unsub()
	unsub()

	assert.Empty(t, e.Symbols())
	assert.Zero(t, e.Subscribers("AAPL"))
	assert.Zero(t, e.activeLoops("AAPL"))
	assert.Never(t, func() bool { return src.calls.Load() > 0 || delivered.Load() > 0 }, 50*time.Millisecond, 10*time.Millisecond)
}
