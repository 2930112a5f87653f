package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketRelay/internal/engine"
	"MarketRelay/internal/model"
	"MarketRelay/internal/tracker"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeFeed struct {
	mu     sync.Mutex
	block  bool
	err    error
	ranges []string
	cbs    map[string]engine.Callback
}

func newFakeFeed() *fakeFeed { return &fakeFeed{cbs: make(map[string]engine.Callback)} }

func (f *fakeFeed) LoadHistorical(ctx context.Context, symbol, rangeSelector string) (*model.InstrumentState, error) {
	f.mu.Lock()
	f.ranges = append(f.ranges, rangeSelector)
	block, err := f.block, f.err
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return &model.InstrumentState{
		Symbol:    engine.Normalize(symbol),
		Range:     rangeSelector,
		LastPrice: 100,
		Series:    []model.AugmentedSample{{Sample: model.Sample{Time: 1, Close: 100}}},
	}, nil
}

func (f *fakeFeed) Subscribe(symbol string, cb engine.Callback) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cbs[symbol] = cb
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.cbs, symbol)
	}
}

func (f *fakeFeed) Subscribers(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.cbs[symbol]; ok {
		return 1
	}
	return 0
}

func (f *fakeFeed) callback(symbol string) engine.Callback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cbs[symbol]
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, Res) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var res Res
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	}
	return w, res
}

func TestHistory_OK(t *testing.T) {
	feed := newFakeFeed()
	var loaded []string
	s := New(feed, tracker.NewSet(), Options{OnLoad: func(st *model.InstrumentState) { loaded = append(loaded, st.Symbol) }})

	w, res := get(t, s.Handler(), "/api/v1/history/aapl?range=5D")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, res.Error)
	data := res.Data.(map[string]any)
	assert.Equal(t, "AAPL", data["symbol"])
	assert.Equal(t, "5D", data["range"])
	assert.Equal(t, []string{"AAPL"}, loaded)

	get(t, s.Handler(), "/api/v1/history/aapl")
	assert.Equal(t, []string{"5D", "1D"}, feed.ranges)
}

func TestHistory_TimeoutIs504(t *testing.T) {
	feed := newFakeFeed()
	feed.block = true
	s := New(feed, tracker.NewSet(), Options{HistoryTimeout: 20 * time.Millisecond})

	w, res := get(t, s.Handler(), "/api/v1/history/AAPL")
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Equal(t, "history load timed out", res.Error)
	assert.Nil(t, res.Data)
}

func TestHistory_UnexpectedErrorIs500(t *testing.T) {
	feed := newFakeFeed()
	feed.err = assert.AnError
	s := New(feed, tracker.NewSet(), Options{})

	w, res := get(t, s.Handler(), "/api/v1/history/AAPL")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, assert.AnError.Error(), res.Error)
}

func TestInstruments(t *testing.T) {
	feed := newFakeFeed()
	set := tracker.NewSet()
	tr, err := tracker.Track(context.Background(), feed, "MSFT", "1D", nil)
	require.NoError(t, err)
	set.Add(tr)
	s := New(feed, set, Options{})

	w, res := get(t, s.Handler(), "/api/v1/instruments")
	require.Equal(t, http.StatusOK, w.Code)
	list := res.Data.([]any)
	require.Len(t, list, 1)
	item := list[0].(map[string]any)
	assert.Equal(t, "MSFT", item["symbol"])
	assert.Equal(t, 1.0, item["bars"])
	assert.Equal(t, 1.0, item["subscribers"])

	w, res = get(t, s.Handler(), "/api/v1/instruments/msft")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MSFT", res.Data.(map[string]any)["symbol"])

	w, res = get(t, s.Handler(), "/api/v1/instruments/TSLA")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "symbol is not tracked", res.Error)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "relay_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()
	s := New(newFakeFeed(), tracker.NewSet(), Options{Gatherer: reg})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "relay_test_total 1")
}

func TestStream_DeliversUpdatesAndUnsubscribes(t *testing.T) {
	feed := newFakeFeed()
	srv := httptest.NewServer(New(feed, tracker.NewSet(), Options{}).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream/aapl"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return feed.callback("AAPL") != nil }, time.Second, 5*time.Millisecond)
	feed.callback("AAPL")(model.QuoteUpdate{Symbol: "AAPL", LastPrice: 191.25, MarketState: model.MarketPre})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var u model.QuoteUpdate
	require.NoError(t, conn.ReadJSON(&u))
	assert.Equal(t, 191.25, u.LastPrice)
	assert.Equal(t, model.MarketPre, u.MarketState)

	conn.Close()
	require.Eventually(t, func() bool { return feed.callback("AAPL") == nil }, time.Second, 5*time.Millisecond)
}
