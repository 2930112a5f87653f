// Package api exposes the relay over HTTP: history loads, tracked
// instrument snapshots, a WebSocket quote stream and Prometheus metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"MarketRelay/internal/collector"
	"MarketRelay/internal/engine"
	"MarketRelay/internal/model"
	"MarketRelay/internal/tracker"
)

// Feed is the consumer interface the API serves from.
type Feed interface {
	LoadHistorical(ctx context.Context, symbol, rangeSelector string) (*model.InstrumentState, error)
	Subscribe(symbol string, cb engine.Callback) func()
	Subscribers(symbol string) int
}

// Options configures the server. Zero values take defaults.
type Options struct {
	HistoryTimeout time.Duration
	StreamBuffer   int
	Gatherer       prometheus.Gatherer
	OnLoad         func(*model.InstrumentState)
}

type Server struct {
	feed     Feed
	trackers *tracker.Set
	opts     Options
	upgrader websocket.Upgrader
	router   *gin.Engine
}

func New(feed Feed, trackers *tracker.Set, opts Options) *Server {
	if opts.HistoryTimeout <= 0 {
		opts.HistoryTimeout = 30 * time.Second
	}
	if opts.StreamBuffer <= 0 {
		opts.StreamBuffer = 32
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		feed:     feed,
		trackers: trackers,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), Logger())

	v1 := r.Group("/api/v1", Errors())
	v1.GET("/history/:symbol", s.history)
	v1.GET("/instruments", s.instruments)
	v1.GET("/instruments/:symbol", s.instrument)
	v1.GET("/stream/:symbol", s.stream)

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))
	return r
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) history(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.HistoryTimeout)
	defer cancel()

	state, err := s.feed.LoadHistorical(ctx, c.Param("symbol"), c.DefaultQuery("range", collector.DefaultRange))
	if err != nil {
		c.Error(err)
		return
	}
	if s.opts.OnLoad != nil {
		s.opts.OnLoad(state)
	}
	c.JSON(http.StatusOK, Res{Data: state})
}

func (s *Server) instruments(c *gin.Context) {
	snaps := s.trackers.Snapshots()
	out := make([]InstrumentSummary, len(snaps))
	for i, st := range snaps {
		out[i] = InstrumentSummary{
			Symbol:        st.Symbol,
			Name:          st.Name,
			Range:         st.Range,
			Bars:          len(st.Series),
			LastPrice:     st.LastPrice,
			Change:        st.Change,
			ChangePercent: st.ChangePercent,
			MarketState:   string(st.MarketState),
			Subscribers:   s.feed.Subscribers(st.Symbol),
		}
	}
	c.JSON(http.StatusOK, Res{Data: out})
}

func (s *Server) instrument(c *gin.Context) {
	t, ok := s.trackers.Get(engine.Normalize(c.Param("symbol")))
	if !ok {
		c.Error(ErrNotTracked)
		return
	}
	c.JSON(http.StatusOK, Res{Data: t.Snapshot()})
}
