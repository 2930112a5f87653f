package api

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"MarketRelay/internal/engine"
	"MarketRelay/internal/metrics"
	"MarketRelay/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// stream subscribes the connection to live updates of one symbol. A client
// that cannot keep up loses frames; the poller is never blocked.
func (s *Server) stream(c *gin.Context) {
	symbol := engine.Normalize(c.Param("symbol"))
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WARN] websocket upgrade for %s: %v", symbol, err)
		return
	}
	defer conn.Close()

	updates := make(chan model.QuoteUpdate, s.opts.StreamBuffer)
	unsubscribe := s.feed.Subscribe(symbol, func(u model.QuoteUpdate) {
		select {
		case updates <- u:
		default:
			metrics.Dropped.WithLabelValues("websocket").Inc()
		}
	})
	defer unsubscribe()
	log.Printf("[INFO] stream client connected for %s", symbol)

	// reader: handles pongs and notices the client leaving
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			log.Printf("[INFO] stream client for %s left", symbol)
			return
		case u := <-updates:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(u); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
