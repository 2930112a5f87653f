package recorder

import "time"

// TickEvent is one accepted live quote.
type TickEvent struct {
	Symbol        string
	Price         float64
	Change        float64
	ChangePercent float64
	MarketState   string
	Source        string
	Endpoint      string
	RequestID     string
	At            time.Time
}

// LoadEvent records a completed historical load.
type LoadEvent struct {
	Symbol    string
	Range     string
	Bars      int
	LastPrice float64
	Source    string
	Endpoint  string
	At        time.Time
}

// RestartEvent records a forced watchdog restart.
type RestartEvent struct {
	Symbol     string
	Generation uint64
	Reason     string
	At         time.Time
}

// Recorder keeps an append-only audit trail. It is never read back to
// serve market data.
type Recorder interface {
	RecordTick(evt *TickEvent) error
	RecordLoad(evt *LoadEvent) error
	RecordRestart(evt *RestartEvent) error
	RecentRestarts(limit int) ([]RestartEvent, error)
	Close() error
}
