package model

import "strings"

// Sample represents a single candlestick bar. Time is milliseconds since epoch.
type Sample struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// AugmentedSample is a Sample plus derived indicator values.
// A nil indicator means the value is still inside its warm-up window.
type AugmentedSample struct {
	Sample
	SMA             *float64 `json:"sma"`
	EMA             *float64 `json:"ema"`
	BollingerUpper  *float64 `json:"bollingerUpper"`
	BollingerMiddle *float64 `json:"bollingerMiddle"`
	BollingerLower  *float64 `json:"bollingerLower"`
	RSI             *float64 `json:"rsi"`
}

// MarketState is the trading session an instrument is in.
type MarketState string

const (
	MarketPre     MarketState = "PRE"
	MarketRegular MarketState = "REGULAR"
	MarketPost    MarketState = "POST"
	MarketClosed  MarketState = "CLOSED"
)

// ParseMarketState normalizes an upstream session tag.
func ParseMarketState(s string) MarketState {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PRE", "PREPRE":
		return MarketPre
	case "REGULAR":
		return MarketRegular
	case "POST", "POSTPOST":
		return MarketPost
	default:
		return MarketClosed
	}
}

// Provenance records where a value came from. It never drives control flow.
type Provenance struct {
	Source      string `json:"source"`
	Endpoint    string `json:"endpoint"`
	RetrievedAt int64  `json:"retrievedAt"`
	RequestID   string `json:"requestId,omitempty"`
}

// QuoteUpdate is a partial update produced by the live poller.
type QuoteUpdate struct {
	Symbol        string      `json:"symbol"`
	LastPrice     float64     `json:"lastPrice"`
	Change        float64     `json:"change"`
	ChangePercent float64     `json:"changePercent"`
	MarketState   MarketState `json:"marketState"`
	Provenance    Provenance  `json:"provenance"`
}

// InstrumentState is the full view of one instrument: metadata, augmented
// series and the latest quote fields.
type InstrumentState struct {
	Symbol        string            `json:"symbol"`
	Name          string            `json:"name"`
	Exchange      string            `json:"exchange"`
	Currency      string            `json:"currency"`
	Range         string            `json:"range"`
	Series        []AugmentedSample `json:"series"`
	LastPrice     float64           `json:"lastPrice"`
	Change        float64           `json:"change"`
	ChangePercent float64           `json:"changePercent"`
	MarketState   MarketState       `json:"marketState"`
	Provenance    Provenance        `json:"provenance"`
}

// RawSeries returns the plain samples of the augmented series.
func (s *InstrumentState) RawSeries() []Sample {
	raw := make([]Sample, len(s.Series))
	for i, a := range s.Series {
		raw[i] = a.Sample
	}
	return raw
}

// Clone returns a deep copy that shares no memory with s.
func (s *InstrumentState) Clone() InstrumentState {
	c := *s
	if s.Series != nil {
		c.Series = make([]AugmentedSample, len(s.Series))
		for i, a := range s.Series {
			c.Series[i] = a.clone()
		}
	}
	return c
}

func (a AugmentedSample) clone() AugmentedSample {
	a.SMA = copyFloat(a.SMA)
	a.EMA = copyFloat(a.EMA)
	a.BollingerUpper = copyFloat(a.BollingerUpper)
	a.BollingerMiddle = copyFloat(a.BollingerMiddle)
	a.BollingerLower = copyFloat(a.BollingerLower)
	a.RSI = copyFloat(a.RSI)
	return a
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
