package collector

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"MarketRelay/internal/model"
)

const (
	DefaultChartBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart/"
	DefaultQuoteBaseURL = "https://query1.finance.yahoo.com/v7/finance/quote"

	ShapeChart = "chart"
	ShapeQuote = "quote"
)

// ErrMalformed marks a response that does not have the structure the caller needs.
var ErrMalformed = errors.New("malformed upstream response")

// Options tunes the Yahoo source.
type Options struct {
	ChartBaseURL   string
	QuoteBaseURL   string
	HistoryTimeout time.Duration
	QuoteTimeout   time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// Yahoo implements Source against the Yahoo Finance chart and quote APIs,
// reached only through the racer's forwarding transforms.
type Yahoo struct {
	racer *Racer
	opts  Options
	now   func() time.Time
}

// NewYahoo creates a Yahoo source. Zero options take the defaults.
func NewYahoo(racer *Racer, opts Options) *Yahoo {
	if opts.ChartBaseURL == "" {
		opts.ChartBaseURL = DefaultChartBaseURL
	}
	if opts.QuoteBaseURL == "" {
		opts.QuoteBaseURL = DefaultQuoteBaseURL
	}
	if opts.HistoryTimeout <= 0 {
		opts.HistoryTimeout = 5 * time.Second
	}
	if opts.QuoteTimeout <= 0 {
		opts.QuoteTimeout = 2500 * time.Millisecond
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = 500 * time.Millisecond
	}
	if opts.BackoffMax < opts.BackoffInitial {
		opts.BackoffMax = 10 * time.Second
	}
	return &Yahoo{racer: racer, opts: opts, now: time.Now}
}

func (y *Yahoo) Name() string { return "yahoo" }

// chartURL builds a chart query. full adds pre/post market bars and
// corporate-action events; the trailing timestamp defeats forwarder caches.
func (y *Yahoo) chartURL(symbol, interval, window string, full bool) string {
	q := url.Values{}
	q.Set("range", window)
	q.Set("interval", interval)
	if full {
		q.Set("includePrePost", "true")
		q.Set("events", "div|split")
	}
	q.Set("_", strconv.FormatInt(y.now().UnixMilli(), 10))
	return strings.TrimRight(y.opts.ChartBaseURL, "/") + "/" + url.PathEscape(symbol) + "?" + q.Encode()
}

func (y *Yahoo) quoteURL(symbol string) string {
	q := url.Values{}
	q.Set("symbols", symbol)
	q.Set("_", strconv.FormatInt(y.now().UnixMilli(), 10))
	return y.opts.QuoteBaseURL + "?" + q.Encode()
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *apiError     `json:"error"`
	} `json:"chart"`
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta       *chartMeta `json:"meta"`
	Timestamp  []int64    `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

type chartMeta struct {
	Symbol               string          `json:"symbol"`
	ShortName            string          `json:"shortName"`
	LongName             string          `json:"longName"`
	ExchangeName         string          `json:"exchangeName"`
	Currency             string          `json:"currency"`
	RegularMarketPrice   *float64        `json:"regularMarketPrice"`
	ChartPreviousClose   *float64        `json:"chartPreviousClose"`
	CurrentTradingPeriod *tradingPeriods `json:"currentTradingPeriod"`
}

type tradingPeriod struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

type tradingPeriods struct {
	Pre     tradingPeriod `json:"pre"`
	Regular tradingPeriod `json:"regular"`
	Post    tradingPeriod `json:"post"`
}

func (p tradingPeriod) contains(sec int64) bool {
	return p.Start != 0 && sec >= p.Start && sec < p.End
}

func (m *chartMeta) marketState(at time.Time) model.MarketState {
	if m.CurrentTradingPeriod == nil {
		return model.MarketRegular
	}
	sec := at.Unix()
	switch {
	case m.CurrentTradingPeriod.Regular.contains(sec):
		return model.MarketRegular
	case m.CurrentTradingPeriod.Pre.contains(sec):
		return model.MarketPre
	case m.CurrentTradingPeriod.Post.contains(sec):
		return model.MarketPost
	default:
		return model.MarketClosed
	}
}

func (m *chartMeta) displayName() string {
	switch {
	case m.LongName != "":
		return m.LongName
	case m.ShortName != "":
		return m.ShortName
	default:
		return m.Symbol
	}
}

// chartSeries is a decoded full-series chart response.
type chartSeries struct {
	meta    chartMeta
	samples []model.Sample
}

func firstChartResult(body []byte) (*chartResult, error) {
	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("%w: decode chart: %v", ErrMalformed, err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: empty chart result", ErrMalformed)
	}
	return &chart.Chart.Result[0], nil
}

func at(vals []*float64, i int) *float64 {
	if i < len(vals) {
		return vals[i]
	}
	return nil
}

// decodeSeries zips the parallel arrays by index. Bars with a null open or
// close are dropped, absent high/low fall back to the body of the candle, and
// bars that do not advance the timestamp are skipped.
func decodeSeries(body []byte) (*chartSeries, error) {
	result, err := firstChartResult(body)
	if err != nil {
		return nil, err
	}
	if len(result.Timestamp) == 0 {
		return nil, fmt.Errorf("%w: no timestamps", ErrMalformed)
	}
	if len(result.Indicators.Quote) == 0 || result.Indicators.Quote[0].Close == nil {
		return nil, fmt.Errorf("%w: no close prices", ErrMalformed)
	}
	quote := result.Indicators.Quote[0]

	samples := make([]model.Sample, 0, len(result.Timestamp))
	var lastTime int64 = math.MinInt64
	for i, ts := range result.Timestamp {
		o, c := at(quote.Open, i), at(quote.Close, i)
		if o == nil || c == nil {
			continue
		}
		t := ts * 1000
		if t <= lastTime {
			continue
		}
		s := model.Sample{Time: t, Open: *o, Close: *c, High: math.Max(*o, *c), Low: math.Min(*o, *c)}
		if h := at(quote.High, i); h != nil {
			s.High = *h
		}
		if l := at(quote.Low, i); l != nil {
			s.Low = *l
		}
		if v := at(quote.Volume, i); v != nil && *v > 0 {
			s.Volume = int64(*v)
		}
		samples = append(samples, s)
		lastTime = t
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no usable bars", ErrMalformed)
	}

	series := &chartSeries{samples: samples}
	if result.Meta != nil {
		series.meta = *result.Meta
	}
	return series, nil
}

// decodeChartQuote reads the minimal chart shape used as the live-quote backup.
func (y *Yahoo) decodeChartQuote(body []byte) (model.QuoteUpdate, error) {
	result, err := firstChartResult(body)
	if err != nil {
		return model.QuoteUpdate{}, err
	}
	meta := result.Meta
	if meta == nil || meta.RegularMarketPrice == nil || meta.ChartPreviousClose == nil {
		return model.QuoteUpdate{}, fmt.Errorf("%w: no chart meta", ErrMalformed)
	}
	price, prev := *meta.RegularMarketPrice, *meta.ChartPreviousClose
	q := model.QuoteUpdate{
		LastPrice:   price,
		Change:      price - prev,
		MarketState: meta.marketState(y.now()),
	}
	if prev != 0 {
		q.ChangePercent = (price - prev) / prev * 100
	}
	return q, nil
}

// yahooQuote is the response structure from Yahoo Finance quote API.
type yahooQuote struct {
	QuoteResponse struct {
		Result []struct {
			Symbol                     string   `json:"symbol"`
			RegularMarketPrice         *float64 `json:"regularMarketPrice"`
			RegularMarketChange        *float64 `json:"regularMarketChange"`
			RegularMarketChangePercent *float64 `json:"regularMarketChangePercent"`
			RegularMarketPreviousClose *float64 `json:"regularMarketPreviousClose"`
			MarketState                string   `json:"marketState"`
		} `json:"result"`
		Error *apiError `json:"error"`
	} `json:"quoteResponse"`
}

func decodeQuote(body []byte) (model.QuoteUpdate, error) {
	var resp yahooQuote
	if err := json.Unmarshal(body, &resp); err != nil {
		return model.QuoteUpdate{}, fmt.Errorf("%w: decode quote: %v", ErrMalformed, err)
	}
	if resp.QuoteResponse.Error != nil {
		return model.QuoteUpdate{}, fmt.Errorf("yahoo api error: %s", resp.QuoteResponse.Error.Description)
	}
	if len(resp.QuoteResponse.Result) == 0 || resp.QuoteResponse.Result[0].RegularMarketPrice == nil {
		return model.QuoteUpdate{}, fmt.Errorf("%w: no quote result", ErrMalformed)
	}
	r := resp.QuoteResponse.Result[0]
	q := model.QuoteUpdate{
		LastPrice:   *r.RegularMarketPrice,
		MarketState: model.ParseMarketState(r.MarketState),
	}
	switch {
	case r.RegularMarketChange != nil:
		q.Change = *r.RegularMarketChange
	case r.RegularMarketPreviousClose != nil:
		q.Change = q.LastPrice - *r.RegularMarketPreviousClose
	}
	switch {
	case r.RegularMarketChangePercent != nil:
		q.ChangePercent = *r.RegularMarketChangePercent
	case r.RegularMarketPreviousClose != nil && *r.RegularMarketPreviousClose != 0:
		q.ChangePercent = q.Change / *r.RegularMarketPreviousClose * 100
	}
	return q, nil
}

// NewHTTPClient creates the client shared by every race attempt, with
// optional proxy support. Attempts carry their own deadlines.
func NewHTTPClient(proxyURL string) *http.Client {
	transport := &http.Transport{
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{Transport: transport}
}
