package api

import "net/http"

// Res is the envelope of every JSON response.
type Res struct {
	Data  any `json:"data"`
	Error any `json:"error"`
}

// Error is a failure that carries its HTTP status.
type Error struct {
	StatusCode int
	Message    string
}

func NewError(status int, message string) Error {
	return Error{StatusCode: status, Message: message}
}

func (e Error) Error() string { return e.Message }

var (
	ErrNotTracked     = NewError(http.StatusNotFound, "symbol is not tracked")
	ErrHistoryTimeout = NewError(http.StatusGatewayTimeout, "history load timed out")
)

// InstrumentSummary is the list view of a tracked instrument.
type InstrumentSummary struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Range         string  `json:"range"`
	Bars          int     `json:"bars"`
	LastPrice     float64 `json:"lastPrice"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	MarketState   string  `json:"marketState"`
	Subscribers   int     `json:"subscribers"`
}
