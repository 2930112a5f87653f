package collector

import "strings"

// Range is an upstream (sampling interval, window) pair for a selector.
type Range struct {
	Selector string
	Interval string
	Window   string
}

// DefaultRange is used for unrecognized selectors.
const DefaultRange = "1D"

var ranges = map[string]Range{
	"1D":  {Selector: "1D", Interval: "2m", Window: "1d"},
	"5D":  {Selector: "5D", Interval: "15m", Window: "5d"},
	"1M":  {Selector: "1M", Interval: "60m", Window: "1mo"},
	"6M":  {Selector: "6M", Interval: "1d", Window: "6mo"},
	"YTD": {Selector: "YTD", Interval: "1d", Window: "ytd"},
	"1Y":  {Selector: "1Y", Interval: "1d", Window: "1y"},
	"5Y":  {Selector: "5Y", Interval: "1wk", Window: "5y"},
	"MAX": {Selector: "MAX", Interval: "1mo", Window: "max"},
}

// LookupRange maps a selector to its upstream pair, falling back to the
// intraday mapping.
func LookupRange(selector string) Range {
	if r, ok := ranges[strings.ToUpper(strings.TrimSpace(selector))]; ok {
		return r
	}
	return ranges[DefaultRange]
}
