package collector

import (
	"context"
	"fmt"

	"MarketRelay/internal/model"
)

// FetchQuote runs the second-level race: the quote shape and the minimal
// chart shape through every transform, first valid answer wins.
func (y *Yahoo) FetchQuote(ctx context.Context, symbol string) (*model.QuoteUpdate, error) {
	res, err := Race(ctx, y.racer,
		Request[model.QuoteUpdate]{
			Shape:   ShapeQuote,
			Source:  "Yahoo Quote v7",
			Target:  y.quoteURL(symbol),
			Timeout: y.opts.QuoteTimeout,
			Decode:  decodeQuote,
		},
		Request[model.QuoteUpdate]{
			Shape:   ShapeChart,
			Source:  "Yahoo Chart v8",
			Target:  y.chartURL(symbol, "1d", "1d", false),
			Timeout: y.opts.QuoteTimeout,
			Decode:  y.decodeChartQuote,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("quote %s: %w", symbol, err)
	}
	q := res.Value
	q.Symbol = symbol
	q.Provenance = res.Provenance
	return &q, nil
}
