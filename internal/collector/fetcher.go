package collector

import (
	"context"

	"MarketRelay/internal/model"
)

// Source defines the upstream capability the acquisition engine consumes.
type Source interface {
	// LoadHistorical blocks until a well-formed series is obtained or ctx ends.
	LoadHistorical(ctx context.Context, symbol, rangeSelector string) (*model.InstrumentState, error)
	// FetchQuote runs one live quote race; any error means the tick is skipped.
	FetchQuote(ctx context.Context, symbol string) (*model.QuoteUpdate, error)
	Name() string
}
