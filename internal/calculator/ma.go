package calculator

import (
	"errors"

	"MarketRelay/internal/model"
)

// CalculateSMA computes the simple moving average of the given prices over the specified period.
func CalculateSMA(prices []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(prices) < period {
		return 0, errors.New("not enough data for SMA calculation")
	}
	sum := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		sum += prices[i]
	}
	return sum / float64(period), nil
}

// SMASeries returns the trailing SMA at every index; entries before the
// window is full are nil.
func SMASeries(closes []float64, period int) []*float64 {
	out := make([]*float64, len(closes))
	if period <= 0 {
		return out
	}
	for i := period - 1; i < len(closes); i++ {
		v, err := CalculateSMA(closes[:i+1], period)
		if err != nil {
			continue
		}
		out[i] = &v
	}
	return out
}

// EMASeries seeds with the first close and applies k = 2/(period+1).
// The recurrence runs from index 1 but values are only exposed from index
// period onward.
func EMASeries(closes []float64, period int) []*float64 {
	out := make([]*float64, len(closes))
	if len(closes) == 0 || period <= 0 {
		return out
	}
	k := 2.0 / float64(period+1)
	ema := closes[0]
	for i := 1; i < len(closes); i++ {
		ema = closes[i]*k + ema*(1-k)
		if i >= period {
			v := ema
			out[i] = &v
		}
	}
	return out
}

func extractCloses(samples []model.Sample) []float64 {
	closes := make([]float64, len(samples))
	for i, s := range samples {
		closes[i] = s.Close
	}
	return closes
}
