package calculator

import "MarketRelay/internal/model"

const (
	SMAPeriod       = 20
	EMAPeriod       = 50
	BollingerPeriod = 20
	BollingerWidth  = 2.0
	RSIPeriod       = 14
)

// Augment derives every indicator over the whole series. The input is
// never modified; sample fields are copied unchanged into the result.
func Augment(samples []model.Sample) []model.AugmentedSample {
	closes := extractCloses(samples)
	sma := SMASeries(closes, SMAPeriod)
	ema := EMASeries(closes, EMAPeriod)
	upper, middle, lower := BollingerSeries(closes, BollingerPeriod, BollingerWidth)
	rsi := RSISeries(closes, RSIPeriod)

	out := make([]model.AugmentedSample, len(samples))
	for i, s := range samples {
		out[i] = model.AugmentedSample{
			Sample:          s,
			SMA:             sma[i],
			EMA:             ema[i],
			BollingerUpper:  upper[i],
			BollingerMiddle: middle[i],
			BollingerLower:  lower[i],
			RSI:             rsi[i],
		}
	}
	return out
}
