package calculator

import (
	"errors"
	"math"

	"MarketRelay/internal/model"
)

// CalculateRange scans the most recent lookback samples (all of them when
// lookback <= 0) and returns the high and low.
func CalculateRange(samples []model.Sample, lookback int) (high, low float64, err error) {
	if len(samples) == 0 {
		return 0, 0, errors.New("no samples provided")
	}
	n := len(samples)
	start := 0
	if lookback > 0 && n > lookback {
		start = n - lookback
	}
	high = math.Inf(-1)
	low = math.Inf(1)
	for i := start; i < n; i++ {
		if samples[i].High > high {
			high = samples[i].High
		}
		if samples[i].Low < low {
			low = samples[i].Low
		}
	}
	return high, low, nil
}

// CalculatePosition returns where the current price sits within [low, high] (0.0~1.0).
func CalculatePosition(current, high, low float64) (float64, error) {
	if high == low {
		return 0.5, nil
	}
	if high < low {
		return 0, errors.New("high must be >= low")
	}
	pos := (current - low) / (high - low)
	if pos < 0 {
		pos = 0
	}
	if pos > 1 {
		pos = 1
	}
	return pos, nil
}
