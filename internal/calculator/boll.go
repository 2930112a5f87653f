package calculator

import "github.com/montanaflynn/stats"

// BollingerSeries computes middle = SMA(period) and upper/lower at
// width population standard deviations from it.
func BollingerSeries(closes []float64, period int, width float64) (upper, middle, lower []*float64) {
	n := len(closes)
	upper = make([]*float64, n)
	middle = make([]*float64, n)
	lower = make([]*float64, n)
	if period <= 0 {
		return
	}
	for i := period - 1; i < n; i++ {
		window := stats.Float64Data(closes[i-period+1 : i+1])
		mean, err := stats.Mean(window)
		if err != nil {
			continue
		}
		sd, err := stats.StandardDeviationPopulation(window)
		if err != nil {
			continue
		}
		m, u, l := mean, mean+width*sd, mean-width*sd
		middle[i], upper[i], lower[i] = &m, &u, &l
	}
	return
}
