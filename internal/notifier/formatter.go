package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"MarketRelay/internal/calculator"
	"MarketRelay/internal/model"
	"MarketRelay/internal/recorder"
)

// latest returns the newest non-nil value of an indicator.
func latest(series []model.AugmentedSample, pick func(model.AugmentedSample) *float64) (float64, bool) {
	for i := len(series) - 1; i >= 0; i-- {
		if v := pick(series[i]); v != nil {
			return *v, true
		}
	}
	return 0, false
}

func arrow(change float64) string {
	switch {
	case change > 0:
		return "🟢"
	case change < 0:
		return "🔴"
	default:
		return "⚪"
	}
}

// FormatQuote formats one instrument with its latest indicator readings.
func FormatQuote(s model.InstrumentState) string {
	var b strings.Builder
	name := s.Symbol
	if s.Name != "" && s.Name != s.Symbol {
		name = fmt.Sprintf("%s (%s)", html.EscapeString(s.Name), s.Symbol)
	}
	b.WriteString(fmt.Sprintf("%s <b>%s</b>\n", arrow(s.Change), name))
	b.WriteString(fmt.Sprintf("Price: %.2f %s (%+.2f, %+.2f%%)\n", s.LastPrice, s.Currency, s.Change, s.ChangePercent))
	b.WriteString(fmt.Sprintf("Session: %s\n", s.MarketState))

	if v, ok := latest(s.Series, func(a model.AugmentedSample) *float64 { return a.SMA }); ok {
		b.WriteString(fmt.Sprintf("SMA20: %.2f\n", v))
	}
	if v, ok := latest(s.Series, func(a model.AugmentedSample) *float64 { return a.EMA }); ok {
		b.WriteString(fmt.Sprintf("EMA50: %.2f\n", v))
	}
	up, okU := latest(s.Series, func(a model.AugmentedSample) *float64 { return a.BollingerUpper })
	lo, okL := latest(s.Series, func(a model.AugmentedSample) *float64 { return a.BollingerLower })
	if okU && okL {
		b.WriteString(fmt.Sprintf("Bollinger: %.2f / %.2f\n", lo, up))
	}
	if v, ok := latest(s.Series, func(a model.AugmentedSample) *float64 { return a.RSI }); ok {
		label := ""
		switch {
		case v >= 70:
			label = " overbought"
		case v <= 30:
			label = " oversold"
		}
		b.WriteString(fmt.Sprintf("RSI14: %.1f%s\n", v, label))
	}
	if high, low, err := calculator.CalculateRange(s.RawSeries(), 0); err == nil {
		if pos, err := calculator.CalculatePosition(s.LastPrice, high, low); err == nil {
			b.WriteString(fmt.Sprintf("%s range: %.2f - %.2f (at %.0f%%)\n", s.Range, low, high, pos*100))
		}
	}
	if s.Provenance.Endpoint != "" {
		b.WriteString(fmt.Sprintf("via %s\n", s.Provenance.Endpoint))
	}
	return b.String()
}

// FormatReport formats the periodic summary of every tracked instrument.
func FormatReport(states []model.InstrumentState, at time.Time) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>MarketRelay report</b> | %s\n\n", at.Format("2006-01-02 15:04")))
	if len(states) == 0 {
		b.WriteString("No instruments tracked.")
		return b.String()
	}
	for _, s := range states {
		line := fmt.Sprintf("%s <b>%s</b> %.2f (%+.2f%%)", arrow(s.Change), s.Symbol, s.LastPrice, s.ChangePercent)
		if v, ok := latest(s.Series, func(a model.AugmentedSample) *float64 { return a.RSI }); ok {
			line += fmt.Sprintf(" RSI %.0f", v)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

// FormatRestartAlert formats a watchdog restart notice.
func FormatRestartAlert(symbol, reason string, generation uint64, at time.Time) string {
	what := "no data received"
	if reason == "stagnant" {
		what = "price stopped moving"
	}
	return fmt.Sprintf("⚠️ <b>%s feed restarted</b>\n%s, poller generation %d\n%s",
		symbol, what, generation, at.Format("15:04:05"))
}

// FormatStatus formats the /status reply.
func FormatStatus(subscribed []string, restarts []recorder.RestartEvent) string {
	var b strings.Builder
	b.WriteString("📦 <b>Relay status</b>\n\n")
	if len(subscribed) == 0 {
		b.WriteString("Live feeds: none\n")
	} else {
		b.WriteString(fmt.Sprintf("Live feeds: %s\n", strings.Join(subscribed, ", ")))
	}
	if len(restarts) > 0 {
		b.WriteString("\nRecent restarts:\n")
		for _, r := range restarts {
			b.WriteString(fmt.Sprintf("  %s %s %s (gen %d)\n", r.At.Format("01-02 15:04:05"), r.Symbol, r.Reason, r.Generation))
		}
	}
	return b.String()
}
