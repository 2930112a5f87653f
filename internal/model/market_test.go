package model

import "testing"

func TestParseMarketState(t *testing.T) {
	cases := map[string]MarketState{
		"PRE":      MarketPre,
		"prepre":   MarketPre,
		"REGULAR":  MarketRegular,
		"POST":     MarketPost,
		"POSTPOST": MarketPost,
		"CLOSED":   MarketClosed,
		"":         MarketClosed,
		"weird":    MarketClosed,
	}
	for in, want := range cases {
		if got := ParseMarketState(in); got != want {
			t.Errorf("ParseMarketState(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestInstrumentState_CloneIsDeep(t *testing.T) {
	v := 10.0
	s := &InstrumentState{
		Symbol: "AAPL",
		Series: []AugmentedSample{{Sample: Sample{Time: 1, Close: 10}, SMA: &v}},
	}
	c := s.Clone()
	*c.Series[0].SMA = 99
	c.Series[0].Close = 99
	if *s.Series[0].SMA != 10 {
		t.Errorf("clone shares indicator pointer with original")
	}
	if s.Series[0].Close != 10 {
		t.Errorf("clone shares series backing array with original")
	}
}
