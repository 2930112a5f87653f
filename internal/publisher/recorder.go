package publisher

import (
	"context"
	"time"

	"MarketRelay/internal/model"
	"MarketRelay/internal/recorder"
)

// RecorderSink appends every quote to the audit trail.
type RecorderSink struct {
	rec recorder.Recorder
}

func NewRecorderSink(rec recorder.Recorder) *RecorderSink {
	return &RecorderSink{rec: rec}
}

func (r *RecorderSink) Name() string { return "recorder" }

func (r *RecorderSink) Publish(_ context.Context, u model.QuoteUpdate) error {
	at := time.Now()
	if u.Provenance.RetrievedAt > 0 {
		at = time.UnixMilli(u.Provenance.RetrievedAt)
	}
	return r.rec.RecordTick(&recorder.TickEvent{
		Symbol:        u.Symbol,
		Price:         u.LastPrice,
		Change:        u.Change,
		ChangePercent: u.ChangePercent,
		MarketState:   string(u.MarketState),
		Source:        u.Provenance.Source,
		Endpoint:      u.Provenance.Endpoint,
		RequestID:     u.Provenance.RequestID,
		At:            at,
	})
}

// Close is a no-op; the recorder is owned by the caller.
func (r *RecorderSink) Close() error { return nil }
