package recorder

import (
	"path/filepath"
	"testing"
	"time"
)

func openTemp(t *testing.T) *SQLiteRecorder {
	t.Helper()
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func count(t *testing.T, r *SQLiteRecorder, table string) int {
	t.Helper()
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestSQLiteRecorder_WritesRows(t *testing.T) {
	r := openTemp(t)

	if err := r.RecordTick(&TickEvent{Symbol: "AAPL", Price: 190.5, MarketState: "REGULAR", Endpoint: "corsproxy/quote"}); err != nil {
		t.Fatal(err)
	}
	if err := r.RecordTick(&TickEvent{Symbol: "AAPL", Price: 190.6}); err != nil {
		t.Fatal(err)
	}
	if err := r.RecordLoad(&LoadEvent{Symbol: "AAPL", Range: "1D", Bars: 195}); err != nil {
		t.Fatal(err)
	}

	if n := count(t, r, "ticks"); n != 2 {
		t.Errorf("ticks = %d, want 2", n)
	}
	if n := count(t, r, "history_loads"); n != 1 {
		t.Errorf("history_loads = %d, want 1", n)
	}

	var price float64
	var endpoint string
	if err := r.db.QueryRow("SELECT price, endpoint FROM ticks ORDER BY id LIMIT 1").Scan(&price, &endpoint); err != nil {
		t.Fatal(err)
	}
	if price != 190.5 || endpoint != "corsproxy/quote" {
		t.Errorf("got %v %q", price, endpoint)
	}
}

func TestSQLiteRecorder_RecentRestarts(t *testing.T) {
	r := openTemp(t)
	base := time.UnixMilli(1700000000000)
	for i, reason := range []string{"dead", "stagnant", "dead"} {
		evt := &RestartEvent{Symbol: "TSLA", Generation: uint64(i + 2), Reason: reason, At: base.Add(time.Duration(i) * time.Second)}
		if err := r.RecordRestart(evt); err != nil {
			t.Fatal(err)
		}
	}

	got, err := r.RecentRestarts(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Generation != 4 || got[1].Reason != "stagnant" {
		t.Errorf("unexpected order: %+v", got)
	}
	if !got[0].At.Equal(base.Add(2 * time.Second)) {
		t.Errorf("at = %v", got[0].At)
	}
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NewNoopRecorder()
	if err := r.RecordTick(&TickEvent{}); err != nil {
		t.Fatal(err)
	}
	if got, err := r.RecentRestarts(5); err != nil || got != nil {
		t.Fatalf("got %v, %v", got, err)
	}
}
