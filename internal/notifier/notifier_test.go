package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"MarketRelay/internal/model"
	"MarketRelay/internal/recorder"
)

const okReply = `{"ok":true,"result":{"message_id":1}}`

func newTestNotifier(srv *httptest.Server) *TelegramNotifier {
	n := NewTelegramNotifier("TOKEN", "42", "")
	n.APIBase = srv.URL
	n.RetryBase = time.Millisecond
	return n
}

func TestSend_PostsPayload(t *testing.T) {
	var got map[string]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(okReply))
	}))
	defer srv.Close()

	if err := newTestNotifier(srv).Send(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	if path != "/botTOKEN/sendMessage" {
		t.Errorf("path = %s", path)
	}
	if got["chat_id"] != "42" || got["text"] != "hello" || got["parse_mode"] != "HTML" {
		t.Errorf("payload = %v", got)
	}
}

func TestSendWithRetry_RecoversAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(okReply))
	}))
	defer srv.Close()

	if err := newTestNotifier(srv).SendWithRetry(context.Background(), "x", 3); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestSendWithRetry_Exhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := newTestNotifier(srv).SendWithRetry(context.Background(), "x", 2)
	if err == nil || !strings.Contains(err.Error(), "all 3 retries exhausted") {
		t.Fatalf("err = %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestStartPolling_RepliesToCommands(t *testing.T) {
	var (
		mu      sync.Mutex
		replies []string
		served  atomic.Bool
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			if served.Swap(true) {
				<-r.Context().Done()
				return
			}
			w.Write([]byte(`{"ok":true,"result":[{"update_id":7,"message":{"text":" /status "}},{"update_id":8}]}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var p map[string]string
			json.NewDecoder(r.Body).Decode(&p)
			mu.Lock()
			replies = append(replies, p["text"])
			mu.Unlock()
			w.Write([]byte(okReply))
			cancel()
		}
	}))
	defer srv.Close()

	var seen string
	done := make(chan struct{})
	go func() {
		newTestNotifier(srv).StartPolling(ctx, time.Second, func(_ context.Context, cmd string) string {
			seen = cmd
			return "ok"
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("polling did not stop")
	}
	if seen != "/status" {
		t.Errorf("command = %q", seen)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(replies) != 1 || replies[0] != "ok" {
		t.Errorf("replies = %v", replies)
	}
}

func TestGetUpdates_DecodesAndReportsFailures(t *testing.T) {
	answers := []struct {
		status int
		body   string
	}{
		{http.StatusOK, `{"ok":true,"result":[{"update_id":3,"message":{"text":"/quote@RelayBot aapl"}},{"update_id":4,"message":{"text":"  "}}]}`},
		{http.StatusOK, `{"ok":false,"error_code":409,"description":"Conflict: terminated by other getUpdates request"}`},
		{http.StatusUnauthorized, `Unauthorized`},
	}
	var (
		mu      sync.Mutex
		queries []updatesQuery
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var q updatesQuery
		json.NewDecoder(r.Body).Decode(&q)
		mu.Lock()
		a := answers[len(queries)]
		queries = append(queries, q)
		mu.Unlock()
		w.WriteHeader(a.status)
		w.Write([]byte(a.body))
	}))
	defer srv.Close()
	n := newTestNotifier(srv)

	updates, err := n.getUpdates(context.Background(), srv.Client(), 3, 20*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	q := queries[0]
	mu.Unlock()
	if q.Offset != 3 || q.Timeout != 20 {
		t.Errorf("query = %+v", q)
	}
	if len(updates) != 2 || updates[0].command() != "/quote aapl" || updates[1].command() != "" {
		t.Errorf("updates = %+v", updates)
	}

	var apiErr *APIError
	_, err = n.getUpdates(context.Background(), srv.Client(), 0, time.Second)
	if !errors.As(err, &apiErr) || !strings.Contains(apiErr.Description, "Conflict") {
		t.Errorf("ok=false: err = %v", err)
	}

	_, err = n.getUpdates(context.Background(), srv.Client(), 0, time.Second)
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized || apiErr.Method != "getUpdates" {
		t.Errorf("401: err = %v", err)
	}
}

func f(v float64) *float64 { return &v }

func TestFormatQuote(t *testing.T) {
	s := model.InstrumentState{
		Symbol: "AAPL", Name: "Apple Inc.", Currency: "USD", Range: "1D",
		LastPrice: 190.5, Change: 1.5, ChangePercent: 0.79, MarketState: model.MarketRegular,
		Series: []model.AugmentedSample{
			{Sample: model.Sample{High: 200, Low: 170}, RSI: f(75)},
			{Sample: model.Sample{High: 195, Low: 185}, SMA: f(188), BollingerUpper: f(195), BollingerLower: f(181)},
		},
		Provenance: model.Provenance{Endpoint: "allorigins/chart"},
	}
	out := FormatQuote(s)
	for _, want := range []string{"Apple Inc. (AAPL)", "190.50 USD", "SMA20: 188.00", "181.00 / 195.00", "RSI14: 75.0 overbought", "1D range: 170.00 - 200.00 (at 68%)", "via allorigins/chart"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "EMA50") {
		t.Errorf("EMA should be omitted while warming up")
	}
}

func TestFormatReportAndStatus(t *testing.T) {
	at := time.Date(2024, 3, 1, 16, 0, 0, 0, time.UTC)
	out := FormatReport([]model.InstrumentState{{Symbol: "MSFT", LastPrice: 400, ChangePercent: -1.2, Change: -4.9}}, at)
	if !strings.Contains(out, "2024-03-01 16:00") || !strings.Contains(out, "🔴 <b>MSFT</b> 400.00 (-1.20%)") {
		t.Errorf("report:\n%s", out)
	}
	if !strings.Contains(FormatReport(nil, at), "No instruments") {
		t.Error("empty report")
	}

	st := FormatStatus([]string{"AAPL", "MSFT"}, []recorder.RestartEvent{{Symbol: "AAPL", Reason: "dead", Generation: 3, At: at}})
	if !strings.Contains(st, "AAPL, MSFT") || !strings.Contains(st, "AAPL dead (gen 3)") {
		t.Errorf("status:\n%s", st)
	}
	if !strings.Contains(FormatRestartAlert("TSLA", "stagnant", 4, at), "price stopped moving") {
		t.Error("restart alert")
	}
}
