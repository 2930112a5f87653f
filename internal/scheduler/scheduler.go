package scheduler

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"MarketRelay/internal/engine"
	"MarketRelay/internal/model"
	"MarketRelay/internal/notifier"
	"MarketRelay/internal/recorder"
	"MarketRelay/internal/tracker"
)

// Sender delivers chat messages.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Feed is the part of the engine the scheduler needs.
type Feed interface {
	Symbols() []string
	LoadHistorical(ctx context.Context, symbol, rangeSelector string) (*model.InstrumentState, error)
}

// Scheduler runs the periodic report and answers chat commands.
type Scheduler struct {
	Cron         *cron.Cron
	Feed         Feed
	Trackers     *tracker.Set
	Notifier     Sender
	Recorder     recorder.Recorder
	Ctx          context.Context
	QuoteTimeout time.Duration
}

// NewScheduler creates a new Scheduler. tn may be nil when chat delivery is
// not configured.
func NewScheduler(ctx context.Context, feed Feed, set *tracker.Set, tn Sender, rec recorder.Recorder) *Scheduler {
	return &Scheduler{
		Cron:         cron.New(cron.WithSeconds()),
		Feed:         feed,
		Trackers:     set,
		Notifier:     tn,
		Recorder:     rec,
		Ctx:          ctx,
		QuoteTimeout: 30 * time.Second,
	}
}

// RegisterAll registers the report task.
func (s *Scheduler) RegisterAll(reportCron string) error {
	if _, err := s.Cron.AddFunc(reportCron, s.reportTask); err != nil {
		return fmt.Errorf("register report task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Println("[INFO] scheduler stopped")
}

// RunReportNow executes the report task immediately.
func (s *Scheduler) RunReportNow() {
	s.reportTask()
}

func (s *Scheduler) reportTask() {
	log.Println("[INFO] running report task")
	s.trySend(notifier.FormatReport(s.Trackers.Snapshots(), time.Now()))
}

// OnRestart records a watchdog restart and alerts on dead feeds. It is
// called from the watchdog, so delivery happens in the background.
func (s *Scheduler) OnRestart(evt engine.RestartEvent) {
	if err := s.Recorder.RecordRestart(&recorder.RestartEvent{
		Symbol:     evt.Symbol,
		Generation: evt.Generation,
		Reason:     evt.Reason,
		At:         evt.At,
	}); err != nil {
		log.Printf("[ERROR] record restart: %v", err)
	}
	if evt.Reason == engine.ReasonDead {
		go s.trySend(notifier.FormatRestartAlert(evt.Symbol, evt.Reason, evt.Generation, evt.At))
	}
}

// OnLoad records a completed historical load.
func (s *Scheduler) OnLoad(state *model.InstrumentState) {
	if err := s.Recorder.RecordLoad(&recorder.LoadEvent{
		Symbol:    state.Symbol,
		Range:     state.Range,
		Bars:      len(state.Series),
		LastPrice: state.LastPrice,
		Source:    state.Provenance.Source,
		Endpoint:  state.Provenance.Endpoint,
		At:        time.UnixMilli(state.Provenance.RetrievedAt),
	}); err != nil {
		log.Printf("[ERROR] record load: %v", err)
	}
}

const help = "Available commands:\n• /status\n• /quote SYMBOL\n• /report"

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return help
	}
	// commands may arrive as /quote@BotName in groups
	name, _, _ := strings.Cut(strings.ToLower(fields[0]), "@")
	switch name {
	case "/status":
		restarts, err := s.Recorder.RecentRestarts(5)
		if err != nil {
			log.Printf("[ERROR] load restarts: %v", err)
		}
		return notifier.FormatStatus(s.Feed.Symbols(), restarts)
	case "/quote":
		if len(fields) < 2 {
			return "Usage: /quote SYMBOL"
		}
		return s.quote(ctx, engine.Normalize(fields[1]))
	case "/report":
		return notifier.FormatReport(s.Trackers.Snapshots(), time.Now())
	default:
		return help
	}
}

func (s *Scheduler) quote(ctx context.Context, symbol string) string {
	if t, ok := s.Trackers.Get(symbol); ok {
		return notifier.FormatQuote(t.Snapshot())
	}
	ctx, cancel := context.WithTimeout(ctx, s.QuoteTimeout)
	defer cancel()
	state, err := s.Feed.LoadHistorical(ctx, symbol, "1D")
	if err != nil {
		log.Printf("[WARN] /quote %s: %v", symbol, err)
		return fmt.Sprintf("❌ no data for %s right now", symbol)
	}
	s.OnLoad(state)
	return notifier.FormatQuote(*state)
}

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		log.Printf("[ERROR] send notification: %v", err)
	}
}
