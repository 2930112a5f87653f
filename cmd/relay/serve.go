package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"MarketRelay/internal/api"
	"MarketRelay/internal/config"
	"MarketRelay/internal/engine"
	"MarketRelay/internal/metrics"
	"MarketRelay/internal/notifier"
	"MarketRelay/internal/publisher"
	"MarketRelay/internal/recorder"
	"MarketRelay/internal/scheduler"
	"MarketRelay/internal/tracker"
)

var (
	reportOnStart bool

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Track the configured symbols and serve them over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cfg)
		},
	}
)

func init() {
	serveCmd.Flags().BoolVar(&reportOnStart, "report-on-start", os.Getenv("RUN_ON_START") == "true", "send the summary report once the first instruments load")
}

func openRecorder(c *config.Config) recorder.Recorder {
	if c.Database.SQLitePath == "" {
		return recorder.NewNoopRecorder()
	}
	if err := os.MkdirAll(filepath.Dir(c.Database.SQLitePath), 0o755); err != nil {
		log.Printf("[WARN] create data dir failed, using noop recorder: %v", err)
		return recorder.NewNoopRecorder()
	}
	sr, err := recorder.NewSQLiteRecorder(c.Database.SQLitePath)
	if err != nil {
		log.Printf("[WARN] init sqlite recorder failed, using noop: %v", err)
		return recorder.NewNoopRecorder()
	}
	return sr
}

func openSinks(ctx context.Context, c *config.Config, rec recorder.Recorder) []publisher.Publisher {
	sinks := []publisher.Publisher{publisher.NewRecorderSink(rec)}

	if c.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: c.Redis.Addr, Password: c.Redis.Password, DB: c.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Printf("[WARN] redis %s unreachable, publishing anyway: %v", c.Redis.Addr, err)
		}
		sinks = append(sinks, publisher.NewRedisSink(client, c.Redis.TTL))
		log.Printf("[INFO] publishing to redis %s", c.Redis.Addr)
	}

	if len(c.Kafka.Brokers) > 0 {
		if c.Kafka.EnsureTopic {
			if err := publisher.EnsureTopic(c.Kafka.Brokers[0], c.Kafka.Topic); err != nil {
				log.Printf("[WARN] ensure kafka topic: %v", err)
			}
		}
		sinks = append(sinks, publisher.NewKafkaSink(c.Kafka.Brokers, c.Kafka.Topic))
		log.Printf("[INFO] publishing to kafka topic %s", c.Kafka.Topic)
	}
	return sinks
}

func serve(c *config.Config) error {
	log.Printf("[INFO] MarketRelay starting (profile %s, %d forwarders)", c.Profile, len(c.Forwarders))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rec := openRecorder(c)
	defer rec.Close()

	disp := publisher.NewDispatcher(c.Publisher.Buffer, c.Publisher.Timeout, openSinks(ctx, c, rec)...)
	defer func() {
		if err := disp.Close(); err != nil {
			log.Printf("[ERROR] close sinks: %v", err)
		}
	}()

	var tn *notifier.TelegramNotifier
	var sender scheduler.Sender
	if c.TelegramEnabled() {
		tn = notifier.NewTelegramNotifier(c.Telegram.BotToken, c.Telegram.ChatID, c.Proxy)
		sender = tn
	} else {
		log.Println("[INFO] telegram not configured, chat delivery disabled")
	}

	set := tracker.NewSet()
	var sched *scheduler.Scheduler
	eng := newEngine(c, newSource(c), func(ev engine.RestartEvent) { sched.OnRestart(ev) })
	sched = scheduler.NewScheduler(ctx, eng, set, sender, rec)
	sched.QuoteTimeout = c.Server.HistoryTimeout
	if err := sched.RegisterAll(c.Schedule.ReportCron); err != nil {
		return err
	}

	eng.Start()
	defer eng.Close()
	sched.Start()
	defer sched.Stop()
	defer set.Close()

	for _, symbol := range c.Symbols {
		unsubscribe := eng.Subscribe(symbol, disp.Handle)
		defer unsubscribe()
	}
	loaded := make(chan struct{}, len(c.Symbols))
	for _, symbol := range c.Symbols {
		go func(symbol string) {
			t, err := tracker.Track(ctx, eng, symbol, c.Range, nil)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("[ERROR] track %s: %v", symbol, err)
				}
				return
			}
			set.Add(t)
			snap := t.Snapshot()
			sched.OnLoad(&snap)
			log.Printf("[INFO] tracking %s (%d bars)", symbol, len(snap.Series))
			loaded <- struct{}{}
		}(symbol)
	}
	if reportOnStart {
		go func() {
			select {
			case <-loaded:
				sched.RunReportNow()
			case <-ctx.Done():
			}
		}()
	}

	if tn != nil {
		go tn.StartPolling(ctx, 30*time.Second, sched.HandleCommand)
		log.Println("[INFO] Telegram polling started")
	}

	srv := &http.Server{
		Addr: c.Server.Addr,
		Handler: api.New(eng, set, api.Options{
			HistoryTimeout: c.Server.HistoryTimeout,
			StreamBuffer:   c.Server.StreamBuffer,
			Gatherer:       reg,
			OnLoad:         sched.OnLoad,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[INFO] HTTP API listening on %s", c.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Println("[INFO] MarketRelay is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	var runErr error
	select {
	case <-sigCh:
		log.Println("[INFO] shutdown signal received, stopping...")
	case runErr = <-errCh:
		log.Printf("[ERROR] http server: %v", runErr)
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[WARN] http shutdown: %v", err)
	}
	cancel()
	log.Println("[INFO] MarketRelay stopped")
	return runErr
}
