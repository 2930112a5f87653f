package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"MarketRelay/internal/collector"
	"MarketRelay/internal/config"
	"MarketRelay/internal/engine"
)

var (
	cfgPath string
	profile string
	cfg     *config.Config

	rootCmd = &cobra.Command{
		Use:           "relay",
		Short:         "Market data relay over racing forwarders",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(cfgPath, profile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			// single-symbol commands do not need a configured watch list
			if len(c.Symbols) == 0 && len(args) > 0 {
				c.Symbols = []string{engine.Normalize(args[0])}
			}
			if err := c.Validate(); err != nil {
				return fmt.Errorf("config validation: %w", err)
			}
			cfg = c
			return nil
		},
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("[FATAL] %v", err)
	}
}

func init() {
	defPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defPath = v
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defPath, "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "provider profile (hyper or steady)")

	rootCmd.AddCommand(serveCmd, historyCmd, quoteCmd)
}

func newSource(c *config.Config) *collector.Yahoo {
	racer := collector.NewRacer(collector.NewHTTPClient(c.Proxy), c.Transforms(), c.Upstream.UserAgent)
	return collector.NewYahoo(racer, collector.Options{
		ChartBaseURL:   c.Upstream.ChartBaseURL,
		QuoteBaseURL:   c.Upstream.QuoteBaseURL,
		HistoryTimeout: c.Timing.HistoryTimeout,
		QuoteTimeout:   c.Timing.QuoteTimeout,
		BackoffInitial: c.Timing.BackoffInitial,
		BackoffMax:     c.Timing.BackoffMax,
	})
}

func newEngine(c *config.Config, src collector.Source, onRestart func(engine.RestartEvent)) *engine.Engine {
	return engine.New(src, engine.Options{
		PollInterval:     c.Timing.PollInterval,
		WatchdogInterval: c.Timing.WatchdogInterval,
		DeadAfter:        c.Timing.DeadAfter,
		StagnantAfter:    c.Timing.StagnantAfter,
		OnRestart:        onRestart,
	})
}
