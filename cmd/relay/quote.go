package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"MarketRelay/internal/engine"
	"MarketRelay/internal/model"
)

var (
	quoteFollow bool

	quoteCmd = &cobra.Command{
		Use:   "quote SYMBOL",
		Short: "Fetch one live quote, or follow the live feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			src := newSource(cfg)
			symbol := engine.Normalize(args[0])
			enc := json.NewEncoder(os.Stdout)

			if !quoteFollow {
				q, err := src.FetchQuote(ctx, symbol)
				if err != nil {
					return fmt.Errorf("quote %s: %w", symbol, err)
				}
				q.Symbol = symbol
				return enc.Encode(q)
			}

			eng := newEngine(cfg, src, func(ev engine.RestartEvent) {
				fmt.Fprintf(os.Stderr, "restarted %s (%s), generation %d\n", ev.Symbol, ev.Reason, ev.Generation)
			})
			eng.Start()
			defer eng.Close()

			updates := make(chan model.QuoteUpdate, 16)
			unsubscribe := eng.Subscribe(symbol, func(u model.QuoteUpdate) {
				select {
				case updates <- u:
				default:
				}
			})
			defer unsubscribe()

			for {
				select {
				case <-ctx.Done():
					return nil
				case u := <-updates:
					if err := enc.Encode(u); err != nil {
						return err
					}
				}
			}
		},
	}
)

func init() {
	quoteCmd.Flags().BoolVarP(&quoteFollow, "follow", "f", false, "keep streaming live updates")
}
