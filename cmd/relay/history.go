package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"MarketRelay/internal/notifier"
)

var (
	historyRange   string
	historyTimeout time.Duration
	historyJSON    bool

	historyCmd = &cobra.Command{
		Use:   "history SYMBOL",
		Short: "Load the augmented price history of one symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if historyTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, historyTimeout)
				defer cancel()
			}

			eng := newEngine(cfg, newSource(cfg), nil)
			defer eng.Close()

			state, err := eng.LoadHistorical(ctx, args[0], historyRange)
			if err != nil {
				return fmt.Errorf("load %s: %w", args[0], err)
			}
			if historyJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(state)
			}
			fmt.Printf("%s %s: %d bars via %s\n", state.Symbol, state.Range, len(state.Series), state.Provenance.Endpoint)
			fmt.Print(notifier.FormatQuote(*state))
			return nil
		},
	}
)

func init() {
	historyCmd.Flags().StringVar(&historyRange, "range", "1D", "range selector (1D, 5D, 1M, 6M, YTD, 1Y, 5Y, MAX)")
	historyCmd.Flags().DurationVar(&historyTimeout, "timeout", 0, "give up after this long (0 waits until interrupted)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print the full state as JSON")
}
