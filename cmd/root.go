package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/rnpv-cli/internal/config"
	"github.com/sells-group/rnpv-cli/internal/metrics"
)

var (
	cfg        *config.Config
	collector  *metrics.Collector
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:          "rnpv",
	Short:        "Risk-adjusted NPV valuation for pharmaceutical programs",
	Long:         "Values drug development programs with phase-weighted cash flows, runs Monte Carlo and correlated portfolio simulations, and stores the resulting ledgers.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		collector = metrics.New()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if collector != nil && cfg != nil {
			if err := collector.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
				zap.L().Warn("metrics textfile not written", zap.Error(err))
			}
		}
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
