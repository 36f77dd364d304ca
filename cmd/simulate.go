package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/rnpv-cli/internal/input"
	"github.com/sells-group/rnpv-cli/internal/montecarlo"
	"github.com/sells-group/rnpv-cli/internal/store"
)

var simulateSave bool

var simulateCmd = &cobra.Command{
	Use:   "simulate <snapshot.yaml>",
	Short: "Run a Monte Carlo simulation of one asset",
	Long:  "Samples the shocks declared in the snapshot file and summarizes the NPV distribution. Interrupting the run prints the partial summary.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "simulate"))

		if err := applySimulationFlags(cmd); err != nil {
			return err
		}
		mc, err := simulationConfig()
		if err != nil {
			return err
		}

		asset, err := input.LoadSnapshot(args[0])
		if err != nil {
			return err
		}
		shocks, err := asset.Shocks.Build()
		if err != nil {
			return eris.Wrapf(err, "simulate: shocks for %s", asset.Snapshot.ID)
		}

		summary, runErr := montecarlo.Simulate(ctx, asset.Snapshot, shocks, mc)
		if summary == nil {
			return eris.Wrap(runErr, "simulate")
		}
		if runErr != nil {
			log.Warn("simulation interrupted, reporting partial results",
				zap.Int("completed", summary.Completed),
				zap.Int("iterations", summary.Iterations),
			)
		}

		if simulateSave {
			if err := saveSimulation(context.WithoutCancel(ctx), asset.Snapshot.ID, montecarlo.ModeSingle, *summary); err != nil {
				return err
			}
		}

		if jsonOutput {
			if err := writeJSON(os.Stdout, summary); err != nil {
				return err
			}
		} else {
			formatDistribution(os.Stdout, asset.Snapshot.ID, summary)
		}
		return interrupted(runErr)
	},
}

func init() {
	addSimulationFlags(simulateCmd)
	simulateCmd.Flags().BoolVar(&simulateSave, "save", false, "store the run summary")
	rootCmd.AddCommand(simulateCmd)
}

func addSimulationFlags(cmd *cobra.Command) {
	cmd.Flags().Int("iterations", 0, "number of iterations (default from config)")
	cmd.Flags().Uint64("seed", 0, "random seed (default from config)")
	cmd.Flags().Int("workers", 0, "worker goroutines (default from config; 0 = GOMAXPROCS)")
}

// applySimulationFlags copies explicitly set flags over the loaded config.
func applySimulationFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("iterations") {
		v, err := flags.GetInt("iterations")
		if err != nil {
			return err
		}
		cfg.Simulation.Iterations = v
	}
	if flags.Changed("seed") {
		v, err := flags.GetUint64("seed")
		if err != nil {
			return err
		}
		cfg.Simulation.Seed = v
	}
	if flags.Changed("workers") {
		v, err := flags.GetInt("workers")
		if err != nil {
			return err
		}
		cfg.Simulation.Workers = v
	}
	if flags.Lookup("correlation") != nil && flags.Changed("correlation") {
		v, err := flags.GetFloat64("correlation")
		if err != nil {
			return err
		}
		cfg.Simulation.Correlation = v
	}
	return nil
}

// interrupted turns a cancellation into a short error so the process exits
// non-zero after the partial summary has been printed.
func interrupted(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return eris.New("simulation interrupted; summary is partial")
	}
	return err
}

func saveSimulation(ctx context.Context, snapshotID, mode string, summary montecarlo.DistributionSummary) error {
	st, err := openMigratedStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	run, err := st.SaveSimulation(ctx, &store.SimulationRun{
		SnapshotID: snapshotID,
		Mode:       mode,
		Summary:    summary,
	})
	if err != nil {
		return eris.Wrap(err, "save simulation")
	}
	zap.L().Info("simulation saved",
		zap.String("run_id", run.ID),
		zap.String("snapshot_id", snapshotID),
		zap.Bool("partial", summary.Partial),
	)
	return nil
}

// formatDistribution writes a distribution summary.
func formatDistribution(out io.Writer, label string, s *montecarlo.DistributionSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	iterations := formatCount(s.Completed)
	if s.Partial {
		iterations = fmt.Sprintf("%s of %s (partial)", formatCount(s.Completed), formatCount(s.Iterations))
	}
	_, _ = fmt.Fprintf(w, "Asset:\t%s\n", label)
	_, _ = fmt.Fprintf(w, "Iterations:\t%s\n", iterations)
	_, _ = fmt.Fprintf(w, "Seed:\t%d\n", s.Seed)
	_, _ = fmt.Fprintf(w, "Mean NPV:\t%s\n", formatMoney(s.Mean))
	_, _ = fmt.Fprintf(w, "Std dev:\t%s\n", formatMoney(s.StdDev))
	_, _ = fmt.Fprintf(w, "95%% CI of mean:\t%s to %s\n", formatMoney(s.CI95Low), formatMoney(s.CI95High))
	_, _ = fmt.Fprintf(w, "P(NPV > 0):\t%s\n", formatPct(s.ProbabilityPositive))
	_, _ = fmt.Fprintf(w, "Min / Max:\t%s / %s\n", formatMoney(s.Min), formatMoney(s.Max))
	_ = w.Flush()

	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "P5\tP10\tP25\tP50\tP75\tP90\tP95")
	p := s.Percentiles
	_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
		formatMoney(p.P5), formatMoney(p.P10), formatMoney(p.P25), formatMoney(p.P50),
		formatMoney(p.P75), formatMoney(p.P90), formatMoney(p.P95),
	)
	_ = w.Flush()
}
