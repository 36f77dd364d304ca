package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/rnpv-cli/internal/input"
	"github.com/sells-group/rnpv-cli/internal/model"
	"github.com/sells-group/rnpv-cli/internal/valuation"
)

var valueSave bool

var valueCmd = &cobra.Command{
	Use:   "value <snapshot.yaml>",
	Short: "Run the deterministic rNPV valuation of one asset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "value"))

		asset, err := input.LoadSnapshot(args[0])
		if err != nil {
			return err
		}
		ledger, result, err := runValuation(asset.Snapshot)
		if err != nil {
			return err
		}
		for _, w := range result.Warnings {
			log.Warn("valuation warning",
				zap.String("code", string(w.Code)),
				zap.String("phase", w.Phase.String()),
				zap.String("message", w.Message),
			)
		}

		if valueSave {
			st, err := openMigratedStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			if err := st.ReplaceLedger(ctx, ledger, result); err != nil {
				return eris.Wrap(err, "value: save ledger")
			}
			log.Info("ledger saved",
				zap.String("snapshot_id", ledger.SnapshotID),
				zap.Int("records", len(ledger.Records)),
			)
		}

		if jsonOutput {
			return writeJSON(os.Stdout, result)
		}
		formatResult(os.Stdout, result)
		return nil
	},
}

func init() {
	valueCmd.Flags().BoolVar(&valueSave, "save", false, "replace the stored ledger and result for this snapshot")
	rootCmd.AddCommand(valueCmd)
}

// runValuation runs the deterministic engine with configured options and
// counts the outcome.
func runValuation(s *model.Snapshot) (*model.Ledger, *model.Result, error) {
	opts, err := valuationOptions()
	if err != nil {
		return nil, nil, err
	}
	ledger, result, err := valuation.Run(s, opts)
	if collector != nil {
		collector.ValuationCompleted(err)
	}
	if err != nil {
		return nil, nil, eris.Wrapf(err, "value %s", s.ID)
	}
	return ledger, result, nil
}

// formatResult writes the headline numbers and the region × scenario
// breakdown of a valuation.
func formatResult(out io.Writer, r *model.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Snapshot:\t%s\n", r.SnapshotID)
	_, _ = fmt.Fprintf(w, "rNPV:\t%s\n", formatMoney(r.NPVTotal))
	_, _ = fmt.Fprintf(w, "  R&D:\t%s\n", formatMoney(r.NPVRD))
	_, _ = fmt.Fprintf(w, "  Commercial:\t%s\n", formatMoney(r.NPVCommercial))
	_, _ = fmt.Fprintf(w, "Cumulative POS:\t%s\n", formatPct(r.CumulativePOS))
	_, _ = fmt.Fprintf(w, "Peak sales:\t%s\n", formatMoney(r.PeakSales))
	_ = w.Flush()

	if len(r.NPVByRegionScenario) > 0 {
		_, _ = fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "REGION\tSCENARIO\tNPV")
		regions := make([]string, 0, len(r.NPVByRegionScenario))
		for region := range r.NPVByRegionScenario {
			regions = append(regions, region)
		}
		sort.Strings(regions)
		for _, region := range regions {
			byScenario := r.NPVByRegionScenario[region]
			scenarios := make([]string, 0, len(byScenario))
			for sc := range byScenario {
				scenarios = append(scenarios, sc)
			}
			sort.Strings(scenarios)
			for _, sc := range scenarios {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", region, sc, formatMoney(byScenario[sc]))
			}
		}
		_ = w.Flush()
	}

	if len(r.Warnings) > 0 {
		_, _ = fmt.Fprintln(out)
		for _, warn := range r.Warnings {
			_, _ = fmt.Fprintf(out, "warning [%s] %s\n", warn.Code, warn.Message)
		}
	}
}
