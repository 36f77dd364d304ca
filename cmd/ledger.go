package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/rnpv-cli/internal/input"
	"github.com/sells-group/rnpv-cli/internal/model"
)

var (
	ledgerStored     bool
	ledgerTotalsOnly bool
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger <snapshot.yaml | snapshot-id>",
	Short: "Print the per-year cash-flow ledger of an asset",
	Long:  "Computes the ledger from a snapshot file, or with --stored reads the last saved ledger for a snapshot ID.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var ledger *model.Ledger
		if ledgerStored {
			st, err := openMigratedStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			ledger, err = st.GetLedger(ctx, args[0])
			if err != nil {
				return eris.Wrap(err, "ledger")
			}
		} else {
			asset, err := input.LoadSnapshot(args[0])
			if err != nil {
				return err
			}
			ledger, _, err = runValuation(asset.Snapshot)
			if err != nil {
				return err
			}
		}

		records := ledger.Records
		if ledgerTotalsOnly {
			records = ledger.Totals()
		}
		if jsonOutput {
			return writeJSON(os.Stdout, &model.Ledger{SnapshotID: ledger.SnapshotID, Records: records})
		}
		formatLedger(os.Stdout, records)
		return nil
	},
}

func init() {
	ledgerCmd.Flags().BoolVar(&ledgerStored, "stored", false, "read the saved ledger for a snapshot ID instead of computing it")
	ledgerCmd.Flags().BoolVar(&ledgerTotalsOnly, "totals", false, "show only the per-year Total rows")
	rootCmd.AddCommand(ledgerCmd)
}

// formatLedger writes ledger records as a table.
func formatLedger(out io.Writer, records []model.CashFlowRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	_, _ = fmt.Fprintln(w, "YEAR\tSCOPE\tSCENARIO\tPROB\tREVENUE\tCOSTS\tTAX\tCASH FLOW\tRISK\tRISK-ADJ\tPV\t")
	for _, r := range records {
		scope := r.Scope
		if r.Scope == model.ScopeRD && r.Phase.Valid() {
			scope = fmt.Sprintf("%s (%s)", r.Scope, r.Phase)
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.4f\t%.2f\t%.2f\t\n",
			r.Year, scope, r.Scenario, r.Probability,
			r.Revenue, r.Costs, r.Tax, r.CashFlow,
			r.RiskMultiplier, r.RiskAdjusted, r.PresentValue,
		)
	}
	_ = w.Flush()
}
