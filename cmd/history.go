package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/rnpv-cli/internal/store"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <snapshot-id | portfolio-name>",
	Short: "List stored simulation runs, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openMigratedStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListSimulations(ctx, args[0], historyLimit)
		if err != nil {
			return eris.Wrap(err, "history")
		}
		if jsonOutput {
			return writeJSON(os.Stdout, runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No simulation runs found.")
			return nil
		}
		formatSimulations(os.Stdout, runs)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "max number of runs to display")
	rootCmd.AddCommand(historyCmd)
}

// formatSimulations writes a tabular list of stored runs.
func formatSimulations(out io.Writer, runs []store.SimulationRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tMODE\tITERATIONS\tSEED\tMEAN\tP50\tCREATED")
	for _, r := range runs {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		iterations := formatCount(r.Summary.Completed)
		if r.Summary.Partial {
			iterations += "*"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			id, r.Mode, iterations, r.Summary.Seed,
			formatMoney(r.Summary.Mean), formatMoney(r.Summary.Percentiles.P50),
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}
