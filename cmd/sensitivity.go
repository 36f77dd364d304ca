package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/rnpv-cli/internal/input"
	"github.com/sells-group/rnpv-cli/internal/sensitivity"
)

var sensitivityCmd = &cobra.Command{
	Use:   "sensitivity <snapshot.yaml>",
	Short: "Tornado analysis: NPV swing per assumption",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asset, err := input.LoadSnapshot(args[0])
		if err != nil {
			return err
		}
		opts, err := valuationOptions()
		if err != nil {
			return err
		}

		t, err := sensitivity.Run(cmd.Context(), asset.Snapshot, sensitivity.DefaultDrivers(asset.Snapshot), opts)
		if err != nil {
			return eris.Wrapf(err, "sensitivity %s", asset.Snapshot.ID)
		}

		if jsonOutput {
			return writeJSON(os.Stdout, t)
		}
		formatTornado(os.Stdout, t)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sensitivityCmd)
}

// formatTornado writes swings largest first.
func formatTornado(out io.Writer, t *sensitivity.Tornado) {
	_, _ = fmt.Fprintf(out, "Base rNPV for %s: %s\n\n", t.SnapshotID, formatMoney(t.BaseNPV))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DRIVER\tLOW\tLOW NPV\tHIGH\tHIGH NPV\tSWING")
	for _, s := range t.Swings {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.Driver, s.LowLabel, formatMoney(s.LowNPV), s.HighLabel, formatMoney(s.HighNPV), formatMoney(s.Swing))
	}
	_ = w.Flush()
}
