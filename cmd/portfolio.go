package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/rnpv-cli/internal/input"
	"github.com/sells-group/rnpv-cli/internal/montecarlo"
	"github.com/sells-group/rnpv-cli/internal/valuation"
)

var (
	portfolioSimulate bool
	portfolioSave     bool
)

var portfolioCmd = &cobra.Command{
	Use:   "portfolio <portfolio.yaml>",
	Short: "Value a portfolio of assets, optionally with a correlated simulation",
	Long:  "Runs every asset deterministically and aggregates NPV, peak sales, phase mix and the combined cash-flow timeline, then reports concentration, revenue gaps and the launch timeline. Assets marked inactive or carrying portfolio levers are reported against their stand-alone NPV. With --simulate, peak-sales shocks are correlated across active assets through a Gaussian copula.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "portfolio"))

		p, err := input.LoadPortfolio(args[0])
		if err != nil {
			return err
		}

		if !portfolioSimulate {
			summary, err := valuePortfolio(p)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(os.Stdout, summary)
			}
			formatPortfolio(os.Stdout, p.Name, summary)
			return nil
		}

		if p.Correlation != nil && !cmd.Flags().Changed("correlation") {
			cfg.Simulation.Correlation = *p.Correlation
		}
		if err := applySimulationFlags(cmd); err != nil {
			return err
		}
		mc, err := simulationConfig()
		if err != nil {
			return err
		}

		held := p.Active()
		assets := make([]montecarlo.Asset, 0, len(held))
		for _, h := range held {
			shocks, err := h.Shocks.Build()
			if err != nil {
				return eris.Wrapf(err, "portfolio: shocks for %s", h.Snapshot.ID)
			}
			assets = append(assets, montecarlo.Asset{Snapshot: h.Scenario(), Shocks: shocks})
		}

		summary, runErr := montecarlo.SimulatePortfolio(ctx, assets, mc)
		if summary == nil {
			return eris.Wrap(runErr, "portfolio: simulate")
		}
		if runErr != nil {
			log.Warn("simulation interrupted, reporting partial results",
				zap.Int("completed", summary.Portfolio.Completed),
			)
		}
		if portfolioSave {
			if err := saveSimulation(context.WithoutCancel(ctx), p.Name, montecarlo.ModePortfolio, summary.Portfolio); err != nil {
				return err
			}
		}

		if jsonOutput {
			if err := writeJSON(os.Stdout, summary); err != nil {
				return err
			}
		} else {
			formatPortfolioSimulation(os.Stdout, p.Name, summary)
		}
		return interrupted(runErr)
	},
}

func init() {
	addSimulationFlags(portfolioCmd)
	portfolioCmd.Flags().Float64("correlation", 0, "pairwise peak-sales correlation (default from file, then config)")
	portfolioCmd.Flags().BoolVar(&portfolioSimulate, "simulate", false, "run the correlated Monte Carlo instead of the deterministic summary")
	portfolioCmd.Flags().BoolVar(&portfolioSave, "save", false, "store the portfolio simulation summary")
	rootCmd.AddCommand(portfolioCmd)
}

// valuePortfolio runs every asset deterministically and aggregates them.
// An asset with portfolio levers is valued twice so the summary can show
// what the overrides are worth.
func valuePortfolio(p *input.Portfolio) (*valuation.PortfolioSummary, error) {
	assets := make([]valuation.Asset, 0, len(p.Assets))
	for _, h := range p.Assets {
		ledger, result, err := runValuation(h.Snapshot)
		if err != nil {
			return nil, err
		}
		a := valuation.Asset{Snapshot: h.Snapshot, Ledger: ledger, Result: result, Killed: !h.Active}
		if h.Active && h.Levers != nil {
			scenario := h.Scenario()
			sLedger, sResult, err := runValuation(scenario)
			if err != nil {
				return nil, err
			}
			a = valuation.Asset{Snapshot: scenario, Ledger: sLedger, Result: sResult, Baseline: result}
		}
		assets = append(assets, a)
	}
	return valuation.Summarize(assets), nil
}

// formatPortfolio writes the deterministic portfolio summary.
func formatPortfolio(out io.Writer, name string, s *valuation.PortfolioSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Portfolio:\t%s (%s assets)\n", name, formatCount(s.Assets))
	if s.Killed > 0 {
		_, _ = fmt.Fprintf(w, "Inactive:\t%s\n", formatCount(s.Killed))
	}
	_, _ = fmt.Fprintf(w, "Total rNPV:\t%s\n", formatMoney(s.NPVTotal))
	_, _ = fmt.Fprintf(w, "Mean / median rNPV:\t%s / %s\n", formatMoney(s.NPVMean), formatMoney(s.NPVMedian))
	_, _ = fmt.Fprintf(w, "Peak sales:\t%s\n", formatMoney(s.PeakSales))
	_ = w.Flush()

	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ASSET\tRNPV")
	ids := make([]string, 0, len(s.ByAsset))
	for id := range s.ByAsset {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", id, formatMoney(s.ByAsset[id]))
	}
	_ = w.Flush()

	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PHASE\tASSETS")
	phases := make([]string, 0, len(s.PhaseDistribution))
	for ph := range s.PhaseDistribution {
		phases = append(phases, ph)
	}
	sort.Strings(phases)
	for _, ph := range phases {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", ph, s.PhaseDistribution[ph])
	}
	_ = w.Flush()

	if len(s.Timeline) > 0 {
		_, _ = fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
		_, _ = fmt.Fprintln(w, "YEAR\tREVENUE\tCOSTS\tCASH FLOW\tRISK-ADJ\tPV\tCUMULATIVE PV\t")
		for _, y := range s.Timeline {
			_, _ = fmt.Fprintf(w, "%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t\n",
				y.Year, y.Revenue, y.Costs, y.CashFlow, y.RiskAdjusted, y.PresentValue, y.CumulativePV)
		}
		_ = w.Flush()
	}

	formatOverrides(out, s.Projects)
	formatConcentration(out, s.Concentration)
	formatTemporal(out, s)
}

// formatOverrides lists assets whose portfolio valuation differs from their
// stand-alone one.
func formatOverrides(out io.Writer, projects []valuation.Project) {
	var changed []valuation.Project
	for _, p := range projects {
		if p.Overridden {
			changed = append(changed, p)
		}
	}
	if len(changed) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "OVERRIDE\tSTATUS\tORIGINAL\tPORTFOLIO\tDELTA")
	for _, p := range changed {
		status := "active"
		if !p.Active {
			status = "killed"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.SnapshotID, status,
			formatMoney(p.NPVOriginal), formatMoney(p.NPVSimulated), formatMoney(p.NPVDelta))
	}
	_ = w.Flush()
}

func formatConcentration(out io.Writer, c *valuation.Concentration) {
	if c == nil {
		return
	}
	_, _ = fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CONCENTRATION\tHHI\tLEVEL\tLARGEST")
	for _, row := range []struct {
		name string
		hhi  valuation.HHI
	}{
		{"asset", c.ByAsset},
		{"therapeutic area", c.ByTherapeuticArea},
		{"phase", c.ByPhase},
	} {
		var largest string
		if len(row.hhi.Shares) > 0 {
			top := row.hhi.Shares[0]
			largest = fmt.Sprintf("%s (%s)", top.Name, formatPct(top.SharePct/100))
		}
		_, _ = fmt.Fprintf(w, "%s\t%.0f\t%s\t%s\n", row.name, row.hhi.Index, row.hhi.Level, largest)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TOP N\tRNPV\tSHARE\tRISK")
	for _, tn := range c.TopN {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", tn.N, formatMoney(tn.NPV), formatPct(tn.SharePct/100), tn.Risk)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "Diversification: %.1f/100 (grade %s)\n", c.Diversification.Score, c.Diversification.Grade)
}

func formatTemporal(out io.Writer, s *valuation.PortfolioSummary) {
	if len(s.Launches) > 0 {
		_, _ = fmt.Fprintln(out)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "LAUNCH\tASSET\tPHASE")
		for _, l := range s.Launches {
			_, _ = fmt.Fprintf(w, "%.2f\t%s\t%s\n", l.Date, l.SnapshotID, l.Phase)
		}
		_ = w.Flush()
	}

	_, _ = fmt.Fprintln(out)
	if s.PeakRevenueYear != 0 {
		_, _ = fmt.Fprintf(out, "Peak revenue year: %d\n", s.PeakRevenueYear)
	}
	if len(s.RevenueGaps) == 0 {
		_, _ = fmt.Fprintln(out, "No revenue gaps.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "GAP YEAR\tPREVIOUS\tREVENUE\tDROP\tSEVERITY")
	for _, g := range s.RevenueGaps {
		_, _ = fmt.Fprintf(w, "%d\t%.2f\t%.2f\t%s\t%s\n", g.Year, g.Previous, g.Revenue, formatPct(g.DropPct/100), g.Severity)
	}
	_ = w.Flush()
}

// formatPortfolioSimulation writes the portfolio distribution followed by
// each asset's marginal distribution.
func formatPortfolioSimulation(out io.Writer, name string, s *montecarlo.PortfolioSummary) {
	_, _ = fmt.Fprintf(out, "Correlation: %.2f\n\n", s.Correlation)
	formatDistribution(out, name, &s.Portfolio)

	_, _ = fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ASSET\tMEAN\tSTD DEV\tP5\tP50\tP95\tP(NPV>0)")
	for _, a := range s.Assets {
		d := a.Summary
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			a.SnapshotID, formatMoney(d.Mean), formatMoney(d.StdDev),
			formatMoney(d.Percentiles.P5), formatMoney(d.Percentiles.P50), formatMoney(d.Percentiles.P95),
			formatPct(d.ProbabilityPositive),
		)
	}
	_ = w.Flush()
}
