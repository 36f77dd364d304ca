package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rnpv-cli/internal/config"
	"github.com/sells-group/rnpv-cli/internal/input"
	"github.com/sells-group/rnpv-cli/internal/metrics"
	"github.com/sells-group/rnpv-cli/internal/model"
	"github.com/sells-group/rnpv-cli/internal/montecarlo"
	"github.com/sells-group/rnpv-cli/internal/sensitivity"
	"github.com/sells-group/rnpv-cli/internal/store"
	"github.com/sells-group/rnpv-cli/internal/valuation"
)

const testdata = "../internal/input/testdata"

// useTestConfig installs a default configuration with a temporary SQLite
// store and restores the globals afterwards.
func useTestConfig(t *testing.T) *config.Config {
	t.Helper()
	prevCfg, prevCollector := cfg, collector
	cfg = &config.Config{
		Store:     config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "rnpv.db")},
		Valuation: config.ValuationConfig{QuadratureSteps: 12, MaxDiscountRate: 1.0},
		Simulation: config.SimulationConfig{
			Iterations: 200,
			Seed:       42,
			Workers:    2,
		},
	}
	collector = metrics.New()
	t.Cleanup(func() { cfg, collector = prevCfg, prevCollector })
	return cfg
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "$1,234.5M", formatMoney(1234.5))
	assert.Equal(t, "$0.0M", formatMoney(0))
	assert.Equal(t, "-$12.0M", formatMoney(-12))
}

func TestFormatCountAndPct(t *testing.T) {
	assert.Equal(t, "10,000", formatCount(10000))
	assert.Equal(t, "62.5%", formatPct(0.625))
}

func TestFormatResult(t *testing.T) {
	var buf bytes.Buffer
	formatResult(&buf, &model.Result{
		SnapshotID:    "asset-a",
		NPVRD:         -40,
		NPVCommercial: 140,
		NPVTotal:      100,
		CumulativePOS: 0.32,
		PeakSales:     850,
		NPVByRegionScenario: map[string]map[string]float64{
			"US": {"Base": 120, "Downside": 20},
			"EU": {"Base": 30},
		},
		Warnings: []model.Warning{{Code: model.WarningPhaseGap, Message: "Phase 3 has no success rate"}},
	})
	out := buf.String()

	assert.Contains(t, out, "asset-a")
	assert.Contains(t, out, "$100.0M")
	assert.Contains(t, out, "32.0%")
	assert.Contains(t, out, "REGION")
	assert.Contains(t, out, "phase_coverage_gap")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("EU")), bytes.Index(buf.Bytes(), []byte("Downside")))
}

func TestFormatLedger(t *testing.T) {
	var buf bytes.Buffer
	formatLedger(&buf, []model.CashFlowRecord{
		{Year: 2026, Scope: model.ScopeRD, Phase: model.Phase2, Probability: 1, Costs: -12, CashFlow: -12, RiskMultiplier: 1, RiskAdjusted: -12, PresentValue: -12},
		{Year: 2026, Scope: model.ScopeTotal, Probability: 1, Costs: -12, CashFlow: -12, RiskMultiplier: 1, RiskAdjusted: -12, PresentValue: -12},
	})
	out := buf.String()

	assert.Contains(t, out, "YEAR")
	assert.Contains(t, out, "R&D (Phase 2)")
	assert.Contains(t, out, "Total")
	assert.Contains(t, out, "-12.00")
}

func TestFormatDistribution_Partial(t *testing.T) {
	var buf bytes.Buffer
	formatDistribution(&buf, "asset-a", &montecarlo.DistributionSummary{
		Iterations:  10000,
		Completed:   2500,
		Partial:     true,
		Seed:        7,
		Mean:        55,
		Percentiles: montecarlo.Percentiles{P5: -10, P50: 50, P95: 120},
	})
	out := buf.String()

	assert.Contains(t, out, "2,500 of 10,000 (partial)")
	assert.Contains(t, out, "$55.0M")
	assert.Contains(t, out, "-$10.0M")
	assert.Contains(t, out, "P95")
}

func TestFormatTornado(t *testing.T) {
	var buf bytes.Buffer
	formatTornado(&buf, &sensitivity.Tornado{
		SnapshotID: "asset-a",
		BaseNPV:    100,
		Swings: []sensitivity.Swing{
			{Driver: "revenue", LowLabel: "-20%", HighLabel: "+20%", LowNPV: 60, HighNPV: 140, Swing: 80},
		},
	})
	out := buf.String()

	assert.Contains(t, out, "Base rNPV for asset-a: $100.0M")
	assert.Contains(t, out, "revenue")
	assert.Contains(t, out, "$80.0M")
}

func TestFormatSimulations(t *testing.T) {
	var buf bytes.Buffer
	formatSimulations(&buf, []store.SimulationRun{{
		ID:         "0123456789abcdef",
		SnapshotID: "asset-a",
		Mode:       montecarlo.ModeSingle,
		Summary:    montecarlo.DistributionSummary{Completed: 1500, Partial: true, Seed: 42, Mean: 12},
		CreatedAt:  time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}})
	out := buf.String()

	assert.Contains(t, out, "01234567 ")
	assert.NotContains(t, out, "89abcdef")
	assert.Contains(t, out, "1,500*")
	assert.Contains(t, out, "2026-03-01 09:30")
}

func TestInterrupted(t *testing.T) {
	assert.NoError(t, interrupted(nil))

	err := interrupted(eris.Wrap(context.Canceled, "montecarlo"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "partial")

	other := eris.New("boom")
	assert.Equal(t, other, interrupted(other))
}

func TestApplySimulationFlags(t *testing.T) {
	c := useTestConfig(t)

	cmd := &cobra.Command{Use: "test"}
	addSimulationFlags(cmd)
	cmd.Flags().Float64("correlation", 0, "")
	require.NoError(t, cmd.Flags().Parse([]string{"--iterations", "500", "--correlation", "0.4"}))

	require.NoError(t, applySimulationFlags(cmd))
	assert.Equal(t, 500, c.Simulation.Iterations)
	assert.Equal(t, uint64(42), c.Simulation.Seed, "unset flags keep config values")
	assert.InDelta(t, 0.4, c.Simulation.Correlation, 1e-12)

	mc, err := simulationConfig()
	require.NoError(t, err)
	assert.Equal(t, 500, mc.Iterations)
	assert.NotNil(t, mc.Recorder)
	assert.Equal(t, 12, mc.Options.QuadratureSteps)
}

func TestSimulationConfig_Invalid(t *testing.T) {
	c := useTestConfig(t)
	c.Simulation.Iterations = 0

	_, err := simulationConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "simulation.iterations")
}

func TestRunValuation(t *testing.T) {
	useTestConfig(t)

	asset, err := input.LoadSnapshot(filepath.Join(testdata, "asset-a.yaml"))
	require.NoError(t, err)

	ledger, result, err := runValuation(asset.Snapshot)
	require.NoError(t, err)
	assert.Equal(t, "asset-a", result.SnapshotID)
	assert.NotEmpty(t, ledger.Records)
	assert.InDelta(t, result.NPVRD+result.NPVCommercial, result.NPVTotal, 1e-6)
}

func TestRunValuation_InvalidSnapshot(t *testing.T) {
	useTestConfig(t)

	asset, err := input.LoadSnapshot(filepath.Join(testdata, "asset-a.yaml"))
	require.NoError(t, err)
	asset.Snapshot.CurrentPhase = model.PhaseUnknown

	_, _, err = runValuation(asset.Snapshot)
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
	assert.Contains(t, err.Error(), "value asset-a")
}

func TestValuePortfolio(t *testing.T) {
	useTestConfig(t)

	p, err := input.LoadPortfolio(filepath.Join(testdata, "portfolio.yaml"))
	require.NoError(t, err)

	summary, err := valuePortfolio(p)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Assets)
	assert.Len(t, summary.ByAsset, 2)
	assert.InDelta(t, summary.ByAsset["asset-a"]+summary.ByAsset["asset-b"], summary.NPVTotal, 1e-6)

	var buf bytes.Buffer
	formatPortfolio(&buf, p.Name, summary)
	out := buf.String()
	assert.Contains(t, out, "pipeline (2 assets)")
	assert.Contains(t, out, "asset-b")
	assert.Contains(t, out, "CUMULATIVE PV")
	assert.Contains(t, out, "therapeutic area")
	assert.Contains(t, out, "TOP N")
	assert.Contains(t, out, "Diversification:")
	assert.Contains(t, out, "LAUNCH")
	assert.NotContains(t, out, "OVERRIDE")

	require.NotNil(t, summary.Concentration)
	assert.Len(t, summary.Concentration.ByTherapeuticArea.Shares, 2)
	require.Len(t, summary.Launches, 2)
	assert.Equal(t, "asset-a", summary.Launches[0].SnapshotID)
}

func TestValuePortfolio_Overrides(t *testing.T) {
	useTestConfig(t)

	p, err := input.LoadPortfolio(filepath.Join(testdata, "portfolio-scenario.yaml"))
	require.NoError(t, err)
	_, standalone, err := runValuation(p.Assets[0].Snapshot)
	require.NoError(t, err)

	summary, err := valuePortfolio(p)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Assets)
	assert.Equal(t, 1, summary.Killed)
	assert.NotContains(t, summary.ByAsset, "asset-b")
	assert.InDelta(t, summary.ByAsset["asset-a"], summary.NPVTotal, 1e-9)

	require.Len(t, summary.Projects, 2)
	a, b := summary.Projects[0], summary.Projects[1]
	assert.Equal(t, "asset-a", a.SnapshotID)
	assert.True(t, a.Active)
	assert.True(t, a.Overridden)
	assert.InDelta(t, standalone.NPVTotal, a.NPVOriginal, 1e-9)
	assert.NotEqual(t, a.NPVOriginal, a.NPVSimulated)
	assert.InDelta(t, summary.NPVTotal, a.NPVSimulated, 1e-9)

	assert.Equal(t, "asset-b", b.SnapshotID)
	assert.False(t, b.Active)
	assert.Zero(t, b.NPVSimulated)
	assert.InDelta(t, -b.NPVOriginal, b.NPVDelta, 1e-9)

	var buf bytes.Buffer
	formatPortfolio(&buf, p.Name, summary)
	out := buf.String()
	assert.Contains(t, out, "pipeline-what-if (1 assets)")
	assert.Contains(t, out, "Inactive:")
	assert.Contains(t, out, "OVERRIDE")
	assert.Contains(t, out, "killed")
}

func TestFormatPortfolioSimulation(t *testing.T) {
	var buf bytes.Buffer
	formatPortfolioSimulation(&buf, "pipeline", &montecarlo.PortfolioSummary{
		Correlation: 0.3,
		Portfolio:   montecarlo.DistributionSummary{Iterations: 100, Completed: 100, Mean: 90},
		Assets: []montecarlo.AssetSummary{
			{SnapshotID: "asset-a", Summary: montecarlo.DistributionSummary{Mean: 60, ProbabilityPositive: 0.8}},
			{SnapshotID: "asset-b", Summary: montecarlo.DistributionSummary{Mean: 30, ProbabilityPositive: 0.6}},
		},
	})
	out := buf.String()

	assert.Contains(t, out, "Correlation: 0.30")
	assert.Contains(t, out, "$90.0M")
	assert.Contains(t, out, "80.0%")
	assert.Contains(t, out, "asset-b")
}

func TestSaveSimulation_ThenHistory(t *testing.T) {
	useTestConfig(t)
	ctx := context.Background()

	summary := montecarlo.DistributionSummary{Iterations: 200, Completed: 200, Seed: 42, Mean: 10}
	require.NoError(t, saveSimulation(ctx, "asset-a", montecarlo.ModeSingle, summary))

	st, err := openMigratedStore(ctx)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	runs, err := st.ListSimulations(ctx, "asset-a", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, montecarlo.ModeSingle, runs[0].Mode)
	assert.InDelta(t, 10.0, runs[0].Summary.Mean, 1e-9)
}

func TestSimulate_SmallRun(t *testing.T) {
	c := useTestConfig(t)

	asset, err := input.LoadSnapshot(filepath.Join(testdata, "asset-a.yaml"))
	require.NoError(t, err)
	shocks, err := asset.Shocks.Build()
	require.NoError(t, err)

	mc, err := simulationConfig()
	require.NoError(t, err)
	summary, err := montecarlo.Simulate(context.Background(), asset.Snapshot, shocks, mc)
	require.NoError(t, err)
	assert.Equal(t, c.Simulation.Iterations, summary.Completed)
	assert.False(t, summary.Partial)
}

func TestSensitivity_DefaultDrivers(t *testing.T) {
	useTestConfig(t)

	asset, err := input.LoadSnapshot(filepath.Join(testdata, "asset-a.yaml"))
	require.NoError(t, err)
	opts, err := valuationOptions()
	require.NoError(t, err)

	tornado, err := sensitivity.Run(context.Background(), asset.Snapshot, sensitivity.DefaultDrivers(asset.Snapshot), opts)
	require.NoError(t, err)
	require.NotEmpty(t, tornado.Swings)

	_, base, err := valuation.Run(asset.Snapshot, opts)
	require.NoError(t, err)
	assert.InDelta(t, base.NPVTotal, tornado.BaseNPV, 1e-9)
}
