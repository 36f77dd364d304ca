package valuation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rnpv-cli/internal/model"
)

// baseRevenue is the annual revenue of usRow by calendar year.
var baseRevenue = map[int]float64{
	2026: 25, 2027: 75, 2028: 100, 2029: 100, 2030: 100,
	2031: 72.5, 2032: 47.5, 2033: 22.5,
}

func usRow() model.CommercialRow {
	return model.CommercialRow{
		Region:              "US",
		Scenario:            "Base",
		Segment:             "adult",
		ScenarioProbability: 1,
		PatientPopulation:   1_000_000,
		EpiFactors:          [6]float64{1, 1, 1, 1, 1, 1},
		AccessRate:          1,
		MarketShare:         1,
		UnitsPerTreatment:   1,
		TreatmentsPerYear:   1,
		ComplianceRate:      1,
		GrossPrice:          100,
		GrossToNet:          1,
		Curve:               model.CurveSpec{Type: model.CurveLinear},
		LaunchDate:          2026,
		TimeToPeak:          2,
		PlateauYears:        3,
		LOEDate:             2031,
		CliffRetention:      0.85,
		ErosionFloor:        0.10,
		YearsToFloor:        3,
		DiscountRate:        0.10,
	}
}

func testSnapshot() *model.Snapshot {
	return &model.Snapshot{
		ID:             "asset-1",
		Name:           "Test asset",
		ValuationYear:  2026,
		HorizonYears:   8,
		RDDiscountRate: 0.10,
		CurrentPhase:   model.Phase2,
		Phases: []model.ClinicalPhase{
			{Phase: model.Phase1, SuccessRate: 0.80, Start: 2022},
			{Phase: model.Phase2, SuccessRate: 0.65, Start: 2024},
			{Phase: model.Phase2B, SuccessRate: 0.70, Start: 2026},
			{Phase: model.Phase3, SuccessRate: 0.55, Start: 2027},
			{Phase: model.Registration, SuccessRate: 0.90, Start: 2029},
		},
		RDCosts: []model.RDCost{
			{Year: 2023, Phase: model.Phase1, Amount: -5},
			{Year: 2025, Phase: model.Phase2, Amount: -8},
			{Year: 2026, Phase: model.Phase2, Amount: -10},
			{Year: 2027, Phase: model.Phase3, Amount: -20},
		},
		CommercialRows: []model.CommercialRow{usRow()},
	}
}

func pv(cf float64, year int) float64 {
	return cf / math.Pow(1.1, float64(year-2026)-0.5)
}

const commercialPOS = 0.65 * 0.70 * 0.55 * 0.90

func expectedCommercial(revenue map[int]float64, shift int) float64 {
	var npv float64
	for y, r := range revenue {
		if y+shift >= 2026+8 {
			continue
		}
		npv += pv(r*commercialPOS, y+shift)
	}
	return npv
}

func TestRun_Baseline(t *testing.T) {
	t.Parallel()
	ledger, res, err := Run(testSnapshot(), DefaultOptions())
	require.NoError(t, err)

	wantRD := pv(-10*1.0, 2026) + pv(-20*0.455, 2027)
	assert.InDelta(t, wantRD, res.NPVRD, 1e-9)
	assert.InDelta(t, expectedCommercial(baseRevenue, 0), res.NPVCommercial, 1e-9)
	assert.InDelta(t, res.NPVRD+res.NPVCommercial, res.NPVTotal, 1e-12)
	assert.InDelta(t, commercialPOS, res.CumulativePOS, 1e-12)
	assert.InDelta(t, 100, res.PeakSales, 1e-9)
	assert.InDelta(t, res.NPVCommercial, res.NPVByRegionScenario["US"]["Base"], 1e-9)
	assert.Empty(t, res.Warnings)

	var totalPV float64
	for _, r := range ledger.Totals() {
		totalPV += r.PresentValue
	}
	assert.InDelta(t, res.NPVTotal, totalPV, 1e-9)
	assert.Equal(t, "asset-1", ledger.SnapshotID)
}

func TestRun_SunkCostsExcluded(t *testing.T) {
	t.Parallel()
	ledger, _, err := Run(testSnapshot(), DefaultOptions())
	require.NoError(t, err)

	var rd []model.CashFlowRecord
	for _, r := range ledger.Records {
		if r.Scope == model.ScopeRD {
			rd = append(rd, r)
		}
	}
	require.Len(t, rd, 2)
	assert.Equal(t, 2026, rd[0].Year)
	assert.Equal(t, 1.0, rd[0].RiskMultiplier)
	assert.Equal(t, model.Phase3, rd[1].Phase)
	assert.InDelta(t, 0.455, rd[1].RiskMultiplier, 1e-12)
	assert.InDelta(t, -20*0.455, rd[1].RiskAdjusted, 1e-12)
}

func TestRun_LedgerOrdering(t *testing.T) {
	t.Parallel()
	ledger, _, err := Run(testSnapshot(), DefaultOptions())
	require.NoError(t, err)

	prevYear := 0
	for i, r := range ledger.Records {
		assert.GreaterOrEqual(t, r.Year, prevYear)
		if r.Year != prevYear && i > 0 {
			assert.Equal(t, model.ScopeTotal, ledger.Records[i-1].Scope)
		}
		prevYear = r.Year
	}
	assert.Equal(t, model.ScopeTotal, ledger.Records[len(ledger.Records)-1].Scope)
}

func TestRun_ScenarioWeighting(t *testing.T) {
	t.Parallel()
	s := testSnapshot()
	down := usRow()
	down.Scenario = "Downside"
	down.GrossPrice = 50
	down.ScenarioProbability = 0.4
	s.CommercialRows[0].ScenarioProbability = 0.6
	s.CommercialRows = append(s.CommercialRows, down)

	ledger, res, err := Run(s, DefaultOptions())
	require.NoError(t, err)

	base := expectedCommercial(baseRevenue, 0)
	assert.InDelta(t, base, res.NPVByRegionScenario["US"]["Base"], 1e-9)
	assert.InDelta(t, base/2, res.NPVByRegionScenario["US"]["Downside"], 1e-9)
	assert.InDelta(t, 0.6*base+0.4*base/2, res.NPVCommercial, 1e-9)
	assert.InDelta(t, 0.6*100+0.4*50, res.PeakSales, 1e-9)

	var totalPV float64
	for _, r := range ledger.Totals() {
		totalPV += r.PresentValue
	}
	assert.InDelta(t, res.NPVTotal, totalPV, 1e-9)
}

func TestRun_SegmentsShareRepresentativeCosts(t *testing.T) {
	t.Parallel()
	s := testSnapshot()
	s.CommercialRows[0].COGSRate = 0.2
	s.CommercialRows[0].TaxRate = 0.25
	seg := usRow()
	seg.Segment = "pediatric"
	seg.COGSRate = 0.9
	s.CommercialRows = append(s.CommercialRows, seg)

	_, res, err := Run(s, DefaultOptions())
	require.NoError(t, err)

	doubled := make(map[int]float64)
	for y, r := range baseRevenue {
		doubled[y] = 2 * r * 0.8 * 0.75
	}
	assert.InDelta(t, expectedCommercial(doubled, 0), res.NPVCommercial, 1e-9)
}

func TestRun_NegativeEBITHasNoTax(t *testing.T) {
	t.Parallel()
	s := testSnapshot()
	s.CommercialRows[0].COGSRate = 0.6
	s.CommercialRows[0].DistributionRate = 0.3
	s.CommercialRows[0].OperatingRate = 0.3
	s.CommercialRows[0].TaxRate = 0.3

	ledger, _, err := Run(s, DefaultOptions())
	require.NoError(t, err)
	for _, r := range ledger.Records {
		if r.Scope == "US" {
			assert.Equal(t, 0.0, r.Tax)
			assert.InDelta(t, -0.2*r.Revenue, r.CashFlow, 1e-9)
		}
	}
}

func TestRun_ZeroHorizon(t *testing.T) {
	t.Parallel()
	s := testSnapshot()
	s.HorizonYears = 0
	_, res, err := Run(s, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.NPVCommercial)
	assert.Less(t, res.NPVRD, 0.0)
}

func TestRun_EmptyLegs(t *testing.T) {
	t.Parallel()
	s := testSnapshot()
	s.RDCosts = nil
	s.CommercialRows = nil
	ledger, res, err := Run(s, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.NPVTotal)
	assert.Empty(t, ledger.Records)
}

func TestRun_ProbabilitySum(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		second  float64
		wantErr bool
	}{
		{"exact", 0.4, false},
		{"within tolerance", 0.395, false},
		{"short", 0.3, true},
		{"over", 0.45, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := testSnapshot()
			s.CommercialRows[0].ScenarioProbability = 0.6
			other := usRow()
			other.Scenario = "Upside"
			other.ScenarioProbability = tt.second
			s.CommercialRows = append(s.CommercialRows, other)

			_, _, err := Run(s, DefaultOptions())
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			var ve *model.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "scenario_probability", ve.Field)
			assert.Equal(t, "US", ve.Value)
		})
	}
}

func TestRun_ValidationErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*model.Snapshot)
		field  string
	}{
		{"missing current phase", func(s *model.Snapshot) { s.CurrentPhase = model.PhaseUnknown }, "current_phase"},
		{"negative horizon", func(s *model.Snapshot) { s.HorizonYears = -1 }, "horizon_years"},
		{"rd rate at -1", func(s *model.Snapshot) { s.RDDiscountRate = -1 }, "rd_discount_rate"},
		{"row rate too high", func(s *model.Snapshot) { s.CommercialRows[0].DiscountRate = 1.5 }, "discount_rate"},
		{"floor above cliff", func(s *model.Snapshot) { s.CommercialRows[0].ErosionFloor = 0.9 }, "erosion_floor"},
		{"share above one", func(s *model.Snapshot) { s.CommercialRows[0].MarketShare = 1.2 }, "market_share"},
		{"negative ttp", func(s *model.Snapshot) { s.CommercialRows[0].TimeToPeak = -1 }, "time_to_peak"},
		{"missing region", func(s *model.Snapshot) { s.CommercialRows[0].Region = "" }, "region"},
		{"missing loe", func(s *model.Snapshot) { s.CommercialRows[0].LOEDate = 0 }, "loe_date"},
		{"loe before launch", func(s *model.Snapshot) { s.CommercialRows[0].LOEDate = 2025.5 }, "loe_date"},
		{"loe at launch", func(s *model.Snapshot) { s.CommercialRows[0].LOEDate = 2026 }, "loe_date"},
		{"bad curve", func(s *model.Snapshot) { s.CommercialRows[0].Curve.Type = "step" }, "type"},
		{"bad success rate", func(s *model.Snapshot) { s.Phases[3].SuccessRate = 1.1 }, "success_rate"},
		{"negative lever", func(s *model.Snapshot) { s.Levers = &model.Levers{RevenueMultiplier: -1} }, "revenue_multiplier"},
		{"delta pushes rate out", func(s *model.Snapshot) { s.Levers = &model.Levers{DiscountRateDelta: 0.95} }, "rd_discount_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := testSnapshot()
			tt.mutate(s)
			_, _, err := Run(s, DefaultOptions())
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrValidation)
			var ve *model.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestRun_OptionsValidated(t *testing.T) {
	t.Parallel()
	_, _, err := Run(testSnapshot(), Options{QuadratureSteps: 4})
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))

	err = Validate(nil, DefaultOptions())
	require.Error(t, err)
}

func TestRun_PhaseGapWarning(t *testing.T) {
	t.Parallel()
	s := testSnapshot()
	s.Phases = s.Phases[:4] // drop Registration
	_, res, err := Run(s, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, model.WarningPhaseGap, res.Warnings[0].Code)
	assert.InDelta(t, 0.65*0.70*0.55, res.CumulativePOS, 1e-12)
}

func TestRun_RevenueAndCostLevers(t *testing.T) {
	t.Parallel()
	_, base, err := Run(testSnapshot(), DefaultOptions())
	require.NoError(t, err)

	s := testSnapshot()
	s.Levers = &model.Levers{RevenueMultiplier: 1.2, RDCostMultiplier: 2}
	_, res, err := Run(s, DefaultOptions())
	require.NoError(t, err)
	assert.InDelta(t, 1.2*base.NPVCommercial, res.NPVCommercial, 1e-9)
	assert.InDelta(t, 2*base.NPVRD, res.NPVRD, 1e-9)
	assert.InDelta(t, 120, res.PeakSales, 1e-9)
}

func TestRun_SuccessRateOverride(t *testing.T) {
	t.Parallel()
	s := testSnapshot()
	s.Levers = &model.Levers{SuccessRateOverrides: map[model.Phase]float64{model.Phase3: 1}}
	_, res, err := Run(s, DefaultOptions())
	require.NoError(t, err)
	assert.InDelta(t, 0.65*0.70*0.90, res.CumulativePOS, 1e-12)
}

func TestRun_DurationShiftMovesCostsAndLaunchTogether(t *testing.T) {
	t.Parallel()
	s := testSnapshot()
	s.Levers = &model.Levers{DurationShiftMonths: map[model.Phase]float64{model.Phase2: 12}}
	ledger, res, err := Run(s, DefaultOptions())
	require.NoError(t, err)

	var rdYears []int
	for _, r := range ledger.Records {
		if r.Scope == model.ScopeRD {
			rdYears = append(rdYears, r.Year)
		}
	}
	// The Phase 2 cost itself stays put; the later Phase 3 cost moves a year.
	assert.Equal(t, []int{2026, 2028}, rdYears)

	wantRD := pv(-10, 2026) + pv(-20*0.455, 2028)
	assert.InDelta(t, wantRD, res.NPVRD, 1e-9)

	// Launch moves a year but LOE stays at 2031, so the plateau shortens.
	shifted := map[int]float64{
		2027: 25, 2028: 75, 2029: 100, 2030: 100,
		2031: 72.5, 2032: 47.5, 2033: 22.5,
	}
	assert.InDelta(t, expectedCommercial(shifted, 0), res.NPVCommercial, 1e-9)
}

func TestRun_ShiftPastLOEWarns(t *testing.T) {
	t.Parallel()
	s := testSnapshot()
	s.Levers = &model.Levers{DurationShiftMonths: map[model.Phase]float64{model.Phase2: 72}}
	_, res, err := Run(s, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 0.0, res.NPVCommercial)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, model.WarningLaunchAfterLOE, res.Warnings[0].Code)
	assert.Contains(t, res.Warnings[0].Message, "US/Base/adult")
}

func TestRun_HistoricalShiftIgnored(t *testing.T) {
	t.Parallel()
	_, base, err := Run(testSnapshot(), DefaultOptions())
	require.NoError(t, err)

	s := testSnapshot()
	s.Levers = &model.Levers{DurationShiftMonths: map[model.Phase]float64{model.Phase1: 24}}
	_, res, err := Run(s, DefaultOptions())
	require.NoError(t, err)
	assert.InDelta(t, base.NPVTotal, res.NPVTotal, 1e-12)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, model.WarningIgnoredShift, res.Warnings[0].Code)
}

func TestRun_DoesNotMutateSnapshot(t *testing.T) {
	t.Parallel()
	s := testSnapshot()
	s.Levers = &model.Levers{DurationShiftMonths: map[model.Phase]float64{model.Phase2: 6}, TimeToPeakMultiplier: 2}
	before := s.Clone()
	_, _, err := Run(s, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, before, s)
}
