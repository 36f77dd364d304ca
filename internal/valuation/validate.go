package valuation

import (
	"fmt"
	"math"
	"sort"

	"github.com/sells-group/rnpv-cli/internal/discount"
	"github.com/sells-group/rnpv-cli/internal/model"
	"github.com/sells-group/rnpv-cli/internal/revenue"
	"github.com/sells-group/rnpv-cli/internal/risk"
)

// Validate checks s without computing anything. It returns the first
// problem found as a *model.ValidationError.
func Validate(s *model.Snapshot, opts Options) error {
	_, err := prepare(s, opts)
	return err
}

// plan is a validated snapshot with its risk weights and timeline resolved.
type plan struct {
	snap     *model.Snapshot
	opts     Options
	levers   *model.Levers
	risk     *risk.Multipliers
	timeline *Timeline
	groups   []model.ScenarioGroup
}

func prepare(s *model.Snapshot, opts Options) (*plan, error) {
	if s == nil {
		return nil, &model.ValidationError{Entity: "snapshot", Field: "snapshot", Reason: "snapshot is required"}
	}
	if opts.QuadratureSteps < revenue.MinSteps {
		return nil, &model.ValidationError{Entity: "options", Field: "quadrature_steps", Value: opts.QuadratureSteps, Reason: fmt.Sprintf("must be at least %d", revenue.MinSteps)}
	}
	if !s.CurrentPhase.Valid() {
		return nil, &model.ValidationError{Entity: "snapshot", Field: "current_phase", Value: s.CurrentPhase.String(), Reason: "current phase must resolve to a canonical phase"}
	}
	if s.ValuationYear <= 0 {
		return nil, &model.ValidationError{Entity: "snapshot", Field: "valuation_year", Value: s.ValuationYear, Reason: "valuation year is required"}
	}
	if s.HorizonYears < 0 {
		return nil, &model.ValidationError{Entity: "snapshot", Field: "horizon_years", Value: s.HorizonYears, Reason: "horizon must not be negative"}
	}

	levers := s.Levers
	if levers == nil {
		levers = &model.Levers{}
	}
	if err := validateLevers(levers); err != nil {
		return nil, err
	}
	if err := discount.ValidateRate("snapshot", "rd_discount_rate", s.RDDiscountRate+levers.DiscountRateDelta, opts.MaxDiscountRate); err != nil {
		return nil, err
	}

	mult, err := risk.Compute(s.Phases, s.CurrentPhase, levers.SuccessRateOverrides)
	if err != nil {
		return nil, err
	}

	for i, c := range s.RDCosts {
		if !c.Phase.Valid() {
			return nil, &model.ValidationError{Entity: "rd_cost", Field: "phase", Value: fmt.Sprintf("#%d %s", i, c.Phase), Reason: "unrecognized phase"}
		}
		if !finite(c.Amount) {
			return nil, &model.ValidationError{Entity: "rd_cost", Field: "amount", Value: fmt.Sprintf("#%d", i), Reason: "amount must be finite"}
		}
	}

	for i, row := range s.CommercialRows {
		if err := validateRow(i, row, levers, opts); err != nil {
			return nil, err
		}
	}

	groups := s.ScenarioGroups()
	if err := checkProbabilities(groups); err != nil {
		return nil, err
	}

	tl := BuildTimeline(s.CurrentPhase, levers.DurationShiftMonths)
	return &plan{
		snap:     s,
		opts:     opts,
		levers:   levers,
		risk:     mult,
		timeline: tl,
		groups:   groups,
	}, nil
}

func validateLevers(l *model.Levers) error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"revenue_multiplier", l.RevenueMultiplier},
		{"rd_cost_multiplier", l.RDCostMultiplier},
		{"time_to_peak_multiplier", l.TimeToPeakMultiplier},
	} {
		if !finite(f.v) || f.v < 0 {
			return &model.ValidationError{Entity: "levers", Field: f.name, Value: f.v, Reason: "multiplier must be a non-negative number"}
		}
	}
	if !finite(l.DiscountRateDelta) {
		return &model.ValidationError{Entity: "levers", Field: "discount_rate_delta", Value: l.DiscountRateDelta, Reason: "must be finite"}
	}
	for p, m := range l.DurationShiftMonths {
		if !p.Valid() || !finite(m) {
			return &model.ValidationError{Entity: "levers", Field: "duration_shift_months", Value: fmt.Sprintf("%s=%v", p, m), Reason: "shift must name a canonical phase and be finite"}
		}
	}
	return nil
}

func validateRow(i int, row model.CommercialRow, levers *model.Levers, opts Options) error {
	entity := fmt.Sprintf("commercial_row[%d]", i)
	if row.Region == "" {
		return &model.ValidationError{Entity: entity, Field: "region", Reason: "region is required"}
	}
	if row.Scenario == "" {
		return &model.ValidationError{Entity: entity, Field: "scenario", Reason: "scenario is required"}
	}

	fractions := []struct {
		name string
		v    float64
	}{
		{"scenario_probability", row.ScenarioProbability},
		{"access_rate", row.AccessRate},
		{"market_share", row.MarketShare},
		{"compliance_rate", row.ComplianceRate},
		{"gross_to_net", row.GrossToNet},
		{"cliff_retention", row.CliffRetention},
		{"erosion_floor", row.ErosionFloor},
		{"cogs_rate", row.COGSRate},
		{"distribution_rate", row.DistributionRate},
		{"operating_rate", row.OperatingRate},
		{"tax_rate", row.TaxRate},
	}
	for _, f := range fractions {
		if !finite(f.v) || f.v < 0 || f.v > 1 {
			return &model.ValidationError{Entity: entity, Field: f.name, Value: f.v, Reason: "must be within [0, 1]"}
		}
	}
	for j, f := range row.EpiFactors {
		if !finite(f) || f < 0 {
			return &model.ValidationError{Entity: entity, Field: fmt.Sprintf("epi_factors[%d]", j), Value: f, Reason: "must be non-negative"}
		}
	}

	nonNegative := []struct {
		name string
		v    float64
	}{
		{"patient_population", row.PatientPopulation},
		{"units_per_treatment", row.UnitsPerTreatment},
		{"treatments_per_year", row.TreatmentsPerYear},
		{"gross_price", row.GrossPrice},
		{"time_to_peak", row.TimeToPeak},
		{"plateau_years", row.PlateauYears},
		{"years_to_floor", row.YearsToFloor},
	}
	for _, f := range nonNegative {
		if !finite(f.v) || f.v < 0 {
			return &model.ValidationError{Entity: entity, Field: f.name, Value: f.v, Reason: "must be non-negative"}
		}
	}
	if !finite(row.LaunchDate) || !finite(row.LOEDate) {
		return &model.ValidationError{Entity: entity, Field: "launch_date", Reason: "launch and LOE dates must be finite"}
	}
	if row.LOEDate <= row.LaunchDate {
		return &model.ValidationError{Entity: entity, Field: "loe_date", Value: row.LOEDate, Reason: "loe_date is required and must be after launch_date"}
	}
	if row.ErosionFloor > row.CliffRetention {
		return &model.ValidationError{Entity: entity, Field: "erosion_floor", Value: row.ErosionFloor, Reason: "erosion floor must not exceed cliff retention"}
	}
	if _, err := revenue.CurveFor(row.Curve); err != nil {
		return err
	}
	return discount.ValidateRate(entity, "discount_rate", row.DiscountRate+levers.DiscountRateDelta, opts.MaxDiscountRate)
}

// checkProbabilities requires each region's scenario weights to sum to 1
// within tolerance. Weights are never renormalized.
func checkProbabilities(groups []model.ScenarioGroup) error {
	sums := make(map[string]float64)
	for _, g := range groups {
		sums[g.Region] += g.Probability
	}
	regions := make([]string, 0, len(sums))
	for r := range sums {
		regions = append(regions, r)
	}
	sort.Strings(regions)
	for _, r := range regions {
		if math.Abs(sums[r]-1) > ProbabilityTolerance {
			return &model.ValidationError{
				Entity: "region",
				Field:  "scenario_probability",
				Value:  r,
				Reason: fmt.Sprintf("scenario probabilities sum to %.4f, expected 1 +/- %.2f", sums[r], ProbabilityTolerance),
			}
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
