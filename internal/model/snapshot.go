// Package model defines the in-memory entities consumed and produced by the
// valuation engine. It has no behavior beyond grouping and copying.
package model

import "sort"

// ClinicalPhase holds the success rate and start date of one phase.
type ClinicalPhase struct {
	Phase       Phase   `json:"phase"`
	SuccessRate float64 `json:"success_rate"` // 0.0-1.0
	Start       float64 `json:"start"`        // fractional year, e.g. 2026.25
}

// RDCost is one R&D spend entry. Negative amounts are outflows.
type RDCost struct {
	Year   int     `json:"year"`
	Phase  Phase   `json:"phase"`
	Amount float64 `json:"amount"` // currency millions
}

// CurveType names an uptake curve family.
type CurveType string

const (
	CurveLinear   CurveType = "linear"
	CurveLogistic CurveType = "logistic"
)

// CurveSpec selects and parameterizes the ramp-up curve of a row. Every
// parameter is explicit; the engine applies no defaults.
type CurveSpec struct {
	Type     CurveType `json:"type"`
	K        float64   `json:"k,omitempty"`        // logistic steepness
	Midpoint float64   `json:"midpoint,omitempty"` // logistic midpoint in normalized time
}

// CommercialRow is one region × scenario × segment branch of the forecast.
type CommercialRow struct {
	Region              string  `json:"region"`
	Scenario            string  `json:"scenario"`
	Segment             string  `json:"segment"`
	ScenarioProbability float64 `json:"scenario_probability"`

	// Peak revenue build-up.
	PatientPopulation float64    `json:"patient_population"`
	EpiFactors        [6]float64 `json:"epi_factors"`
	AccessRate        float64    `json:"access_rate"`
	MarketShare       float64    `json:"market_share"`
	UnitsPerTreatment float64    `json:"units_per_treatment"`
	TreatmentsPerYear float64    `json:"treatments_per_year"`
	ComplianceRate    float64    `json:"compliance_rate"`
	GrossPrice        float64    `json:"gross_price"` // per treatment, currency units
	GrossToNet        float64    `json:"gross_to_net"`

	// Uptake curve.
	Curve        CurveSpec `json:"curve"`
	LaunchDate   float64   `json:"launch_date"`   // fractional year
	TimeToPeak   float64   `json:"time_to_peak"`  // years
	PlateauYears float64   `json:"plateau_years"` // years

	// Loss of exclusivity.
	LOEDate        float64 `json:"loe_date"`        // fractional year
	CliffRetention float64 `json:"cliff_retention"` // fraction of peak remaining right after LOE
	ErosionFloor   float64 `json:"erosion_floor"`   // fraction of peak held after erosion
	YearsToFloor   float64 `json:"years_to_floor"`

	// Cost structure.
	COGSRate         float64 `json:"cogs_rate"`
	DistributionRate float64 `json:"distribution_rate"`
	OperatingRate    float64 `json:"operating_rate"`
	TaxRate          float64 `json:"tax_rate"`
	DiscountRate     float64 `json:"discount_rate"`
}

// Levers are what-if adjustments applied on top of a snapshot. The zero
// value leaves the snapshot unchanged.
type Levers struct {
	RevenueMultiplier    float64           `json:"revenue_multiplier,omitempty"`      // 0 means 1.0
	RDCostMultiplier     float64           `json:"rd_cost_multiplier,omitempty"`      // 0 means 1.0
	TimeToPeakMultiplier float64           `json:"time_to_peak_multiplier,omitempty"` // 0 means 1.0
	DiscountRateDelta    float64           `json:"discount_rate_delta,omitempty"`     // added to every rate
	SuccessRateOverrides map[Phase]float64 `json:"success_rate_overrides,omitempty"`
	DurationShiftMonths  map[Phase]float64 `json:"duration_shift_months,omitempty"` // positive = delay
}

// Revenue returns the effective revenue multiplier.
func (l *Levers) Revenue() float64 {
	return orOne(l, func(l *Levers) float64 { return l.RevenueMultiplier })
}

// RDCost returns the effective R&D cost multiplier.
func (l *Levers) RDCost() float64 {
	return orOne(l, func(l *Levers) float64 { return l.RDCostMultiplier })
}

// TimeToPeak returns the effective time-to-peak multiplier.
func (l *Levers) TimeToPeak() float64 {
	return orOne(l, func(l *Levers) float64 { return l.TimeToPeakMultiplier })
}

func orOne(l *Levers, get func(*Levers) float64) float64 {
	if l == nil {
		return 1.0
	}
	if v := get(l); v != 0 {
		return v
	}
	return 1.0
}

// Clone returns a deep copy of the levers. A nil receiver yields empty levers.
func (l *Levers) Clone() *Levers {
	out := &Levers{}
	if l == nil {
		return out
	}
	*out = *l
	out.SuccessRateOverrides = cloneMap(l.SuccessRateOverrides)
	out.DurationShiftMonths = cloneMap(l.DurationShiftMonths)
	return out
}

func cloneMap(m map[Phase]float64) map[Phase]float64 {
	if m == nil {
		return nil
	}
	out := make(map[Phase]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Snapshot is the immutable bundle consumed by one valuation run.
type Snapshot struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	TherapeuticArea string          `json:"therapeutic_area,omitempty"`
	ValuationYear   int             `json:"valuation_year"`
	HorizonYears    int             `json:"horizon_years"`
	RDDiscountRate  float64         `json:"rd_discount_rate"`
	CurrentPhase    Phase           `json:"current_phase"`
	Phases          []ClinicalPhase `json:"phases"`
	RDCosts         []RDCost        `json:"rd_costs"`
	CommercialRows  []CommercialRow `json:"commercial_rows"`
	Levers          *Levers         `json:"levers,omitempty"`
}

// Clone returns a deep copy so perturbations never touch the original.
func (s *Snapshot) Clone() *Snapshot {
	out := *s
	out.Phases = append([]ClinicalPhase(nil), s.Phases...)
	out.RDCosts = append([]RDCost(nil), s.RDCosts...)
	out.CommercialRows = append([]CommercialRow(nil), s.CommercialRows...)
	if s.Levers != nil {
		out.Levers = s.Levers.Clone()
	}
	return &out
}

// ScenarioGroup is the set of segment rows sharing a region and scenario.
type ScenarioGroup struct {
	Region      string
	Scenario    string
	Probability float64 // from the first row
	Rows        []CommercialRow
}

// Representative returns the row whose cost rates and discount rate stand
// for the whole group.
func (g ScenarioGroup) Representative() CommercialRow {
	return g.Rows[0]
}

// ScenarioGroups groups commercial rows by (region, scenario), preserving
// the input order of first appearance.
func (s *Snapshot) ScenarioGroups() []ScenarioGroup {
	type key struct{ region, scenario string }
	index := make(map[key]int)
	var groups []ScenarioGroup
	for _, row := range s.CommercialRows {
		k := key{row.Region, row.Scenario}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, ScenarioGroup{
				Region:      row.Region,
				Scenario:    row.Scenario,
				Probability: row.ScenarioProbability,
			})
		}
		groups[i].Rows = append(groups[i].Rows, row)
	}
	return groups
}

// Regions returns the distinct regions in sorted order.
func (s *Snapshot) Regions() []string {
	seen := make(map[string]bool)
	var out []string
	for _, row := range s.CommercialRows {
		if !seen[row.Region] {
			seen[row.Region] = true
			out = append(out, row.Region)
		}
	}
	sort.Strings(out)
	return out
}

// PhaseRate returns the stored success rate for p and whether it is present.
func (s *Snapshot) PhaseRate(p Phase) (float64, bool) {
	for _, ph := range s.Phases {
		if ph.Phase == p {
			return ph.SuccessRate, true
		}
	}
	return 0, false
}
