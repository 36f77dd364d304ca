package montecarlo

import (
	"math"
	"math/rand/v2"

	"github.com/sells-group/rnpv-cli/internal/model"
)

// PhaseOutcomeMode selects how remaining clinical phases are sampled.
type PhaseOutcomeMode string

const (
	// OutcomeNone keeps the stored success rates.
	OutcomeNone PhaseOutcomeMode = "none"
	// OutcomeBernoulli plays each remaining phase as a pass/fail coin.
	OutcomeBernoulli PhaseOutcomeMode = "bernoulli"
	// OutcomePerturb scales each remaining rate by 1+N(0, sd), clamped to
	// [MinPerturbedRate, 1].
	OutcomePerturb PhaseOutcomeMode = "perturb"
)

// MinPerturbedRate is the lowest success rate a perturbed phase can reach.
const MinPerturbedRate = 0.01

// ShocksSpec is the serializable form of Shocks.
type ShocksSpec struct {
	PeakSales         DistributionSpec `yaml:"peak_sales" json:"peak_sales"`
	LaunchDelayYears  DistributionSpec `yaml:"launch_delay_years" json:"launch_delay_years"`
	RDCost            DistributionSpec `yaml:"rd_cost" json:"rd_cost"`
	TimeToPeak        DistributionSpec `yaml:"time_to_peak" json:"time_to_peak"`
	PhaseOutcome      PhaseOutcomeMode `yaml:"phase_outcome" json:"phase_outcome"`
	SuccessRateStdDev float64          `yaml:"success_rate_std_dev" json:"success_rate_std_dev"`
	SampleScenarios   bool             `yaml:"sample_scenarios" json:"sample_scenarios"`
}

// Shocks are the perturbations applied to a snapshot each iteration. A nil
// marginal leaves its input untouched.
type Shocks struct {
	PeakSales         Marginal // multiplier on peak revenue
	LaunchDelayYears  Marginal // added to the current phase, delaying launch
	RDCost            Marginal // multiplier on every R&D amount
	TimeToPeak        Marginal // multiplier on time to peak
	PhaseOutcome      PhaseOutcomeMode
	SuccessRateStdDev float64
	SampleScenarios   bool
}

// Build validates spec and constructs its marginals.
func (spec ShocksSpec) Build() (*Shocks, error) {
	var (
		sh  Shocks
		err error
	)
	if sh.PeakSales, err = NewMarginal("peak_sales", spec.PeakSales); err != nil {
		return nil, err
	}
	if sh.LaunchDelayYears, err = NewMarginal("launch_delay_years", spec.LaunchDelayYears); err != nil {
		return nil, err
	}
	if sh.RDCost, err = NewMarginal("rd_cost", spec.RDCost); err != nil {
		return nil, err
	}
	if sh.TimeToPeak, err = NewMarginal("time_to_peak", spec.TimeToPeak); err != nil {
		return nil, err
	}

	switch spec.PhaseOutcome {
	case "", OutcomeNone:
		sh.PhaseOutcome = OutcomeNone
	case OutcomeBernoulli, OutcomePerturb:
		sh.PhaseOutcome = spec.PhaseOutcome
	default:
		return nil, &model.ValidationError{Entity: "shocks", Field: "phase_outcome", Value: string(spec.PhaseOutcome), Reason: "must be none, bernoulli or perturb"}
	}
	if spec.SuccessRateStdDev < 0 || math.IsNaN(spec.SuccessRateStdDev) {
		return nil, &model.ValidationError{Entity: "shocks", Field: "success_rate_std_dev", Value: spec.SuccessRateStdDev, Reason: "must not be negative"}
	}
	sh.SuccessRateStdDev = spec.SuccessRateStdDev
	sh.SampleScenarios = spec.SampleScenarios
	return &sh, nil
}

// Apply returns a perturbed copy of base. peakU is the uniform draw for the
// peak-sales marginal, supplied by the caller so portfolio runs can correlate
// it across assets; every other draw comes from rng in a fixed order.
func (sh *Shocks) Apply(base *model.Snapshot, rng *rand.Rand, peakU float64) *model.Snapshot {
	s := base.Clone()
	s.Levers = s.Levers.Clone()
	if sh == nil {
		return s
	}

	if sh.PeakSales != nil {
		m := math.Max(0, sh.PeakSales.Quantile(peakU))
		for i := range s.CommercialRows {
			s.CommercialRows[i].GrossPrice *= m
		}
	}
	if sh.LaunchDelayYears != nil {
		delay := sh.LaunchDelayYears.Quantile(uniform(rng))
		if s.Levers.DurationShiftMonths == nil {
			s.Levers.DurationShiftMonths = make(map[model.Phase]float64)
		}
		s.Levers.DurationShiftMonths[s.CurrentPhase] += delay * 12
	}
	if sh.RDCost != nil {
		m := math.Max(0, sh.RDCost.Quantile(uniform(rng)))
		for i := range s.RDCosts {
			s.RDCosts[i].Amount *= m
		}
	}
	if sh.TimeToPeak != nil {
		m := math.Max(0, sh.TimeToPeak.Quantile(uniform(rng)))
		for i := range s.CommercialRows {
			s.CommercialRows[i].TimeToPeak *= m
		}
	}

	switch sh.PhaseOutcome {
	case OutcomeBernoulli:
		playPhases(s, rng)
	case OutcomePerturb:
		perturbPhases(s, rng, sh.SuccessRateStdDev)
	}

	if sh.SampleScenarios {
		sampleScenarios(s, rng)
	}
	return s
}

// remainingRates returns the rate in force for each phase from current
// through the terminal phase. Phases with no rate are omitted.
func remainingRates(s *model.Snapshot) ([]model.Phase, map[model.Phase]float64) {
	var order []model.Phase
	rates := make(map[model.Phase]float64)
	for _, p := range model.CanonicalPhases() {
		if p.Before(s.CurrentPhase) || p > model.TerminalPhase {
			continue
		}
		r, ok := s.Levers.SuccessRateOverrides[p]
		if !ok {
			r, ok = s.PhaseRate(p)
		}
		if !ok {
			continue
		}
		order = append(order, p)
		rates[p] = r
	}
	return order, rates
}

// playPhases resolves each remaining phase to certain success or certain
// failure. Phases after the first failure keep their rates; the zero
// upstream already removes them.
func playPhases(s *model.Snapshot, rng *rand.Rand) {
	order, rates := remainingRates(s)
	if s.Levers.SuccessRateOverrides == nil {
		s.Levers.SuccessRateOverrides = make(map[model.Phase]float64)
	}
	for _, p := range order {
		if rng.Float64() < rates[p] {
			s.Levers.SuccessRateOverrides[p] = 1
			continue
		}
		s.Levers.SuccessRateOverrides[p] = 0
		return
	}
}

func perturbPhases(s *model.Snapshot, rng *rand.Rand, sd float64) {
	order, rates := remainingRates(s)
	if s.Levers.SuccessRateOverrides == nil {
		s.Levers.SuccessRateOverrides = make(map[model.Phase]float64)
	}
	for _, p := range order {
		r := rates[p] * (1 + rng.NormFloat64()*sd)
		s.Levers.SuccessRateOverrides[p] = math.Max(MinPerturbedRate, math.Min(1, r))
	}
}

// sampleScenarios keeps one scenario per region, drawn by scenario
// probability, and gives it full weight.
func sampleScenarios(s *model.Snapshot, rng *rand.Rand) {
	groups := s.ScenarioGroups()
	chosen := make(map[string]string)
	for _, region := range s.Regions() {
		u := rng.Float64()
		var cum float64
		var last string
		for _, g := range groups {
			if g.Region != region {
				continue
			}
			last = g.Scenario
			cum += g.Probability
			if u < cum {
				chosen[region] = g.Scenario
				break
			}
		}
		if _, ok := chosen[region]; !ok {
			chosen[region] = last
		}
	}

	rows := s.CommercialRows[:0]
	for _, row := range s.CommercialRows {
		if chosen[row.Region] == row.Scenario {
			row.ScenarioProbability = 1
			rows = append(rows, row)
		}
	}
	s.CommercialRows = rows
}

// uniform draws from the open interval (0,1).
func uniform(rng *rand.Rand) float64 {
	for {
		if u := rng.Float64(); u > 0 {
			return u
		}
	}
}
