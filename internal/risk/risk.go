// Package risk turns per-phase success rates into probability-of-reaching
// multipliers for phase costs and commercial cash flows.
package risk

import (
	"fmt"
	"math"

	"github.com/sells-group/rnpv-cli/internal/model"
)

// Multipliers holds the risk weights derived from one set of phase rates.
type Multipliers struct {
	Effective  map[model.Phase]float64 // rate used per phase after forcing and overrides
	Cost       map[model.Phase]float64 // probability of reaching each phase
	Commercial float64                 // probability of reaching market
	Warnings   []model.Warning
}

// CostFor returns the cost multiplier for p. Unknown phases get 1.0.
func (m *Multipliers) CostFor(p model.Phase) float64 {
	if v, ok := m.Cost[p]; ok {
		return v
	}
	return 1.0
}

// CumulativePOS is the product of rates for every canonical phase in
// [from, through]. Phases absent from rates count as 1.0. Every cumulative
// probability in the engine goes through this function.
func CumulativePOS(rates map[model.Phase]float64, from, through model.Phase) float64 {
	pos := 1.0
	for _, p := range model.CanonicalPhases() {
		if p.Before(from) || p > through {
			continue
		}
		if r, ok := rates[p]; ok {
			pos *= r
		}
	}
	return pos
}

// Compute derives the multipliers for a program sitting in current. Phases
// strictly before current are forced to 1.0 regardless of stored value or
// override. A phase in [current, Registration] with no rate is treated as
// 1.0 and reported as a coverage warning.
func Compute(phases []model.ClinicalPhase, current model.Phase, overrides map[model.Phase]float64) (*Multipliers, error) {
	if !current.Valid() {
		return nil, &model.ValidationError{
			Entity: "snapshot",
			Field:  "current_phase",
			Value:  current.String(),
			Reason: "current phase must resolve to a canonical phase",
		}
	}

	stored := make(map[model.Phase]float64, len(phases))
	for _, ph := range phases {
		if !ph.Phase.Valid() {
			return nil, &model.ValidationError{Entity: "phase", Field: "name", Value: ph.Phase.String(), Reason: "unrecognized phase"}
		}
		if _, dup := stored[ph.Phase]; dup {
			return nil, &model.ValidationError{Entity: "phase", Field: "name", Value: ph.Phase.String(), Reason: "phase listed more than once"}
		}
		if err := checkRate("phase", ph.Phase, ph.SuccessRate); err != nil {
			return nil, err
		}
		stored[ph.Phase] = ph.SuccessRate
	}
	for p, r := range overrides {
		if err := checkRate("levers", p, r); err != nil {
			return nil, err
		}
	}

	m := &Multipliers{
		Effective: make(map[model.Phase]float64),
		Cost:      make(map[model.Phase]float64),
	}
	for _, p := range model.CanonicalPhases() {
		if p > model.TerminalPhase {
			break
		}
		if p.Before(current) {
			m.Effective[p] = 1.0
			continue
		}
		if r, ok := overrides[p]; ok {
			m.Effective[p] = r
			continue
		}
		if r, ok := stored[p]; ok {
			m.Effective[p] = r
			continue
		}
		m.Effective[p] = 1.0
		m.Warnings = append(m.Warnings, model.Warning{
			Code:    model.WarningPhaseGap,
			Phase:   p,
			Message: fmt.Sprintf("no success rate for %s; treated as 1.0", p),
		})
	}

	for _, p := range model.CanonicalPhases() {
		m.Cost[p] = CumulativePOS(m.Effective, model.Phase1, p-1)
	}
	m.Commercial = CumulativePOS(m.Effective, model.Phase1, model.TerminalPhase)
	return m, nil
}

func checkRate(entity string, p model.Phase, r float64) error {
	if math.IsNaN(r) || r < 0 || r > 1 {
		return &model.ValidationError{
			Entity: entity,
			Field:  "success_rate",
			Value:  fmt.Sprintf("%s=%v", p, r),
			Reason: "success rate must be within [0, 1]",
		}
	}
	return nil
}
