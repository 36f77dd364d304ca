package valuation

import (
	"fmt"
	"math"

	"github.com/sells-group/rnpv-cli/internal/model"
)

// Timeline is the single shifted phase schedule that both the R&D leg and
// the commercial leg read from.
type Timeline struct {
	// StartShift is the delay in years applied to each phase's start, i.e.
	// the sum of duration shifts on all earlier phases.
	StartShift map[model.Phase]float64
	// LaunchShift is the total delay in years applied to every launch date.
	LaunchShift float64
	Warnings    []model.Warning
}

// BuildTimeline accumulates duration shifts in canonical order. A shift on
// phase p delays every later phase and every launch, but not p's own costs.
// Shifts on phases already behind current are ignored with a warning. Loss
// of exclusivity dates are never moved.
func BuildTimeline(current model.Phase, shiftMonths map[model.Phase]float64) *Timeline {
	tl := &Timeline{StartShift: make(map[model.Phase]float64)}
	var acc float64
	for _, p := range model.CanonicalPhases() {
		tl.StartShift[p] = acc / 12
		months, ok := shiftMonths[p]
		if !ok || months == 0 {
			continue
		}
		if p.Before(current) || p > model.TerminalPhase {
			tl.Warnings = append(tl.Warnings, model.Warning{
				Code:    model.WarningIgnoredShift,
				Phase:   p,
				Message: fmt.Sprintf("duration shift of %v months on %s ignored", months, p),
			})
			continue
		}
		acc += months
	}
	tl.LaunchShift = acc / 12
	return tl
}

// CostYear returns the shifted calendar year of an R&D entry.
func (t *Timeline) CostYear(c model.RDCost) int {
	return c.Year + int(math.Round(t.StartShift[c.Phase]))
}

// Launch returns the shifted launch date of a commercial row.
func (t *Timeline) Launch(row model.CommercialRow) float64 {
	return row.LaunchDate + t.LaunchShift
}
