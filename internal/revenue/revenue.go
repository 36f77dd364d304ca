package revenue

import (
	"sort"

	"gonum.org/v1/gonum/integrate"

	"github.com/sells-group/rnpv-cli/internal/model"
)

// MinSteps is the smallest number of trapezoid subdivisions used per
// continuous piece of a calendar year.
const MinSteps = 12

type segment int

const (
	segBefore segment = iota
	segRamp
	segPlateau
	segErosion
	segFloor
)

// Profile is the piecewise uptake shape of one commercial row.
type Profile struct {
	curve  UptakeCurve
	launch float64
	ttp    float64
	peakAt float64
	loe    float64
	ytf    float64
	cliff  float64 // level right after LOE
	floor  float64
	peak   float64 // peak revenue, currency millions
}

// NewProfile prepares row for repeated evaluation.
func NewProfile(row model.CommercialRow) (*Profile, error) {
	curve, err := CurveFor(row.Curve)
	if err != nil {
		return nil, err
	}
	p := &Profile{
		curve:  curve,
		launch: row.LaunchDate,
		ttp:    row.TimeToPeak,
		peakAt: row.LaunchDate + row.TimeToPeak,
		loe:    row.LOEDate,
		ytf:    row.YearsToFloor,
		peak:   PeakRevenue(row),
	}

	// Erosion never climbs above the uptake reached when exclusivity ends.
	atLOE := 0.0
	if p.loe > p.launch {
		atLOE = p.preLOE(p.loe)
	}
	p.cliff = min(row.CliffRetention, atLOE)
	p.floor = min(row.ErosionFloor, p.cliff)
	return p, nil
}

// Peak returns the peak revenue of the row.
func (p *Profile) Peak() float64 { return p.peak }

func (p *Profile) preLOE(t float64) float64 {
	if p.ttp <= 0 || t >= p.peakAt {
		return 1.0
	}
	return clamp01(p.curve.Evaluate((t - p.launch) / p.ttp))
}

func (p *Profile) segment(t float64) segment {
	switch {
	case t < p.launch:
		return segBefore
	case t >= p.loe:
		if p.ytf <= 0 || t >= p.loe+p.ytf {
			return segFloor
		}
		return segErosion
	case p.ttp <= 0 || t >= p.peakAt:
		return segPlateau
	default:
		return segRamp
	}
}

func (p *Profile) eval(s segment, t float64) float64 {
	switch s {
	case segRamp:
		return clamp01(p.curve.Evaluate((t - p.launch) / p.ttp))
	case segPlateau:
		return 1.0
	case segErosion:
		return p.cliff + (p.floor-p.cliff)*(t-p.loe)/p.ytf
	case segFloor:
		return p.floor
	default:
		return 0
	}
}

// Uptake returns the fraction of peak revenue achieved at time t.
func (p *Profile) Uptake(t float64) float64 {
	return p.eval(p.segment(t), t)
}

// AnnualRevenue integrates uptake over [year, year+1) and scales by peak.
// The year is split at every breakpoint of the profile so each piece is
// integrated on its own formula; fractional launch and LOE dates are
// prorated exactly.
func (p *Profile) AnnualRevenue(year, steps int) float64 {
	if p.peak <= 0 {
		return 0
	}
	if steps < MinSteps {
		steps = MinSteps
	}
	start, end := float64(year), float64(year+1)
	if end <= p.launch {
		return 0
	}

	cuts := []float64{start, end}
	for _, b := range []float64{p.launch, p.peakAt, p.loe, p.loe + p.ytf} {
		if b > start && b < end {
			cuts = append(cuts, b)
		}
	}
	sort.Float64s(cuts)

	xs := make([]float64, steps+1)
	ys := make([]float64, steps+1)
	var area float64
	for i := 1; i < len(cuts); i++ {
		a, b := cuts[i-1], cuts[i]
		if b <= a {
			continue
		}
		seg := p.segment((a + b) / 2)
		if seg == segBefore {
			continue
		}
		h := (b - a) / float64(steps)
		for j := range xs {
			x := a + float64(j)*h
			if j == steps {
				x = b
			}
			xs[j] = x
			ys[j] = p.eval(seg, x)
		}
		area += integrate.Trapezoidal(xs, ys)
	}
	return p.peak * area
}

// UptakeFraction returns the uptake of row at time t.
func UptakeFraction(row model.CommercialRow, t float64) (float64, error) {
	p, err := NewProfile(row)
	if err != nil {
		return 0, err
	}
	return p.Uptake(t), nil
}

// AnnualRevenue returns the revenue of row in calendar year, in currency
// millions.
func AnnualRevenue(row model.CommercialRow, year, steps int) (float64, error) {
	p, err := NewProfile(row)
	if err != nil {
		return 0, err
	}
	return p.AnnualRevenue(year, steps), nil
}

// PeakRevenue builds peak annual revenue from the patient funnel, in
// currency millions.
func PeakRevenue(row model.CommercialRow) float64 {
	eligible := row.PatientPopulation
	for _, f := range row.EpiFactors {
		eligible *= f
	}
	treated := eligible * row.AccessRate * row.MarketShare
	treatments := treated * row.UnitsPerTreatment * row.TreatmentsPerYear * row.ComplianceRate
	return treatments * row.GrossPrice * row.GrossToNet / 1e6
}
