// Package revenue evaluates uptake curves and integrates them into annual
// revenue for one commercial row.
package revenue

import (
	"math"

	"github.com/sells-group/rnpv-cli/internal/model"
)

// UptakeCurve maps normalized ramp time tau in [0,1] to a fraction of peak.
type UptakeCurve interface {
	Evaluate(tau float64) float64
}

// Linear ramps straight from 0 to 1.
type Linear struct{}

// Evaluate implements UptakeCurve.
func (Linear) Evaluate(tau float64) float64 {
	return clamp01(tau)
}

// Logistic is the S-curve 1/(1+e^{-K(tau-Midpoint)}). It is not rescaled, so
// Evaluate(0) > 0 and Evaluate(1) < 1; the jump to 1.0 at the start of the
// plateau is intended.
type Logistic struct {
	K        float64
	Midpoint float64
}

// Evaluate implements UptakeCurve.
func (l Logistic) Evaluate(tau float64) float64 {
	return clamp01(1.0 / (1.0 + math.Exp(-l.K*(tau-l.Midpoint))))
}

// CurveFor builds the curve named by spec.
func CurveFor(spec model.CurveSpec) (UptakeCurve, error) {
	switch spec.Type {
	case model.CurveLinear:
		return Linear{}, nil
	case model.CurveLogistic:
		if spec.K <= 0 || math.IsNaN(spec.K) || math.IsInf(spec.K, 0) {
			return nil, &model.ValidationError{Entity: "curve", Field: "k", Value: spec.K, Reason: "logistic steepness must be positive and finite"}
		}
		if math.IsNaN(spec.Midpoint) || math.IsInf(spec.Midpoint, 0) {
			return nil, &model.ValidationError{Entity: "curve", Field: "midpoint", Value: spec.Midpoint, Reason: "logistic midpoint must be finite"}
		}
		return Logistic{K: spec.K, Midpoint: spec.Midpoint}, nil
	default:
		return nil, &model.ValidationError{Entity: "curve", Field: "type", Value: string(spec.Type), Reason: "curve type must be linear or logistic"}
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
