// Package montecarlo re-runs the deterministic valuation under sampled
// input shocks, for single assets and correlated portfolios.
package montecarlo

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sells-group/rnpv-cli/internal/model"
)

// Marginal maps a uniform draw u in (0,1) to a sample.
type Marginal interface {
	Quantile(u float64) float64
}

// DistributionKind names a marginal family.
type DistributionKind string

const (
	KindNone       DistributionKind = ""
	KindFixed      DistributionKind = "fixed"
	KindThreePoint DistributionKind = "three_point"
	KindTriangular DistributionKind = "triangular"
	KindNormal     DistributionKind = "normal"
)

// DistributionSpec describes a marginal in serializable form.
type DistributionSpec struct {
	Kind     DistributionKind `yaml:"kind" json:"kind"`
	Value    float64          `yaml:"value" json:"value,omitempty"`         // fixed
	Low      float64          `yaml:"low" json:"low,omitempty"`             // three_point, triangular
	Base     float64          `yaml:"base" json:"base,omitempty"`           // three_point base, triangular mode
	High     float64          `yaml:"high" json:"high,omitempty"`           // three_point, triangular
	LowProb  float64          `yaml:"low_prob" json:"low_prob,omitempty"`   // three_point
	HighProb float64          `yaml:"high_prob" json:"high_prob,omitempty"` // three_point
	Mean     float64          `yaml:"mean" json:"mean,omitempty"`           // normal
	StdDev   float64          `yaml:"std_dev" json:"std_dev,omitempty"`     // normal
}

// Fixed always returns Value.
type Fixed struct{ Value float64 }

// Quantile implements Marginal.
func (f Fixed) Quantile(float64) float64 { return f.Value }

// ThreePoint is a discrete low / base / high distribution.
type ThreePoint struct {
	Low, Base, High   float64
	LowProb, HighProb float64
}

// Quantile implements Marginal.
func (t ThreePoint) Quantile(u float64) float64 {
	switch {
	case u < t.LowProb:
		return t.Low
	case u < 1-t.HighProb:
		return t.Base
	default:
		return t.High
	}
}

// Triangular wraps the gonum triangle distribution.
type Triangular struct{ d distuv.Triangle }

// Quantile implements Marginal.
func (t Triangular) Quantile(u float64) float64 { return t.d.Quantile(u) }

// Normal wraps the gonum normal distribution.
type Normal struct{ d distuv.Normal }

// Quantile implements Marginal.
func (n Normal) Quantile(u float64) float64 { return n.d.Quantile(u) }

// NewMarginal builds the marginal described by spec. KindNone yields a nil
// marginal, meaning the input is not shocked.
func NewMarginal(field string, spec DistributionSpec) (Marginal, error) {
	bad := func(reason string) error {
		return &model.ValidationError{Entity: "shocks", Field: field, Value: string(spec.Kind), Reason: reason}
	}
	for _, v := range []float64{spec.Value, spec.Low, spec.Base, spec.High, spec.LowProb, spec.HighProb, spec.Mean, spec.StdDev} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, bad("parameters must be finite")
		}
	}

	switch spec.Kind {
	case KindNone:
		return nil, nil
	case KindFixed:
		return Fixed{Value: spec.Value}, nil
	case KindThreePoint:
		if spec.LowProb < 0 || spec.HighProb < 0 || spec.LowProb+spec.HighProb > 1 {
			return nil, bad("low_prob and high_prob must be non-negative and sum to at most 1")
		}
		return ThreePoint{Low: spec.Low, Base: spec.Base, High: spec.High, LowProb: spec.LowProb, HighProb: spec.HighProb}, nil
	case KindTriangular:
		if spec.Low == spec.High {
			return Fixed{Value: spec.Low}, nil
		}
		if spec.Low > spec.High || spec.Base < spec.Low || spec.Base > spec.High {
			return nil, bad("triangular requires low <= base <= high")
		}
		return Triangular{d: distuv.NewTriangle(spec.Low, spec.High, spec.Base, nil)}, nil
	case KindNormal:
		if spec.StdDev < 0 {
			return nil, bad("std_dev must not be negative")
		}
		if spec.StdDev == 0 {
			return Fixed{Value: spec.Mean}, nil
		}
		return Normal{d: distuv.Normal{Mu: spec.Mean, Sigma: spec.StdDev}}, nil
	default:
		return nil, bad("kind must be fixed, three_point, triangular or normal")
	}
}
