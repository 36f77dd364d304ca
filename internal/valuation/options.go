// Package valuation runs the deterministic rNPV calculation for one
// snapshot: R&D leg, commercial leg, ledger and headline result.
package valuation

import (
	"github.com/sells-group/rnpv-cli/internal/discount"
	"github.com/sells-group/rnpv-cli/internal/revenue"
)

// ProbabilityTolerance bounds how far a region's scenario probabilities may
// stray from 1.
const ProbabilityTolerance = 0.01

// Options are the explicit numerical settings of one run.
type Options struct {
	QuadratureSteps int     // trapezoid subdivisions per continuous piece, at least 12
	MaxDiscountRate float64 // upper sanity bound on any discount rate
}

// DefaultOptions returns the settings used when the caller has no config.
func DefaultOptions() Options {
	return Options{
		QuadratureSteps: revenue.MinSteps,
		MaxDiscountRate: discount.DefaultMaxRate,
	}
}
