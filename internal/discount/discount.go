// Package discount converts future cash flows to present value under the
// mid-year convention.
package discount

import (
	"math"

	"github.com/sells-group/rnpv-cli/internal/model"
)

// DefaultMaxRate is the upper sanity bound applied when callers pass zero.
const DefaultMaxRate = 1.0

// Exponent returns the mid-year discount exponent for year relative to the
// valuation year. A cash flow in the valuation year itself has exponent -0.5
// and is therefore inflated, not reduced.
func Exponent(year, valuationYear int) float64 {
	return float64(year-valuationYear) - 0.5
}

// Factor returns the multiplier that turns a nominal cash flow in year into
// present value.
func Factor(year, valuationYear int, rate float64) float64 {
	return math.Pow(1+rate, -Exponent(year, valuationYear))
}

// PresentValue discounts cf received in year back to the valuation year.
func PresentValue(cf float64, year, valuationYear int, rate float64) float64 {
	return cf * Factor(year, valuationYear, rate)
}

// FutureValue is the inverse of PresentValue.
func FutureValue(pv float64, year, valuationYear int, rate float64) float64 {
	return pv / Factor(year, valuationYear, rate)
}

// ValidateRate rejects rates that make the power undefined or exceed max.
// entity and field name the input the rate came from.
func ValidateRate(entity, field string, rate, max float64) error {
	if max <= 0 {
		max = DefaultMaxRate
	}
	switch {
	case math.IsNaN(rate) || math.IsInf(rate, 0):
		return &model.ValidationError{Entity: entity, Field: field, Value: rate, Reason: "rate must be finite"}
	case rate <= -1:
		return &model.ValidationError{Entity: entity, Field: field, Value: rate, Reason: "rate must be greater than -1"}
	case rate > max:
		return &model.ValidationError{Entity: entity, Field: field, Value: rate, Reason: "rate exceeds maximum allowed discount rate"}
	}
	return nil
}
