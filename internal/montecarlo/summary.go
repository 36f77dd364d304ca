package montecarlo

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Percentiles of a distribution of NPV draws.
type Percentiles struct {
	P5  float64 `json:"p5"`
	P10 float64 `json:"p10"`
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
}

// DistributionSummary describes the NPV draws of one run.
type DistributionSummary struct {
	Iterations          int         `json:"iterations"` // requested
	Completed           int         `json:"completed"`
	Partial             bool        `json:"partial"`
	Seed                uint64      `json:"seed"`
	Mean                float64     `json:"mean"`
	StdDev              float64     `json:"std_dev"`
	Percentiles         Percentiles `json:"percentiles"`
	ProbabilityPositive float64     `json:"probability_positive"`
	Min                 float64     `json:"min"`
	Max                 float64     `json:"max"`
	StdErr              float64     `json:"std_err"`
	CI95Low             float64     `json:"ci95_low"`
	CI95High            float64     `json:"ci95_high"`
}

// CI95Width is the width of the 95% confidence interval of the mean.
func (d *DistributionSummary) CI95Width() float64 {
	return d.CI95High - d.CI95Low
}

// Summarize computes summary statistics over draws. The input is not
// modified. Percentiles interpolate linearly between order statistics.
func Summarize(draws []float64) DistributionSummary {
	n := len(draws)
	out := DistributionSummary{Iterations: n, Completed: n}
	if n == 0 {
		return out
	}

	sorted := append([]float64(nil), draws...)
	sort.Float64s(sorted)

	out.Mean = stat.Mean(sorted, nil)
	if n > 1 {
		out.StdDev = stat.StdDev(sorted, nil)
	}
	q := func(p float64) float64 { return stat.Quantile(p, stat.LinInterp, sorted, nil) }
	out.Percentiles = Percentiles{
		P5:  q(0.05),
		P10: q(0.10),
		P25: q(0.25),
		P50: q(0.50),
		P75: q(0.75),
		P90: q(0.90),
		P95: q(0.95),
	}

	positive := 0
	for _, v := range sorted {
		if v > 0 {
			positive++
		}
	}
	out.ProbabilityPositive = float64(positive) / float64(n)
	out.Min = floats.Min(sorted)
	out.Max = floats.Max(sorted)
	out.StdErr = out.StdDev / math.Sqrt(float64(n))
	out.CI95Low = out.Mean - 1.96*out.StdErr
	out.CI95High = out.Mean + 1.96*out.StdErr
	return out
}
