package montecarlo

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sells-group/rnpv-cli/internal/model"
	"github.com/sells-group/rnpv-cli/internal/valuation"
)

func testSnapshot(id string) *model.Snapshot {
	return &model.Snapshot{
		ID:             id,
		ValuationYear:  2026,
		HorizonYears:   15,
		RDDiscountRate: 0.10,
		CurrentPhase:   model.Phase2,
		Phases: []model.ClinicalPhase{
			{Phase: model.Phase1, SuccessRate: 0.80},
			{Phase: model.Phase2, SuccessRate: 0.65},
			{Phase: model.Phase2B, SuccessRate: 0.70},
			{Phase: model.Phase3, SuccessRate: 0.55},
			{Phase: model.Registration, SuccessRate: 0.90},
		},
		RDCosts: []model.RDCost{
			{Year: 2026, Phase: model.Phase2, Amount: -10},
			{Year: 2027, Phase: model.Phase2B, Amount: -15},
			{Year: 2028, Phase: model.Phase3, Amount: -40},
			{Year: 2030, Phase: model.Registration, Amount: -5},
		},
		CommercialRows: []model.CommercialRow{{
			Region:              "US",
			Scenario:            "Base",
			ScenarioProbability: 1,
			PatientPopulation:   1_000_000,
			EpiFactors:          [6]float64{1, 1, 1, 1, 1, 1},
			AccessRate:          1,
			MarketShare:         1,
			UnitsPerTreatment:   1,
			TreatmentsPerYear:   1,
			ComplianceRate:      1,
			GrossPrice:          300,
			GrossToNet:          1,
			Curve:               model.CurveSpec{Type: model.CurveLinear},
			LaunchDate:          2031,
			TimeToPeak:          3,
			PlateauYears:        4,
			LOEDate:             2038,
			CliffRetention:      0.6,
			ErosionFloor:        0.2,
			YearsToFloor:        2,
			COGSRate:            0.1,
			OperatingRate:       0.2,
			TaxRate:             0.21,
			DiscountRate:        0.10,
		}},
	}
}

func testConfig(n int) Config {
	return Config{
		Iterations: n,
		Seed:       42,
		Workers:    4,
		Options:    valuation.DefaultOptions(),
	}
}

// countingRecorder counts telemetry calls and can cancel a run after a
// given number of iterations.
type countingRecorder struct {
	iterations atomic.Int64
	cancelAt   int64
	cancel     context.CancelFunc

	mu        sync.Mutex
	runs      int
	completed int
	partial   bool
}

func (r *countingRecorder) IterationCompleted(string) {
	if n := r.iterations.Add(1); r.cancel != nil && n == r.cancelAt {
		r.cancel()
	}
}

func (r *countingRecorder) RunCompleted(_ string, completed int, _ time.Duration, partial bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs++
	r.completed = completed
	r.partial = partial
}
