package valuation

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/rnpv-cli/internal/model"
)

// Asset is one valued program in a portfolio. Baseline is the asset's
// result before portfolio-level overrides, nil when none apply. A killed
// asset is reported but contributes nothing.
type Asset struct {
	Snapshot *model.Snapshot
	Ledger   *model.Ledger
	Result   *model.Result
	Baseline *model.Result
	Killed   bool
}

// Project compares an asset's stand-alone NPV with its NPV as the
// portfolio holds it.
type Project struct {
	SnapshotID   string  `json:"snapshot_id"`
	Active       bool    `json:"active"`
	Overridden   bool    `json:"overridden"`
	NPVOriginal  float64 `json:"npv_original"`
	NPVSimulated float64 `json:"npv_simulated"`
	NPVDelta     float64 `json:"npv_delta"`
}

// YearTotal is one year of a portfolio's combined cash-flow timeline.
type YearTotal struct {
	Year         int     `json:"year"`
	Revenue      float64 `json:"revenue"`
	Costs        float64 `json:"costs"`
	CashFlow     float64 `json:"cash_flow"`
	RiskAdjusted float64 `json:"risk_adjusted"`
	PresentValue float64 `json:"present_value"`
	CumulativePV float64 `json:"cumulative_pv"`
}

// PortfolioSummary aggregates deterministic results across assets.
type PortfolioSummary struct {
	Assets            int                `json:"assets"`
	NPVTotal          float64            `json:"npv_total"`
	NPVMean           float64            `json:"npv_mean"`
	NPVMedian         float64            `json:"npv_median"`
	PeakSales         float64            `json:"peak_sales"`
	PhaseDistribution map[string]int     `json:"phase_distribution"`
	Timeline          []YearTotal        `json:"timeline"`
	ByAsset           map[string]float64 `json:"by_asset"`
	Killed            int                `json:"killed,omitempty"`
	Projects          []Project          `json:"projects"`
	Concentration     *Concentration     `json:"concentration,omitempty"`
	RevenueGaps       []RevenueGap       `json:"revenue_gaps"`
	PeakRevenueYear   int                `json:"peak_revenue_year,omitempty"`
	Launches          []Launch           `json:"launches"`
}

// Summarize combines already-computed valuations and runs the concentration
// and temporal analytics over them. Assets without a result are skipped;
// killed assets appear only in Projects.
func Summarize(assets []Asset) *PortfolioSummary {
	sum := &PortfolioSummary{
		PhaseDistribution: make(map[string]int),
		ByAsset:           make(map[string]float64),
	}
	var npvs []float64
	years := make(map[int]*YearTotal)
	for _, a := range assets {
		if a.Result == nil {
			continue
		}
		sum.Projects = append(sum.Projects, project(a))
		if a.Killed {
			sum.Killed++
			continue
		}
		sum.Assets++
		sum.NPVTotal += a.Result.NPVTotal
		sum.PeakSales += a.Result.PeakSales
		npvs = append(npvs, a.Result.NPVTotal)
		sum.ByAsset[a.Result.SnapshotID] = a.Result.NPVTotal
		if a.Snapshot != nil {
			sum.PhaseDistribution[a.Snapshot.CurrentPhase.String()]++
		}
		if a.Ledger == nil {
			continue
		}
		for _, r := range a.Ledger.Totals() {
			yt, ok := years[r.Year]
			if !ok {
				yt = &YearTotal{Year: r.Year}
				years[r.Year] = yt
			}
			yt.Revenue += r.Revenue
			yt.Costs += r.Costs + r.Tax
			yt.CashFlow += r.CashFlow
			yt.RiskAdjusted += r.RiskAdjusted
			yt.PresentValue += r.PresentValue
		}
	}
	if len(npvs) > 0 {
		sort.Float64s(npvs)
		sum.NPVMean = stat.Mean(npvs, nil)
		// LinInterp at 0.5 returns the lower middle value; at (n+1)/2n it
		// averages the middle pair for even n.
		n := float64(len(npvs))
		sum.NPVMedian = stat.Quantile((n+1)/(2*n), stat.LinInterp, npvs, nil)
	}

	keys := make([]int, 0, len(years))
	for y := range years {
		keys = append(keys, y)
	}
	sort.Ints(keys)
	var cum float64
	for _, y := range keys {
		yt := years[y]
		cum += yt.PresentValue
		yt.CumulativePV = cum
		sum.Timeline = append(sum.Timeline, *yt)
	}

	sum.Concentration = AnalyzeConcentration(assets)
	sum.RevenueGaps, sum.PeakRevenueYear = RevenueGaps(sum.Timeline)
	sum.Launches = LaunchTimeline(assets)
	return sum
}

func project(a Asset) Project {
	p := Project{
		SnapshotID:   a.Result.SnapshotID,
		Active:       !a.Killed,
		Overridden:   a.Killed || a.Baseline != nil,
		NPVOriginal:  a.Result.NPVTotal,
		NPVSimulated: a.Result.NPVTotal,
	}
	if a.Baseline != nil {
		p.NPVOriginal = a.Baseline.NPVTotal
	}
	if a.Killed {
		p.NPVSimulated = 0
	}
	p.NPVDelta = p.NPVSimulated - p.NPVOriginal
	return p
}
