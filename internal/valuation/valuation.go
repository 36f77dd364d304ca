package valuation

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/rnpv-cli/internal/discount"
	"github.com/sells-group/rnpv-cli/internal/model"
	"github.com/sells-group/rnpv-cli/internal/revenue"
)

// Run values s and returns its ledger and result. It is a pure function of
// its arguments. Missing R&D costs or commercial rows yield zero for that
// leg; malformed input yields a *model.ValidationError.
func Run(s *model.Snapshot, opts Options) (*model.Ledger, *model.Result, error) {
	p, err := prepare(s, opts)
	if err != nil {
		return nil, nil, err
	}

	rd, npvRD := p.rdLeg()
	commercial, result, err := p.commercialLeg()
	if err != nil {
		return nil, nil, err
	}

	result.SnapshotID = s.ID
	result.NPVRD = npvRD
	result.NPVTotal = npvRD + result.NPVCommercial
	result.CumulativePOS = p.risk.Commercial
	warnings := append(append([]model.Warning(nil), p.risk.Warnings...), p.timeline.Warnings...)
	result.Warnings = append(warnings, result.Warnings...)

	ledger := &model.Ledger{SnapshotID: s.ID, Records: buildLedger(rd, commercial)}

	zap.L().Debug("valuation: run complete",
		zap.String("snapshot_id", s.ID),
		zap.Float64("npv_rd", result.NPVRD),
		zap.Float64("npv_commercial", result.NPVCommercial),
		zap.Float64("npv_total", result.NPVTotal),
		zap.Int("warnings", len(result.Warnings)),
	)
	return ledger, result, nil
}

func (p *plan) rdLeg() ([]model.CashFlowRecord, float64) {
	s := p.snap
	rate := s.RDDiscountRate + p.levers.DiscountRateDelta
	var (
		records []model.CashFlowRecord
		npv     float64
	)
	for _, c := range s.RDCosts {
		if c.Phase.Before(s.CurrentPhase) {
			continue
		}
		year := p.timeline.CostYear(c)
		if year < s.ValuationYear {
			continue
		}
		raw := c.Amount * p.levers.RDCost()
		mult := p.risk.CostFor(c.Phase)
		adj := raw * mult
		pv := discount.PresentValue(adj, year, s.ValuationYear, rate)
		npv += pv
		records = append(records, model.CashFlowRecord{
			Year:           year,
			Scope:          model.ScopeRD,
			Phase:          c.Phase,
			Probability:    1,
			Costs:          raw,
			CashFlow:       raw,
			RiskMultiplier: mult,
			RiskAdjusted:   adj,
			PresentValue:   pv,
		})
	}
	return records, npv
}

func (p *plan) commercialLeg() ([]model.CashFlowRecord, *model.Result, error) {
	s := p.snap
	res := &model.Result{NPVByRegionScenario: make(map[string]map[string]float64)}
	var records []model.CashFlowRecord

	for _, g := range p.groups {
		profiles := make([]*revenue.Profile, 0, len(g.Rows))
		var groupPeak float64
		for _, row := range g.Rows {
			row.LaunchDate = p.timeline.Launch(row)
			if row.LaunchDate >= row.LOEDate {
				res.Warnings = append(res.Warnings, model.Warning{
					Code:    model.WarningLaunchAfterLOE,
					Message: fmt.Sprintf("%s/%s/%s launches at %.2f, on or after LOE %.2f", row.Region, row.Scenario, row.Segment, row.LaunchDate, row.LOEDate),
				})
			}
			row.TimeToPeak *= p.levers.TimeToPeak()
			prof, err := revenue.NewProfile(row)
			if err != nil {
				return nil, nil, err
			}
			profiles = append(profiles, prof)
			groupPeak += prof.Peak()
		}
		res.PeakSales += groupPeak * p.levers.Revenue() * g.Probability

		rep := g.Representative()
		rate := rep.DiscountRate + p.levers.DiscountRateDelta
		costRate := rep.COGSRate + rep.DistributionRate + rep.OperatingRate

		var groupNPV float64
		for year := s.ValuationYear; year < s.ValuationYear+s.HorizonYears; year++ {
			var rev float64
			for _, prof := range profiles {
				rev += prof.AnnualRevenue(year, p.opts.QuadratureSteps)
			}
			if rev <= 0 {
				continue
			}
			rev *= p.levers.Revenue()

			costs := rev * costRate
			ebit := rev - costs
			tax := max(0, ebit*rep.TaxRate)
			fcf := ebit - tax
			adj := fcf * p.risk.Commercial
			pv := discount.PresentValue(adj, year, s.ValuationYear, rate)
			groupNPV += pv

			records = append(records, model.CashFlowRecord{
				Year:           year,
				Scope:          g.Region,
				Region:         g.Region,
				Scenario:       g.Scenario,
				Probability:    g.Probability,
				Revenue:        rev,
				Costs:          -costs,
				Tax:            -tax,
				CashFlow:       fcf,
				RiskMultiplier: p.risk.Commercial,
				RiskAdjusted:   adj,
				PresentValue:   pv,
			})
		}

		if res.NPVByRegionScenario[g.Region] == nil {
			res.NPVByRegionScenario[g.Region] = make(map[string]float64)
		}
		res.NPVByRegionScenario[g.Region][g.Scenario] = groupNPV
		res.NPVCommercial += groupNPV * g.Probability
	}
	return records, res, nil
}

// buildLedger orders records by year (R&D, then commercial, then the
// year's Total). Total sums R&D at face value and commercial records
// weighted by scenario probability, so the Total present values add up to
// the total NPV.
func buildLedger(rd, commercial []model.CashFlowRecord) []model.CashFlowRecord {
	byYear := make(map[int][]model.CashFlowRecord)
	for _, r := range rd {
		byYear[r.Year] = append(byYear[r.Year], r)
	}
	for _, r := range commercial {
		byYear[r.Year] = append(byYear[r.Year], r)
	}
	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	out := make([]model.CashFlowRecord, 0, len(rd)+len(commercial)+len(years))
	for _, y := range years {
		total := model.CashFlowRecord{Year: y, Scope: model.ScopeTotal, Probability: 1, RiskMultiplier: 1}
		for _, r := range byYear[y] {
			w := r.Probability
			total.Revenue += r.Revenue * w
			total.Costs += r.Costs * w
			total.Tax += r.Tax * w
			total.CashFlow += r.CashFlow * w
			total.RiskAdjusted += r.RiskAdjusted * w
			total.PresentValue += r.PresentValue * w
		}
		out = append(out, byYear[y]...)
		out = append(out, total)
	}
	return out
}
