package valuation

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// HHI thresholds on the 0-10000 scale.
const (
	hhiModerate = 1500
	hhiHigh     = 2500
)

// Concentration levels shared by the HHI and top-N measures.
const (
	LevelLow      = "low"
	LevelModerate = "moderate"
	LevelHigh     = "high"
)

// topNSizes are the dependency cut-offs reported by AnalyzeConcentration.
var topNSizes = []int{1, 2, 3, 5}

// Share is one component's slice of portfolio value.
type Share struct {
	Name     string  `json:"name"`
	NPV      float64 `json:"npv"`
	SharePct float64 `json:"share_pct"`
}

// HHI is a Herfindahl-Hirschman index over one grouping of the portfolio.
type HHI struct {
	Index  float64 `json:"index"` // 0-10000
	Level  string  `json:"level"`
	Shares []Share `json:"shares"`
}

// TopN is the share of portfolio NPV carried by the N largest assets.
type TopN struct {
	N        int      `json:"n"`
	NPV      float64  `json:"npv"`
	SharePct float64  `json:"share_pct"`
	Assets   []string `json:"assets"`
	Risk     string   `json:"risk"`
}

// Diversification scores spread across count, therapeutic area, phase and
// value. Each component is worth 25 points.
type Diversification struct {
	Score        float64 `json:"score"`
	Grade        string  `json:"grade"`
	ProjectCount float64 `json:"project_count"`
	AreaSpread   float64 `json:"area_spread"`
	PhaseSpread  float64 `json:"phase_spread"`
	ValueBalance float64 `json:"value_balance"`
}

// Concentration is the portfolio's concentration profile. It is nil when
// no asset carries value.
type Concentration struct {
	ByAsset           HHI             `json:"by_asset"`
	ByTherapeuticArea HHI             `json:"by_therapeutic_area"`
	ByPhase           HHI             `json:"by_phase"`
	TopN              []TopN          `json:"top_n"`
	Diversification   Diversification `json:"diversification"`
}

// AnalyzeConcentration measures how portfolio value is spread. HHI shares
// use absolute NPV so a loss-making asset still counts as exposure; top-N
// ranks by signed NPV against the absolute signed total. Assets without a
// result are skipped.
func AnalyzeConcentration(assets []Asset) *Concentration {
	var (
		names []string
		npvs  []float64
	)
	areas := make(map[string]float64)
	phases := make(map[string]float64)
	for _, a := range assets {
		if a.Result == nil || a.Killed {
			continue
		}
		v := math.Abs(a.Result.NPVTotal)
		names = append(names, a.Result.SnapshotID)
		npvs = append(npvs, a.Result.NPVTotal)
		area, phase := "Unassigned", "Unknown"
		if a.Snapshot != nil {
			if a.Snapshot.TherapeuticArea != "" {
				area = a.Snapshot.TherapeuticArea
			}
			phase = a.Snapshot.CurrentPhase.String()
		}
		areas[area] += v
		phases[phase] += v
	}

	abs := make([]float64, len(npvs))
	for i, v := range npvs {
		abs[i] = math.Abs(v)
	}
	total := floats.Sum(abs)
	if total == 0 {
		return nil
	}

	byAsset := make(map[string]float64, len(names))
	for i, n := range names {
		byAsset[n] = abs[i]
	}
	c := &Concentration{
		ByAsset:           hhi(byAsset, total),
		ByTherapeuticArea: hhi(areas, total),
		ByPhase:           hhi(phases, total),
		TopN:              topN(names, npvs),
	}
	c.Diversification = diversify(len(names), c)
	return c
}

func hhi(values map[string]float64, total float64) HHI {
	out := HHI{Shares: make([]Share, 0, len(values))}
	pcts := make([]float64, 0, len(values))
	for name, v := range values {
		pct := v / total * 100
		pcts = append(pcts, pct)
		out.Shares = append(out.Shares, Share{Name: name, NPV: v, SharePct: pct})
	}
	sort.Slice(out.Shares, func(i, j int) bool {
		if out.Shares[i].NPV != out.Shares[j].NPV {
			return out.Shares[i].NPV > out.Shares[j].NPV
		}
		return out.Shares[i].Name < out.Shares[j].Name
	})
	out.Index = floats.Dot(pcts, pcts)
	switch {
	case out.Index < hhiModerate:
		out.Level = LevelLow
	case out.Index < hhiHigh:
		out.Level = LevelModerate
	default:
		out.Level = LevelHigh
	}
	return out
}

func topN(names []string, npvs []float64) []TopN {
	idx := make([]int, len(npvs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return npvs[idx[i]] > npvs[idx[j]] })
	total := math.Abs(floats.Sum(npvs))

	var out []TopN
	for _, n := range topNSizes {
		if n > len(idx) {
			break
		}
		t := TopN{N: n}
		for _, i := range idx[:n] {
			t.NPV += npvs[i]
			t.Assets = append(t.Assets, names[i])
		}
		if total > 0 {
			t.SharePct = t.NPV / total * 100
		}
		switch {
		case t.SharePct > 60:
			t.Risk = LevelHigh
		case t.SharePct > 40:
			t.Risk = LevelModerate
		default:
			t.Risk = LevelLow
		}
		out = append(out, t)
	}
	return out
}

func diversify(count int, c *Concentration) Diversification {
	spread := func(h HHI) float64 { return math.Max(0, 1-h.Index/10000) * 25 }
	d := Diversification{
		ProjectCount: math.Min(float64(count)/10, 1) * 25,
		AreaSpread:   spread(c.ByTherapeuticArea),
		PhaseSpread:  spread(c.ByPhase),
		ValueBalance: spread(c.ByAsset),
	}
	d.Score = d.ProjectCount + d.AreaSpread + d.PhaseSpread + d.ValueBalance
	switch {
	case d.Score >= 80:
		d.Grade = "A"
	case d.Score >= 60:
		d.Grade = "B"
	case d.Score >= 40:
		d.Grade = "C"
	case d.Score >= 20:
		d.Grade = "D"
	default:
		d.Grade = "F"
	}
	return d
}
