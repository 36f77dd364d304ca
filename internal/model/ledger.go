package model

// Scope labels for ledger records. Commercial records use the region name.
const (
	ScopeRD    = "R&D"
	ScopeTotal = "Total"
)

// CashFlowRecord is one line of the cash-flow ledger.
type CashFlowRecord struct {
	Year           int     `json:"year"`
	Scope          string  `json:"scope"` // R&D, region name, or Total
	Region         string  `json:"region,omitempty"`
	Scenario       string  `json:"scenario,omitempty"`
	Phase          Phase   `json:"phase,omitempty"`
	Probability    float64 `json:"probability"` // scenario weight; 1 for R&D and Total
	Revenue        float64 `json:"revenue"`
	Costs          float64 `json:"costs"` // negative = outflow
	Tax            float64 `json:"tax"`   // negative = outflow
	CashFlow       float64 `json:"cash_flow"`
	RiskMultiplier float64 `json:"risk_multiplier"`
	RiskAdjusted   float64 `json:"risk_adjusted"`
	PresentValue   float64 `json:"present_value"`
}

// Ledger is the derived per-year cash-flow table of one run. It is rebuilt
// from scratch on every run.
type Ledger struct {
	SnapshotID string           `json:"snapshot_id"`
	Records    []CashFlowRecord `json:"records"`
}

// Totals returns only the Total records, in year order.
func (l *Ledger) Totals() []CashFlowRecord {
	var out []CashFlowRecord
	for _, r := range l.Records {
		if r.Scope == ScopeTotal {
			out = append(out, r)
		}
	}
	return out
}

// Result is the headline output of a deterministic valuation.
type Result struct {
	SnapshotID          string                        `json:"snapshot_id"`
	NPVRD               float64                       `json:"npv_rd"`
	NPVCommercial       float64                       `json:"npv_commercial"`
	NPVTotal            float64                       `json:"npv_total"`
	CumulativePOS       float64                       `json:"cumulative_pos"`
	PeakSales           float64                       `json:"peak_sales"` // probability-weighted, currency millions
	NPVByRegionScenario map[string]map[string]float64 `json:"npv_by_region_scenario"`
	Warnings            []Warning                     `json:"warnings,omitempty"`
}
