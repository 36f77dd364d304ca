// Package store persists valuation ledgers and Monte Carlo run summaries.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/rnpv-cli/internal/model"
	"github.com/sells-group/rnpv-cli/internal/montecarlo"
)

// ErrNotFound is returned when no ledger, result or run exists for a key.
var ErrNotFound = errors.New("store: not found")

// AmountPlaces is the number of decimal places kept for stored amounts.
// Amounts are in currency millions, so six places keep whole units.
const AmountPlaces = 6

// SimulationRun is one persisted Monte Carlo run.
type SimulationRun struct {
	ID         string                         `json:"id"`
	SnapshotID string                         `json:"snapshot_id"` // asset ID, or portfolio name
	Mode       string                         `json:"mode"`        // single or portfolio
	Summary    montecarlo.DistributionSummary `json:"summary"`
	CreatedAt  time.Time                      `json:"created_at"`
}

// Store defines the persistence interface for valuation output.
type Store interface {
	// Valuations. ReplaceLedger discards any previous ledger and result for
	// the snapshot; the ledger is derived data and never merged.
	ReplaceLedger(ctx context.Context, ledger *model.Ledger, result *model.Result) error
	GetLedger(ctx context.Context, snapshotID string) (*model.Ledger, error)
	GetResult(ctx context.Context, snapshotID string) (*model.Result, error)

	// Simulations
	SaveSimulation(ctx context.Context, run *SimulationRun) (*SimulationRun, error)
	ListSimulations(ctx context.Context, snapshotID string, limit int) ([]SimulationRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// ledgerColumns is the column order shared by both backends.
var ledgerColumns = []string{
	"snapshot_id", "seq", "year", "scope", "region", "scenario", "phase",
	"probability", "revenue", "costs", "tax", "cash_flow",
	"risk_multiplier", "risk_adjusted", "present_value",
}

// roundAmount rounds v to AmountPlaces.
func roundAmount(v float64) float64 {
	return decimal.NewFromFloat(v).Round(AmountPlaces).InexactFloat64()
}

func ledgerRow(snapshotID string, seq int, r model.CashFlowRecord) []any {
	phase := ""
	if r.Phase.Valid() {
		phase = r.Phase.String()
	}
	return []any{
		snapshotID, seq, r.Year, r.Scope, r.Region, r.Scenario, phase,
		r.Probability,
		roundAmount(r.Revenue),
		roundAmount(r.Costs),
		roundAmount(r.Tax),
		roundAmount(r.CashFlow),
		r.RiskMultiplier,
		roundAmount(r.RiskAdjusted),
		roundAmount(r.PresentValue),
	}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanLedgerRecord(row scannable) (model.CashFlowRecord, error) {
	var r model.CashFlowRecord
	var phase string
	err := row.Scan(&r.Year, &r.Scope, &r.Region, &r.Scenario, &phase,
		&r.Probability, &r.Revenue, &r.Costs, &r.Tax, &r.CashFlow,
		&r.RiskMultiplier, &r.RiskAdjusted, &r.PresentValue)
	if err != nil {
		return r, eris.Wrap(err, "scan ledger record")
	}
	if phase != "" {
		p, err := model.ParsePhase(phase)
		if err != nil {
			return r, eris.Wrapf(err, "scan ledger record phase %q", phase)
		}
		r.Phase = p
	}
	return r, nil
}

func marshalResult(result *model.Result) ([]byte, error) {
	b, err := json.Marshal(result)
	if err != nil {
		return nil, eris.Wrap(err, "marshal result")
	}
	return b, nil
}

func unmarshalResult(b []byte) (*model.Result, error) {
	var r model.Result
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, eris.Wrap(err, "unmarshal result")
	}
	return &r, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
