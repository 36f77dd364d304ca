package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/rnpv-cli/internal/db"
	"github.com/sells-group/rnpv-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// Pool sizes used when PoolConfig leaves them unset.
const (
	defaultMaxConns = 4
	defaultMinConns = 1
)

// applyPool sets pool sizing and connection lifetimes on cfg.
func applyPool(cfg *pgxpool.Config, poolCfg *PoolConfig) {
	cfg.MaxConns = defaultMaxConns
	cfg.MinConns = defaultMinConns
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			cfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			cfg.MinConns = poolCfg.MinConns
		}
	}
	cfg.MinConns = min(cfg.MinConns, cfg.MaxConns)
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute
}

// NewPostgres creates a PostgresStore with a connection pool. A nil
// poolCfg uses the default sizes.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	applyPool(pgxCfg, poolCfg)

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS valuation_results (
	snapshot_id    TEXT PRIMARY KEY,
	npv_total      DOUBLE PRECISION NOT NULL,
	cumulative_pos DOUBLE PRECISION NOT NULL,
	result         JSONB NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ledger_records (
	snapshot_id     TEXT NOT NULL,
	seq             INTEGER NOT NULL,
	year            INTEGER NOT NULL,
	scope           TEXT NOT NULL,
	region          TEXT NOT NULL DEFAULT '',
	scenario        TEXT NOT NULL DEFAULT '',
	phase           TEXT NOT NULL DEFAULT '',
	probability     DOUBLE PRECISION NOT NULL,
	revenue         DOUBLE PRECISION NOT NULL,
	costs           DOUBLE PRECISION NOT NULL,
	tax             DOUBLE PRECISION NOT NULL,
	cash_flow       DOUBLE PRECISION NOT NULL,
	risk_multiplier DOUBLE PRECISION NOT NULL,
	risk_adjusted   DOUBLE PRECISION NOT NULL,
	present_value   DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (snapshot_id, seq)
);

CREATE TABLE IF NOT EXISTS simulation_runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	snapshot_id TEXT NOT NULL,
	mode        TEXT NOT NULL,
	iterations  INTEGER NOT NULL,
	completed   INTEGER NOT NULL,
	partial     BOOLEAN NOT NULL DEFAULT false,
	mean        DOUBLE PRECISION NOT NULL,
	p50         DOUBLE PRECISION NOT NULL,
	summary     JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_simulation_runs_snapshot ON simulation_runs(snapshot_id, created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// ReplaceLedger swaps the stored ledger with COPY and upserts the headline
// result, all inside one transaction.
func (s *PostgresStore) ReplaceLedger(ctx context.Context, ledger *model.Ledger, result *model.Result) error {
	if ledger == nil || result == nil {
		return eris.New("postgres: ledger and result are required")
	}
	resultJSON, err := marshalResult(result)
	if err != nil {
		return eris.Wrap(err, "postgres")
	}

	rows := make([][]any, len(ledger.Records))
	for i, r := range ledger.Records {
		rows[i] = ledgerRow(ledger.SnapshotID, i, r)
	}
	cfg := db.ReplaceConfig{
		Table:     "ledger_records",
		KeyColumn: "snapshot_id",
		Columns:   ledgerColumns,
		After: func(ctx context.Context, tx pgx.Tx) error {
			_, err := tx.Exec(ctx,
				`INSERT INTO valuation_results (snapshot_id, npv_total, cumulative_pos, result, updated_at)
				 VALUES ($1, $2, $3, $4, $5)
				 ON CONFLICT (snapshot_id) DO UPDATE SET
					npv_total = EXCLUDED.npv_total,
					cumulative_pos = EXCLUDED.cumulative_pos,
					result = EXCLUDED.result,
					updated_at = EXCLUDED.updated_at`,
				ledger.SnapshotID, roundAmount(result.NPVTotal), result.CumulativePOS, resultJSON, time.Now().UTC(),
			)
			return eris.Wrap(err, "upsert result")
		},
	}
	if _, err := db.ReplaceRows(ctx, s.pool, cfg, ledger.SnapshotID, rows); err != nil {
		return eris.Wrapf(err, "postgres: replace ledger %s", ledger.SnapshotID)
	}
	return nil
}

func (s *PostgresStore) GetLedger(ctx context.Context, snapshotID string) (*model.Ledger, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT year, scope, region, scenario, phase,
			probability, revenue, costs, tax, cash_flow,
			risk_multiplier, risk_adjusted, present_value
		 FROM ledger_records WHERE snapshot_id = $1 ORDER BY seq`,
		snapshotID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get ledger %s", snapshotID)
	}
	defer rows.Close()

	ledger := &model.Ledger{SnapshotID: snapshotID}
	for rows.Next() {
		r, err := scanLedgerRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres")
		}
		ledger.Records = append(ledger.Records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate ledger")
	}
	if len(ledger.Records) == 0 {
		if _, err := s.GetResult(ctx, snapshotID); err != nil {
			return nil, err
		}
	}
	return ledger, nil
}

func (s *PostgresStore) GetResult(ctx context.Context, snapshotID string) (*model.Result, error) {
	var resultJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT result FROM valuation_results WHERE snapshot_id = $1`, snapshotID,
	).Scan(&resultJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: result %s", snapshotID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get result %s", snapshotID)
	}
	r, err := unmarshalResult(resultJSON)
	return r, eris.Wrap(err, "postgres")
}

func (s *PostgresStore) SaveSimulation(ctx context.Context, run *SimulationRun) (*SimulationRun, error) {
	out := *run
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}

	summaryJSON, err := json.Marshal(out.Summary)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal summary")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO simulation_runs (id, snapshot_id, mode, iterations, completed, partial, mean, p50, summary, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		out.ID, out.SnapshotID, out.Mode, out.Summary.Iterations, out.Summary.Completed, out.Summary.Partial,
		roundAmount(out.Summary.Mean), roundAmount(out.Summary.Percentiles.P50), summaryJSON, out.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert simulation run")
	}
	return &out, nil
}

func (s *PostgresStore) ListSimulations(ctx context.Context, snapshotID string, limit int) ([]SimulationRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, snapshot_id, mode, summary, created_at FROM simulation_runs
		 WHERE snapshot_id = $1 ORDER BY created_at DESC LIMIT $2`,
		snapshotID, clampLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list simulations")
	}
	defer rows.Close()

	var runs []SimulationRun
	for rows.Next() {
		var r SimulationRun
		var summaryJSON []byte
		if err := rows.Scan(&r.ID, &r.SnapshotID, &r.Mode, &summaryJSON, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan simulation run")
		}
		if err := json.Unmarshal(summaryJSON, &r.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate simulations")
}
