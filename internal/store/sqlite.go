package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/rnpv-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS valuation_results (
	snapshot_id    TEXT PRIMARY KEY,
	npv_total      REAL NOT NULL,
	cumulative_pos REAL NOT NULL,
	result         TEXT NOT NULL,
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS ledger_records (
	snapshot_id     TEXT NOT NULL,
	seq             INTEGER NOT NULL,
	year            INTEGER NOT NULL,
	scope           TEXT NOT NULL,
	region          TEXT NOT NULL DEFAULT '',
	scenario        TEXT NOT NULL DEFAULT '',
	phase           TEXT NOT NULL DEFAULT '',
	probability     REAL NOT NULL,
	revenue         REAL NOT NULL,
	costs           REAL NOT NULL,
	tax             REAL NOT NULL,
	cash_flow       REAL NOT NULL,
	risk_multiplier REAL NOT NULL,
	risk_adjusted   REAL NOT NULL,
	present_value   REAL NOT NULL,
	PRIMARY KEY (snapshot_id, seq)
);

CREATE TABLE IF NOT EXISTS simulation_runs (
	id          TEXT PRIMARY KEY,
	snapshot_id TEXT NOT NULL,
	mode        TEXT NOT NULL,
	iterations  INTEGER NOT NULL,
	completed   INTEGER NOT NULL,
	partial     INTEGER NOT NULL DEFAULT 0,
	mean        REAL NOT NULL,
	p50         REAL NOT NULL,
	summary     TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_simulation_runs_snapshot ON simulation_runs(snapshot_id, created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ReplaceLedger(ctx context.Context, ledger *model.Ledger, result *model.Result) error {
	if ledger == nil || result == nil {
		return eris.New("sqlite: ledger and result are required")
	}
	resultJSON, err := marshalResult(result)
	if err != nil {
		return eris.Wrap(err, "sqlite")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_records WHERE snapshot_id = ?`, ledger.SnapshotID); err != nil {
		return eris.Wrapf(err, "sqlite: delete ledger %s", ledger.SnapshotID)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO ledger_records (
		snapshot_id, seq, year, scope, region, scenario, phase,
		probability, revenue, costs, tax, cash_flow,
		risk_multiplier, risk_adjusted, present_value
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare ledger insert")
	}
	defer stmt.Close()

	for i, r := range ledger.Records {
		if _, err := stmt.ExecContext(ctx, ledgerRow(ledger.SnapshotID, i, r)...); err != nil {
			return eris.Wrapf(err, "sqlite: insert ledger record %d", i)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO valuation_results (snapshot_id, npv_total, cumulative_pos, result, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (snapshot_id) DO UPDATE SET
			npv_total = excluded.npv_total,
			cumulative_pos = excluded.cumulative_pos,
			result = excluded.result,
			updated_at = excluded.updated_at`,
		ledger.SnapshotID, roundAmount(result.NPVTotal), result.CumulativePOS, string(resultJSON), time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert result %s", ledger.SnapshotID)
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit ledger")
}

func (s *SQLiteStore) GetLedger(ctx context.Context, snapshotID string) (*model.Ledger, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT year, scope, region, scenario, phase,
			probability, revenue, costs, tax, cash_flow,
			risk_multiplier, risk_adjusted, present_value
		 FROM ledger_records WHERE snapshot_id = ? ORDER BY seq`,
		snapshotID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get ledger %s", snapshotID)
	}
	defer rows.Close()

	ledger := &model.Ledger{SnapshotID: snapshotID}
	for rows.Next() {
		r, err := scanLedgerRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite")
		}
		ledger.Records = append(ledger.Records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate ledger")
	}
	if len(ledger.Records) == 0 {
		// An empty ledger is valid only when a result was stored with it.
		if _, err := s.GetResult(ctx, snapshotID); err != nil {
			return nil, err
		}
	}
	return ledger, nil
}

func (s *SQLiteStore) GetResult(ctx context.Context, snapshotID string) (*model.Result, error) {
	var resultJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT result FROM valuation_results WHERE snapshot_id = ?`, snapshotID,
	).Scan(&resultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: result %s", snapshotID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get result %s", snapshotID)
	}
	r, err := unmarshalResult([]byte(resultJSON))
	return r, eris.Wrap(err, "sqlite")
}

func (s *SQLiteStore) SaveSimulation(ctx context.Context, run *SimulationRun) (*SimulationRun, error) {
	out := *run
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}

	summaryJSON, err := json.Marshal(out.Summary)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal summary")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO simulation_runs (id, snapshot_id, mode, iterations, completed, partial, mean, p50, summary, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ID, out.SnapshotID, out.Mode, out.Summary.Iterations, out.Summary.Completed, out.Summary.Partial,
		roundAmount(out.Summary.Mean), roundAmount(out.Summary.Percentiles.P50), string(summaryJSON), out.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert simulation run")
	}
	return &out, nil
}

func (s *SQLiteStore) ListSimulations(ctx context.Context, snapshotID string, limit int) ([]SimulationRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, snapshot_id, mode, summary, created_at FROM simulation_runs
		 WHERE snapshot_id = ? ORDER BY created_at DESC LIMIT ?`,
		snapshotID, clampLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list simulations")
	}
	defer rows.Close()

	var runs []SimulationRun
	for rows.Next() {
		var r SimulationRun
		var summaryJSON string
		if err := rows.Scan(&r.ID, &r.SnapshotID, &r.Mode, &summaryJSON, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan simulation run")
		}
		if err := json.Unmarshal([]byte(summaryJSON), &r.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate simulations")
}
