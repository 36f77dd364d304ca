package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ledgerReplace = ReplaceConfig{
	Table:     "ledger_records",
	KeyColumn: "snapshot_id",
	Columns:   []string{"snapshot_id", "year"},
}

func TestReplaceRows_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "ledger_records" WHERE "snapshot_id" = \$1`).
		WithArgs("asset-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectCopyFrom(pgx.Identifier{"ledger_records"}, []string{"snapshot_id", "year"}).WillReturnResult(2)
	mock.ExpectCommit()

	rows := [][]any{{"asset-1", 2026}, {"asset-1", 2027}}
	n, err := ReplaceRows(context.Background(), mock, ledgerReplace, "asset-1", rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceRows_SchemaQualified(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := ledgerReplace
	cfg.Table = "rnpv.ledger_records"

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "rnpv"\."ledger_records" WHERE "snapshot_id" = \$1`).
		WithArgs("asset-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"rnpv", "ledger_records"}, []string{"snapshot_id", "year"}).WillReturnResult(1)
	mock.ExpectCommit()

	n, err := ReplaceRows(context.Background(), mock, cfg, "asset-1", [][]any{{"asset-1", 2026}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceRows_EmptyRowsOnlyDeletes(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "ledger_records"`).
		WithArgs("asset-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit()

	n, err := ReplaceRows(context.Background(), mock, ledgerReplace, "asset-1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceRows_CopyErrorRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "ledger_records"`).
		WithArgs("asset-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"ledger_records"}, []string{"snapshot_id", "year"}).
		WillReturnError(fmt.Errorf("disk full"))
	mock.ExpectRollback()

	_, err = ReplaceRows(context.Background(), mock, ledgerReplace, "asset-1", [][]any{{"asset-1", 2026}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO ledger_records")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceRows_AfterRunsBeforeCommit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "ledger_records"`).
		WithArgs("asset-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"ledger_records"}, []string{"snapshot_id", "year"}).WillReturnResult(1)
	mock.ExpectExec(`UPDATE valuation_results SET stale = false`).
		WithArgs("asset-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	cfg := ledgerReplace
	cfg.After = func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `UPDATE valuation_results SET stale = false WHERE snapshot_id = $1`, "asset-1")
		return err
	}
	n, err := ReplaceRows(context.Background(), mock, cfg, "asset-1", [][]any{{"asset-1", 2026}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceRows_AfterErrorRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "ledger_records"`).
		WithArgs("asset-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectRollback()

	cfg := ledgerReplace
	cfg.After = func(context.Context, pgx.Tx) error { return fmt.Errorf("constraint violation") }
	_, err = ReplaceRows(context.Background(), mock, cfg, "asset-1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "constraint violation")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceRows_BadConfig(t *testing.T) {
	_, err := ReplaceRows(context.Background(), nil, ReplaceConfig{Table: "t", Columns: []string{"a"}}, 1, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no key column specified")

	_, err = ReplaceRows(context.Background(), nil, ReplaceConfig{Table: "t", KeyColumn: "k"}, 1, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"rnpv.ledger_records", `"rnpv"."ledger_records"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}
