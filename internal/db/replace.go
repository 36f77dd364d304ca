// Package db holds Postgres write helpers shared by the stores.
package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// ReplaceConfig defines a replace-by-key bulk write.
type ReplaceConfig struct {
	Table     string   // target table, optionally schema-qualified
	KeyColumn string   // rows matching the key are deleted first
	Columns   []string // columns being copied

	// After, when set, runs in the same transaction once the rows are
	// copied. An error rolls the whole replace back.
	After func(ctx context.Context, tx pgx.Tx) error
}

// ReplaceRows swaps every row with KeyColumn = key for rows in one
// transaction:
// 1. DELETE FROM table WHERE key_column = key
// 2. COPY the new rows into the table
// 3. cfg.After, if set
// An empty rows slice leaves the key with no rows.
func ReplaceRows(ctx context.Context, pool Pool, cfg ReplaceConfig, key any, rows [][]any) (int64, error) {
	if cfg.KeyColumn == "" {
		return 0, eris.New("db: replace: no key column specified")
	}
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: replace: no columns specified")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: replace: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	deleteSQL := fmt.Sprintf(
		"DELETE FROM %s WHERE %s = $1",
		sanitizeTable(cfg.Table),
		pgx.Identifier{cfg.KeyColumn}.Sanitize(),
	)
	if _, err := tx.Exec(ctx, deleteSQL, key); err != nil {
		return 0, eris.Wrapf(err, "db: replace: delete from %s", cfg.Table)
	}

	var n int64
	if len(rows) > 0 {
		n, err = tx.CopyFrom(ctx, identifier(cfg.Table), cfg.Columns, pgx.CopyFromRows(rows))
		if err != nil {
			return 0, eris.Wrapf(err, "db: replace: COPY INTO %s", cfg.Table)
		}
	}

	if cfg.After != nil {
		if err := cfg.After(ctx, tx); err != nil {
			return 0, eris.Wrapf(err, "db: replace: %s", cfg.Table)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: replace: commit tx")
	}

	return n, nil
}

// identifier splits a schema-qualified name like "rnpv.ledger_records".
func identifier(table string) pgx.Identifier {
	return pgx.Identifier(strings.SplitN(table, ".", 2))
}

// sanitizeTable quotes a possibly schema-qualified table name.
func sanitizeTable(table string) string {
	return identifier(table).Sanitize()
}
