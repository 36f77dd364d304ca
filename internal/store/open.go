package store

import (
	"context"

	"github.com/rotisserie/eris"
)

// Open returns the Store for driver ("sqlite" or "postgres"). pool tunes
// the Postgres connection pool and is ignored for SQLite.
func Open(ctx context.Context, driver, dsn string, pool *PoolConfig) (Store, error) {
	switch driver {
	case "sqlite", "":
		s, err := NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := NewPostgres(ctx, dsn, pool)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}
