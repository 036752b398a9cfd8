// Package conn normalizes heterogeneous database handles into the one
// capability the benchmark engine needs: execute a statement and return
// once the driver call completes.
package conn

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"pgbenchmark/types"
)

// Executor executes one statement. Implementations return once the
// database has processed the call the driver treats as the unit of
// work. Execution errors are returned, never swallowed, and never
// retried. Transaction boundaries across runs are the caller's concern.
type Executor interface {
	Exec(ctx context.Context, statement string) error
}

// Wrap probes handle for a supported execution capability and wraps it
// exactly once, so no per-run type branching happens on the hot path.
// Raw pgx connections, database/sql handles and sqlx handles are
// accepted interchangeably.
func Wrap(handle any) (Executor, error) {
	switch h := handle.(type) {
	case Executor:
		return h, nil
	case *pgx.Conn:
		return pgxConn{h}, nil
	case *pgxpool.Pool:
		return pgxPool{h}, nil
	case *sqlx.DB:
		return sqlxDB{h}, nil
	case *sql.DB:
		return sqlDB{h}, nil
	case *sql.Conn:
		return sqlConn{h}, nil
	case *sql.Tx:
		return sqlTx{h}, nil
	case nil:
		return nil, types.ConfigError{Reason: "no database connection"}
	default:
		return nil, types.ConfigError{Reason: fmt.Sprintf("unsupported connection type %T", handle)}
	}
}

// Open connects to the database named by driver and dsn and returns an
// Executor together with a close function. Driver "pgx" uses the native
// pgx pool; every other driver goes through database/sql and must be
// registered by the caller's imports.
func Open(ctx context.Context, driver, dsn string) (Executor, func() error, error) {
	if dsn == "" {
		return nil, nil, types.ConfigError{Reason: "no database connection"}
	}

	if driver == "" || driver == "pgx" {
		cfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, types.ConfigError{Reason: err.Error()}
		}
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		closer := func() error {
			pool.Close()
			return nil
		}
		return pgxPool{pool}, closer, nil
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, types.ConfigError{Reason: err.Error()}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return sqlDB{db}, db.Close, nil
}
