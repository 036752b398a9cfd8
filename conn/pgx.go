package conn

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxConn executes on a single raw pgx connection. pgx reads the full
// command result before Exec returns, so the measured duration covers
// server-side processing.
type pgxConn struct {
	conn *pgx.Conn
}

func (c pgxConn) Exec(ctx context.Context, statement string) error {
	_, err := c.conn.Exec(ctx, statement)
	return err
}

// pgxPool executes on a pgx connection pool.
type pgxPool struct {
	pool *pgxpool.Pool
}

func (p pgxPool) Exec(ctx context.Context, statement string) error {
	_, err := p.pool.Exec(ctx, statement)
	return err
}
