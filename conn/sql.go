package conn

import (
	"context"
	"database/sql"
)

// sqlDB executes on a database/sql pool. Any registered driver works;
// the CLI registers lib/pq, go-sql-driver/mysql and mattn/go-sqlite3.
type sqlDB struct {
	db *sql.DB
}

func (d sqlDB) Exec(ctx context.Context, statement string) error {
	_, err := d.db.ExecContext(ctx, statement)
	return err
}

// sqlConn executes on a single reserved database/sql connection.
type sqlConn struct {
	conn *sql.Conn
}

func (c sqlConn) Exec(ctx context.Context, statement string) error {
	_, err := c.conn.ExecContext(ctx, statement)
	return err
}

// sqlTx executes inside a caller-managed transaction. The adapter never
// commits or rolls back; it only executes.
type sqlTx struct {
	tx *sql.Tx
}

func (t sqlTx) Exec(ctx context.Context, statement string) error {
	_, err := t.tx.ExecContext(ctx, statement)
	return err
}
