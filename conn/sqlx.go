package conn

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// sqlxDB executes on an engine-style sqlx handle. Callers who already
// hold a *sqlx.DB can benchmark through it directly instead of
// unwrapping to database/sql.
type sqlxDB struct {
	db *sqlx.DB
}

func (d sqlxDB) Exec(ctx context.Context, statement string) error {
	_, err := d.db.ExecContext(ctx, statement)
	return err
}
