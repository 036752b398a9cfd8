package conn

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"

	"pgbenchmark/types"
)

// fakeDriver is a minimal database/sql driver whose statements succeed
// unless the driver is told to fail.
type fakeDriver struct {
	fail error
}

func (d *fakeDriver) Open(string) (driver.Conn, error) {
	return &fakeConn{d: d}, nil
}

type fakeConn struct {
	d *fakeDriver
}

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) {
	return &fakeStmt{d: c.d}, nil
}
func (c *fakeConn) Close() error              { return nil }
func (c *fakeConn) Begin() (driver.Tx, error) { return fakeTx{}, nil }

type fakeStmt struct {
	d *fakeDriver
}

func (s *fakeStmt) Close() error  { return nil }
func (s *fakeStmt) NumInput() int { return 0 }
func (s *fakeStmt) Exec([]driver.Value) (driver.Result, error) {
	if s.d.fail != nil {
		return nil, s.d.fail
	}
	return driver.RowsAffected(1), nil
}
func (s *fakeStmt) Query([]driver.Value) (driver.Rows, error) {
	return nil, errors.New("not implemented")
}

type fakeTx struct{}

func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }

var testDriver = &fakeDriver{}

func init() {
	sql.Register("pgbenchfake", testDriver)
}

func TestWrapSQLDB(t *testing.T) {
	db, err := sql.Open("pgbenchfake", "")
	if err != nil {
		t.Fatalf("Didn't expect an error: %v", err)
	}
	defer db.Close()

	ex, err := Wrap(db)
	if err != nil {
		t.Fatalf("Didn't expect an error: %v", err)
	}
	if err := ex.Exec(context.Background(), "SELECT 1"); err != nil {
		t.Errorf("Didn't expect an error: %v", err)
	}
}

func TestWrapSQLTx(t *testing.T) {
	db, err := sql.Open("pgbenchfake", "")
	if err != nil {
		t.Fatalf("Didn't expect an error: %v", err)
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Didn't expect an error: %v", err)
	}
	defer tx.Rollback()

	ex, err := Wrap(tx)
	if err != nil {
		t.Fatalf("Didn't expect an error: %v", err)
	}
	if err := ex.Exec(context.Background(), "SELECT 1"); err != nil {
		t.Errorf("Didn't expect an error: %v", err)
	}
}

func TestWrapSqlxDB(t *testing.T) {
	db, err := sql.Open("pgbenchfake", "")
	if err != nil {
		t.Fatalf("Didn't expect an error: %v", err)
	}
	xdb := sqlx.NewDb(db, "pgbenchfake")
	defer xdb.Close()

	ex, err := Wrap(xdb)
	if err != nil {
		t.Fatalf("Didn't expect an error: %v", err)
	}
	if err := ex.Exec(context.Background(), "SELECT 1"); err != nil {
		t.Errorf("Didn't expect an error: %v", err)
	}
}

func TestWrapPassesThroughExecutors(t *testing.T) {
	custom := execFunc(func(context.Context, string) error { return nil })
	ex, err := Wrap(custom)
	if err != nil {
		t.Fatalf("Didn't expect an error: %v", err)
	}
	if err := ex.Exec(context.Background(), "SELECT 1"); err != nil {
		t.Errorf("Didn't expect an error: %v", err)
	}
}

func TestWrapRejectsUnknownHandles(t *testing.T) {
	var confErr types.ConfigError

	if _, err := Wrap(nil); !errors.As(err, &confErr) {
		t.Errorf("Expected ConfigError for nil handle, got %v", err)
	}
	if _, err := Wrap("not a connection"); !errors.As(err, &confErr) {
		t.Errorf("Expected ConfigError for unsupported handle, got %v", err)
	}
}

func TestExecErrorsPropagate(t *testing.T) {
	db, err := sql.Open("pgbenchfake", "")
	if err != nil {
		t.Fatalf("Didn't expect an error: %v", err)
	}
	defer db.Close()

	ex, err := Wrap(db)
	if err != nil {
		t.Fatalf("Didn't expect an error: %v", err)
	}

	cause := errors.New("relation does not exist")
	testDriver.fail = cause
	defer func() { testDriver.fail = nil }()

	if err := ex.Exec(context.Background(), "SELECT * FROM missing"); err == nil {
		t.Error("Expected an error, didn't get one")
	}
}

type execFunc func(context.Context, string) error

func (f execFunc) Exec(ctx context.Context, statement string) error {
	return f(ctx, statement)
}
