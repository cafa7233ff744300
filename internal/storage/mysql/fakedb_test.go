package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"
)

type operationType int

const (
	opExec operationType = iota
	opQuery
	opBegin
	opCommit
	opRollback
)

type fakeOperation struct {
	typ    operationType
	query  string
	result fakeResult
	rows   fakeRowsData
	err    error
	args   func(t *testing.T, args []driver.NamedValue)
}

type fakeResult struct {
	lastInsertID int64
	rowsAffected int64
}

func (r fakeResult) LastInsertId() (int64, error) { return r.lastInsertID, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

type fakeRowsData struct {
	columns []string
	values  [][]driver.Value
}

// scriptDriver 按顺序回放预期的数据库操作，SQL 比较时忽略空白差异。
type scriptDriver struct {
	t   *testing.T
	ops []fakeOperation
	idx int32
}

var driverSeq atomic.Int32

func newScriptedDB(t *testing.T, ops ...fakeOperation) (*sql.DB, *scriptDriver) {
	t.Helper()

	drv := &scriptDriver{t: t, ops: ops}
	name := fmt.Sprintf("scripted-mysql-%d", driverSeq.Add(1))
	sql.Register(name, drv)

	db, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("open scripted db failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	t.Cleanup(func() { db.Close() })
	return db, drv
}

func execOp(query string, result fakeResult) fakeOperation {
	return fakeOperation{typ: opExec, query: query, result: result}
}

func queryOp(query string, rows fakeRowsData) fakeOperation {
	return fakeOperation{typ: opQuery, query: query, rows: rows}
}

func beginOp() fakeOperation { return fakeOperation{typ: opBegin} }

func commitOp() fakeOperation { return fakeOperation{typ: opCommit} }

func (d *scriptDriver) assertConsumed(t *testing.T) {
	t.Helper()
	if int(atomic.LoadInt32(&d.idx)) != len(d.ops) {
		t.Fatalf("not all operations consumed: %d/%d", atomic.LoadInt32(&d.idx), len(d.ops))
	}
}

func (d *scriptDriver) Open(string) (driver.Conn, error) {
	return &fakeConn{driver: d}, nil
}

func (d *scriptDriver) next(expected operationType, query string) (*fakeOperation, error) {
	idx := int(atomic.LoadInt32(&d.idx))
	if idx >= len(d.ops) {
		return nil, fmt.Errorf("unexpected operation: %v", expected)
	}
	op := &d.ops[idx]
	if op.typ != expected {
		return nil, fmt.Errorf("expected operation %v, got %v", op.typ, expected)
	}
	atomic.AddInt32(&d.idx, 1)
	if op.query != "" && normalizeSQL(op.query) != normalizeSQL(query) {
		return nil, fmt.Errorf("unexpected query. want %q got %q", normalizeSQL(op.query), normalizeSQL(query))
	}
	return op, nil
}

type fakeConn struct {
	driver *scriptDriver
}

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *fakeConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	op, err := c.driver.next(opBegin, "")
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &fakeTx{driver: c.driver}, nil
}

func (c *fakeConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	op, err := c.driver.next(opExec, query)
	if err != nil {
		return nil, err
	}
	if op.args != nil {
		op.args(c.driver.t, args)
	}
	if op.err != nil {
		return nil, op.err
	}
	return op.result, nil
}

func (c *fakeConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	op, err := c.driver.next(opQuery, query)
	if err != nil {
		return nil, err
	}
	if op.args != nil {
		op.args(c.driver.t, args)
	}
	if op.err != nil {
		return nil, op.err
	}
	return &fakeRows{columns: op.rows.columns, values: op.rows.values}, nil
}

func (c *fakeConn) Ping(context.Context) error { return nil }

type fakeTx struct {
	driver *scriptDriver
}

func (t *fakeTx) Commit() error {
	op, err := t.driver.next(opCommit, "")
	if err != nil {
		return err
	}
	return op.err
}

func (t *fakeTx) Rollback() error {
	op, err := t.driver.next(opRollback, "")
	if err != nil {
		return err
	}
	return op.err
}

type fakeRows struct {
	columns []string
	values  [][]driver.Value
	idx     int
}

func (r *fakeRows) Columns() []string { return r.columns }
func (r *fakeRows) Close() error      { return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.idx])
	r.idx++
	return nil
}

func normalizeSQL(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
