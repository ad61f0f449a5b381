package rowbind

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"reflect"
	"testing"
)

type DBHandler func(query string, args []driver.NamedValue) (cols []string, rows [][]driver.Value, err error)

type testConnector struct {
	h     DBHandler
	types []reflect.Type // optional scan types, parallel to cols
}

func (c *testConnector) Connect(context.Context) (driver.Conn, error) {
	return &testConn{h: c.h, types: c.types}, nil
}
func (c *testConnector) Driver() driver.Driver { return testDriver{} }

type testDriver struct{}

func (testDriver) Open(name string) (driver.Conn, error) {
	return nil, errors.New("testDriver.Open should not be called; use sql.OpenDB with connector")
}

type testConn struct {
	h     DBHandler
	types []reflect.Type
}

func (c *testConn) Prepare(string) (driver.Stmt, error) { return nil, driver.ErrSkip }
func (c *testConn) Close() error                        { return nil }
func (c *testConn) Begin() (driver.Tx, error)           { return nil, driver.ErrSkip }

// CheckNamedValue accepts every argument as is so tests can observe exactly
// what rowbind passed to the driver.
func (c *testConn) CheckNamedValue(*driver.NamedValue) error { return nil }

func (c *testConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	cols, data, err := c.h(query, args)
	if err != nil {
		return nil, err
	}
	return &testRows{cols: cols, data: data, types: c.types}, nil
}

type testRows struct {
	cols  []string
	data  [][]driver.Value
	types []reflect.Type
	i     int
}

func (r *testRows) Columns() []string { return append([]string(nil), r.cols...) }
func (r *testRows) Close() error      { return nil }
func (r *testRows) Next(dest []driver.Value) error {
	if r.i >= len(r.data) {
		return io.EOF
	}
	row := r.data[r.i]
	for i := range dest {
		if i < len(row) {
			dest[i] = row[i]
		} else {
			dest[i] = nil
		}
	}
	r.i++
	return nil
}

func (r *testRows) ColumnTypeScanType(i int) reflect.Type {
	if i < len(r.types) && r.types[i] != nil {
		return r.types[i]
	}
	return reflect.TypeOf((*any)(nil)).Elem()
}

// newTestDB creates a *sql.DB backed by the in-memory test driver.
func newTestDB(t *testing.T, h DBHandler) *sql.DB {
	t.Helper()
	return sql.OpenDB(&testConnector{h: h})
}

// newTypedTestDB is newTestDB with declared column scan types.
func newTypedTestDB(t *testing.T, types []reflect.Type, h DBHandler) *sql.DB {
	t.Helper()
	return sql.OpenDB(&testConnector{h: h, types: types})
}

// schemaOf builds a NamedTypeList from name/type pairs.
func schemaOf(t *testing.T, pairs ...any) *NamedTypeList {
	t.Helper()
	b := NewNamedTypeListBuilder(len(pairs) / 2)
	for i := 0; i < len(pairs); i += 2 {
		if err := b.Add(pairs[i].(string), pairs[i+1].(reflect.Type)); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	l, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return l
}

// instantiate resolves and applies an instantiator for a single row.
func instantiate[T any](t *testing.T, p *InstantiatorProvider, types *NamedTypeList, values ...any) (T, error) {
	t.Helper()
	var zero T
	inst, err := p.FindInstantiator(typeOf[T](), types)
	if err != nil {
		return zero, err
	}
	args, err := NewInstantiatorArguments(types, values)
	if err != nil {
		return zero, err
	}
	v, err := inst.Instantiate(args)
	if err != nil {
		return zero, err
	}
	return Cast[T](v)
}
