package testutils

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Row is a driver.Row that copies Values into the scan destinations, or returns ScanErr.
type Row struct {
	Values  []any
	ScanErr error
}

var _ driver.Row = Row{}

func (r Row) Err() error { return r.ScanErr }

func (r Row) Scan(dest ...any) error {
	if r.ScanErr != nil {
		return r.ScanErr
	}
	return assign(r.Values, dest)
}

func (r Row) ScanStruct(any) error {
	return errors.New("testutils: ScanStruct not supported")
}

// Rows is a driver.Rows over an in-memory result set. IterErr is reported by Err once the rows
// are exhausted.
type Rows struct {
	Data    [][]any
	IterErr error
	Closed  bool

	pos int
}

var _ driver.Rows = (*Rows)(nil)

func (r *Rows) Next() bool {
	if r.pos >= len(r.Data) {
		return false
	}
	r.pos++
	return true
}

func (r *Rows) Scan(dest ...any) error {
	if r.pos == 0 || r.pos > len(r.Data) {
		return errors.New("testutils: Scan called without a current row")
	}
	return assign(r.Data[r.pos-1], dest)
}

func (r *Rows) ScanStruct(any) error {
	return errors.New("testutils: ScanStruct not supported")
}

func (r *Rows) ColumnTypes() []driver.ColumnType { return nil }

func (r *Rows) Totals(...any) error { return nil }

func (r *Rows) Columns() []string { return nil }

func (r *Rows) Close() error {
	r.Closed = true
	return nil
}

func (r *Rows) Err() error { return r.IterErr }

func assign(values []any, dest []any) error {
	if len(values) != len(dest) {
		return fmt.Errorf("testutils: expected %d scan destinations, got %d", len(values), len(dest))
	}
	for i, v := range values {
		dv := reflect.ValueOf(dest[i])
		if dv.Kind() != reflect.Pointer || dv.IsNil() {
			return fmt.Errorf("testutils: destination %d is not a non-nil pointer", i)
		}
		sv := reflect.ValueOf(v)
		if !sv.Type().AssignableTo(dv.Elem().Type()) {
			return fmt.Errorf("testutils: cannot assign %T to %s", v, dv.Elem().Type())
		}
		dv.Elem().Set(sv)
	}
	return nil
}
