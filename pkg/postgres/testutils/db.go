package testutils

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"
)

// MockDB is a testify mock of postgres.DB. Query arguments are flattened into the recorded call.
type MockDB struct {
	mock.Mock
}

func (m *MockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	callArgs := append([]any{ctx, sql}, args...)
	res := m.Called(callArgs...)
	tag, _ := res.Get(0).(pgconn.CommandTag)
	return tag, res.Error(1)
}

func (m *MockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	callArgs := append([]any{ctx, sql}, args...)
	res := m.Called(callArgs...)
	if res.Get(0) == nil {
		return nil, res.Error(1)
	}
	return res.Get(0).(pgx.Rows), res.Error(1)
}

func (m *MockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	callArgs := append([]any{ctx, sql}, args...)
	return m.Called(callArgs...).Get(0).(pgx.Row)
}

func (m *MockDB) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// Tag builds the command tag Exec would return, e.g. Tag("INSERT 0 3").
func Tag(s string) pgconn.CommandTag {
	return pgconn.NewCommandTag(s)
}

// Row is a pgx.Row copying Values into the scan destinations, or returning ScanErr.
type Row struct {
	Values  []any
	ScanErr error
}

func (r Row) Scan(dest ...any) error {
	if r.ScanErr != nil {
		return r.ScanErr
	}
	return assign(r.Values, dest)
}

// Rows is a pgx.Rows over an in-memory result set.
type Rows struct {
	Data    [][]any
	IterErr error
	Closed  bool

	pos int
}

var _ pgx.Rows = (*Rows)(nil)

func (r *Rows) Close() { r.Closed = true }

func (r *Rows) Err() error { return r.IterErr }

func (r *Rows) CommandTag() pgconn.CommandTag { return pgconn.NewCommandTag("SELECT") }

func (r *Rows) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (r *Rows) Next() bool {
	if r.pos >= len(r.Data) {
		r.Closed = true
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

func (r *Rows) Values() ([]any, error) {
	if r.pos == 0 || r.pos > len(r.Data) {
		return nil, errors.New("testutils: Values called without a current row")
	}
	return r.Data[r.pos-1], nil
}

func (r *Rows) RawValues() [][]byte { return nil }

func (r *Rows) Conn() *pgx.Conn { return nil }

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
