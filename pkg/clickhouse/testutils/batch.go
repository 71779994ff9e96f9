package testutils

import (
	"errors"

	"github.com/ClickHouse/clickhouse-go/v2/lib/column"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Batch is a driver.Batch that records appended rows in memory.
type Batch struct {
	Appended  [][]any
	AppendErr error
	SendErr   error

	Sent    bool
	Aborted bool
	Closed  bool
}

var _ driver.Batch = (*Batch)(nil)

func (b *Batch) Append(v ...any) error {
	if b.AppendErr != nil {
		return b.AppendErr
	}
	b.Appended = append(b.Appended, v)
	return nil
}

func (b *Batch) AppendStruct(any) error {
	return errors.New("testutils: AppendStruct not supported")
}

func (b *Batch) Send() error {
	if b.SendErr != nil {
		return b.SendErr
	}
	b.Sent = true
	return nil
}

func (b *Batch) Abort() error {
	b.Aborted = true
	return nil
}

func (b *Batch) Close() error {
	b.Closed = true
	return nil
}

func (b *Batch) Flush() error { return nil }
func (b *Batch) IsSent() bool { return b.Sent }
func (b *Batch) Rows() int { return len(b.Appended) }
func (b *Batch) Column(int) driver.BatchColumn { return nil }
func (b *Batch) Columns() []column.Interface { return nil }
