package testutils

import (
	"context"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Client mirrors clickhouse.Client so repositories can be tested without importing the client
// package from its own tests.
type Client interface {
	// Conn returns the underlying ClickHouse connection
	Conn() driver.Conn
	// Ping checks the connection to ClickHouse
	Ping(ctx context.Context) error
	// Close closes the connection
	Close() error
}

// NewTestClient creates a client around the provided connection, usually a *MockConn.
func NewTestClient(conn driver.Conn) Client {
	return &testClient{conn: conn}
}

type testClient struct {
	conn driver.Conn
}

func (c *testClient) Conn() driver.Conn {
	return c.conn
}

func (c *testClient) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *testClient) Close() error {
	return c.conn.Close()
}
