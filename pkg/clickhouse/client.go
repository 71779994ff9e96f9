package clickhouse

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// Client is the ClickHouse handle shared by the fee and checkpoint repositories.
type Client interface {
	Conn() driver.Conn
	Ping(ctx context.Context) error
	Close() error
}

const defaultPingTimeout = 10 * time.Second

type client struct {
	conn driver.Conn
}

// New opens a ClickHouse connection and pings it. The service should not start when the ping fails.
func New(cfg Config, sugar *zap.SugaredLogger) (Client, error) {
	if sugar == nil {
		sugar = zap.NewNop().Sugar()
	}

	conn, err := clickhouse.Open(options(cfg, sugar))
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultPingTimeout)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		var exception *clickhouse.Exception
		if errors.As(err, &exception) {
			sugar.Errorw("failed to ping ClickHouse", "code", exception.Code, "message", exception.Message)
		} else {
			sugar.Errorw("failed to ping ClickHouse", "hosts", cfg.Hosts, "error", err)
		}
		_ = conn.Close()
		return nil, err
	}

	return &client{conn: conn}, nil
}

// options maps cfg to driver options. Fee batches are small, so LZ4 and in-order dialing are fixed.
func options(cfg Config, sugar *zap.SugaredLogger) *clickhouse.Options {
	opts := &clickhouse.Options{
		Addr: cfg.Hosts,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialContext: func(ctx context.Context, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", addr)
		},
		Settings: clickhouse.Settings{
			"max_execution_time": cfg.MaxExecutionTime,
			"max_block_size":     cfg.MaxBlockSize,
		},
		Compression:          &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
		DialTimeout:          time.Duration(cfg.DialTimeout) * time.Second,
		MaxOpenConns:         cfg.MaxOpenConns,
		MaxIdleConns:         cfg.MaxIdleConns,
		ConnMaxLifetime:      time.Duration(cfg.ConnMaxLifetime) * time.Minute,
		ConnOpenStrategy:     clickhouse.ConnOpenInOrder,
		BlockBufferSize:      uint8(cfg.BlockBufferSize), //nolint:gosec // validated to 0..255 by the caller
		MaxCompressionBuffer: cfg.MaxCompressionBuffer,
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{
				{Name: cfg.ClientName, Version: cfg.ClientVersion},
			},
		},
		TLS: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-out for local clusters
		},
	}
	if cfg.Debug {
		opts.Debugf = sugar.Debugf
	}
	return opts
}

func (c *client) Conn() driver.Conn {
	return c.conn
}

func (c *client) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *client) Close() error {
	return c.conn.Close()
}
