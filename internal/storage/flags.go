package storage

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/chainfees/fee-indexer/pkg/clickhouse"
	"github.com/chainfees/fee-indexer/pkg/postgres"
)

const (
	// minBlockBufferSize and maxBlockBufferSize bound the ClickHouse block buffer size.
	minBlockBufferSize = 0
	maxBlockBufferSize = 255
)

// Flags returns the flags selecting and configuring the storage backend.
func Flags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "store",
			Usage:   "The storage backend to use (postgres or clickhouse)",
			EnvVars: []string{"STORE"},
			Value:   string(Postgres),
		},
		&cli.StringFlag{
			Name:    "fees-table-name",
			Usage:   "The name of the table holding fee events",
			EnvVars: []string{"FEES_TABLE_NAME"},
			Value:   "fee_events",
		},
	}
	flags = append(flags, postgresFlags()...)
	return append(flags, clickhouseFlags()...)
}

func postgresFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "postgres-dsn",
			Usage:   "Postgres connection string; takes precedence over the discrete postgres flags",
			EnvVars: []string{"POSTGRES_DSN", "DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "postgres-host",
			Usage:   "Postgres host",
			EnvVars: []string{"POSTGRES_HOST"},
			Value:   "localhost",
		},
		&cli.IntFlag{
			Name:    "postgres-port",
			Usage:   "Postgres port",
			EnvVars: []string{"POSTGRES_PORT"},
			Value:   5432,
		},
		&cli.StringFlag{
			Name:    "postgres-database",
			Usage:   "Postgres database name",
			EnvVars: []string{"POSTGRES_DATABASE"},
			Value:   "fees",
		},
		&cli.StringFlag{
			Name:    "postgres-username",
			Usage:   "Postgres username",
			EnvVars: []string{"POSTGRES_USERNAME"},
			Value:   "postgres",
		},
		&cli.StringFlag{
			Name:    "postgres-password",
			Usage:   "Postgres password",
			EnvVars: []string{"POSTGRES_PASSWORD"},
		},
		&cli.StringFlag{
			Name:    "postgres-sslmode",
			Usage:   "Postgres sslmode (disable, require, verify-full, ...)",
			EnvVars: []string{"POSTGRES_SSLMODE"},
			Value:   "disable",
		},
		&cli.IntFlag{
			Name:    "postgres-max-conns",
			Usage:   "Postgres maximum pool connections",
			EnvVars: []string{"POSTGRES_MAX_CONNS"},
			Value:   5,
		},
		&cli.IntFlag{
			Name:    "postgres-conn-max-lifetime",
			Usage:   "Postgres connection max lifetime in minutes",
			EnvVars: []string{"POSTGRES_CONN_MAX_LIFETIME"},
			Value:   30,
		},
	}
}

func clickhouseFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "clickhouse-hosts",
			Usage:   "ClickHouse server hosts (comma-separated)",
			EnvVars: []string{"CLICKHOUSE_HOSTS"},
			Value:   cli.NewStringSlice("localhost:9000"),
		},
		&cli.StringFlag{
			Name:    "clickhouse-cluster",
			Usage:   "ClickHouse cluster name; tables are created ON CLUSTER when set",
			EnvVars: []string{"CLICKHOUSE_CLUSTER"},
		},
		&cli.StringFlag{
			Name:    "clickhouse-database",
			Usage:   "ClickHouse database name",
			EnvVars: []string{"CLICKHOUSE_DATABASE"},
			Value:   "default",
		},
		&cli.StringFlag{
			Name:    "clickhouse-username",
			Usage:   "ClickHouse username",
			EnvVars: []string{"CLICKHOUSE_USERNAME"},
			Value:   "default",
		},
		&cli.StringFlag{
			Name:    "clickhouse-password",
			Usage:   "ClickHouse password",
			EnvVars: []string{"CLICKHOUSE_PASSWORD"},
		},
		&cli.BoolFlag{
			Name:    "clickhouse-debug",
			Usage:   "Enable ClickHouse debug logging",
			EnvVars: []string{"CLICKHOUSE_DEBUG"},
		},
		&cli.BoolFlag{
			Name:    "clickhouse-insecure-skip-verify",
			Usage:   "Skip TLS certificate verification for ClickHouse",
			EnvVars: []string{"CLICKHOUSE_INSECURE_SKIP_VERIFY"},
			Value:   true,
		},
		&cli.IntFlag{
			Name:    "clickhouse-max-execution-time",
			Usage:   "ClickHouse max execution time in seconds",
			EnvVars: []string{"CLICKHOUSE_MAX_EXECUTION_TIME"},
			Value:   60,
		},
		&cli.IntFlag{
			Name:    "clickhouse-dial-timeout",
			Usage:   "ClickHouse dial timeout in seconds",
			EnvVars: []string{"CLICKHOUSE_DIAL_TIMEOUT"},
			Value:   30,
		},
		&cli.IntFlag{
			Name:    "clickhouse-max-open-conns",
			Usage:   "ClickHouse maximum open connections",
			EnvVars: []string{"CLICKHOUSE_MAX_OPEN_CONNS"},
			Value:   5,
		},
		&cli.IntFlag{
			Name:    "clickhouse-max-idle-conns",
			Usage:   "ClickHouse maximum idle connections",
			EnvVars: []string{"CLICKHOUSE_MAX_IDLE_CONNS"},
			Value:   5,
		},
		&cli.IntFlag{
			Name:    "clickhouse-conn-max-lifetime",
			Usage:   "ClickHouse connection max lifetime in minutes",
			EnvVars: []string{"CLICKHOUSE_CONN_MAX_LIFETIME"},
			Value:   10,
		},
		&cli.IntFlag{
			Name:    "clickhouse-block-buffer-size",
			Usage:   "ClickHouse block buffer size",
			EnvVars: []string{"CLICKHOUSE_BLOCK_BUFFER_SIZE"},
			Value:   10,
		},
		&cli.IntFlag{
			Name:    "clickhouse-max-block-size",
			Usage:   "ClickHouse max block size (recommended maximum number of rows in a single block)",
			EnvVars: []string{"CLICKHOUSE_MAX_BLOCK_SIZE"},
			Value:   1000,
		},
		&cli.IntFlag{
			Name:    "clickhouse-max-compression-buffer",
			Usage:   "ClickHouse max compression buffer in bytes",
			EnvVars: []string{"CLICKHOUSE_MAX_COMPRESSION_BUFFER"},
			Value:   10240,
		},
		&cli.StringFlag{
			Name:    "clickhouse-client-name",
			Usage:   "ClickHouse client name for ClientInfo",
			EnvVars: []string{"CLICKHOUSE_CLIENT_NAME"},
			Value:   "fee-indexer",
		},
	}
}

// ConfigFromCLI builds a storage Config from the flags returned by Flags. checkpointTable may be
// empty when the caller does not need checkpoints.
func ConfigFromCLI(c *cli.Context, checkpointTable string) (Config, error) {
	kind, err := ParseKind(c.String("store"))
	if err != nil {
		return Config{}, err
	}
	chCfg, err := clickHouseConfigFromCLI(c)
	if err != nil {
		return Config{}, fmt.Errorf("failed to build ClickHouse config: %w", err)
	}
	return Config{
		Kind:                kind,
		Postgres:            postgresConfigFromCLI(c),
		ClickHouse:          chCfg,
		FeesTableName:       c.String("fees-table-name"),
		CheckpointTableName: checkpointTable,
	}, nil
}

func postgresConfigFromCLI(c *cli.Context) postgres.Config {
	return postgres.Config{
		Host:            c.String("postgres-host"),
		Port:            c.Int("postgres-port"),
		Database:        c.String("postgres-database"),
		Username:        c.String("postgres-username"),
		Password:        c.String("postgres-password"),
		SSLMode:         c.String("postgres-sslmode"),
		MaxConns:        int32(c.Int("postgres-max-conns")), //nolint:gosec // small pool sizes
		ConnMaxLifetime: c.Int("postgres-conn-max-lifetime"),
		DSN:             c.String("postgres-dsn"),
	}
}

func clickHouseConfigFromCLI(c *cli.Context) (clickhouse.Config, error) {
	var hosts []string
	for _, entry := range c.StringSlice("clickhouse-hosts") {
		for _, host := range strings.Split(entry, ",") {
			if host = strings.TrimSpace(host); host != "" {
				hosts = append(hosts, host)
			}
		}
	}

	blockBufferSize := c.Int("clickhouse-block-buffer-size")
	if blockBufferSize < minBlockBufferSize || blockBufferSize > maxBlockBufferSize {
		return clickhouse.Config{}, fmt.Errorf(
			"clickhouse-block-buffer-size must be between %d and %d, got %d",
			minBlockBufferSize, maxBlockBufferSize, blockBufferSize,
		)
	}

	return clickhouse.Config{
		Hosts:                hosts,
		Cluster:              c.String("clickhouse-cluster"),
		Database:             c.String("clickhouse-database"),
		Username:             c.String("clickhouse-username"),
		Password:             c.String("clickhouse-password"),
		Debug:                c.Bool("clickhouse-debug"),
		InsecureSkipVerify:   c.Bool("clickhouse-insecure-skip-verify"),
		MaxExecutionTime:     c.Int("clickhouse-max-execution-time"),
		DialTimeout:          c.Int("clickhouse-dial-timeout"),
		MaxOpenConns:         c.Int("clickhouse-max-open-conns"),
		MaxIdleConns:         c.Int("clickhouse-max-idle-conns"),
		ConnMaxLifetime:      c.Int("clickhouse-conn-max-lifetime"),
		BlockBufferSize:      blockBufferSize,
		MaxBlockSize:         c.Int("clickhouse-max-block-size"),
		MaxCompressionBuffer: c.Int("clickhouse-max-compression-buffer"),
		ClientName:           c.String("clickhouse-client-name"),
		ClientVersion:        "1.0",
	}, nil
}
