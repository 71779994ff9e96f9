// Package storage opens the configured storage backend for the binaries.
package storage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/chainfees/fee-indexer/pkg/checkpointer"
	"github.com/chainfees/fee-indexer/pkg/clickhouse"
	chcheckpoint "github.com/chainfees/fee-indexer/pkg/data/clickhouse/checkpoint"
	chfees "github.com/chainfees/fee-indexer/pkg/data/clickhouse/fees"
	pgcheckpoint "github.com/chainfees/fee-indexer/pkg/data/postgres/checkpoint"
	pgfees "github.com/chainfees/fee-indexer/pkg/data/postgres/fees"
	"github.com/chainfees/fee-indexer/pkg/feestore"
	"github.com/chainfees/fee-indexer/pkg/postgres"
)

// Kind names a storage backend.
type Kind string

const (
	Postgres   Kind = "postgres"
	ClickHouse Kind = "clickhouse"
)

var ErrUnknownKind = errors.New("unknown store kind")

func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case Postgres, ClickHouse:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q (want %q or %q)", ErrUnknownKind, s, Postgres, ClickHouse)
	}
}

type Config struct {
	Kind                Kind
	Postgres            postgres.Config
	ClickHouse          clickhouse.Config
	FeesTableName       string
	CheckpointTableName string // empty when checkpoints are not needed
}

// Checkpoints is a checkpoint repository that can also reset a chain.
type Checkpoints interface {
	checkpointer.Checkpointer
	checkpointer.Remover
}

// Backend holds the opened repositories. Close releases the underlying connection.
type Backend struct {
	Fees        feestore.Store
	Checkpoints Checkpoints // nil when no checkpoint table is configured
	closeFn     func()
}

func (b *Backend) Close() {
	if b.closeFn != nil {
		b.closeFn()
	}
}

// Open connects to the configured backend and makes sure its tables exist.
func Open(ctx context.Context, cfg Config, sugar *zap.SugaredLogger) (*Backend, error) {
	switch cfg.Kind {
	case Postgres:
		return openPostgres(ctx, cfg, sugar)
	case ClickHouse:
		return openClickHouse(ctx, cfg, sugar)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

func openPostgres(ctx context.Context, cfg Config, sugar *zap.SugaredLogger) (*Backend, error) {
	pool, err := postgres.New(ctx, cfg.Postgres, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	b := &Backend{closeFn: pool.Close}
	b.Fees, err = pgfees.NewRepository(ctx, pool, cfg.FeesTableName)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create fee repository: %w", err)
	}
	if cfg.CheckpointTableName != "" {
		b.Checkpoints, err = pgcheckpoint.NewRepository(ctx, pool, cfg.CheckpointTableName)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create checkpoint repository: %w", err)
		}
	}
	sugar.Infow("postgres store ready", "feesTable", cfg.FeesTableName, "checkpointTable", cfg.CheckpointTableName)
	return b, nil
}

func openClickHouse(ctx context.Context, cfg Config, sugar *zap.SugaredLogger) (*Backend, error) {
	client, err := clickhouse.New(cfg.ClickHouse, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to create ClickHouse client: %w", err)
	}
	closeClient := func() {
		if err := client.Close(); err != nil {
			sugar.Warnw("failed to close ClickHouse client", "error", err)
		}
	}

	b := &Backend{closeFn: closeClient}
	b.Fees, err = chfees.NewRepository(ctx, client, cfg.ClickHouse.Cluster, cfg.ClickHouse.Database, cfg.FeesTableName)
	if err != nil {
		closeClient()
		return nil, fmt.Errorf("failed to create fee repository: %w", err)
	}
	if cfg.CheckpointTableName != "" {
		b.Checkpoints, err = chcheckpoint.NewRepository(ctx, client, cfg.ClickHouse.Cluster, cfg.ClickHouse.Database, cfg.CheckpointTableName)
		if err != nil {
			closeClient()
			return nil, fmt.Errorf("failed to create checkpoint repository: %w", err)
		}
	}
	sugar.Infow("ClickHouse store ready", "feesTable", cfg.FeesTableName, "checkpointTable", cfg.CheckpointTableName)
	return b, nil
}
