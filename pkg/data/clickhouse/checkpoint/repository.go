package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/chainfees/fee-indexer/pkg/checkpointer"
	"github.com/chainfees/fee-indexer/pkg/clickhouse"
)

// Repository is a ClickHouse-backed checkpointer. One logical row per chain is kept by a
// ReplacingMergeTree versioned on updated_at, so every Write is an upsert.
type Repository interface {
	checkpointer.Checkpointer
	checkpointer.Remover
}

var _ Repository = (*repository)(nil)

type repository struct {
	client  clickhouse.Client
	cluster string
	table   string
	now     func() time.Time
}

// NewRepository creates the repository and ensures its table exists.
func NewRepository(
	ctx context.Context,
	client clickhouse.Client,
	cluster, database, tableName string,
) (Repository, error) {
	repo := &repository{
		client:  client,
		cluster: cluster,
		table:   fmt.Sprintf("%s.%s", database, tableName),
		now:     time.Now,
	}
	if err := repo.Initialize(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

// Initialize ensures the checkpoints table exists.
func (r *repository) Initialize(ctx context.Context) error {
	if err := r.client.Conn().Exec(ctx, createTableQuery(r.table, r.cluster)); err != nil {
		return fmt.Errorf("failed to create checkpoints table: %w", err)
	}
	return nil
}

func (r *repository) Write(ctx context.Context, evmChainID uint64, lastIngested uint64) error {
	err := r.client.Conn().Exec(ctx, writeCheckpointQuery(r.table), evmChainID, lastIngested, r.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

func (r *repository) Read(ctx context.Context, evmChainID uint64) (uint64, bool, error) {
	var last uint64
	err := r.client.Conn().QueryRow(ctx, readCheckpointQuery(r.table), evmChainID).Scan(&last)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return last, true, nil
}

// Delete removes the checkpoint of a chain.
func (r *repository) Delete(ctx context.Context, evmChainID uint64) error {
	if err := r.client.Conn().Exec(ctx, deleteCheckpointQuery(r.table, r.cluster), evmChainID); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}
