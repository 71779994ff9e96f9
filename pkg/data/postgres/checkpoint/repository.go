package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"

	"github.com/chainfees/fee-indexer/pkg/checkpointer"
	"github.com/chainfees/fee-indexer/pkg/postgres"
)

// Repository is a Postgres-backed checkpointer keeping one row per chain.
type Repository struct {
	db    postgres.DB
	table string
}

var (
	_ checkpointer.Checkpointer = (*Repository)(nil)
	_ checkpointer.Remover      = (*Repository)(nil)
)

// NewRepository creates the repository and ensures its table exists.
func NewRepository(ctx context.Context, db postgres.DB, tableName string) (*Repository, error) {
	repo := &Repository{db: db, table: pgx.Identifier{tableName}.Sanitize()}
	if err := repo.Initialize(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *Repository) Initialize(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		chain_id BIGINT PRIMARY KEY,
		last_ingested_block BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, r.table)
	if _, err := r.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create checkpoints table: %w", err)
	}
	return nil
}

func (r *Repository) Write(ctx context.Context, evmChainID uint64, lastIngested uint64) error {
	chainID, err := toBigint("chain id", evmChainID)
	if err != nil {
		return err
	}
	block, err := toBigint("block", lastIngested)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT INTO %s (chain_id, last_ingested_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (chain_id) DO UPDATE
		SET last_ingested_block = EXCLUDED.last_ingested_block, updated_at = EXCLUDED.updated_at`, r.table)
	if _, err := r.db.Exec(ctx, query, chainID, block); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

func (r *Repository) Read(ctx context.Context, evmChainID uint64) (uint64, bool, error) {
	chainID, err := toBigint("chain id", evmChainID)
	if err != nil {
		return 0, false, err
	}

	var last int64
	query := fmt.Sprintf("SELECT last_ingested_block FROM %s WHERE chain_id = $1", r.table)
	if err := r.db.QueryRow(ctx, query, chainID).Scan(&last); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	if last < 0 {
		return 0, false, fmt.Errorf("stored checkpoint %d for chain %d is negative", last, evmChainID)
	}
	return uint64(last), true, nil
}

// Delete removes the checkpoint of a chain.
func (r *Repository) Delete(ctx context.Context, evmChainID uint64) error {
	chainID, err := toBigint("chain id", evmChainID)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE chain_id = $1", r.table)
	if _, err := r.db.Exec(ctx, query, chainID); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

func toBigint(what string, v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("%s %d does not fit a BIGINT column", what, v)
	}
	return int64(v), nil
}
