package fees

import (
	"context"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"

	"github.com/chainfees/fee-indexer/pkg/feestore"
	"github.com/chainfees/fee-indexer/pkg/postgres"
	"github.com/chainfees/fee-indexer/pkg/types"
)

// Repository stores fee events in Postgres. The BIGSERIAL id is the insertion sequence and the
// unique constraint on (tx_hash, log_index) makes inserts idempotent.
type Repository struct {
	db    postgres.DB
	table string
	index string
}

var _ feestore.Store = (*Repository)(nil)

// NewRepository creates the repository and ensures its table exists.
func NewRepository(ctx context.Context, db postgres.DB, tableName string) (*Repository, error) {
	repo := &Repository{
		db:    db,
		table: pgx.Identifier{tableName}.Sanitize(),
		index: pgx.Identifier{tableName + "_integrator_id_idx"}.Sanitize(),
	}
	if err := repo.Initialize(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *Repository) Initialize(ctx context.Context) error {
	createTable := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id BIGSERIAL PRIMARY KEY,
		block_number BIGINT NOT NULL,
		tx_hash TEXT NOT NULL,
		log_index BIGINT NOT NULL,
		token TEXT NOT NULL,
		integrator TEXT NOT NULL,
		integrator_fee NUMERIC(78, 0) NOT NULL,
		lifi_fee NUMERIC(78, 0) NOT NULL,
		inserted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (tx_hash, log_index)
	)`, r.table)
	if _, err := r.db.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create fees table: %w", err)
	}

	createIndex := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (integrator, id)", r.index, r.table)
	if _, err := r.db.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create fees integrator index: %w", err)
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// BulkInsert writes all events in a single statement. Rows are inserted in slice order so ids
// follow it; conflicting keys are skipped by the database.
func (r *Repository) BulkInsert(ctx context.Context, events []types.FeeEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	events = feestore.Dedupe(events)

	var (
		blocks      = make([]int64, len(events))
		hashes      = make([]string, len(events))
		logIndexes  = make([]int64, len(events))
		tokens      = make([]string, len(events))
		integrators = make([]string, len(events))
		integFees   = make([]string, len(events))
		lifiFees    = make([]string, len(events))
	)
	for i, ev := range events {
		if ev.BlockNumber > math.MaxInt64 || ev.LogIndex > math.MaxInt64 {
			return 0, fmt.Errorf("fee event %s does not fit BIGINT columns", ev.Key())
		}
		blocks[i] = int64(ev.BlockNumber)
		hashes[i] = ev.TxHash
		logIndexes[i] = int64(ev.LogIndex)
		tokens[i] = ev.Token
		integrators[i] = ev.Integrator
		integFees[i] = ev.IntegratorFee
		lifiFees[i] = ev.LifiFee
	}

	query := fmt.Sprintf(`INSERT INTO %s
		(block_number, tx_hash, log_index, token, integrator, integrator_fee, lifi_fee)
	SELECT u.block_number, u.tx_hash, u.log_index, u.token, u.integrator,
		u.integrator_fee::numeric, u.lifi_fee::numeric
	FROM unnest($1::bigint[], $2::text[], $3::bigint[], $4::text[], $5::text[], $6::text[], $7::text[])
		WITH ORDINALITY AS u(block_number, tx_hash, log_index, token, integrator, integrator_fee, lifi_fee, ord)
	ORDER BY u.ord
	ON CONFLICT (tx_hash, log_index) DO NOTHING`, r.table)

	tag, err := r.db.Exec(ctx, query, blocks, hashes, logIndexes, tokens, integrators, integFees, lifiFees)
	if err != nil {
		return 0, fmt.Errorf("failed to insert %d fee events: %w", len(events), err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *Repository) QueryByIntegrator(
	ctx context.Context,
	integrator string,
	offset, limit uint64,
) ([]types.FeeEvent, error) {
	// A bigint sequence cannot reach past MaxInt64 rows.
	if offset > math.MaxInt64 {
		return []types.FeeEvent{}, nil
	}
	limit = min(limit, math.MaxInt64)

	query := fmt.Sprintf(`SELECT block_number, tx_hash, log_index, token, integrator,
		integrator_fee::text, lifi_fee::text
	FROM %s
	WHERE integrator = $1
	ORDER BY id
	LIMIT $2 OFFSET $3`, r.table)

	rows, err := r.db.Query(ctx, query, integrator, int64(limit), int64(offset))
	if err != nil {
		return nil, fmt.Errorf("failed to query fee events: %w", err)
	}
	defer rows.Close()

	out := []types.FeeEvent{}
	for rows.Next() {
		var (
			ev              types.FeeEvent
			block, logIndex int64
		)
		if err := rows.Scan(
			&block,
			&ev.TxHash,
			&logIndex,
			&ev.Token,
			&ev.Integrator,
			&ev.IntegratorFee,
			&ev.LifiFee,
		); err != nil {
			return nil, fmt.Errorf("failed to scan fee event: %w", err)
		}
		ev.BlockNumber = uint64(block) //nolint:gosec // column is written from uint64 values
		ev.LogIndex = uint64(logIndex) //nolint:gosec // column is written from uint64 values
		if err := ev.NormalizeAmounts(); err != nil {
			return nil, fmt.Errorf("fee event %s: %w", ev.Key(), err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate fee events: %w", err)
	}
	return out, nil
}

// Purge empties the table and resets the insertion sequence.
func (r *Repository) Purge(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY", r.table)); err != nil {
		return fmt.Errorf("failed to truncate fees table: %w", err)
	}
	return nil
}
