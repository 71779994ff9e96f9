package fees

import (
	"context"
	"fmt"
	"time"

	"github.com/chainfees/fee-indexer/pkg/clickhouse"
	"github.com/chainfees/fee-indexer/pkg/feestore"
	"github.com/chainfees/fee-indexer/pkg/types"
)

// Repository stores fee events in ClickHouse.
type Repository struct {
	client  clickhouse.Client
	cluster string
	table   string
	now     func() time.Time
}

var _ feestore.Store = (*Repository)(nil)

// NewRepository creates the repository and ensures its table exists.
func NewRepository(
	ctx context.Context,
	client clickhouse.Client,
	cluster, database, tableName string,
) (*Repository, error) {
	repo := &Repository{
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

func (r *Repository) Initialize(ctx context.Context) error {
	if err := r.client.Conn().Exec(ctx, createTableQuery(r.table, r.cluster)); err != nil {
		return fmt.Errorf("failed to create fees table: %w", err)
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx)
}

// BulkInsert filters out keys that are already stored and writes the rest as one batch. Reads
// break the shared inserted_at tie on (block_number, log_index).
func (r *Repository) BulkInsert(ctx context.Context, events []types.FeeEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	events = feestore.Dedupe(events)

	existing, err := r.existingKeys(ctx, events)
	if err != nil {
		return 0, err
	}

	fresh := make([]types.FeeEvent, 0, len(events))
	for _, ev := range events {
		if _, ok := existing[ev.Key()]; !ok {
			fresh = append(fresh, ev)
		}
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	if err := r.insert(ctx, fresh); err != nil {
		return 0, err
	}
	return len(fresh), nil
}

// insert appends events to one batch. Rows of one call share inserted_at.
func (r *Repository) insert(ctx context.Context, events []types.FeeEvent) error {
	batch, err := r.client.Conn().PrepareBatch(ctx, insertQuery(r.table))
	if err != nil {
		return fmt.Errorf("failed to prepare fee events batch: %w", err)
	}

	insertedAt := r.now().UTC()
	for _, ev := range events {
		integratorFee, err := types.ParseAmount(ev.IntegratorFee)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("fee event %s: integrator fee: %w", ev.Key(), err)
		}
		lifiFee, err := types.ParseAmount(ev.LifiFee)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("fee event %s: lifi fee: %w", ev.Key(), err)
		}

		err = batch.Append(
			ev.BlockNumber,
			ev.TxHash,
			ev.LogIndex,
			ev.Token,
			ev.Integrator,
			integratorFee,
			lifiFee,
			insertedAt,
		)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append fee event %s: %w", ev.Key(), err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to insert %d fee events: %w", len(events), err)
	}
	return nil
}

func (r *Repository) existingKeys(ctx context.Context, events []types.FeeEvent) (map[string]struct{}, error) {
	hashes := make([]any, 0, len(events))
	seen := make(map[string]struct{}, len(events))
	for _, ev := range events {
		if _, ok := seen[ev.TxHash]; ok {
			continue
		}
		seen[ev.TxHash] = struct{}{}
		hashes = append(hashes, ev.TxHash)
	}

	rows, err := r.client.Conn().Query(ctx, existingKeysQuery(r.table, len(hashes)), hashes...)
	if err != nil {
		return nil, fmt.Errorf("failed to look up existing fee events: %w", err)
	}
	defer rows.Close()

	existing := make(map[string]struct{})
	for rows.Next() {
		var (
			txHash   string
			logIndex uint64
		)
		if err := rows.Scan(&txHash, &logIndex); err != nil {
			return nil, fmt.Errorf("failed to scan existing fee event key: %w", err)
		}
		existing[types.FeeEvent{TxHash: txHash, LogIndex: logIndex}.Key()] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate existing fee event keys: %w", err)
	}
	return existing, nil
}

func (r *Repository) QueryByIntegrator(
	ctx context.Context,
	integrator string,
	offset, limit uint64,
) ([]types.FeeEvent, error) {
	rows, err := r.client.Conn().Query(ctx, queryByIntegratorQuery(r.table), integrator, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query fee events: %w", err)
	}
	defer rows.Close()

	out := []types.FeeEvent{}
	for rows.Next() {
		var ev types.FeeEvent
		if err := rows.Scan(
			&ev.BlockNumber,
			&ev.TxHash,
			&ev.LogIndex,
			&ev.Token,
			&ev.Integrator,
			&ev.IntegratorFee,
			&ev.LifiFee,
		); err != nil {
			return nil, fmt.Errorf("failed to scan fee event: %w", err)
		}
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

// Purge truncates the fee events table.
func (r *Repository) Purge(ctx context.Context) error {
	if err := r.client.Conn().Exec(ctx, truncateQuery(r.table, r.cluster)); err != nil {
		return fmt.Errorf("failed to truncate fees table: %w", err)
	}
	return nil
}
