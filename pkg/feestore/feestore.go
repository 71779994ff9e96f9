// Package feestore defines the fee event store contracts shared by the scraper, the query API
// and the storage backends.
package feestore

import (
	"context"

	"github.com/chainfees/fee-indexer/pkg/types"
)

// Writer persists fee events idempotently on (TxHash, LogIndex).
type Writer interface {
	// BulkInsert stores events whose key is not stored yet and returns how many were inserted.
	// Duplicates, both against stored rows and inside events, are skipped silently. Any other
	// failure is returned. An empty slice performs no I/O.
	BulkInsert(ctx context.Context, events []types.FeeEvent) (int, error)
}

// Reader serves paginated per-integrator queries.
type Reader interface {
	// QueryByIntegrator returns at most limit events for the EIP-55 integrator address, skipping
	// the first offset, ordered by insertion sequence.
	QueryByIntegrator(ctx context.Context, integrator string, offset, limit uint64) ([]types.FeeEvent, error)
}

// Store is the full backend surface used by the binaries.
type Store interface {
	Writer
	Reader
	// Initialize creates the schema if needed.
	Initialize(ctx context.Context) error
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	// Purge removes every stored event. Used by the reset command only.
	Purge(ctx context.Context) error
}

// Dedupe drops events whose key already appeared earlier in the slice, keeping the first one.
func Dedupe(events []types.FeeEvent) []types.FeeEvent {
	seen := make(map[string]struct{}, len(events))
	out := make([]types.FeeEvent, 0, len(events))
	for _, ev := range events {
		k := ev.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, ev)
	}
	return out
}
