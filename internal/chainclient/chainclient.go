package chainclient

import (
	"context"

	"github.com/chainfees/fee-indexer/pkg/types"
)

// EventSource reads FeesCollected events and the chain head from an EVM node.
type EventSource interface {
	// LatestHeight returns the current chain head.
	LatestHeight(ctx context.Context) (uint64, error)
	// FeeEvents returns the decoded events of blocks fromBlock..toBlock, both inclusive, ordered by
	// (block, log index).
	FeeEvents(ctx context.Context, fromBlock, toBlock uint64) ([]types.RawEvent, error)
}
