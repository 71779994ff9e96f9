package feecollector

import (
	"cmp"
	"context"
	"fmt"
	"math/big"
	"slices"
	"time"

	ethereum "github.com/ava-labs/libevm"
	"github.com/ava-labs/libevm/common"
	libevmtypes "github.com/ava-labs/libevm/core/types"
	"github.com/ava-labs/libevm/ethclient"
	"github.com/ava-labs/libevm/rpc"

	"github.com/chainfees/fee-indexer/internal/chainclient"
	"github.com/chainfees/fee-indexer/pkg/metrics"
	"github.com/chainfees/fee-indexer/pkg/retry"
	"github.com/chainfees/fee-indexer/pkg/types"
)

// DefaultCallTimeout bounds every RPC call unless overridden with WithCallTimeout.
const DefaultCallTimeout = 10 * time.Second

const (
	methodBlockNumber = "eth_blockNumber"
	methodGetLogs     = "eth_getLogs"
)

// backend is the part of ethclient.Client the event source needs.
type backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]libevmtypes.Log, error)
}

// Client reads FeesCollected events of one FeeCollector deployment.
type Client struct {
	rpc      *rpc.Client // nil when built around a custom backend
	eth      backend
	decoder  *Decoder
	contract common.Address
	timeout  time.Duration
	metrics  *metrics.Metrics // nil if metrics disabled
}

var _ chainclient.EventSource = (*Client)(nil)

// Option configures the Client.
type Option func(*Client)

// WithMetrics enables metrics collection for the client.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithCallTimeout sets the per-call RPC timeout.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New dials the RPC endpoint and returns a client for the FeeCollector at contract.
func New(ctx context.Context, url string, contract common.Address, opts ...Option) (*Client, error) {
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	c, err := newClient(ethclient.NewClient(rc), contract, opts...)
	if err != nil {
		rc.Close()
		return nil, err
	}
	c.rpc = rc
	return c, nil
}

func newClient(b backend, contract common.Address, opts ...Option) (*Client, error) {
	decoder, err := NewDecoder(contract)
	if err != nil {
		return nil, err
	}
	c := &Client{
		eth:      b,
		decoder:  decoder,
		contract: contract,
		timeout:  DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// LatestHeight returns the current block number.
func (c *Client) LatestHeight(ctx context.Context) (uint64, error) {
	var height uint64
	err := c.call(ctx, methodBlockNumber, func(ctx context.Context) error {
		var err error
		height, err = c.eth.BlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("get latest block number: %w", err)
	}
	return height, nil
}

// FeeEvents loads the FeesCollected events emitted in [fromBlock, toBlock]. Logs that cannot be
// decoded fail the whole call with a permanent error since retrying cannot fix them.
func (c *Client) FeeEvents(ctx context.Context, fromBlock, toBlock uint64) ([]types.RawEvent, error) {
	if fromBlock > toBlock {
		return nil, retry.Permanent(fmt.Errorf("invalid block range [%d, %d]", fromBlock, toBlock))
	}

	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{c.contract},
		Topics:    [][]common.Hash{{c.decoder.Topic()}},
	}

	var logs []libevmtypes.Log
	err := c.call(ctx, methodGetLogs, func(ctx context.Context) error {
		var err error
		logs, err = c.eth.FilterLogs(ctx, q)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get logs [%d, %d]: %w", fromBlock, toBlock, err)
	}

	events := make([]types.RawEvent, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		ev, err := c.decoder.Decode(l)
		if err != nil {
			return nil, retry.Permanent(err)
		}
		events = append(events, ev)
	}

	slices.SortFunc(events, func(a, b types.RawEvent) int {
		return cmp.Or(cmp.Compare(a.BlockNumber, b.BlockNumber), cmp.Compare(a.LogIndex, b.LogIndex))
	})
	return events, nil
}

func (c *Client) call(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	start := time.Now()
	c.metrics.IncRPCInFlight()
	defer c.metrics.DecRPCInFlight()

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	err := fn(callCtx)

	c.metrics.RecordRPCCall(method, err, time.Since(start).Seconds())
	return err
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpc != nil {
		c.rpc.Close()
	}
}
