// Package scraper drives one resumable scrape run: it reads the checkpoint, walks the block range up
// to the current chain height in fixed-size batches, stores every FeesCollected event it finds and
// advances the checkpoint. On failure the checkpoint is moved to the last completed batch boundary
// before the error is returned.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chainfees/fee-indexer/internal/chainclient"
	"github.com/chainfees/fee-indexer/pkg/checkpointer"
	"github.com/chainfees/fee-indexer/pkg/feestore"
	"github.com/chainfees/fee-indexer/pkg/metrics"
	"github.com/chainfees/fee-indexer/pkg/retry"
	"github.com/chainfees/fee-indexer/pkg/types"
)

const (
	DefaultBatchSize      = 1000
	DefaultStartBlock     = 70_000_000
	DefaultSalvageTimeout = 10 * time.Second
)

var (
	ErrInvalidBatchSize    = errors.New("invalid batch size: must be greater than 0")
	ErrInvalidEventSource  = errors.New("invalid event source: must not be nil")
	ErrInvalidWriter       = errors.New("invalid fee writer: must not be nil")
	ErrInvalidCheckpointer = errors.New("invalid checkpointer: must not be nil")
	ErrCheckpointOverflow  = errors.New("checkpoint is at the last representable block")
)

// Publisher streams persisted fee events to an external sink.
type Publisher interface {
	Publish(ctx context.Context, events []types.FeeEvent) error
}

type Config struct {
	EVMChainID uint64
	StartBlock uint64
	BatchSize  uint64
	Retry      retry.Policy
}

// Result summarizes a run.
type Result struct {
	From     uint64 // first block of the run
	To       uint64 // chain height observed at the start of the run
	Batches  int    // fully completed batches
	Events   int    // events fetched
	Inserted int    // events newly stored
}

type Scraper struct {
	cfg            Config
	source         chainclient.EventSource
	writer         feestore.Writer
	checkpoints    checkpointer.Checkpointer
	publisher      Publisher
	sugar          *zap.SugaredLogger
	metrics        *metrics.Metrics
	salvageTimeout time.Duration
}

type Option func(*Scraper)

func WithLogger(sugar *zap.SugaredLogger) Option {
	return func(s *Scraper) { s.sugar = sugar }
}

// WithMetrics enables metrics collection. A nil value disables it.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scraper) { s.metrics = m }
}

// WithPublisher makes every stored batch be published before the run moves on.
func WithPublisher(p Publisher) Option {
	return func(s *Scraper) { s.publisher = p }
}

// WithSalvageTimeout bounds the checkpoint write issued after a failed batch.
func WithSalvageTimeout(d time.Duration) Option {
	return func(s *Scraper) { s.salvageTimeout = d }
}

func New(cfg Config, source chainclient.EventSource, writer feestore.Writer, cp checkpointer.Checkpointer, opts ...Option) (*Scraper, error) {
	if cfg.BatchSize == 0 {
		return nil, ErrInvalidBatchSize
	}
	if source == nil {
		return nil, ErrInvalidEventSource
	}
	if writer == nil {
		return nil, ErrInvalidWriter
	}
	if cp == nil {
		return nil, ErrInvalidCheckpointer
	}
	if err := cfg.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}

	s := &Scraper{
		cfg:            cfg,
		source:         source,
		writer:         writer,
		checkpoints:    cp,
		sugar:          zap.NewNop().Sugar(),
		salvageTimeout: DefaultSalvageTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sugar == nil {
		s.sugar = zap.NewNop().Sugar()
	}
	if s.salvageTimeout <= 0 {
		s.salvageTimeout = DefaultSalvageTimeout
	}
	return s, nil
}

// Run performs one scrape run up to the chain height observed when it starts.
func (s *Scraper) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	sugar := s.sugar.With("runID", uuid.NewString(), "evmChainID", s.cfg.EVMChainID)

	res, err := s.run(ctx, sugar)
	s.metrics.RecordRun(err, time.Since(start).Seconds())
	if err == nil {
		sugar.Infow("scrape run completed",
			"from", res.From,
			"to", res.To,
			"batches", res.Batches,
			"events", res.Events,
			"inserted", res.Inserted,
			"duration", time.Since(start),
		)
	}
	return res, err
}

func (s *Scraper) run(ctx context.Context, sugar *zap.SugaredLogger) (Result, error) {
	cursor, err := s.resumeFrom(ctx, sugar)
	if err != nil {
		return Result{}, err
	}

	target, err := retry.Do(ctx, s.policy(sugar, metrics.OpLatestHeight), s.source.LatestHeight)
	if err != nil {
		return Result{From: cursor}, fmt.Errorf("read chain height: %w", err)
	}
	s.metrics.SetChainHead(target)

	res := Result{From: cursor, To: target}

	if cursor > target {
		sugar.Debugw("checkpoint at chain head, nothing to scrape", "next", cursor, "height", target)
		if cursor == 0 {
			return res, nil
		}
		return res, s.writeCheckpoint(ctx, sugar, cursor-1)
	}

	for cursor <= target {
		if err := ctx.Err(); err != nil {
			return res, s.salvage(sugar, cursor, err)
		}

		end := batchEnd(cursor, s.cfg.BatchSize, target)
		fetched, inserted, err := s.processBatch(ctx, sugar, cursor, end)
		res.Events += fetched
		res.Inserted += inserted
		if err != nil {
			return res, s.salvage(sugar, cursor, fmt.Errorf("batch [%d, %d]: %w", cursor, end, err))
		}

		res.Batches++
		cursor = end + 1
	}

	return res, s.writeCheckpoint(ctx, sugar, target)
}

// resumeFrom returns the first block of the run.
func (s *Scraper) resumeFrom(ctx context.Context, sugar *zap.SugaredLogger) (uint64, error) {
	type checkpoint struct {
		block  uint64
		exists bool
	}
	cp, err := retry.Do(ctx, s.policy(sugar, metrics.OpReadCheckpoint), func(ctx context.Context) (checkpoint, error) {
		block, exists, err := s.checkpoints.Read(ctx, s.cfg.EVMChainID)
		return checkpoint{block: block, exists: exists}, err
	})
	if err != nil {
		return 0, fmt.Errorf("read checkpoint: %w", err)
	}
	if !cp.exists {
		sugar.Infow("no checkpoint found, starting from configured start block", "startBlock", s.cfg.StartBlock)
		return s.cfg.StartBlock, nil
	}
	if cp.block == math.MaxUint64 {
		return 0, ErrCheckpointOverflow
	}
	s.metrics.SetCheckpoint(cp.block)
	return cp.block + 1, nil
}

func (s *Scraper) processBatch(ctx context.Context, sugar *zap.SugaredLogger, from, to uint64) (fetched, inserted int, err error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordBatch(err, time.Since(start).Seconds(), fetched, inserted)
	}()

	raw, err := retry.Do(ctx, s.policy(sugar, metrics.OpFetchEvents), func(ctx context.Context) ([]types.RawEvent, error) {
		return s.source.FeeEvents(ctx, from, to)
	})
	if err != nil {
		return 0, 0, fmt.Errorf("fetch events: %w", err)
	}
	fetched = len(raw)

	events, err := parse(raw)
	if err != nil {
		return fetched, 0, err
	}

	if len(events) > 0 {
		inserted, err = retry.Do(ctx, s.policy(sugar, metrics.OpBulkInsert), func(ctx context.Context) (int, error) {
			opStart := time.Now()
			n, err := s.writer.BulkInsert(ctx, events)
			s.metrics.RecordStoreOp(metrics.OpBulkInsert, err, time.Since(opStart).Seconds())
			return n, err
		})
		if err != nil {
			return fetched, 0, fmt.Errorf("store events: %w", err)
		}

		if s.publisher != nil {
			err = s.policy(sugar, metrics.OpPublish).Execute(ctx, func(ctx context.Context) error {
				return s.publisher.Publish(ctx, events)
			})
			if err != nil {
				return fetched, inserted, fmt.Errorf("publish events: %w", err)
			}
		}
	}

	sugar.Debugw("batch processed",
		"from", from,
		"to", to,
		"fetched", fetched,
		"inserted", inserted,
		"duration", time.Since(start),
	)
	return fetched, inserted, nil
}

// salvage moves the checkpoint to the block before cursor, the last one fully stored, and returns
// runErr joined with any salvage failure. It uses its own context so a cancelled run still records
// its progress.
func (s *Scraper) salvage(sugar *zap.SugaredLogger, cursor uint64, runErr error) error {
	if cursor == 0 {
		return runErr
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.salvageTimeout)
	defer cancel()

	if err := s.writeCheckpoint(ctx, sugar, cursor-1); err != nil {
		return errors.Join(runErr, fmt.Errorf("salvage checkpoint: %w", err))
	}
	return runErr
}

func (s *Scraper) writeCheckpoint(ctx context.Context, sugar *zap.SugaredLogger, block uint64) error {
	err := s.policy(sugar, metrics.OpWriteCheckpoint).Execute(ctx, func(ctx context.Context) error {
		opStart := time.Now()
		err := s.checkpoints.Write(ctx, s.cfg.EVMChainID, block)
		s.metrics.RecordStoreOp(metrics.OpWriteCheckpoint, err, time.Since(opStart).Seconds())
		return err
	})
	if err != nil {
		return fmt.Errorf("write checkpoint %d: %w", block, err)
	}
	s.metrics.SetCheckpoint(block)
	return nil
}

// policy returns the configured retry policy with a hook that logs and counts retries of op.
func (s *Scraper) policy(sugar *zap.SugaredLogger, op string) retry.Policy {
	return s.cfg.Retry.WithOnRetry(func(attempt int, delay time.Duration, err error) {
		s.metrics.IncRetry(op)
		sugar.Warnw("operation failed, retrying",
			"operation", op,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
	})
}

// batchEnd returns the inclusive end of the batch starting at cursor, capped at target.
func batchEnd(cursor, batchSize, target uint64) uint64 {
	end := cursor + batchSize - 1
	if end < cursor || end > target {
		return target
	}
	return end
}

func parse(raw []types.RawEvent) ([]types.FeeEvent, error) {
	events := make([]types.FeeEvent, 0, len(raw))
	for i := range raw {
		if err := raw[i].Validate(); err != nil {
			return nil, fmt.Errorf("invalid event in tx %s log %d: %w", raw[i].TxHash.Hex(), raw[i].LogIndex, err)
		}
		events = append(events, types.FeeEventFromRaw(&raw[i]))
	}
	return events, nil
}
