package scraper

import (
	"context"
	"errors"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/ava-labs/libevm/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/chainfees/fee-indexer/pkg/checkpointer"
	"github.com/chainfees/fee-indexer/pkg/feestore"
	"github.com/chainfees/fee-indexer/pkg/metrics"
	"github.com/chainfees/fee-indexer/pkg/retry"
	"github.com/chainfees/fee-indexer/pkg/types"
)

const testChainID = 137

var (
	testIntegrator = common.HexToAddress("0x60bFaC7318e576A535cE8EA3Bfe0a45A803Bfa0B")
	testToken      = common.HexToAddress("0x1D1498166DDCEeE616a6d99868e1E0677300056f")
	errRPC         = errors.New("rpc node unavailable")
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) LatestHeight(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockSource) FeeEvents(ctx context.Context, from, to uint64) ([]types.RawEvent, error) {
	args := m.Called(ctx, from, to)
	events, _ := args.Get(0).([]types.RawEvent)
	return events, args.Error(1)
}

type mockCheckpointer struct {
	mock.Mock
}

func (m *mockCheckpointer) Initialize(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockCheckpointer) Write(ctx context.Context, chainID, block uint64) error {
	return m.Called(ctx, chainID, block).Error(0)
}

func (m *mockCheckpointer) Read(ctx context.Context, chainID uint64) (uint64, bool, error) {
	args := m.Called(ctx, chainID)
	return args.Get(0).(uint64), args.Bool(1), args.Error(2)
}

type recordingPublisher struct {
	batches [][]types.FeeEvent
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, events []types.FeeEvent) error {
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, events)
	return nil
}

func fastRetry() retry.Policy {
	return retry.Policy{
		Retries:       3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
		BackoffFactor: 2,
	}
}

func rawEvent(block, logIndex uint64) types.RawEvent {
	var h common.Hash
	big.NewInt(int64(block*1000 + logIndex)).FillBytes(h[:])
	return types.RawEvent{
		TxHash:        h,
		BlockNumber:   block,
		LogIndex:      logIndex,
		Token:         testToken,
		Integrator:    testIntegrator,
		IntegratorFee: big.NewInt(100),
		LifiFee:       big.NewInt(5),
	}
}

func newTestScraper(t *testing.T, cfg Config, src *mockSource, w feestore.Writer, cp checkpointer.Checkpointer, opts ...Option) *Scraper {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t).Sugar())}, opts...)
	s, err := New(cfg, src, w, cp, opts...)
	require.NoError(t, err)
	return s
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	src := &mockSource{}
	store := feestore.NewMemory()
	cp := checkpointer.NewMemory()
	cfg := Config{EVMChainID: testChainID, BatchSize: 10, Retry: fastRetry()}

	tests := []struct {
		name    string
		build   func() (*Scraper, error)
		wantErr error
	}{
		{
			name:    "zero batch size",
			build:   func() (*Scraper, error) { c := cfg; c.BatchSize = 0; return New(c, src, store, cp) },
			wantErr: ErrInvalidBatchSize,
		},
		{
			name:    "nil source",
			build:   func() (*Scraper, error) { return New(cfg, nil, store, cp) },
			wantErr: ErrInvalidEventSource,
		},
		{
			name:    "nil writer",
			build:   func() (*Scraper, error) { return New(cfg, src, nil, cp) },
			wantErr: ErrInvalidWriter,
		},
		{
			name:    "nil checkpointer",
			build:   func() (*Scraper, error) { return New(cfg, src, store, nil) },
			wantErr: ErrInvalidCheckpointer,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := tt.build()
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("invalid retry policy", func(t *testing.T) {
		t.Parallel()
		c := cfg
		c.Retry.Retries = 0
		_, err := New(c, src, store, cp)
		require.Error(t, err)
	})
}

func TestRun_FirstRunFromStartBlock(t *testing.T) {
	t.Parallel()
	src := &mockSource{}
	store := feestore.NewMemory()
	cp := checkpointer.NewMemory()

	src.On("LatestHeight", mock.Anything).Return(uint64(70000004), nil).Once()
	src.On("FeeEvents", mock.Anything, uint64(70000000), uint64(70000004)).
		Return([]types.RawEvent{rawEvent(70000001, 0), rawEvent(70000003, 2)}, nil).Once()

	s := newTestScraper(t, Config{EVMChainID: testChainID, StartBlock: 70000000, BatchSize: 5, Retry: fastRetry()}, src, store, cp)
	res, err := s.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, Result{From: 70000000, To: 70000004, Batches: 1, Events: 2, Inserted: 2}, res)
	assert.Len(t, store.All(), 2)
	got, exists, err := cp.Read(t.Context(), testChainID)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, uint64(70000004), got)
	src.AssertExpectations(t)
}

func TestRun_CheckpointAtMaxBlock(t *testing.T) {
	t.Parallel()
	src := &mockSource{}
	store := feestore.NewMemory()
	cp := checkpointer.NewMemory()
	require.NoError(t, cp.Write(t.Context(), testChainID, math.MaxUint64))

	s := newTestScraper(t, Config{EVMChainID: testChainID, StartBlock: 0, BatchSize: 5, Retry: fastRetry()}, src, store, cp)
	_, err := s.Run(t.Context())
	require.ErrorIs(t, err, ErrCheckpointOverflow)

	got, _, err := cp.Read(t.Context(), testChainID)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), got)
	assert.Empty(t, store.All())
	src.AssertNotCalled(t, "LatestHeight", mock.Anything)
}

func TestRun_BatchesAreContiguousAndInclusive(t *testing.T) {
	t.Parallel()
	src := &mockSource{}
	store := feestore.NewMemory()
	cp := checkpointer.NewMemory()
	require.NoError(t, cp.Write(t.Context(), testChainID, 9))

	src.On("LatestHeight", mock.Anything).Return(uint64(21), nil).Once()
	src.On("FeeEvents", mock.Anything, uint64(10), uint64(14)).Return([]types.RawEvent{rawEvent(14, 0)}, nil).Once()
	src.On("FeeEvents", mock.Anything, uint64(15), uint64(19)).Return([]types.RawEvent{rawEvent(15, 0)}, nil).Once()
	src.On("FeeEvents", mock.Anything, uint64(20), uint64(21)).Return(nil, nil).Once()

	s := newTestScraper(t, Config{EVMChainID: testChainID, StartBlock: 0, BatchSize: 5, Retry: fastRetry()}, src, store, cp)
	res, err := s.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, 2, res.Inserted)
	// Intermediate batches only advance the in-memory cursor.
	assert.Equal(t, []uint64{9, 21}, cp.Writes())
	src.AssertExpectations(t)
}

func TestRun_PartialFailureSalvagesLastBoundary(t *testing.T) {
	t.Parallel()
	src := &mockSource{}
	store := feestore.NewMemory()
	cp := checkpointer.NewMemory()
	require.NoError(t, cp.Write(t.Context(), testChainID, 70000050))

	src.On("LatestHeight", mock.Anything).Return(uint64(70000100), nil).Once()
	src.On("FeeEvents", mock.Anything, uint64(70000051), uint64(70000061)).Return([]types.RawEvent{rawEvent(70000055, 0)}, nil).Once()
	src.On("FeeEvents", mock.Anything, uint64(70000062), uint64(70000072)).Return(nil, nil).Once()
	src.On("FeeEvents", mock.Anything, uint64(70000073), uint64(70000083)).Return(nil, errRPC).Times(3)

	s := newTestScraper(t, Config{EVMChainID: testChainID, StartBlock: 70000000, BatchSize: 11, Retry: fastRetry()}, src, store, cp)
	res, err := s.Run(t.Context())
	require.ErrorIs(t, err, errRPC)
	assert.Equal(t, 2, res.Batches)

	got, _, err := cp.Read(t.Context(), testChainID)
	require.NoError(t, err)
	assert.Equal(t, uint64(70000072), got)
	assert.Len(t, store.All(), 1)
	src.AssertExpectations(t)

	// The next run resumes right after the salvaged checkpoint.
	src2 := &mockSource{}
	src2.On("LatestHeight", mock.Anything).Return(uint64(70000083), nil).Once()
	src2.On("FeeEvents", mock.Anything, uint64(70000073), uint64(70000083)).Return(nil, nil).Once()

	s2 := newTestScraper(t, Config{EVMChainID: testChainID, StartBlock: 70000000, BatchSize: 11, Retry: fastRetry()}, src2, store, cp)
	res, err = s2.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, uint64(70000073), res.From)
	src2.AssertExpectations(t)
}

func TestRun_TransientFailureIsRetried(t *testing.T) {
	t.Parallel()
	src := &mockSource{}
	store := feestore.NewMemory()
	cp := checkpointer.NewMemory()

	src.On("LatestHeight", mock.Anything).Return(uint64(0), errRPC).Once()
	src.On("LatestHeight", mock.Anything).Return(uint64(104), nil).Once()
	src.On("FeeEvents", mock.Anything, uint64(100), uint64(104)).Return(nil, errRPC).Once()
	src.On("FeeEvents", mock.Anything, uint64(100), uint64(104)).Return([]types.RawEvent{rawEvent(101, 3)}, nil).Once()

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	s := newTestScraper(t, Config{EVMChainID: testChainID, StartBlock: 100, BatchSize: 5, Retry: fastRetry()}, src, store, cp, WithMetrics(m))
	res, err := s.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	src.AssertExpectations(t)

	// One retry of the height read and one of the range fetch.
	assert.Equal(t, 2, testutil.CollectAndCount(reg, "fee_indexer_scraper_retries_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "fee_indexer_scraper_runs_total"))
}

func TestRun_AlreadyCaughtUp(t *testing.T) {
	t.Parallel()
	src := &mockSource{}
	store := feestore.NewMemory()
	cp := checkpointer.NewMemory()
	require.NoError(t, cp.Write(t.Context(), testChainID, 500))

	src.On("LatestHeight", mock.Anything).Return(uint64(500), nil).Once()

	s := newTestScraper(t, Config{EVMChainID: testChainID, StartBlock: 1, BatchSize: 5, Retry: fastRetry()}, src, store, cp)
	res, err := s.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 0, res.Batches)
	assert.Equal(t, []uint64{500, 500}, cp.Writes())
	src.AssertNotCalled(t, "FeeEvents", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_RerunIsIdempotent(t *testing.T) {
	t.Parallel()
	store := feestore.NewMemory()
	events := []types.RawEvent{rawEvent(10, 0), rawEvent(10, 1), rawEvent(12, 0)}

	run := func() Result {
		src := &mockSource{}
		src.On("LatestHeight", mock.Anything).Return(uint64(12), nil).Once()
		src.On("FeeEvents", mock.Anything, uint64(10), uint64(12)).Return(events, nil).Once()
		s := newTestScraper(t, Config{EVMChainID: testChainID, StartBlock: 10, BatchSize: 10, Retry: fastRetry()}, src, store, checkpointer.NewMemory())
		res, err := s.Run(t.Context())
		require.NoError(t, err)
		return res
	}

	first := run()
	second := run()
	assert.Equal(t, 3, first.Inserted)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 3, second.Events)
	assert.Len(t, store.All(), 3)
}

func TestRun_SalvageFailureIsJoined(t *testing.T) {
	t.Parallel()
	src := &mockSource{}
	cp := &mockCheckpointer{}
	errDB := errors.New("checkpoint table unavailable")

	cp.On("Read", mock.Anything, uint64(testChainID)).Return(uint64(99), true, nil).Once()
	cp.On("Write", mock.Anything, uint64(testChainID), uint64(99)).Return(errDB).Times(3)
	src.On("LatestHeight", mock.Anything).Return(uint64(200), nil).Once()
	src.On("FeeEvents", mock.Anything, uint64(100), uint64(109)).Return(nil, errRPC).Times(3)

	s := newTestScraper(t, Config{EVMChainID: testChainID, BatchSize: 10, Retry: fastRetry()}, src, feestore.NewMemory(), cp)
	_, err := s.Run(t.Context())
	require.ErrorIs(t, err, errRPC)
	require.ErrorIs(t, err, errDB)
	cp.AssertExpectations(t)
}

func TestRun_CheckpointReadFailure(t *testing.T) {
	t.Parallel()
	src := &mockSource{}
	cp := &mockCheckpointer{}
	errDB := errors.New("connection refused")
	cp.On("Read", mock.Anything, uint64(testChainID)).Return(uint64(0), false, errDB).Times(3)

	s := newTestScraper(t, Config{EVMChainID: testChainID, BatchSize: 10, Retry: fastRetry()}, src, feestore.NewMemory(), cp)
	_, err := s.Run(t.Context())
	require.ErrorIs(t, err, errDB)
	cp.AssertExpectations(t)
	src.AssertNotCalled(t, "LatestHeight", mock.Anything)
	cp.AssertNotCalled(t, "Write", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_CancellationSalvagesProgress(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	src := &mockSource{}
	store := feestore.NewMemory()
	cp := checkpointer.NewMemory()

	src.On("LatestHeight", mock.Anything).Return(uint64(30), nil).Once()
	src.On("FeeEvents", mock.Anything, uint64(10), uint64(19)).Return([]types.RawEvent{rawEvent(11, 0)}, nil).Once()
	src.On("FeeEvents", mock.Anything, uint64(20), uint64(29)).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, context.Canceled).Once()

	s := newTestScraper(t, Config{EVMChainID: testChainID, StartBlock: 10, BatchSize: 10, Retry: fastRetry()}, src, store, cp)
	_, err := s.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	got, exists, err := cp.Read(t.Context(), testChainID)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, uint64(19), got)
	src.AssertExpectations(t)
}

func TestRun_InvalidEventFailsWithoutRetry(t *testing.T) {
	t.Parallel()
	src := &mockSource{}
	cp := checkpointer.NewMemory()
	store := feestore.NewMemory()

	bad := rawEvent(55, 0)
	bad.LifiFee = nil
	src.On("LatestHeight", mock.Anything).Return(uint64(60), nil).Once()
	src.On("FeeEvents", mock.Anything, uint64(50), uint64(60)).Return([]types.RawEvent{bad}, nil).Once()

	s := newTestScraper(t, Config{EVMChainID: testChainID, StartBlock: 50, BatchSize: 20, Retry: fastRetry()}, src, store, cp)
	_, err := s.Run(t.Context())
	require.ErrorIs(t, err, types.ErrMissingAmount)
	assert.Empty(t, store.All())
	assert.Equal(t, []uint64{49}, cp.Writes())
	src.AssertExpectations(t)
}

func TestRun_FailureAtGenesisSkipsSalvage(t *testing.T) {
	t.Parallel()
	src := &mockSource{}
	cp := checkpointer.NewMemory()

	src.On("LatestHeight", mock.Anything).Return(uint64(3), nil).Once()
	src.On("FeeEvents", mock.Anything, uint64(0), uint64(3)).Return(nil, errRPC).Times(3)

	s := newTestScraper(t, Config{EVMChainID: testChainID, StartBlock: 0, BatchSize: 10, Retry: fastRetry()}, src, feestore.NewMemory(), cp)
	_, err := s.Run(t.Context())
	require.ErrorIs(t, err, errRPC)
	assert.Empty(t, cp.Writes())
}

func TestRun_PublishesStoredBatches(t *testing.T) {
	t.Parallel()
	src := &mockSource{}
	pub := &recordingPublisher{}

	src.On("LatestHeight", mock.Anything).Return(uint64(7), nil).Once()
	src.On("FeeEvents", mock.Anything, uint64(0), uint64(3)).Return([]types.RawEvent{rawEvent(1, 0)}, nil).Once()
	src.On("FeeEvents", mock.Anything, uint64(4), uint64(7)).Return(nil, nil).Once()

	s := newTestScraper(t, Config{EVMChainID: testChainID, BatchSize: 4, Retry: fastRetry()}, src, feestore.NewMemory(), checkpointer.NewMemory(), WithPublisher(pub))
	_, err := s.Run(t.Context())
	require.NoError(t, err)

	// Empty batches are not published.
	require.Len(t, pub.batches, 1)
	assert.Equal(t, uint64(1), pub.batches[0][0].BlockNumber)
}

func TestRun_PublishFailureFailsBatch(t *testing.T) {
	t.Parallel()
	src := &mockSource{}
	cp := checkpointer.NewMemory()
	errBroker := errors.New("broker transport failure")
	pub := &recordingPublisher{err: errBroker}

	src.On("LatestHeight", mock.Anything).Return(uint64(7), nil).Once()
	src.On("FeeEvents", mock.Anything, uint64(4), uint64(7)).Return([]types.RawEvent{rawEvent(5, 0)}, nil).Once()

	s := newTestScraper(t, Config{EVMChainID: testChainID, StartBlock: 4, BatchSize: 4, Retry: fastRetry()}, src, feestore.NewMemory(), cp, WithPublisher(pub))
	_, err := s.Run(t.Context())
	require.ErrorIs(t, err, errBroker)
	assert.Equal(t, []uint64{3}, cp.Writes())
}

func TestBatchEnd(t *testing.T) {
	t.Parallel()
	assert.Equal(t, uint64(14), batchEnd(10, 5, 100))
	assert.Equal(t, uint64(12), batchEnd(10, 5, 12))
	assert.Equal(t, uint64(10), batchEnd(10, 1, 100))
	assert.Equal(t, uint64(math.MaxUint64), batchEnd(math.MaxUint64-1, 10, math.MaxUint64))
}
