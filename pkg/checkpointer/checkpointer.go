package checkpointer

import (
	"context"
	"sync"
)

// Checkpointer abstracts checkpoint persistence across different data stores. A checkpoint is the
// highest block whose fee events are known to be durably stored for a given chain, so the next run
// resumes at the block after it.
type Checkpointer interface {
	// Initialize ensures the underlying storage is ready (creates tables, schemas, etc.). It is
	// idempotent and safe to call multiple times.
	Initialize(ctx context.Context) error

	// Write upserts the checkpoint for a chain. The caller guarantees every block up to and
	// including lastIngested has been persisted.
	Write(ctx context.Context, evmChainID uint64, lastIngested uint64) error

	// Read retrieves the checkpoint for a chain. When none exists, exists is false and
	// lastIngested is 0.
	Read(ctx context.Context, evmChainID uint64) (lastIngested uint64, exists bool, err error)
}

// Remover is implemented by checkpointers that support resetting a chain.
type Remover interface {
	Delete(ctx context.Context, evmChainID uint64) error
}

// Memory is an in-process Checkpointer. It keeps state for the lifetime of the value only and is
// meant for tests and dry runs.
type Memory struct {
	mu     sync.Mutex
	points map[uint64]uint64
	writes []uint64
}

var (
	_ Checkpointer = (*Memory)(nil)
	_ Remover      = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{points: make(map[uint64]uint64)}
}

func (m *Memory) Initialize(context.Context) error { return nil }

func (m *Memory) Write(ctx context.Context, evmChainID uint64, lastIngested uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points[evmChainID] = lastIngested
	m.writes = append(m.writes, lastIngested)
	return nil
}

func (m *Memory) Read(ctx context.Context, evmChainID uint64) (uint64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.points[evmChainID]
	return v, ok, nil
}

func (m *Memory) Delete(_ context.Context, evmChainID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.points, evmChainID)
	return nil
}

// Writes returns every value written so far, across chains, in write order.
func (m *Memory) Writes() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint64(nil), m.writes...)
}
