package feestore

import (
	"context"
	"sync"

	"github.com/chainfees/fee-indexer/pkg/types"
)

// Memory is an in-process Store keeping events in insertion order.
type Memory struct {
	mu     sync.RWMutex
	events []types.FeeEvent
	keys   map[string]struct{}
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{keys: make(map[string]struct{})}
}

func (m *Memory) Initialize(context.Context) error { return nil }

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

func (m *Memory) BulkInsert(ctx context.Context, events []types.FeeEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	inserted := 0
	for _, ev := range events {
		k := ev.Key()
		if _, ok := m.keys[k]; ok {
			continue
		}
		m.keys[k] = struct{}{}
		m.events = append(m.events, ev)
		inserted++
	}
	return inserted, nil
}

func (m *Memory) QueryByIntegrator(ctx context.Context, integrator string, offset, limit uint64) ([]types.FeeEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []types.FeeEvent{}
	var skipped uint64
	for _, ev := range m.events {
		if uint64(len(out)) >= limit {
			break
		}
		if ev.Integrator != integrator {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (m *Memory) Purge(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
	m.keys = make(map[string]struct{})
	return nil
}

// All returns a copy of every stored event in insertion order.
func (m *Memory) All() []types.FeeEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.FeeEvent(nil), m.events...)
}
