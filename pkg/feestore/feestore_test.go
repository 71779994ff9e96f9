package feestore

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainfees/fee-indexer/pkg/types"
)

const (
	integratorA = "0x60bFaC7318e576A535cE8EA3Bfe0a45A803Bfa0B"
	integratorB = "0x1Bcc58D165e5374D7B492B21c0a572Fd61C0C2a0"
)

func feeEvent(block, logIndex uint64, integrator string) types.FeeEvent {
	return types.FeeEvent{
		BlockNumber:   block,
		TxHash:        fmt.Sprintf("0x%064x", block),
		LogIndex:      logIndex,
		Token:         "0x1D1498166DDCEeE616a6d99868e1E0677300056f",
		Integrator:    integrator,
		IntegratorFee: "100",
		LifiFee:       "5",
	}
}

func TestDedupe(t *testing.T) {
	t.Parallel()
	a := feeEvent(1, 0, integratorA)
	b := feeEvent(1, 1, integratorA)
	dup := a
	dup.IntegratorFee = "999"

	got := Dedupe([]types.FeeEvent{a, b, dup})
	require.Len(t, got, 2)
	assert.Equal(t, "100", got[0].IntegratorFee)
	assert.Empty(t, Dedupe(nil))
}

func TestMemory_BulkInsertIdempotent(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	ctx := t.Context()

	n, err := m.BulkInsert(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	batch := []types.FeeEvent{feeEvent(1, 0, integratorA), feeEvent(2, 0, integratorA), feeEvent(1, 0, integratorA)}
	n, err = m.BulkInsert(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = m.BulkInsert(ctx, []types.FeeEvent{feeEvent(2, 0, integratorA), feeEvent(3, 0, integratorA)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, m.All(), 3)
}

func TestMemory_QueryByIntegrator(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	ctx := t.Context()

	var batch []types.FeeEvent
	for i := uint64(0); i < 5; i++ {
		batch = append(batch, feeEvent(100+i, 0, integratorA), feeEvent(200+i, 0, integratorB))
	}
	_, err := m.BulkInsert(ctx, batch)
	require.NoError(t, err)

	page, err := m.QueryByIntegrator(ctx, integratorA, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(100), page[0].BlockNumber)
	assert.Equal(t, uint64(101), page[1].BlockNumber)

	page, err = m.QueryByIntegrator(ctx, integratorA, 4, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, uint64(104), page[0].BlockNumber)

	page, err = m.QueryByIntegrator(ctx, integratorA, 10, 2)
	require.NoError(t, err)
	assert.NotNil(t, page)
	assert.Empty(t, page)

	require.NoError(t, m.Purge(ctx))
	assert.Empty(t, m.All())
}
