package checkpointer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_ReadWrite(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	ctx := t.Context()

	_, exists, err := m.Read(ctx, 137)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, m.Write(ctx, 137, 70000999))
	require.NoError(t, m.Write(ctx, 1, 5))
	require.NoError(t, m.Write(ctx, 137, 70001999))

	got, exists, err := m.Read(ctx, 137)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, uint64(70001999), got)
	assert.Equal(t, []uint64{70000999, 5, 70001999}, m.Writes())
}

func TestMemory_Delete(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	ctx := t.Context()

	require.NoError(t, m.Write(ctx, 137, 10))
	require.NoError(t, m.Delete(ctx, 137))

	_, exists, err := m.Read(ctx, 137)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemory_CancelledContext(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	require.ErrorIs(t, m.Write(ctx, 137, 1), context.Canceled)
	_, _, err := m.Read(ctx, 137)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, m.Writes())
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	assert.Equal(t, "fee_checkpoints", cfg.TableName)
	assert.Equal(t, 10*time.Second, cfg.SalvageTimeout)
}
