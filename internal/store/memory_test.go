package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRollbackUndoesInReverse(t *testing.T) {
	m := NewMemory()
	var order []int
	values := map[string]int{"a": 1}

	boom := errors.New("boom")
	err := m.WithinTx(context.Background(), func(ctx context.Context) error {
		prev := values["a"]
		values["a"] = 2
		m.OnRollback(ctx, func() { values["a"] = prev; order = append(order, 1) })
		m.OnRollback(ctx, func() { order = append(order, 2) })
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, values["a"])
	assert.Equal(t, []int{2, 1}, order)
}

func TestMemoryNestedCallsJoin(t *testing.T) {
	m := NewMemory()
	calls := 0
	err := m.WithinTx(context.Background(), func(ctx context.Context) error {
		unlock := m.Lock(ctx)
		defer unlock()
		return m.WithinTx(ctx, func(ctx context.Context) error {
			calls++
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestMemoryOnRollbackOutsideTxIsNoop(t *testing.T) {
	m := NewMemory()
	ran := false
	m.OnRollback(context.Background(), func() { ran = true })
	require.NoError(t, m.WithinTx(context.Background(), func(context.Context) error { return nil }))
	assert.False(t, ran)
}

func TestMemoryPanicRollsBackAndUnlocks(t *testing.T) {
	m := NewMemory()
	values := map[string]int{"a": 1}

	assert.PanicsWithValue(t, "crash", func() {
		_ = m.WithinTx(context.Background(), func(ctx context.Context) error {
			values["a"] = 2
			m.OnRollback(ctx, func() { values["a"] = 1 })
			panic("crash")
		})
	})
	assert.Equal(t, 1, values["a"])

	// The lock was released, so the next unit of work runs.
	require.NoError(t, m.WithinTx(context.Background(), func(context.Context) error { return nil }))
}
