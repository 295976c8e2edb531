package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t, testTypes()...)

	q, err := GetOrCreateQueue[Person](ctx, db, "jobs")
	require.NoError(t, err)

	t.Run("Empty", func(t *testing.T) {
		_, err := q.Peek(ctx)
		assert.ErrorIs(t, err, ErrQueueEmpty)
		assert.ErrorIs(t, err, ErrInvalidOperation)
		assert.Equal(t, "The queue is empty", err.Error())

		_, err = q.Dequeue(ctx)
		assert.ErrorIs(t, err, ErrQueueEmpty)

		_, ok, err := q.TryDequeue(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
		_, ok, err = q.TryPeek(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("FIFO", func(t *testing.T) {
		ids, err := q.EnqueueMany(ctx, Person{Name: "a"}, Person{Name: "b"})
		require.NoError(t, err)
		id, err := q.Enqueue(ctx, Person{Name: "c"})
		require.NoError(t, err)

		head, err := q.Peek(ctx)
		require.NoError(t, err)
		assert.Equal(t, Row[Person]{ID: ids[0], Value: Person{Name: "a"}}, head)

		all, err := q.GetAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, id, all[2].ID)

		for _, want := range []string{"a", "b", "c"} {
			row, err := q.Dequeue(ctx)
			require.NoError(t, err)
			assert.Equal(t, want, row.Value.Name)
		}
		n, err := q.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("TryDequeue", func(t *testing.T) {
		_, err := q.Enqueue(ctx, Person{Name: "z"})
		require.NoError(t, err)
		row, ok, err := q.TryDequeue(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "z", row.Value.Name)
	})
}
