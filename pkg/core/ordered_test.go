package core

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderedCollection(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t, testTypes()...)

	oc, err := GetOrCreateOrderedCollection[int64, string](ctx, db, "events")
	require.NoError(t, err)

	ids, err := oc.PutMany(ctx,
		KeyValue[int64, string]{Key: 30, Value: "c"},
		KeyValue[int64, string]{Key: -10, Value: "a"},
		KeyValue[int64, string]{Key: 20, Value: "b1"},
		KeyValue[int64, string]{Key: 20, Value: "b2"},
	)
	require.NoError(t, err)

	t.Run("SortedByKeyThenInsertion", func(t *testing.T) {
		all, err := oc.GetAll(ctx)
		require.NoError(t, err)
		got := make([]string, len(all))
		for i, e := range all {
			got[i] = e.Value
		}
		assert.Equal(t, []string{"a", "b1", "b2", "c"}, got)
	})

	t.Run("GetRange", func(t *testing.T) {
		values, err := oc.GetValues(ctx, 0, 25)
		require.NoError(t, err)
		assert.Equal(t, []string{"b1", "b2"}, values)

		entries, err := oc.GetRange(ctx, -10, -10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, Entry[int64, string]{ID: ids[1], Key: -10, Value: "a"}, entries[0])

		entries, err = oc.GetRange(ctx, 25, 0)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("GetValue", func(t *testing.T) {
		e, err := oc.GetValue(ctx, ids[0])
		require.NoError(t, err)
		assert.Equal(t, int64(30), e.Key)
		_, err = oc.GetValue(ctx, RowID(77))
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("Remove", func(t *testing.T) {
		n, err := oc.RemoveRange(ctx, 15, 25)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		ok, err := oc.Remove(ctx, ids[0])
		require.NoError(t, err)
		assert.True(t, ok)

		count, err := oc.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("FloatKeysWithStructValues", func(t *testing.T) {
		prices, err := GetOrCreateOrderedCollection[float64, Person](ctx, db, "by-price")
		require.NoError(t, err)
		_, err = prices.Put(ctx, 9.99, Person{Name: "expensive"})
		require.NoError(t, err)
		_, err = prices.Put(ctx, 0.5, Person{Name: "cheap"})
		require.NoError(t, err)
		values, err := prices.GetValues(ctx, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, []Person{{Name: "cheap"}, {Name: "expensive"}}, values)

		_, err = prices.Put(ctx, math.NaN(), Person{Name: "unpriced"})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}
