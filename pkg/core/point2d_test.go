package core

import (
	"context"
	"math"
	"testing"

	"github.com/liliang-cn/sqstash/pkg/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoint2DCollection(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)

	pc, err := GetOrCreatePoint2DCollection[string](ctx, db, "places")
	require.NoError(t, err)

	_, err = pc.PutMany(ctx, geo.Point{X: 1, Y: 1}, "cafe", "bakery")
	require.NoError(t, err)
	_, err = pc.Put(ctx, geo.Point{X: 5, Y: 5}, "park")
	require.NoError(t, err)
	edge, err := pc.Put(ctx, geo.Point{X: 10, Y: 0}, "pier")
	require.NoError(t, err)
	_, err = pc.Put(ctx, geo.Point{X: -3, Y: 2}, "station")
	require.NoError(t, err)

	t.Run("GetValues", func(t *testing.T) {
		values, err := pc.GetValues(ctx, geo.Point{X: 1, Y: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"cafe", "bakery"}, values)

		values, err = pc.GetValues(ctx, geo.Point{X: 2, Y: 2})
		require.NoError(t, err)
		assert.Empty(t, values)
	})

	t.Run("Within", func(t *testing.T) {
		r := geo.Rectangle{MinX: 0, MaxX: 10, MinY: 0, MaxY: 5}
		values, err := pc.GetValuesWithin(ctx, r)
		require.NoError(t, err)
		assert.Equal(t, []string{"cafe", "bakery", "park", "pier"}, values, "borders are inclusive")

		keys, err := pc.GetKeysWithin(ctx, r)
		require.NoError(t, err)
		assert.Equal(t, []geo.Point{{X: 1, Y: 1}, {X: 5, Y: 5}, {X: 10, Y: 0}}, keys)

		entries, err := pc.GetWithin(ctx, geo.Rectangle{MinX: 10, MaxX: 10, MinY: 0, MaxY: 0})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, PointEntry[string]{ID: edge, Point: geo.Point{X: 10, Y: 0}, Value: "pier"}, entries[0])
	})

	t.Run("InvalidInput", func(t *testing.T) {
		_, err := pc.Put(ctx, geo.Point{X: math.NaN(), Y: 0}, "nowhere")
		assert.ErrorIs(t, err, ErrInvalidArgument)

		_, err = pc.GetWithin(ctx, geo.Rectangle{MinX: 5, MaxX: 0, MinY: 0, MaxY: 1})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("Remove", func(t *testing.T) {
		n, err := pc.RemoveMany(ctx, geo.Point{X: 1, Y: 1}, geo.Point{X: 99, Y: 99})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = pc.RemoveWithin(ctx, geo.Rectangle{MinX: 4, MaxX: 11, MinY: -1, MaxY: 6})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		all, err := pc.GetAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "station", all[0].Value)

		ok, err := pc.Remove(ctx, all[0].ID)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
