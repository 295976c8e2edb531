package core

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t, testTypes()...)

	t.Run("SameHandle", func(t *testing.T) {
		a, err := GetOrCreateDictionary[string, Person](ctx, db, "staff")
		require.NoError(t, err)
		b, err := GetOrCreateDictionary[string, Person](ctx, db, "staff")
		require.NoError(t, err)
		c, err := GetDictionary[string, Person](ctx, db, "staff")
		require.NoError(t, err)
		assert.Same(t, a, b)
		assert.Same(t, a, c)
		assert.Equal(t, "staff", a.Name())
		assert.Equal(t, KindDictionary, a.Kind())
	})

	t.Run("TypeMismatch", func(t *testing.T) {
		_, err := GetOrCreateDictionary[string, Holder](ctx, db, "staff")
		var tme *TypeMismatchError
		require.ErrorAs(t, err, &tme)
		assert.Equal(t, "value", tme.Role)
		assert.Equal(t, "acme.model.Person", tme.Stored)
		assert.Equal(t, "acme.model.Holder", tme.Requested)
		assert.Contains(t, err.Error(), "acme.model.Person")
		assert.Contains(t, err.Error(), "acme.model.Holder")

		_, err = GetOrCreateDictionary[int, Person](ctx, db, "staff")
		require.ErrorAs(t, err, &tme)
		assert.Equal(t, "key", tme.Role)
	})

	t.Run("WrongCollectionType", func(t *testing.T) {
		_, err := GetOrCreateBag[Person](ctx, db, "staff")
		var wct *WrongCollectionTypeError
		require.ErrorAs(t, err, &wct)
		assert.Equal(t, KindDictionary, wct.Actual)
		assert.Equal(t, KindBag, wct.Requested)
	})

	t.Run("NameInUse", func(t *testing.T) {
		_, err := CreateDictionary[string, Person](ctx, db, "staff")
		var inUse *CollectionNameInUseError
		require.ErrorAs(t, err, &inUse)
		assert.Equal(t, KindDictionary, inUse.Kind)

		_, err = CreateQueue[string](ctx, db, "staff")
		require.ErrorAs(t, err, &inUse)
	})

	t.Run("NoSuchCollection", func(t *testing.T) {
		_, err := GetHashSet[string](ctx, db, "missing")
		var nsc *NoSuchCollectionError
		require.ErrorAs(t, err, &nsc)
	})

	t.Run("InterfaceView", func(t *testing.T) {
		sq, err := GetOrCreateBag[Square](ctx, db, "squares")
		require.NoError(t, err)
		_, err = sq.Add(ctx, Square{Side: 4})
		require.NoError(t, err)

		view, err := GetBag[Shape](ctx, db, "squares")
		require.NoError(t, err)
		shapes, err := view.GetAllValues(ctx)
		require.NoError(t, err)
		require.Len(t, shapes, 1)
		assert.Equal(t, 16.0, shapes[0].Area())

		nums, err := GetOrCreateBag[int](ctx, db, "ints")
		require.NoError(t, err)
		_, err = nums.Add(ctx, 7)
		require.NoError(t, err)
		anyView, err := GetBag[any](ctx, db, "ints")
		require.NoError(t, err)
		vals, err := anyView.GetAllValues(ctx)
		require.NoError(t, err)
		assert.Equal(t, []any{7}, vals)

		// Person does not implement Shape.
		_, err = GetOrCreateBag[Person](ctx, db, "persons")
		require.NoError(t, err)
		_, err = GetBag[Shape](ctx, db, "persons")
		var tme *TypeMismatchError
		require.ErrorAs(t, err, &tme)
	})

	t.Run("UnsupportedKeys", func(t *testing.T) {
		_, err := GetOrCreateOrderedCollection[string, int](ctx, db, "by-name")
		var nse *NotSupportedError
		require.ErrorAs(t, err, &nse)
		assert.Equal(t, "string", nse.Type)

		_, err = GetOrCreateIntervalCollection[Color, int](ctx, db, "by-color")
		require.ErrorAs(t, err, &nse)
		assert.Contains(t, nse.Type, "Color")
	})

	t.Run("RemoveCollection", func(t *testing.T) {
		bag, err := GetOrCreateBag[string](ctx, db, "temp")
		require.NoError(t, err)
		_, err = bag.Add(ctx, "x")
		require.NoError(t, err)

		require.NoError(t, db.RemoveCollection(ctx, bag))
		require.NoError(t, db.RemoveCollection(ctx, bag), "removing twice is a no-op")

		var tables int
		require.NoError(t, db.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, bag.Info().Table).Scan(&tables))
		assert.Equal(t, 1, tables, "the backing table is kept")
		var rows int
		require.NoError(t, db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+bag.table).Scan(&rows))
		assert.Equal(t, 1, rows)

		_, err = bag.Add(ctx, "y")
		require.ErrorIs(t, err, ErrInvalidOperation)
		assert.Equal(t, `This collection ("temp") has been removed from the database and may no longer be used`, err.Error())
		_, err = bag.Count(ctx)
		require.ErrorIs(t, err, ErrInvalidOperation)

		fresh, err := GetOrCreateBag[string](ctx, db, "temp")
		require.NoError(t, err)
		assert.NotSame(t, bag, fresh)
		n, err := fresh.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		all, err := db.Collections(ctx, true)
		require.NoError(t, err)
		var dropped, live int
		for _, c := range all {
			if c.Name == "temp" {
				if c.Dropped {
					dropped++
				} else {
					live++
				}
			}
		}
		assert.Equal(t, 1, dropped)
		assert.Equal(t, 1, live)
	})

	t.Run("Listing", func(t *testing.T) {
		info, err := db.Collection(ctx, "staff")
		require.NoError(t, err)
		assert.Equal(t, KindDictionary, info.Kind)
		assert.Equal(t, "string", info.KeyType)
		assert.Equal(t, "acme.model.Person", info.ValueType)
		assert.Equal(t, "dict_", info.Table[:5])

		n, err := db.CollectionCount(ctx, "ints")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

func TestKindText(t *testing.T) {
	data, err := json.Marshal(CollectionInfo{Name: "people", Kind: KindMultiValueDictionary})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"MultiValueDictionary"`)

	var info CollectionInfo
	require.NoError(t, json.Unmarshal(data, &info))
	assert.Equal(t, KindMultiValueDictionary, info.Kind)

	var k Kind
	assert.Error(t, k.UnmarshalText([]byte("Heap")))
}
