package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadOnly(t *testing.T) {
	ctx := context.Background()
	path := tempPath(t)

	rw, err := tryOpenFile(path, ModeReadWrite, personType())
	require.NoError(t, err)
	bag, err := GetOrCreateBag[Person](ctx, rw, "people")
	require.NoError(t, err)
	_, err = bag.Add(ctx, Person{Name: "Ada", Age: 36})
	require.NoError(t, err)
	dict, err := GetOrCreateDictionary[string, int](ctx, rw, "counts")
	require.NoError(t, err)
	require.NoError(t, dict.Put(ctx, "a", 1))
	require.NoError(t, rw.Close())

	db := openFile(t, path, ModeReadOnly, personType())
	assert.True(t, db.ReadOnly())

	t.Run("ReadsWork", func(t *testing.T) {
		bag, err := GetBag[Person](ctx, db, "people")
		require.NoError(t, err)
		values, err := bag.GetAllValues(ctx)
		require.NoError(t, err)
		assert.Equal(t, []Person{{Name: "Ada", Age: 36}}, values)

		dict, err := GetOrCreateDictionary[string, int](ctx, db, "counts")
		require.NoError(t, err, "opening an existing collection is a read")
		v, err := dict.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 1, v)
	})

	t.Run("WritesFail", func(t *testing.T) {
		bag, err := GetBag[Person](ctx, db, "people")
		require.NoError(t, err)
		dict, err := GetDictionary[string, int](ctx, db, "counts")
		require.NoError(t, err)

		_, err = bag.Add(ctx, Person{Name: "Bob"})
		assert.ErrorIs(t, err, ErrReadOnly)
		assert.ErrorIs(t, err, ErrInvalidOperation)
		assert.Equal(t, "The database has been opened read-only and therefore may not be modified", err.Error())

		assert.ErrorIs(t, bag.Clear(ctx), ErrReadOnly)
		assert.ErrorIs(t, dict.Put(ctx, "b", 2), ErrReadOnly)
		assert.ErrorIs(t, dict.Move(ctx, "a", "b"), ErrReadOnly)
		assert.ErrorIs(t, db.RemoveCollection(ctx, bag), ErrReadOnly)

		_, err = GetOrCreateQueue[string](ctx, db, "new")
		assert.ErrorIs(t, err, ErrReadOnly)
	})

	t.Run("StateUnchanged", func(t *testing.T) {
		infos, err := db.Collections(ctx, true)
		require.NoError(t, err)
		assert.Len(t, infos, 2)

		n, err := db.CollectionCount(ctx, "people")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}
