package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDictionary(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t, testTypes()...)

	dict, err := GetOrCreateDictionary[string, Person](ctx, db, "people")
	require.NoError(t, err)

	require.NoError(t, dict.Put(ctx, "ada", Person{Name: "Ada", Age: 36}))
	require.NoError(t, dict.PutMany(ctx, map[string]Person{
		"bob": {Name: "Bob", Age: 40},
		"cy":  {Name: "Cy", Age: 22},
	}))

	t.Run("Get", func(t *testing.T) {
		p, err := dict.Get(ctx, "ada")
		require.NoError(t, err)
		assert.Equal(t, Person{Name: "Ada", Age: 36}, p)

		_, err = dict.Get(ctx, "zed")
		var knf *KeyNotFoundError
		require.ErrorAs(t, err, &knf)
		assert.Equal(t, "zed", knf.Key)

		_, ok, err := dict.TryGet(ctx, "zed")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("PutReplaces", func(t *testing.T) {
		require.NoError(t, dict.Put(ctx, "ada", Person{Name: "Ada", Age: 37}))
		p, err := dict.Get(ctx, "ada")
		require.NoError(t, err)
		assert.Equal(t, int32(37), p.Age)

		n, err := dict.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("GetMany", func(t *testing.T) {
		entries, err := dict.GetMany(ctx, "cy", "nobody", "ada")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "ada", entries[0].Key)
		assert.Equal(t, "cy", entries[1].Key)
	})

	t.Run("Move", func(t *testing.T) {
		before, err := dict.GetMany(ctx, "cy")
		require.NoError(t, err)
		require.NoError(t, dict.Move(ctx, "cy", "cyrus"))

		ok, err := dict.ContainsKey(ctx, "cy")
		require.NoError(t, err)
		assert.False(t, ok)
		after, err := dict.GetMany(ctx, "cyrus")
		require.NoError(t, err)
		require.Len(t, after, 1)
		assert.Equal(t, before[0].ID, after[0].ID)
		assert.Equal(t, before[0].Value, after[0].Value)

		err = dict.Move(ctx, "nobody", "somebody")
		assert.ErrorIs(t, err, ErrKeyNotFound)

		err = dict.Move(ctx, "cyrus", "bob")
		var kee *KeyExistsError
		require.ErrorAs(t, err, &kee)
		assert.ErrorIs(t, err, ErrInvalidArgument)

		require.NoError(t, dict.Move(ctx, "bob", "bob"))
	})

	t.Run("Remove", func(t *testing.T) {
		ok, err := dict.Remove(ctx, "cyrus")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = dict.Remove(ctx, "cyrus")
		require.NoError(t, err)
		assert.False(t, ok)

		keys, err := dict.Keys(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"ada", "bob"}, keys)
	})

	t.Run("NilValueRemovesKey", func(t *testing.T) {
		ptrs, err := GetOrCreateDictionary[int, *Person](ctx, db, "by-id")
		require.NoError(t, err)
		require.NoError(t, ptrs.Put(ctx, 1, &Person{Name: "One"}))
		require.NoError(t, ptrs.Put(ctx, 2, &Person{Name: "Two"}))
		require.NoError(t, ptrs.Put(ctx, 1, nil))

		ok, err := ptrs.ContainsKey(ctx, 1)
		require.NoError(t, err)
		assert.False(t, ok)

		all, err := ptrs.GetAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, 2, all[0].Key)
		assert.Equal(t, &Person{Name: "Two"}, all[0].Value)
	})

	t.Run("RemoveMany", func(t *testing.T) {
		nums, err := GetOrCreateDictionary[int64, string](ctx, db, "numbers")
		require.NoError(t, err)
		pairs := make(map[int64]string)
		keys := make([]int64, 0, 1200)
		for i := int64(0); i < 1200; i++ {
			pairs[i] = "n"
			keys = append(keys, i)
		}
		require.NoError(t, nums.PutMany(ctx, pairs))

		entries, err := nums.GetMany(ctx, keys...)
		require.NoError(t, err)
		assert.Len(t, entries, 1200, "lookups are chunked")

		n, err := nums.RemoveMany(ctx, keys[:700]...)
		require.NoError(t, err)
		assert.Equal(t, 700, n)
		count, err := nums.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(500), count)
	})

	t.Run("StructKeys", func(t *testing.T) {
		byOwner, err := GetOrCreateDictionary[Person, string](ctx, db, "by-owner")
		require.NoError(t, err)
		require.NoError(t, byOwner.Put(ctx, Person{Name: "Ada"}, "laptop"))
		v, err := byOwner.Get(ctx, Person{Name: "Ada"})
		require.NoError(t, err)
		assert.Equal(t, "laptop", v)

		ok, err := byOwner.ContainsKey(ctx, Person{Name: "Ada", Age: 1})
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
