package core

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	db := openFile(t, tempPath(t), ModeReadWrite, testTypes()...)

	const workers, perWorker = 8, 25

	g, gctx := errgroup.WithContext(ctx)
	handles := make([]*Bag[Person], workers)
	var mu sync.Mutex
	seen := make(map[RowID]bool)

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			bag, err := GetOrCreateBag[Person](gctx, db, "shared")
			if err != nil {
				return err
			}
			handles[w] = bag
			for i := 0; i < perWorker; i++ {
				id, err := bag.Add(gctx, Person{Name: fmt.Sprintf("w%d-%d", w, i)})
				if err != nil {
					return err
				}
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, h := range handles[1:] {
		assert.Same(t, handles[0], h)
	}
	assert.Len(t, seen, workers*perWorker, "row ids are unique")

	n, err := handles[0].Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perWorker), n)
}

func TestConcurrentDequeue(t *testing.T) {
	ctx := context.Background()
	db := openFile(t, tempPath(t), ModeReadWrite)

	q, err := GetOrCreateQueue[int](ctx, db, "work")
	require.NoError(t, err)
	items := make([]int, 200)
	for i := range items {
		items[i] = i
	}
	_, err = q.EnqueueMany(ctx, items...)
	require.NoError(t, err)

	var mu sync.Mutex
	var got []int
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < 6; w++ {
		g.Go(func() error {
			for {
				row, ok, err := q.TryDequeue(gctx)
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
				mu.Lock()
				got = append(got, row.Value)
				mu.Unlock()
			}
		})
	}
	require.NoError(t, g.Wait())
	assert.ElementsMatch(t, items, got, "every item is dequeued exactly once")
}

func TestConcurrentTypeMinting(t *testing.T) {
	ctx := context.Background()
	db := openFile(t, tempPath(t), ModeReadWrite, testTypes()...)

	bag, err := GetOrCreateBag[any](ctx, db, "mixed")
	require.NoError(t, err)

	values := []any{Person{Name: "p"}, Square{Side: 1}, []string{"x"}, map[string]int{"k": 1}, Green, int16(3)}
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < 4; w++ {
		g.Go(func() error {
			_, err := bag.AddMany(gctx, values...)
			return err
		})
	}
	require.NoError(t, g.Wait())

	all, err := bag.GetAllValues(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4*len(values))
}

func TestSessionsShareTypeIDs(t *testing.T) {
	ctx := context.Background()
	path := tempPath(t)
	a := openFile(t, path, ModeReadWrite, testTypes()...)
	b := openFile(t, path, ModeReadWrite, testTypes()...)

	bagA, err := GetOrCreateBag[any](ctx, a, "mixed")
	require.NoError(t, err)
	_, err = bagA.Add(ctx, []int{1})
	require.NoError(t, err)

	// b loaded its registry before a recorded []int.
	bagB, err := GetOrCreateBag[any](ctx, b, "mixed")
	require.NoError(t, err)
	_, err = bagB.Add(ctx, []int{2})
	require.NoError(t, err)

	values, err := bagB.GetAllValues(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{[]int{1}, []int{2}}, values)

	ta, err := a.types.TypeOf(reflect.TypeFor[[]int]())
	require.NoError(t, err)
	tb, err := b.types.TypeOf(reflect.TypeFor[[]int]())
	require.NoError(t, err)
	idA, ok, err := a.registry.ID(ta)
	require.NoError(t, err)
	require.True(t, ok)
	idB, ok, err := b.registry.ID(tb)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, idA, idB)

	t.Run("CollectionOfNewType", func(t *testing.T) {
		listsA, err := GetOrCreateDictionary[string, []float64](ctx, a, "lists")
		require.NoError(t, err)
		require.NoError(t, listsA.Put(ctx, "k", []float64{1.5}))

		listsB, err := GetOrCreateDictionary[string, []float64](ctx, b, "lists")
		require.NoError(t, err)
		v, err := listsB.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []float64{1.5}, v)
	})

	t.Run("SetLookupOfNewType", func(t *testing.T) {
		setA, err := GetOrCreateHashSet[any](ctx, a, "seen")
		require.NoError(t, err)
		_, err = setA.Add(ctx, []uint8{7})
		require.NoError(t, err)
		_, err = setA.Add(ctx, map[int]string{1: "one"})
		require.NoError(t, err)

		setB, err := GetOrCreateHashSet[any](ctx, b, "seen")
		require.NoError(t, err)
		ok, err := setB.Contains(ctx, map[int]string{1: "one"})
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
