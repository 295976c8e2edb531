package sqstash

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/liliang-cn/sqstash/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Task struct {
	Title    string
	Priority int32
}

func taskType() *Type {
	return schema.Struct[Task]("acme.todo", "Task").
		Field("Title", 1).
		Field("Priority", 2).
		MustBuild()
}

func TestCreateInMemory(t *testing.T) {
	ctx := context.Background()
	db, err := CreateInMemory(ctx, taskType())
	require.NoError(t, err)
	defer db.Close()

	queue, err := GetOrCreateQueue[Task](ctx, db, "inbox")
	require.NoError(t, err)
	id, err := queue.Enqueue(ctx, Task{Title: "write", Priority: 1})
	require.NoError(t, err)

	row, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, Row[Task]{ID: id, Value: Task{Title: "write", Priority: 1}}, row)

	_, err = queue.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrQueueEmpty)
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestOpenOrCreateThenOpenRead(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "stash.db")

	db, err := OpenOrCreate(ctx, path, taskType())
	require.NoError(t, err)
	tasks, err := GetOrCreateDictionary[string, Task](ctx, db, "tasks")
	require.NoError(t, err)
	require.NoError(t, tasks.Put(ctx, "t1", Task{Title: "ship", Priority: 2}))
	spans, err := GetOrCreateIntervalCollection[int64, string](ctx, db, "spans")
	require.NoError(t, err)
	_, err = spans.Put(ctx, Interval[int64]{Min: 0, Max: 9}, "first")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	ro, err := OpenRead(ctx, path, taskType())
	require.NoError(t, err)
	defer ro.Close()
	assert.True(t, ro.ReadOnly())

	tasks, err = GetOrCreateDictionary[string, Task](ctx, ro, "tasks")
	require.NoError(t, err)
	got, err := tasks.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, Task{Title: "ship", Priority: 2}, got)

	err = tasks.Put(ctx, "t2", Task{Title: "nope"})
	assert.ErrorIs(t, err, ErrReadOnly)

	info, err := ro.Collection(ctx, "spans")
	require.NoError(t, err)
	assert.Equal(t, "spans", info.Name)
}

func TestOpenReadMissingFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "missing.db")

	_, err := OpenRead(ctx, path)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), "failed to open "+path)

	var storeErr *StoreError
	assert.ErrorAs(t, err, &storeErr)
}

func TestOpenInvalidMode(t *testing.T) {
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "stash.db"))
	cfg.Mode = "sideways"

	_, err := Open(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	var argErr *ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "config", argErr.Msg)
}

func TestFacadeErrorTypes(t *testing.T) {
	ctx := context.Background()
	db, err := CreateInMemory(ctx)
	require.NoError(t, err)
	defer db.Close()

	counts, err := GetOrCreateDictionary[string, int64](ctx, db, "counts")
	require.NoError(t, err)

	_, err = counts.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	var notFound *KeyNotFoundError
	assert.ErrorAs(t, err, &notFound)

	_, err = GetOrCreateBag[int64](ctx, db, "counts")
	var wrongKind *WrongCollectionTypeError
	assert.ErrorAs(t, err, &wrongKind)

	_, err = GetOrCreateBag[Task](ctx, db, "tasks")
	assert.ErrorIs(t, err, ErrUnregisteredType)

	require.NoError(t, db.Close())
	_, err = counts.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrDatabaseClosed)
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	db, err := CreateInMemory(ctx, taskType())
	require.NoError(t, err)
	defer db.Close()

	created, err := CreateBag[Task](ctx, db, "backlog")
	require.NoError(t, err)
	_, err = CreateBag[Task](ctx, db, "backlog")
	var inUse *CollectionNameInUseError
	assert.ErrorAs(t, err, &inUse)

	got, err := GetBag[Task](ctx, db, "backlog")
	require.NoError(t, err)
	assert.Same(t, created, got)

	_, err = GetQueue[Task](ctx, db, "missing")
	var noSuch *NoSuchCollectionError
	assert.ErrorAs(t, err, &noSuch)

	points, err := CreatePoint2DCollection[string](ctx, db, "pins")
	require.NoError(t, err)
	_, err = points.Put(ctx, Point{X: 1, Y: 2}, "home")
	require.NoError(t, err)
	again, err := GetPoint2DCollection[string](ctx, db, "pins")
	require.NoError(t, err)
	values, err := again.GetValues(ctx, Point{X: 1, Y: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"home"}, values)

	_, err = GetOrderedCollection[int64, string](ctx, db, "pins")
	var wrongKind *WrongCollectionTypeError
	assert.ErrorAs(t, err, &wrongKind)
}
