package core

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
)

// Queue is a FIFO of values. Order follows row ids.
type Queue[V any] struct {
	*collection
}

func queueSpec[V any]() collectionSpec {
	return collectionSpec{kind: KindQueue, value: reflect.TypeFor[V]()}
}

func newQueue[V any](c *collection) *Queue[V] { return &Queue[V]{collection: c} }

// GetOrCreateQueue opens the queue called name, creating it if needed.
func GetOrCreateQueue[V any](ctx context.Context, d *Database, name string) (*Queue[V], error) {
	return openCollection(ctx, d, name, openOrCreate, queueSpec[V](), newQueue[V])
}

// CreateQueue creates a new queue; the name must be unused.
func CreateQueue[V any](ctx context.Context, d *Database, name string) (*Queue[V], error) {
	return openCollection(ctx, d, name, openCreate, queueSpec[V](), newQueue[V])
}

// GetQueue opens an existing queue.
func GetQueue[V any](ctx context.Context, d *Database, name string) (*Queue[V], error) {
	return openCollection(ctx, d, name, openExisting, queueSpec[V](), newQueue[V])
}

// Enqueue appends v to the tail.
func (q *Queue[V]) Enqueue(ctx context.Context, v V) (RowID, error) {
	ids, err := q.EnqueueMany(ctx, v)
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// EnqueueMany appends the values in order within one transaction.
func (q *Queue[V]) EnqueueMany(ctx context.Context, values ...V) ([]RowID, error) {
	if err := q.checkWrite(); err != nil {
		return nil, err
	}
	args := make([]any, len(values))
	for i, v := range values {
		a, err := q.bindValue(ctx, reflectOf(v))
		if err != nil {
			return nil, err
		}
		args[i] = a
	}
	return insertValues(ctx, q.collection, args)
}

// Peek returns the head without removing it. It fails with ErrQueueEmpty on
// an empty queue.
func (q *Queue[V]) Peek(ctx context.Context) (Row[V], error) {
	if err := q.checkRead(); err != nil {
		return Row[V]{}, err
	}
	raw, err := q.query(ctx, q.db.db, `SELECT row_id, value FROM `+q.table+` ORDER BY row_id LIMIT 1`)
	if err != nil {
		return Row[V]{}, wrapError(q.op("peek"), err)
	}
	if len(raw) == 0 {
		return Row[V]{}, ErrQueueEmpty
	}
	return q.decodeRow(raw[0])
}

// TryPeek is Peek reporting an empty queue as ok == false.
func (q *Queue[V]) TryPeek(ctx context.Context) (Row[V], bool, error) {
	return tryQueue(q.Peek(ctx))
}

// Dequeue removes and returns the head. It fails with ErrQueueEmpty on an
// empty queue.
func (q *Queue[V]) Dequeue(ctx context.Context) (Row[V], error) {
	if err := q.checkWrite(); err != nil {
		return Row[V]{}, err
	}
	var out Row[V]
	err := q.db.withTx(ctx, func(tx *sql.Tx) error {
		raw, err := q.query(ctx, tx, `SELECT row_id, value FROM `+q.table+` ORDER BY row_id LIMIT 1`)
		if err != nil {
			return wrapError(q.op("dequeue"), err)
		}
		if len(raw) == 0 {
			return ErrQueueEmpty
		}
		if out, err = q.decodeRow(raw[0]); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+q.table+` WHERE row_id = ?`, int64(out.ID)); err != nil {
			return wrapError(q.op("dequeue"), err)
		}
		return nil
	})
	if err != nil {
		return Row[V]{}, err
	}
	return out, nil
}

// TryDequeue is Dequeue reporting an empty queue as ok == false.
func (q *Queue[V]) TryDequeue(ctx context.Context) (Row[V], bool, error) {
	return tryQueue(q.Dequeue(ctx))
}

// GetAll returns the queued rows from head to tail.
func (q *Queue[V]) GetAll(ctx context.Context) ([]Row[V], error) {
	if err := q.checkRead(); err != nil {
		return nil, err
	}
	return selectRows[V](ctx, q.collection, `SELECT row_id, value FROM `+q.table+` ORDER BY row_id`)
}

func (q *Queue[V]) decodeRow(r []any) (Row[V], error) {
	v, err := q.decodeValue(r[1])
	if err != nil {
		return Row[V]{}, err
	}
	return Row[V]{ID: asRowID(r[0]), Value: valueAs[V](v)}, nil
}

func tryQueue[V any](row Row[V], err error) (Row[V], bool, error) {
	if errors.Is(err, ErrQueueEmpty) {
		return Row[V]{}, false, nil
	}
	if err != nil {
		return Row[V]{}, false, err
	}
	return row, true, nil
}
