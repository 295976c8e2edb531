package core

import (
	"context"
	"database/sql"
	"reflect"
)

// Bag is an unordered multiset of values addressed by row id
type Bag[V any] struct {
	*collection
}

func bagSpec[V any]() collectionSpec {
	return collectionSpec{kind: KindBag, value: reflect.TypeFor[V]()}
}

func newBag[V any](c *collection) *Bag[V] { return &Bag[V]{collection: c} }

// GetOrCreateBag opens the bag called name, creating it if needed.
func GetOrCreateBag[V any](ctx context.Context, d *Database, name string) (*Bag[V], error) {
	return openCollection(ctx, d, name, openOrCreate, bagSpec[V](), newBag[V])
}

// CreateBag creates a new bag; the name must be unused.
func CreateBag[V any](ctx context.Context, d *Database, name string) (*Bag[V], error) {
	return openCollection(ctx, d, name, openCreate, bagSpec[V](), newBag[V])
}

// GetBag opens an existing bag.
func GetBag[V any](ctx context.Context, d *Database, name string) (*Bag[V], error) {
	return openCollection(ctx, d, name, openExisting, bagSpec[V](), newBag[V])
}

// Add stores v and returns its row id.
func (b *Bag[V]) Add(ctx context.Context, v V) (RowID, error) {
	ids, err := b.AddMany(ctx, v)
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// AddMany stores all values in one transaction and returns their ids in order.
func (b *Bag[V]) AddMany(ctx context.Context, values ...V) ([]RowID, error) {
	if err := b.checkWrite(); err != nil {
		return nil, err
	}
	args := make([]any, len(values))
	for i, v := range values {
		a, err := b.bindValue(ctx, reflectOf(v))
		if err != nil {
			return nil, err
		}
		args[i] = a
	}
	return insertValues(ctx, b.collection, args)
}

// insertValues appends one row per bound value to a bag or queue table.
func insertValues(ctx context.Context, c *collection, args []any) ([]RowID, error) {
	ids := make([]RowID, 0, len(args))
	err := c.db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+c.table+` (value) VALUES (?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, a := range args {
			res, err := stmt.ExecContext(ctx, a)
			if err != nil {
				return err
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			ids = append(ids, RowID(id))
		}
		return nil
	})
	if err != nil {
		return nil, wrapError(c.op("add"), err)
	}
	return ids, nil
}

// GetAll returns every row in id order. Rows whose value cannot be read in
// this session are skipped.
func (b *Bag[V]) GetAll(ctx context.Context) ([]Row[V], error) {
	if err := b.checkRead(); err != nil {
		return nil, err
	}
	return selectRows[V](ctx, b.collection, `SELECT row_id, value FROM `+b.table+` ORDER BY row_id`)
}

// GetAllValues is GetAll without row ids.
func (b *Bag[V]) GetAllValues(ctx context.Context) ([]V, error) {
	rows, err := b.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return rowValues(rows), nil
}

// GetValue returns the value stored under id.
func (b *Bag[V]) GetValue(ctx context.Context, id RowID) (V, error) {
	var zero V
	if err := b.checkRead(); err != nil {
		return zero, err
	}
	return getByID[V](ctx, b.collection, id)
}

// GetValues returns the rows with ids in [minID, maxID].
func (b *Bag[V]) GetValues(ctx context.Context, minID, maxID RowID) ([]Row[V], error) {
	if err := b.checkRead(); err != nil {
		return nil, err
	}
	return selectRows[V](ctx, b.collection,
		`SELECT row_id, value FROM `+b.table+` WHERE row_id >= ? AND row_id <= ? ORDER BY row_id`, int64(minID), int64(maxID))
}

// Remove deletes the row with the given id and reports whether it existed.
func (b *Bag[V]) Remove(ctx context.Context, id RowID) (bool, error) {
	if err := b.checkWrite(); err != nil {
		return false, err
	}
	return deleteByID(ctx, b.collection, id)
}

// selectRows runs a query returning (row_id, value) and decodes the values,
// skipping rows that are not visible through this handle.
func selectRows[V any](ctx context.Context, c *collection, query string, args ...any) ([]Row[V], error) {
	raw, err := c.query(ctx, c.db.db, query, args...)
	if err != nil {
		return nil, wrapError(c.op("select"), err)
	}
	out := make([]Row[V], 0, len(raw))
	for _, r := range raw {
		v, err := c.decodeValue(r[1])
		if err != nil {
			if skippable(err) {
				continue
			}
			return nil, err
		}
		out = append(out, Row[V]{ID: asRowID(r[0]), Value: valueAs[V](v)})
	}
	return out, nil
}

func getByID[V any](ctx context.Context, c *collection, id RowID) (V, error) {
	var zero V
	raw, err := c.query(ctx, c.db.db, `SELECT value FROM `+c.table+` WHERE row_id = ?`, int64(id))
	if err != nil {
		return zero, wrapError(c.op("get"), err)
	}
	if len(raw) == 0 {
		return zero, &KeyNotFoundError{Collection: c.info.Name, Key: id}
	}
	v, err := c.decodeValue(raw[0][0])
	if err != nil {
		return zero, err
	}
	return valueAs[V](v), nil
}

func deleteByID(ctx context.Context, c *collection, id RowID) (bool, error) {
	res, err := c.db.db.ExecContext(ctx, `DELETE FROM `+c.table+` WHERE row_id = ?`, int64(id))
	if err != nil {
		return false, wrapError(c.op("remove"), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapError(c.op("remove"), err)
	}
	return n > 0, nil
}

func rowValues[V any](rows []Row[V]) []V {
	out := make([]V, len(rows))
	for i, r := range rows {
		out[i] = r.Value
	}
	return out
}
