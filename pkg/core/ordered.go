package core

import (
	"cmp"
	"context"
	"database/sql"
	"reflect"
)

// OrderedCollection stores values under a numeric key and reads them back
// sorted by key. Keys need not be unique.
type OrderedCollection[K cmp.Ordered, V any] struct {
	*collection
}

func orderedSpec[K cmp.Ordered, V any]() collectionSpec {
	return collectionSpec{
		kind:     KindOrderedCollection,
		key:      reflect.TypeFor[K](),
		value:    reflect.TypeFor[V](),
		keyCheck: numericKeyCheck(KindOrderedCollection),
	}
}

func newOrderedCollection[K cmp.Ordered, V any](c *collection) *OrderedCollection[K, V] {
	return &OrderedCollection[K, V]{collection: c}
}

// GetOrCreateOrderedCollection opens the collection called name, creating it if needed.
func GetOrCreateOrderedCollection[K cmp.Ordered, V any](ctx context.Context, d *Database, name string) (*OrderedCollection[K, V], error) {
	return openCollection(ctx, d, name, openOrCreate, orderedSpec[K, V](), newOrderedCollection[K, V])
}

// CreateOrderedCollection creates a new collection; the name must be unused.
func CreateOrderedCollection[K cmp.Ordered, V any](ctx context.Context, d *Database, name string) (*OrderedCollection[K, V], error) {
	return openCollection(ctx, d, name, openCreate, orderedSpec[K, V](), newOrderedCollection[K, V])
}

// GetOrderedCollection opens an existing collection.
func GetOrderedCollection[K cmp.Ordered, V any](ctx context.Context, d *Database, name string) (*OrderedCollection[K, V], error) {
	return openCollection(ctx, d, name, openExisting, orderedSpec[K, V](), newOrderedCollection[K, V])
}

// numericKeyCheck rejects key types SQLite cannot order natively.
func numericKeyCheck(kind Kind) func(reflect.Type) error {
	return func(rt reflect.Type) error {
		if isNativeType(rt) {
			switch rt.Kind() {
			case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
				reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
				reflect.Float32, reflect.Float64:
				return nil
			}
		}
		return &NotSupportedError{
			Type:   rt.String(),
			Reason: kind.String() + " keys must be built-in fixed-width numeric types",
		}
	}
}

// Put stores v under k and returns its row id.
func (oc *OrderedCollection[K, V]) Put(ctx context.Context, k K, v V) (RowID, error) {
	ids, err := oc.PutMany(ctx, KeyValue[K, V]{Key: k, Value: v})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// PutMany stores all pairs in one transaction and returns their row ids in order.
func (oc *OrderedCollection[K, V]) PutMany(ctx context.Context, pairs ...KeyValue[K, V]) ([]RowID, error) {
	if err := oc.checkWrite(); err != nil {
		return nil, err
	}
	type bound struct{ k, v any }
	args := make([]bound, len(pairs))
	for i, p := range pairs {
		// x != x only for NaN
		if p.Key != p.Key {
			return nil, &ArgumentError{Msg: "key cannot be NaN"}
		}
		kb, err := oc.bindKey(ctx, reflectOf(p.Key))
		if err != nil {
			return nil, err
		}
		vb, err := oc.bindValue(ctx, reflectOf(p.Value))
		if err != nil {
			return nil, err
		}
		args[i] = bound{kb, vb}
	}

	ids := make([]RowID, 0, len(args))
	err := oc.db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+oc.table+` (key, value) VALUES (?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, a := range args {
			res, err := stmt.ExecContext(ctx, a.k, a.v)
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
		return nil, wrapError(oc.op("put"), err)
	}
	return ids, nil
}

// GetRange returns the entries with keys in [min, max] sorted by key, then row id.
func (oc *OrderedCollection[K, V]) GetRange(ctx context.Context, min, max K) ([]Entry[K, V], error) {
	if err := oc.checkRead(); err != nil {
		return nil, err
	}
	if max < min {
		return nil, nil
	}
	lo, err := oc.bindKey(ctx, reflectOf(min))
	if err != nil {
		return nil, err
	}
	hi, err := oc.bindKey(ctx, reflectOf(max))
	if err != nil {
		return nil, err
	}
	return selectEntries[K, V](ctx, oc.collection,
		`SELECT row_id, key, value FROM `+oc.table+` WHERE key >= ? AND key <= ? ORDER BY key, row_id`, lo, hi)
}

// GetValues is GetRange without keys and row ids.
func (oc *OrderedCollection[K, V]) GetValues(ctx context.Context, min, max K) ([]V, error) {
	entries, err := oc.GetRange(ctx, min, max)
	if err != nil {
		return nil, err
	}
	out := make([]V, len(entries))
	for i, e := range entries {
		out[i] = e.Value
	}
	return out, nil
}

// GetValue returns the entry with the given row id.
func (oc *OrderedCollection[K, V]) GetValue(ctx context.Context, id RowID) (Entry[K, V], error) {
	if err := oc.checkRead(); err != nil {
		return Entry[K, V]{}, err
	}
	raw, err := oc.query(ctx, oc.db.db, `SELECT row_id, key, value FROM `+oc.table+` WHERE row_id = ?`, int64(id))
	if err != nil {
		return Entry[K, V]{}, wrapError(oc.op("get"), err)
	}
	if len(raw) == 0 {
		return Entry[K, V]{}, &KeyNotFoundError{Collection: oc.info.Name, Key: id}
	}
	k, err := oc.decodeKey(raw[0][1])
	if err != nil {
		return Entry[K, V]{}, err
	}
	v, err := oc.decodeValue(raw[0][2])
	if err != nil {
		return Entry[K, V]{}, err
	}
	return Entry[K, V]{ID: id, Key: valueAs[K](k), Value: valueAs[V](v)}, nil
}

// Remove deletes the row with the given id and reports whether it existed.
func (oc *OrderedCollection[K, V]) Remove(ctx context.Context, id RowID) (bool, error) {
	if err := oc.checkWrite(); err != nil {
		return false, err
	}
	return deleteByID(ctx, oc.collection, id)
}

// RemoveRange deletes every row with a key in [min, max] and returns how
// many were removed.
func (oc *OrderedCollection[K, V]) RemoveRange(ctx context.Context, min, max K) (int, error) {
	if err := oc.checkWrite(); err != nil {
		return 0, err
	}
	if max < min {
		return 0, nil
	}
	lo, err := oc.bindKey(ctx, reflectOf(min))
	if err != nil {
		return 0, err
	}
	hi, err := oc.bindKey(ctx, reflectOf(max))
	if err != nil {
		return 0, err
	}
	res, err := oc.db.db.ExecContext(ctx, `DELETE FROM `+oc.table+` WHERE key >= ? AND key <= ?`, lo, hi)
	if err != nil {
		return 0, wrapError(oc.op("remove"), err)
	}
	n, err := res.RowsAffected()
	return int(n), wrapError(oc.op("remove"), err)
}

// GetAll returns every entry sorted by key, then row id.
func (oc *OrderedCollection[K, V]) GetAll(ctx context.Context) ([]Entry[K, V], error) {
	if err := oc.checkRead(); err != nil {
		return nil, err
	}
	return selectEntries[K, V](ctx, oc.collection, `SELECT row_id, key, value FROM `+oc.table+` ORDER BY key, row_id`)
}
