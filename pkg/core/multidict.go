package core

import (
	"context"
	"database/sql"
	"reflect"
	"sort"
)

// MultiValueDictionary maps each key to any number of values. Every value
// has its own row id.
type MultiValueDictionary[K comparable, V any] struct {
	*collection
}

func multiDictSpec[K comparable, V any]() collectionSpec {
	return collectionSpec{kind: KindMultiValueDictionary, key: reflect.TypeFor[K](), value: reflect.TypeFor[V]()}
}

func newMultiDict[K comparable, V any](c *collection) *MultiValueDictionary[K, V] {
	return &MultiValueDictionary[K, V]{collection: c}
}

// GetOrCreateMultiValueDictionary opens the dictionary called name, creating it if needed.
func GetOrCreateMultiValueDictionary[K comparable, V any](ctx context.Context, d *Database, name string) (*MultiValueDictionary[K, V], error) {
	return openCollection(ctx, d, name, openOrCreate, multiDictSpec[K, V](), newMultiDict[K, V])
}

// CreateMultiValueDictionary creates a new dictionary; the name must be unused.
func CreateMultiValueDictionary[K comparable, V any](ctx context.Context, d *Database, name string) (*MultiValueDictionary[K, V], error) {
	return openCollection(ctx, d, name, openCreate, multiDictSpec[K, V](), newMultiDict[K, V])
}

// GetMultiValueDictionary opens an existing dictionary.
func GetMultiValueDictionary[K comparable, V any](ctx context.Context, d *Database, name string) (*MultiValueDictionary[K, V], error) {
	return openCollection(ctx, d, name, openExisting, multiDictSpec[K, V](), newMultiDict[K, V])
}

// KeyValue is one key/value pair to store
type KeyValue[K, V any] struct {
	Key   K
	Value V
}

// Put adds v under k and returns the new row id.
func (m *MultiValueDictionary[K, V]) Put(ctx context.Context, k K, v V) (RowID, error) {
	ids, err := m.PutMany(ctx, KeyValue[K, V]{Key: k, Value: v})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// PutMany adds all pairs in one transaction and returns their row ids in order.
func (m *MultiValueDictionary[K, V]) PutMany(ctx context.Context, pairs ...KeyValue[K, V]) ([]RowID, error) {
	if err := m.checkWrite(); err != nil {
		return nil, err
	}
	type bound struct{ k, v any }
	args := make([]bound, len(pairs))
	for i, p := range pairs {
		rk := reflectOf(p.Key)
		if isNilValue(rk) {
			return nil, &ArgumentError{Msg: "dictionary key", Err: ErrNilValue}
		}
		kb, err := m.bindKey(ctx, rk)
		if err != nil {
			return nil, err
		}
		vb, err := m.bindValue(ctx, reflectOf(p.Value))
		if err != nil {
			return nil, err
		}
		args[i] = bound{kb, vb}
	}

	ids := make([]RowID, 0, len(args))
	err := m.db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+m.table+` (key, value) VALUES (?, ?)`)
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
		return nil, wrapError(m.op("put"), err)
	}
	return ids, nil
}

// GetValues returns the rows stored under k in insertion order.
func (m *MultiValueDictionary[K, V]) GetValues(ctx context.Context, k K) ([]Row[V], error) {
	if err := m.checkRead(); err != nil {
		return nil, err
	}
	kb, ok, err := m.lookupKey(ctx, reflectOf(k))
	if err != nil || !ok {
		return nil, err
	}
	return selectRows[V](ctx, m.collection, `SELECT row_id, value FROM `+m.table+` WHERE key = ? ORDER BY row_id`, kb)
}

// GetValuesMany returns the entries stored under any of keys in insertion order.
func (m *MultiValueDictionary[K, V]) GetValuesMany(ctx context.Context, keys ...K) ([]Entry[K, V], error) {
	if err := m.checkRead(); err != nil {
		return nil, err
	}
	bound := make([]any, 0, len(keys))
	for _, k := range keys {
		kb, ok, err := m.lookupKey(ctx, reflectOf(k))
		if err != nil {
			return nil, err
		}
		if ok {
			bound = append(bound, kb)
		}
	}
	var out []Entry[K, V]
	for start := 0; start < len(bound); start += maxBatchParams {
		chunk := bound[start:min(start+maxBatchParams, len(bound))]
		entries, err := selectEntries[K, V](ctx, m.collection,
			`SELECT row_id, key, value FROM `+m.table+` WHERE key IN (`+placeholders(len(chunk))+`)`, chunk...)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetValue returns the entry with the given row id.
func (m *MultiValueDictionary[K, V]) GetValue(ctx context.Context, id RowID) (Entry[K, V], error) {
	if err := m.checkRead(); err != nil {
		return Entry[K, V]{}, err
	}
	raw, err := m.query(ctx, m.db.db, `SELECT row_id, key, value FROM `+m.table+` WHERE row_id = ?`, int64(id))
	if err != nil {
		return Entry[K, V]{}, wrapError(m.op("get"), err)
	}
	if len(raw) == 0 {
		return Entry[K, V]{}, &KeyNotFoundError{Collection: m.info.Name, Key: id}
	}
	k, err := m.decodeKey(raw[0][1])
	if err != nil {
		return Entry[K, V]{}, err
	}
	v, err := m.decodeValue(raw[0][2])
	if err != nil {
		return Entry[K, V]{}, err
	}
	return Entry[K, V]{ID: id, Key: valueAs[K](k), Value: valueAs[V](v)}, nil
}

// ContainsKey reports whether any value is stored under k.
func (m *MultiValueDictionary[K, V]) ContainsKey(ctx context.Context, k K) (bool, error) {
	if err := m.checkRead(); err != nil {
		return false, err
	}
	kb, ok, err := m.lookupKey(ctx, reflectOf(k))
	if err != nil || !ok {
		return false, err
	}
	var exists bool
	err = m.db.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM `+m.table+` WHERE key = ?)`, kb).Scan(&exists)
	if err != nil {
		return false, wrapError(m.op("contains"), err)
	}
	return exists, nil
}

// RemoveAll deletes every value under k and returns how many were removed.
func (m *MultiValueDictionary[K, V]) RemoveAll(ctx context.Context, k K) (int, error) {
	if err := m.checkWrite(); err != nil {
		return 0, err
	}
	kb, ok, err := m.lookupKey(ctx, reflectOf(k))
	if err != nil || !ok {
		return 0, err
	}
	res, err := m.db.db.ExecContext(ctx, `DELETE FROM `+m.table+` WHERE key = ?`, kb)
	if err != nil {
		return 0, wrapError(m.op("remove"), err)
	}
	n, err := res.RowsAffected()
	return int(n), wrapError(m.op("remove"), err)
}

// Remove deletes the row with the given id and reports whether it existed.
func (m *MultiValueDictionary[K, V]) Remove(ctx context.Context, id RowID) (bool, error) {
	if err := m.checkWrite(); err != nil {
		return false, err
	}
	return deleteByID(ctx, m.collection, id)
}

// GetAll returns every entry in insertion order.
func (m *MultiValueDictionary[K, V]) GetAll(ctx context.Context) ([]Entry[K, V], error) {
	if err := m.checkRead(); err != nil {
		return nil, err
	}
	return selectEntries[K, V](ctx, m.collection, `SELECT row_id, key, value FROM `+m.table+` ORDER BY row_id`)
}
