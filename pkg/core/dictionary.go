package core

import (
	"context"
	"database/sql"
	"reflect"
	"sort"
)

// Dictionary maps unique keys to values. Putting nil removes the key.
type Dictionary[K comparable, V any] struct {
	*collection
}

func dictionarySpec[K comparable, V any]() collectionSpec {
	return collectionSpec{kind: KindDictionary, key: reflect.TypeFor[K](), value: reflect.TypeFor[V]()}
}

func newDictionary[K comparable, V any](c *collection) *Dictionary[K, V] {
	return &Dictionary[K, V]{collection: c}
}

// GetOrCreateDictionary opens the dictionary called name, creating it if needed.
func GetOrCreateDictionary[K comparable, V any](ctx context.Context, d *Database, name string) (*Dictionary[K, V], error) {
	return openCollection(ctx, d, name, openOrCreate, dictionarySpec[K, V](), newDictionary[K, V])
}

// CreateDictionary creates a new dictionary; the name must be unused.
func CreateDictionary[K comparable, V any](ctx context.Context, d *Database, name string) (*Dictionary[K, V], error) {
	return openCollection(ctx, d, name, openCreate, dictionarySpec[K, V](), newDictionary[K, V])
}

// GetDictionary opens an existing dictionary.
func GetDictionary[K comparable, V any](ctx context.Context, d *Database, name string) (*Dictionary[K, V], error) {
	return openCollection(ctx, d, name, openExisting, dictionarySpec[K, V](), newDictionary[K, V])
}

type boundPair struct {
	key   any
	value any
	del   bool
}

func (m *Dictionary[K, V]) bindPair(ctx context.Context, k K, v V) (boundPair, error) {
	rk := reflectOf(k)
	if isNilValue(rk) {
		return boundPair{}, &ArgumentError{Msg: "dictionary key", Err: ErrNilValue}
	}
	kb, err := m.bindKey(ctx, rk)
	if err != nil {
		return boundPair{}, err
	}
	rv := reflectOf(v)
	if isNilValue(rv) {
		return boundPair{key: kb, del: true}, nil
	}
	vb, err := m.bindValue(ctx, rv)
	if err != nil {
		return boundPair{}, err
	}
	return boundPair{key: kb, value: vb}, nil
}

// Put sets the value of k, replacing any previous value. A nil value removes k.
func (m *Dictionary[K, V]) Put(ctx context.Context, k K, v V) error {
	if err := m.checkWrite(); err != nil {
		return err
	}
	p, err := m.bindPair(ctx, k, v)
	if err != nil {
		return err
	}
	return m.db.withTx(ctx, func(tx *sql.Tx) error {
		return wrapError(m.op("put"), m.apply(ctx, tx, p))
	})
}

// PutMany applies all pairs in one transaction.
func (m *Dictionary[K, V]) PutMany(ctx context.Context, pairs map[K]V) error {
	if err := m.checkWrite(); err != nil {
		return err
	}
	bound := make([]boundPair, 0, len(pairs))
	for k, v := range pairs {
		p, err := m.bindPair(ctx, k, v)
		if err != nil {
			return err
		}
		bound = append(bound, p)
	}
	return m.db.withTx(ctx, func(tx *sql.Tx) error {
		for _, p := range bound {
			if err := m.apply(ctx, tx, p); err != nil {
				return wrapError(m.op("put"), err)
			}
		}
		return nil
	})
}

func (m *Dictionary[K, V]) apply(ctx context.Context, tx *sql.Tx, p boundPair) error {
	if p.del {
		_, err := tx.ExecContext(ctx, `DELETE FROM `+m.table+` WHERE key = ?`, p.key)
		return err
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO `+m.table+` (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, p.key, p.value)
	return err
}

// Get returns the value of k or a *KeyNotFoundError.
func (m *Dictionary[K, V]) Get(ctx context.Context, k K) (V, error) {
	v, ok, err := m.TryGet(ctx, k)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, &KeyNotFoundError{Collection: m.info.Name, Key: k}
	}
	return v, nil
}

// TryGet returns the value of k and whether it was present.
func (m *Dictionary[K, V]) TryGet(ctx context.Context, k K) (V, bool, error) {
	var zero V
	if err := m.checkRead(); err != nil {
		return zero, false, err
	}
	kb, ok, err := m.lookupKey(ctx, reflectOf(k))
	if err != nil || !ok {
		return zero, false, err
	}
	raw, err := m.query(ctx, m.db.db, `SELECT value FROM `+m.table+` WHERE key = ?`, kb)
	if err != nil {
		return zero, false, wrapError(m.op("get"), err)
	}
	if len(raw) == 0 {
		return zero, false, nil
	}
	v, err := m.decodeValue(raw[0][0])
	if err != nil {
		return zero, false, err
	}
	return valueAs[V](v), true, nil
}

// ContainsKey reports whether k is present.
func (m *Dictionary[K, V]) ContainsKey(ctx context.Context, k K) (bool, error) {
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

// GetAll returns every entry in insertion order.
func (m *Dictionary[K, V]) GetAll(ctx context.Context) ([]Entry[K, V], error) {
	if err := m.checkRead(); err != nil {
		return nil, err
	}
	return selectEntries[K, V](ctx, m.collection, `SELECT row_id, key, value FROM `+m.table+` ORDER BY row_id`)
}

// GetMany returns the entries for the given keys that are present, in
// insertion order.
func (m *Dictionary[K, V]) GetMany(ctx context.Context, keys ...K) ([]Entry[K, V], error) {
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

// Keys returns every key in insertion order.
func (m *Dictionary[K, V]) Keys(ctx context.Context) ([]K, error) {
	if err := m.checkRead(); err != nil {
		return nil, err
	}
	raw, err := m.query(ctx, m.db.db, `SELECT key FROM `+m.table+` ORDER BY row_id`)
	if err != nil {
		return nil, wrapError(m.op("keys"), err)
	}
	out := make([]K, 0, len(raw))
	for _, r := range raw {
		k, err := m.decodeKey(r[0])
		if err != nil {
			if skippable(err) {
				continue
			}
			return nil, err
		}
		out = append(out, valueAs[K](k))
	}
	return out, nil
}

// Move renames from to to, keeping the value and row id. It fails with a
// *KeyNotFoundError if from is absent and a *KeyExistsError if to is taken.
func (m *Dictionary[K, V]) Move(ctx context.Context, from, to K) error {
	if err := m.checkWrite(); err != nil {
		return err
	}
	fb, ok, err := m.lookupKey(ctx, reflectOf(from))
	if err != nil {
		return err
	}
	if !ok {
		return &KeyNotFoundError{Collection: m.info.Name, Key: from}
	}
	rt := reflectOf(to)
	if isNilValue(rt) {
		return &ArgumentError{Msg: "dictionary key", Err: ErrNilValue}
	}
	tb, err := m.bindKey(ctx, rt)
	if err != nil {
		return err
	}

	return m.db.withTx(ctx, func(tx *sql.Tx) error {
		var srcExists, dstExists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM `+m.table+` WHERE key = ?)`, fb).Scan(&srcExists); err != nil {
			return wrapError(m.op("move"), err)
		}
		if !srcExists {
			return &KeyNotFoundError{Collection: m.info.Name, Key: from}
		}
		if boundEqual(fb, tb) {
			return nil
		}
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM `+m.table+` WHERE key = ?)`, tb).Scan(&dstExists); err != nil {
			return wrapError(m.op("move"), err)
		}
		if dstExists {
			return &KeyExistsError{Collection: m.info.Name, Key: to}
		}
		_, err := tx.ExecContext(ctx, `UPDATE `+m.table+` SET key = ? WHERE key = ?`, tb, fb)
		return wrapError(m.op("move"), err)
	})
}

// Remove deletes k and reports whether it was present.
func (m *Dictionary[K, V]) Remove(ctx context.Context, k K) (bool, error) {
	n, err := m.RemoveMany(ctx, k)
	return n > 0, err
}

// RemoveMany deletes the given keys in one transaction and returns how many
// were present.
func (m *Dictionary[K, V]) RemoveMany(ctx context.Context, keys ...K) (int, error) {
	if err := m.checkWrite(); err != nil {
		return 0, err
	}
	bound := make([]any, 0, len(keys))
	for _, k := range keys {
		kb, ok, err := m.lookupKey(ctx, reflectOf(k))
		if err != nil {
			return 0, err
		}
		if ok {
			bound = append(bound, kb)
		}
	}
	removed := 0
	err := m.db.withTx(ctx, func(tx *sql.Tx) error {
		for _, kb := range bound {
			res, err := tx.ExecContext(ctx, `DELETE FROM `+m.table+` WHERE key = ?`, kb)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			removed += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, wrapError(m.op("remove"), err)
	}
	return removed, nil
}

// selectEntries runs a query returning (row_id, key, value), skipping rows
// that are not visible through this handle.
func selectEntries[K, V any](ctx context.Context, c *collection, query string, args ...any) ([]Entry[K, V], error) {
	raw, err := c.query(ctx, c.db.db, query, args...)
	if err != nil {
		return nil, wrapError(c.op("select"), err)
	}
	out := make([]Entry[K, V], 0, len(raw))
	for _, r := range raw {
		k, err := c.decodeKey(r[1])
		if err == nil {
			var v reflect.Value
			v, err = c.decodeValue(r[2])
			if err == nil {
				out = append(out, Entry[K, V]{ID: asRowID(r[0]), Key: valueAs[K](k), Value: valueAs[V](v)})
				continue
			}
		}
		if !skippable(err) {
			return nil, err
		}
	}
	return out, nil
}
