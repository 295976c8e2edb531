package core

import (
	"cmp"
	"context"
	"database/sql"
	"reflect"
)

// Interval is a closed range [Min, Max]
type Interval[K cmp.Ordered] struct {
	Min K
	Max K
}

// Contains reports whether k lies in the interval
func (iv Interval[K]) Contains(k K) bool {
	return iv.Min <= k && k <= iv.Max
}

func (iv Interval[K]) valid() bool {
	return iv.Min <= iv.Max
}

// IntervalEntry is a stored interval with its value
type IntervalEntry[K cmp.Ordered, V any] struct {
	ID       RowID
	Interval Interval[K]
	Value    V
}

// IntervalCollection associates values with closed intervals of a numeric key.
type IntervalCollection[K cmp.Ordered, V any] struct {
	*collection
}

func intervalSpec[K cmp.Ordered, V any]() collectionSpec {
	return collectionSpec{
		kind:     KindIntervalCollection,
		key:      reflect.TypeFor[K](),
		value:    reflect.TypeFor[V](),
		keyCheck: numericKeyCheck(KindIntervalCollection),
	}
}

func newIntervalCollection[K cmp.Ordered, V any](c *collection) *IntervalCollection[K, V] {
	return &IntervalCollection[K, V]{collection: c}
}

// GetOrCreateIntervalCollection opens the collection called name, creating it if needed.
func GetOrCreateIntervalCollection[K cmp.Ordered, V any](ctx context.Context, d *Database, name string) (*IntervalCollection[K, V], error) {
	return openCollection(ctx, d, name, openOrCreate, intervalSpec[K, V](), newIntervalCollection[K, V])
}

// CreateIntervalCollection creates a new collection; the name must be unused.
func CreateIntervalCollection[K cmp.Ordered, V any](ctx context.Context, d *Database, name string) (*IntervalCollection[K, V], error) {
	return openCollection(ctx, d, name, openCreate, intervalSpec[K, V](), newIntervalCollection[K, V])
}

// GetIntervalCollection opens an existing collection.
func GetIntervalCollection[K cmp.Ordered, V any](ctx context.Context, d *Database, name string) (*IntervalCollection[K, V], error) {
	return openCollection(ctx, d, name, openExisting, intervalSpec[K, V](), newIntervalCollection[K, V])
}

func (ic *IntervalCollection[K, V]) bindInterval(ctx context.Context, iv Interval[K]) (lo, hi any, err error) {
	if !iv.valid() {
		return nil, nil, &ArgumentError{Msg: "interval minimum must not exceed its maximum"}
	}
	if lo, err = ic.bindKey(ctx, reflectOf(iv.Min)); err != nil {
		return nil, nil, err
	}
	if hi, err = ic.bindKey(ctx, reflectOf(iv.Max)); err != nil {
		return nil, nil, err
	}
	return lo, hi, nil
}

// Put stores v for the interval and returns its row id.
func (ic *IntervalCollection[K, V]) Put(ctx context.Context, iv Interval[K], v V) (RowID, error) {
	if err := ic.checkWrite(); err != nil {
		return 0, err
	}
	lo, hi, err := ic.bindInterval(ctx, iv)
	if err != nil {
		return 0, err
	}
	vb, err := ic.bindValue(ctx, reflectOf(v))
	if err != nil {
		return 0, err
	}
	res, err := ic.db.db.ExecContext(ctx, `INSERT INTO `+ic.table+` (lo, hi, value) VALUES (?, ?, ?)`, lo, hi, vb)
	if err != nil {
		return 0, wrapError(ic.op("put"), err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrapError(ic.op("put"), err)
	}
	return RowID(id), nil
}

// Get returns the entries whose interval contains point, in insertion order.
func (ic *IntervalCollection[K, V]) Get(ctx context.Context, point K) ([]IntervalEntry[K, V], error) {
	if err := ic.checkRead(); err != nil {
		return nil, err
	}
	p, err := ic.bindKey(ctx, reflectOf(point))
	if err != nil {
		return nil, err
	}
	return ic.selectEntries(ctx, `WHERE lo <= ? AND hi >= ? ORDER BY row_id`, p, p)
}

// GetValues is Get without intervals and row ids.
func (ic *IntervalCollection[K, V]) GetValues(ctx context.Context, point K) ([]V, error) {
	entries, err := ic.Get(ctx, point)
	if err != nil {
		return nil, err
	}
	return intervalValues(entries), nil
}

// GetInRange returns the entries whose interval overlaps [min, max].
func (ic *IntervalCollection[K, V]) GetInRange(ctx context.Context, min, max K) ([]IntervalEntry[K, V], error) {
	if err := ic.checkRead(); err != nil {
		return nil, err
	}
	lo, hi, err := ic.bindInterval(ctx, Interval[K]{Min: min, Max: max})
	if err != nil {
		return nil, err
	}
	return ic.selectEntries(ctx, `WHERE lo <= ? AND hi >= ? ORDER BY row_id`, hi, lo)
}

// GetValuesInRange is GetInRange without intervals and row ids.
func (ic *IntervalCollection[K, V]) GetValuesInRange(ctx context.Context, min, max K) ([]V, error) {
	entries, err := ic.GetInRange(ctx, min, max)
	if err != nil {
		return nil, err
	}
	return intervalValues(entries), nil
}

// GetValue returns the entry with the given row id.
func (ic *IntervalCollection[K, V]) GetValue(ctx context.Context, id RowID) (IntervalEntry[K, V], error) {
	if err := ic.checkRead(); err != nil {
		return IntervalEntry[K, V]{}, err
	}
	raw, err := ic.query(ctx, ic.db.db, `SELECT row_id, lo, hi, value FROM `+ic.table+` WHERE row_id = ?`, int64(id))
	if err != nil {
		return IntervalEntry[K, V]{}, wrapError(ic.op("get"), err)
	}
	if len(raw) == 0 {
		return IntervalEntry[K, V]{}, &KeyNotFoundError{Collection: ic.info.Name, Key: id}
	}
	return ic.decodeEntry(raw[0])
}

// RemoveContaining deletes every interval containing point and returns how
// many were removed.
func (ic *IntervalCollection[K, V]) RemoveContaining(ctx context.Context, point K) (int, error) {
	if err := ic.checkWrite(); err != nil {
		return 0, err
	}
	p, err := ic.bindKey(ctx, reflectOf(point))
	if err != nil {
		return 0, err
	}
	res, err := ic.db.db.ExecContext(ctx, `DELETE FROM `+ic.table+` WHERE lo <= ? AND hi >= ?`, p, p)
	if err != nil {
		return 0, wrapError(ic.op("remove"), err)
	}
	n, err := res.RowsAffected()
	return int(n), wrapError(ic.op("remove"), err)
}

// Remove deletes the row with the given id and reports whether it existed.
func (ic *IntervalCollection[K, V]) Remove(ctx context.Context, id RowID) (bool, error) {
	if err := ic.checkWrite(); err != nil {
		return false, err
	}
	return deleteByID(ctx, ic.collection, id)
}

// Move changes the interval of a row, keeping its id and value.
func (ic *IntervalCollection[K, V]) Move(ctx context.Context, id RowID, iv Interval[K]) error {
	if err := ic.checkWrite(); err != nil {
		return err
	}
	lo, hi, err := ic.bindInterval(ctx, iv)
	if err != nil {
		return err
	}
	return ic.db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE `+ic.table+` SET lo = ?, hi = ? WHERE row_id = ?`, lo, hi, int64(id))
		if err != nil {
			return wrapError(ic.op("move"), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return wrapError(ic.op("move"), err)
		}
		if n == 0 {
			return &KeyNotFoundError{Collection: ic.info.Name, Key: id}
		}
		return nil
	})
}

// GetAll returns every entry in insertion order.
func (ic *IntervalCollection[K, V]) GetAll(ctx context.Context) ([]IntervalEntry[K, V], error) {
	if err := ic.checkRead(); err != nil {
		return nil, err
	}
	return ic.selectEntries(ctx, `ORDER BY row_id`)
}

func (ic *IntervalCollection[K, V]) selectEntries(ctx context.Context, where string, args ...any) ([]IntervalEntry[K, V], error) {
	raw, err := ic.query(ctx, ic.db.db, `SELECT row_id, lo, hi, value FROM `+ic.table+` `+where, args...)
	if err != nil {
		return nil, wrapError(ic.op("select"), err)
	}
	out := make([]IntervalEntry[K, V], 0, len(raw))
	for _, r := range raw {
		e, err := ic.decodeEntry(r)
		if err != nil {
			if skippable(err) {
				continue
			}
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (ic *IntervalCollection[K, V]) decodeEntry(r []any) (IntervalEntry[K, V], error) {
	lo, err := ic.decodeKey(r[1])
	if err != nil {
		return IntervalEntry[K, V]{}, err
	}
	hi, err := ic.decodeKey(r[2])
	if err != nil {
		return IntervalEntry[K, V]{}, err
	}
	v, err := ic.decodeValue(r[3])
	if err != nil {
		return IntervalEntry[K, V]{}, err
	}
	return IntervalEntry[K, V]{
		ID:       asRowID(r[0]),
		Interval: Interval[K]{Min: valueAs[K](lo), Max: valueAs[K](hi)},
		Value:    valueAs[V](v),
	}, nil
}

func intervalValues[K cmp.Ordered, V any](entries []IntervalEntry[K, V]) []V {
	out := make([]V, len(entries))
	for i, e := range entries {
		out[i] = e.Value
	}
	return out
}
