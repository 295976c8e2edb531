package core

import (
	"bytes"
	"context"
	"database/sql"
	"math"
	"reflect"
)

// HashSet stores distinct values. Equality is equality of the stored form:
// the same bit pattern and the same runtime type.
type HashSet[V any] struct {
	*collection
}

func hashSetSpec[V any]() collectionSpec {
	return collectionSpec{kind: KindHashSet, value: reflect.TypeFor[V]()}
}

func newHashSet[V any](c *collection) *HashSet[V] { return &HashSet[V]{collection: c} }

// GetOrCreateHashSet opens the set called name, creating it if needed.
func GetOrCreateHashSet[V any](ctx context.Context, d *Database, name string) (*HashSet[V], error) {
	return openCollection(ctx, d, name, openOrCreate, hashSetSpec[V](), newHashSet[V])
}

// CreateHashSet creates a new set; the name must be unused.
func CreateHashSet[V any](ctx context.Context, d *Database, name string) (*HashSet[V], error) {
	return openCollection(ctx, d, name, openCreate, hashSetSpec[V](), newHashSet[V])
}

// GetHashSet opens an existing set.
func GetHashSet[V any](ctx context.Context, d *Database, name string) (*HashSet[V], error) {
	return openCollection(ctx, d, name, openExisting, hashSetSpec[V](), newHashSet[V])
}

// Add inserts v and reports whether it was not already present.
func (s *HashSet[V]) Add(ctx context.Context, v V) (bool, error) {
	n, err := s.AddMany(ctx, v)
	return n == 1, err
}

// AddMany inserts the values in one transaction and returns how many were new.
func (s *HashSet[V]) AddMany(ctx context.Context, values ...V) (int, error) {
	if err := s.checkWrite(); err != nil {
		return 0, err
	}
	bound := make([]any, len(values))
	for i, v := range values {
		rv := reflectOf(v)
		if isNilValue(rv) {
			return 0, &ArgumentError{Msg: "hash set value", Err: ErrNilValue}
		}
		b, err := s.bindValue(ctx, rv)
		if err != nil {
			return 0, err
		}
		// SQLite stores a NaN REAL as NULL.
		if f, ok := b.(float64); ok && math.IsNaN(f) {
			return 0, &ArgumentError{Msg: "hash set value cannot be NaN"}
		}
		bound[i] = b
	}

	added := 0
	err := s.db.withTx(ctx, func(tx *sql.Tx) error {
		for _, b := range bound {
			h := hashBound(b)
			found, err := s.find(ctx, tx, h, b)
			if err != nil {
				return err
			}
			if found != 0 {
				continue
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO `+s.table+` (hash, value) VALUES (?, ?)`, h, b); err != nil {
				return err
			}
			added++
		}
		return nil
	})
	if err != nil {
		return 0, wrapError(s.op("add"), err)
	}
	return added, nil
}

// find returns the row id holding the bound value, or 0.
func (s *HashSet[V]) find(ctx context.Context, q queryer, h int64, b any) (int64, error) {
	raw, err := s.query(ctx, q, `SELECT row_id, value FROM `+s.table+` WHERE hash = ?`, h)
	if err != nil {
		return 0, err
	}
	for _, r := range raw {
		if boundEqual(r[1], b) {
			n, _ := asInt64(r[0])
			return n, nil
		}
	}
	return 0, nil
}

// Contains reports whether v is in the set.
func (s *HashSet[V]) Contains(ctx context.Context, v V) (bool, error) {
	if err := s.checkRead(); err != nil {
		return false, err
	}
	rv := reflectOf(v)
	if isNilValue(rv) {
		return false, &ArgumentError{Msg: "hash set value", Err: ErrNilValue}
	}
	b, ok, err := s.lookupValue(ctx, rv)
	if err != nil || !ok {
		return false, err
	}
	id, err := s.find(ctx, s.db.db, hashBound(b), b)
	if err != nil {
		return false, wrapError(s.op("contains"), err)
	}
	return id != 0, nil
}

// Remove deletes v and reports whether it was present.
func (s *HashSet[V]) Remove(ctx context.Context, v V) (bool, error) {
	if err := s.checkWrite(); err != nil {
		return false, err
	}
	rv := reflectOf(v)
	if isNilValue(rv) {
		return false, &ArgumentError{Msg: "hash set value", Err: ErrNilValue}
	}
	b, ok, err := s.lookupValue(ctx, rv)
	if err != nil || !ok {
		return false, err
	}
	removed := false
	err = s.db.withTx(ctx, func(tx *sql.Tx) error {
		id, err := s.find(ctx, tx, hashBound(b), b)
		if err != nil || id == 0 {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+s.table+` WHERE row_id = ?`, id); err != nil {
			return err
		}
		removed = true
		return nil
	})
	if err != nil {
		return false, wrapError(s.op("remove"), err)
	}
	return removed, nil
}

// GetAll returns the members in insertion order.
func (s *HashSet[V]) GetAll(ctx context.Context) ([]V, error) {
	if err := s.checkRead(); err != nil {
		return nil, err
	}
	rows, err := selectRows[V](ctx, s.collection, `SELECT row_id, value FROM `+s.table+` ORDER BY row_id`)
	if err != nil {
		return nil, err
	}
	return rowValues(rows), nil
}

// boundEqual compares a scanned column value with a bound argument.
func boundEqual(raw, bound any) bool {
	switch b := bound.(type) {
	case []byte:
		switch r := raw.(type) {
		case []byte:
			return bytes.Equal(r, b)
		case string:
			return r == string(b)
		}
		return false
	case string:
		switch r := raw.(type) {
		case string:
			return r == b
		case []byte:
			return string(r) == b
		}
		return false
	case int64:
		r, ok := raw.(int64)
		return ok && r == b
	case float64:
		switch r := raw.(type) {
		case float64:
			return r == b
		case int64:
			return float64(r) == b
		}
		return false
	}
	return false
}
