package core

import (
	"context"
	"database/sql"
	"reflect"

	"github.com/liliang-cn/sqstash/pkg/geo"
)

// PointEntry is a value stored at a point
type PointEntry[V any] struct {
	ID    RowID
	Point geo.Point
	Value V
}

// Point2DCollection associates values with points of the plane. A point may
// hold several values.
type Point2DCollection[V any] struct {
	*collection
}

func point2DSpec[V any]() collectionSpec {
	return collectionSpec{kind: KindPoint2DCollection, value: reflect.TypeFor[V]()}
}

func newPoint2DCollection[V any](c *collection) *Point2DCollection[V] {
	return &Point2DCollection[V]{collection: c}
}

// GetOrCreatePoint2DCollection opens the collection called name, creating it if needed.
func GetOrCreatePoint2DCollection[V any](ctx context.Context, d *Database, name string) (*Point2DCollection[V], error) {
	return openCollection(ctx, d, name, openOrCreate, point2DSpec[V](), newPoint2DCollection[V])
}

// CreatePoint2DCollection creates a new collection; the name must be unused.
func CreatePoint2DCollection[V any](ctx context.Context, d *Database, name string) (*Point2DCollection[V], error) {
	return openCollection(ctx, d, name, openCreate, point2DSpec[V](), newPoint2DCollection[V])
}

// GetPoint2DCollection opens an existing collection.
func GetPoint2DCollection[V any](ctx context.Context, d *Database, name string) (*Point2DCollection[V], error) {
	return openCollection(ctx, d, name, openExisting, point2DSpec[V](), newPoint2DCollection[V])
}

func checkPoint(p geo.Point) error {
	if !p.Valid() {
		return &ArgumentError{Msg: "point " + p.String() + " has a non-finite coordinate"}
	}
	return nil
}

func checkRect(r geo.Rectangle) error {
	if !r.Valid() {
		return &ArgumentError{Msg: "rectangle bounds must be finite and ordered"}
	}
	return nil
}

// Put stores v at p and returns its row id.
func (pc *Point2DCollection[V]) Put(ctx context.Context, p geo.Point, v V) (RowID, error) {
	ids, err := pc.PutMany(ctx, p, v)
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// PutMany stores every value at p in one transaction.
func (pc *Point2DCollection[V]) PutMany(ctx context.Context, p geo.Point, values ...V) ([]RowID, error) {
	if err := pc.checkWrite(); err != nil {
		return nil, err
	}
	if err := checkPoint(p); err != nil {
		return nil, err
	}
	args := make([]any, len(values))
	for i, v := range values {
		b, err := pc.bindValue(ctx, reflectOf(v))
		if err != nil {
			return nil, err
		}
		args[i] = b
	}

	ids := make([]RowID, 0, len(args))
	err := pc.db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+pc.table+` (x, y, value) VALUES (?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, a := range args {
			res, err := stmt.ExecContext(ctx, p.X, p.Y, a)
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
		return nil, wrapError(pc.op("put"), err)
	}
	return ids, nil
}

// GetValues returns the values stored exactly at p in insertion order.
func (pc *Point2DCollection[V]) GetValues(ctx context.Context, p geo.Point) ([]V, error) {
	if err := pc.checkRead(); err != nil {
		return nil, err
	}
	entries, err := pc.selectEntries(ctx, `WHERE x = ? AND y = ? ORDER BY row_id`, p.X, p.Y)
	if err != nil {
		return nil, err
	}
	return pointValues(entries), nil
}

// GetWithin returns the entries whose point lies inside or on r.
func (pc *Point2DCollection[V]) GetWithin(ctx context.Context, r geo.Rectangle) ([]PointEntry[V], error) {
	if err := pc.checkRead(); err != nil {
		return nil, err
	}
	if err := checkRect(r); err != nil {
		return nil, err
	}
	entries, err := pc.selectEntries(ctx, `WHERE x >= ? AND x <= ? AND y >= ? AND y <= ? ORDER BY row_id`,
		r.MinX, r.MaxX, r.MinY, r.MaxY)
	if err != nil {
		return nil, err
	}
	out := entries[:0]
	for _, e := range entries {
		if r.Contains(e.Point) {
			out = append(out, e)
		}
	}
	return out, nil
}

// GetValuesWithin is GetWithin without points and row ids.
func (pc *Point2DCollection[V]) GetValuesWithin(ctx context.Context, r geo.Rectangle) ([]V, error) {
	entries, err := pc.GetWithin(ctx, r)
	if err != nil {
		return nil, err
	}
	return pointValues(entries), nil
}

// GetKeysWithin returns the distinct points inside or on r, ordered by their
// first insertion.
func (pc *Point2DCollection[V]) GetKeysWithin(ctx context.Context, r geo.Rectangle) ([]geo.Point, error) {
	if err := pc.checkRead(); err != nil {
		return nil, err
	}
	if err := checkRect(r); err != nil {
		return nil, err
	}
	raw, err := pc.query(ctx, pc.db.db, `
		SELECT x, y, MIN(row_id) AS first_id FROM `+pc.table+`
		WHERE x >= ? AND x <= ? AND y >= ? AND y <= ?
		GROUP BY x, y ORDER BY first_id
	`, r.MinX, r.MaxX, r.MinY, r.MaxY)
	if err != nil {
		return nil, wrapError(pc.op("keys"), err)
	}
	out := make([]geo.Point, 0, len(raw))
	for _, row := range raw {
		x, _ := asFloat64(row[0])
		y, _ := asFloat64(row[1])
		out = append(out, geo.Point{X: x, Y: y})
	}
	return out, nil
}

// RemoveMany deletes every value stored at any of the points and returns how
// many were removed.
func (pc *Point2DCollection[V]) RemoveMany(ctx context.Context, points ...geo.Point) (int, error) {
	if err := pc.checkWrite(); err != nil {
		return 0, err
	}
	removed := 0
	err := pc.db.withTx(ctx, func(tx *sql.Tx) error {
		for _, p := range points {
			res, err := tx.ExecContext(ctx, `DELETE FROM `+pc.table+` WHERE x = ? AND y = ?`, p.X, p.Y)
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
		return 0, wrapError(pc.op("remove"), err)
	}
	return removed, nil
}

// RemoveWithin deletes every value whose point lies inside or on r.
func (pc *Point2DCollection[V]) RemoveWithin(ctx context.Context, r geo.Rectangle) (int, error) {
	if err := pc.checkWrite(); err != nil {
		return 0, err
	}
	if err := checkRect(r); err != nil {
		return 0, err
	}
	res, err := pc.db.db.ExecContext(ctx, `DELETE FROM `+pc.table+` WHERE x >= ? AND x <= ? AND y >= ? AND y <= ?`,
		r.MinX, r.MaxX, r.MinY, r.MaxY)
	if err != nil {
		return 0, wrapError(pc.op("remove"), err)
	}
	n, err := res.RowsAffected()
	return int(n), wrapError(pc.op("remove"), err)
}

// Remove deletes the row with the given id and reports whether it existed.
func (pc *Point2DCollection[V]) Remove(ctx context.Context, id RowID) (bool, error) {
	if err := pc.checkWrite(); err != nil {
		return false, err
	}
	return deleteByID(ctx, pc.collection, id)
}

// GetAll returns every entry in insertion order.
func (pc *Point2DCollection[V]) GetAll(ctx context.Context) ([]PointEntry[V], error) {
	if err := pc.checkRead(); err != nil {
		return nil, err
	}
	return pc.selectEntries(ctx, `ORDER BY row_id`)
}

func (pc *Point2DCollection[V]) selectEntries(ctx context.Context, where string, args ...any) ([]PointEntry[V], error) {
	raw, err := pc.query(ctx, pc.db.db, `SELECT row_id, x, y, value FROM `+pc.table+` `+where, args...)
	if err != nil {
		return nil, wrapError(pc.op("select"), err)
	}
	out := make([]PointEntry[V], 0, len(raw))
	for _, r := range raw {
		v, err := pc.decodeValue(r[3])
		if err != nil {
			if skippable(err) {
				continue
			}
			return nil, err
		}
		x, _ := asFloat64(r[1])
		y, _ := asFloat64(r[2])
		out = append(out, PointEntry[V]{ID: asRowID(r[0]), Point: geo.Point{X: x, Y: y}, Value: valueAs[V](v)})
	}
	return out, nil
}

func pointValues[V any](entries []PointEntry[V]) []V {
	out := make([]V, len(entries))
	for i, e := range entries {
		out[i] = e.Value
	}
	return out
}
