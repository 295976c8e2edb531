package core

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"strings"
)

// RowID identifies a stored row. Ids increase monotonically within a
// collection and are never reused, even after removal.
type RowID int64

// Row is a stored value together with its id
type Row[V any] struct {
	ID    RowID
	Value V
}

// Entry is a stored key/value pair together with its row id
type Entry[K, V any] struct {
	ID    RowID
	Key   K
	Value V
}

// maxBatchParams bounds the number of bound parameters per statement.
const maxBatchParams = 500

// collection holds what every handle kind shares: its catalog record, the
// column mapping of its key and value types and the removal flag.
type collection struct {
	db    *Database
	info  CollectionInfo
	table string
	state *collectionState
	key   column
	value column
}

func (c *collection) base() *collection { return c }

// Name returns the collection name
func (c *collection) Name() string { return c.info.Name }

// Kind returns the collection kind
func (c *collection) Kind() Kind { return c.info.Kind }

// Info returns the catalog record of the collection
func (c *collection) Info() CollectionInfo { return c.info }

func (c *collection) checkRead() error {
	if err := c.db.checkOpen(); err != nil {
		return err
	}
	if c.state.dropped.Load() {
		return removedError(c.info.Name)
	}
	return nil
}

func (c *collection) checkWrite() error {
	if err := c.checkRead(); err != nil {
		return err
	}
	if c.db.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (c *collection) op(name string) string {
	return strings.ToLower(c.info.Kind.String()) + "." + name
}

// Count returns the number of stored rows
func (c *collection) Count(ctx context.Context) (int64, error) {
	if err := c.checkRead(); err != nil {
		return 0, err
	}
	var n int64
	if err := c.db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+c.table).Scan(&n); err != nil {
		return 0, wrapError(c.op("count"), err)
	}
	return n, nil
}

// Clear removes every row. Row ids keep increasing afterwards.
func (c *collection) Clear(ctx context.Context) error {
	if err := c.checkWrite(); err != nil {
		return err
	}
	if _, err := c.db.db.ExecContext(ctx, `DELETE FROM `+c.table); err != nil {
		return wrapError(c.op("clear"), err)
	}
	return nil
}

// query runs a select and returns every row as raw column values. Rows are
// fully read before decoding starts.
func (c *collection) query(ctx context.Context, q queryer, query string, args ...any) ([][]any, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// decodeValue scans a raw value column.
func (c *collection) decodeValue(raw any) (reflect.Value, error) {
	v, err := c.value.scan(c.db.codec, raw)
	if err != nil {
		return v, c.decodeErr(err)
	}
	return v, nil
}

func (c *collection) decodeKey(raw any) (reflect.Value, error) {
	v, err := c.key.scan(c.db.codec, raw)
	if err != nil {
		return v, c.decodeErr(err)
	}
	return v, nil
}

func (c *collection) decodeErr(err error) error {
	var tnr *TypeNotResolvedError
	if errors.As(err, &tnr) && tnr.Collection == "" {
		return &TypeNotResolvedError{Type: tnr.Type, Collection: c.info.Name}
	}
	return err
}

func (c *collection) bindValue(ctx context.Context, v reflect.Value) (any, error) {
	return c.value.bind(ctx, c.db.codec, v, true)
}

func (c *collection) bindKey(ctx context.Context, v reflect.Value) (any, error) {
	return c.key.bind(ctx, c.db.codec, v, true)
}

// lookupKey binds a key for a read. ok is false when the key cannot be stored
// in this collection because its type was never recorded.
func (c *collection) lookupKey(ctx context.Context, v reflect.Value) (any, bool, error) {
	b, err := c.key.bind(ctx, c.db.codec, v, false)
	if err != nil {
		if isNoTypeID(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (c *collection) lookupValue(ctx context.Context, v reflect.Value) (any, bool, error) {
	b, err := c.value.bind(ctx, c.db.codec, v, false)
	if err != nil {
		if isNoTypeID(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func isNoTypeID(err error) bool {
	return errors.Is(err, errNoTypeID)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func asRowID(raw any) RowID {
	n, _ := asInt64(raw)
	return RowID(n)
}
