package core

import (
	"context"
	"fmt"
	"reflect"

	"github.com/cespare/xxhash/v2"
	"github.com/liliang-cn/sqstash/internal/encoding"
)

var bytesType = reflect.TypeFor[[]byte]()

// column maps one Go type onto a SQLite column. Built-in scalars are stored
// natively so that SQLite can compare and index them; everything else is
// stored as an envelope blob.
type column struct {
	goType reflect.Type
	native bool
	// storage is the Go type of native columns. It differs from goType
	// when an interface handle views a collection of a built-in scalar.
	storage reflect.Type
}

func newColumn(rt reflect.Type) column {
	c := column{goType: rt, native: isNativeType(rt)}
	if c.native {
		c.storage = rt
	}
	return c
}

// viewColumn returns the column for a handle of type rt over a collection
// whose stored type is stored.
func viewColumn(rt, stored reflect.Type) column {
	if rt.Kind() == reflect.Interface && stored != nil && isNativeType(stored) {
		return column{goType: rt, native: true, storage: stored}
	}
	return newColumn(rt)
}

func isNativeType(rt reflect.Type) bool {
	if rt == bytesType {
		return true
	}
	if rt.PkgPath() != "" || rt.Name() != rt.Kind().String() {
		return false
	}
	switch rt.Kind() {
	case reflect.Bool, reflect.String, reflect.Float32, reflect.Float64,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

// affinity is the declared SQLite type of the column.
func (c column) affinity() string {
	if !c.native {
		return "BLOB"
	}
	switch c.storage.Kind() {
	case reflect.Float32, reflect.Float64:
		return "REAL"
	case reflect.String:
		return "TEXT"
	case reflect.Slice:
		return "BLOB"
	default:
		return "INTEGER"
	}
}

// bind converts v into the SQL argument stored in the column. A nil value
// becomes NULL. With mint false, values of types that were never stored
// return errNoTypeID.
func (c column) bind(ctx context.Context, cd *codec, v reflect.Value, mint bool) (any, error) {
	if !c.native {
		if isNilValue(v) {
			return nil, nil
		}
		return cd.encodeEnvelope(ctx, v, mint)
	}
	if c.storage != c.goType {
		v = indirect(v)
		if !v.IsValid() {
			return nil, nil
		}
		if v.Type() != c.storage {
			return nil, argErrorf(nil, "collection stores %v, not %v", c.storage, v.Type())
		}
	}
	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			return int64(1), nil
		}
		return int64(0), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return encoding.OrderedUint64(v.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	case reflect.String:
		return v.String(), nil
	case reflect.Slice:
		if v.IsNil() {
			return nil, nil
		}
		return v.Bytes(), nil
	}
	return nil, fmt.Errorf("cannot bind %v", v.Type())
}

// scan converts a raw column value back into the column's Go type.
func (c column) scan(cd *codec, raw any) (reflect.Value, error) {
	if raw == nil {
		return reflect.New(c.goType).Elem(), nil
	}
	if c.native && c.storage != c.goType {
		v, err := c.scanNative(raw)
		if err != nil {
			return v, err
		}
		out := reflect.New(c.goType).Elem()
		out.Set(v)
		return out, nil
	}
	if c.native {
		return c.scanNative(raw)
	}

	out := reflect.New(c.goType).Elem()
	b, ok := raw.([]byte)
	if !ok {
		return out, fmt.Errorf("expected blob, got %T", raw)
	}
	v, err := cd.decodeEnvelope(b, c.goType)
	if err != nil {
		return out, err
	}
	out.Set(v)
	return out, nil
}

func (c column) scanNative(raw any) (reflect.Value, error) {
	out := reflect.New(c.storage).Elem()
	switch c.storage.Kind() {
	case reflect.Bool:
		n, err := asInt64(raw)
		if err != nil {
			return out, err
		}
		out.SetBool(n != 0)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := asInt64(raw)
		if err != nil {
			return out, err
		}
		out.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := asInt64(raw)
		if err != nil {
			return out, err
		}
		out.SetUint(encoding.FromOrderedUint64(n))
	case reflect.Float32, reflect.Float64:
		f, err := asFloat64(raw)
		if err != nil {
			return out, err
		}
		out.SetFloat(f)
	case reflect.String:
		switch s := raw.(type) {
		case string:
			out.SetString(s)
		case []byte:
			out.SetString(string(s))
		default:
			return out, fmt.Errorf("expected text, got %T", raw)
		}
	case reflect.Slice:
		switch b := raw.(type) {
		case []byte:
			out.SetBytes(append([]byte(nil), b...))
		case string:
			out.SetBytes([]byte(b))
		default:
			return out, fmt.Errorf("expected blob, got %T", raw)
		}
	}
	return out, nil
}

func asInt64(raw any) (int64, error) {
	switch n := raw.(type) {
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("expected integer, got %T", raw)
}

func asFloat64(raw any) (float64, error) {
	switch n := raw.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("expected real, got %T", raw)
}

// hashBound hashes a bound column value for hash set lookups.
func hashBound(v any) int64 {
	var b []byte
	switch x := v.(type) {
	case nil:
		return 0
	case int64:
		b = encoding.Int64Bytes(x)
	case float64:
		b = encoding.Float64Bits(x)
	case string:
		return int64(xxhash.Sum64String(x))
	case []byte:
		b = x
	}
	return int64(xxhash.Sum64(b))
}

func isNilValue(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

// reflectOf returns v as a reflect.Value of its static type V.
func reflectOf[V any](v V) reflect.Value {
	return reflect.ValueOf(&v).Elem()
}

// valueAs converts a reflect.Value produced by column.scan into V.
func valueAs[V any](v reflect.Value) V {
	var out V
	if v.IsValid() {
		reflect.ValueOf(&out).Elem().Set(v)
	}
	return out
}
