package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/liliang-cn/sqstash/internal/encoding"
	"github.com/liliang-cn/sqstash/pkg/schema"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

var (
	timeType = reflect.TypeFor[time.Time]()

	// errNoTypeID is returned by lookups for values whose type was never stored.
	errNoTypeID = errors.New("type has no id")
)

// codec turns Go values into envelopes and back.
//
// Structs are written as msgpack maps from field order to value, so renamed
// or reordered Go fields keep reading the same data and unknown orders are
// skipped. Values held in interface-typed fields carry their type id.
type codec struct {
	set *schema.Set
	reg *TypeRegistry
}

// encodeEnvelope returns the envelope of v. With mint false it fails with
// errNoTypeID instead of recording a new type.
func (c *codec) encodeEnvelope(ctx context.Context, v reflect.Value, mint bool) ([]byte, error) {
	v = indirect(v)
	if !v.IsValid() {
		return nil, &ArgumentError{Err: ErrNilValue}
	}
	t, err := c.set.TypeOf(v.Type())
	if err != nil {
		return nil, &ArgumentError{Err: err}
	}
	if t.Class() == schema.ClassInterface {
		return nil, argErrorf(ErrUnregisteredType, "cannot store interface %v", v.Type())
	}

	var id int32
	if mint {
		id, err = c.reg.GetOrCreateID(ctx, t)
	} else {
		var ok bool
		id, ok, err = c.reg.ID(t)
		if err == nil && !ok {
			err = errNoTypeID
		}
	}
	if err != nil {
		return nil, err
	}

	payload, err := c.encodeToBytes(ctx, v, mint)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, encoding.EnvelopeHeaderSize+len(payload))
	return encoding.AppendEnvelope(buf, id, payload), nil
}

// decodeEnvelope reads an envelope as a value assignable to target.
func (c *codec) decodeEnvelope(data []byte, target reflect.Type) (reflect.Value, error) {
	id, payload, err := encoding.SplitEnvelope(data)
	if err != nil {
		return reflect.Value{}, err
	}
	t, ok := c.reg.Resolve(id)
	if !ok {
		name, _ := c.reg.NameOf(id)
		if name == "" {
			name = fmt.Sprintf("#%d", id)
		}
		return reflect.Value{}, &TypeNotResolvedError{Type: name}
	}

	out, inner, ok := allocFor(t.GoType(), target)
	if !ok {
		return reflect.Value{}, fmt.Errorf("%w: %s into %v", errNotAssignable, t.CanonicalName(), target)
	}

	dec := msgpack.GetDecoder()
	defer msgpack.PutDecoder(dec)
	dec.Reset(bytes.NewReader(payload))
	if err := c.decodeAs(dec, t, inner); err != nil {
		return reflect.Value{}, wrapError("decode "+t.CanonicalName(), err)
	}
	return out, nil
}

// allocFor allocates a value of rt that can be assigned to target. inner is
// the settable value to decode into.
func allocFor(rt, target reflect.Type) (out, inner reflect.Value, ok bool) {
	switch {
	case rt.AssignableTo(target):
		v := reflect.New(rt).Elem()
		return v, v, true
	case reflect.PointerTo(rt).AssignableTo(target):
		p := reflect.New(rt)
		return p, p.Elem(), true
	}
	return reflect.Value{}, reflect.Value{}, false
}

type encodeState struct {
	ctx  context.Context
	mint bool
}

func (c *codec) encodeToBytes(ctx context.Context, v reflect.Value, mint bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)
	enc.Reset(&buf)
	if err := c.encode(encodeState{ctx: ctx, mint: mint}, enc, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *codec) encode(st encodeState, enc *msgpack.Encoder, v reflect.Value) error {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return enc.EncodeNil()
		}
		return c.encode(st, enc, v.Elem())
	case reflect.Interface:
		if v.IsNil() {
			return enc.EncodeNil()
		}
		return c.encodeDynamic(st, enc, v.Elem())
	}

	if t, ok := c.set.Lookup(v.Type()); ok {
		return c.encodeTyped(st, enc, t, v)
	}

	switch v.Kind() {
	case reflect.Slice:
		if v.IsNil() {
			return enc.EncodeNil()
		}
		fallthrough
	case reflect.Array:
		n := v.Len()
		if err := enc.EncodeArrayLen(n); err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if err := c.encode(st, enc, v.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Map:
		return c.encodeMap(st, enc, v)
	}
	return argErrorf(ErrUnregisteredType, "cannot store %v", v.Type())
}

// encodeDynamic writes [type id, payload] for a value held in an interface.
func (c *codec) encodeDynamic(st encodeState, enc *msgpack.Encoder, v reflect.Value) error {
	v = indirect(v)
	if !v.IsValid() {
		return enc.EncodeNil()
	}
	t, err := c.set.TypeOf(v.Type())
	if err != nil {
		return &ArgumentError{Err: err}
	}

	var id int32
	if st.mint {
		id, err = c.reg.GetOrCreateID(st.ctx, t)
	} else {
		var ok bool
		id, ok, err = c.reg.ID(t)
		if err == nil && !ok {
			err = errNoTypeID
		}
	}
	if err != nil {
		return err
	}

	if err := enc.EncodeArrayLen(2); err != nil {
		return err
	}
	if err := enc.EncodeInt32(id); err != nil {
		return err
	}
	return c.encodeAs(st, enc, t, v)
}

func (c *codec) encodeAs(st encodeState, enc *msgpack.Encoder, t *schema.Type, v reflect.Value) error {
	switch t.Class() {
	case schema.ClassSlice, schema.ClassArray, schema.ClassMap:
		return c.encode(st, enc, v)
	}
	return c.encodeTyped(st, enc, t, v)
}

func (c *codec) encodeTyped(st encodeState, enc *msgpack.Encoder, t *schema.Type, v reflect.Value) error {
	switch t.Class() {
	case schema.ClassPrimitive:
		return encodePrimitive(enc, v)

	case schema.ClassEnum:
		if isUnsignedKind(v.Kind()) {
			return enc.EncodeUint(v.Uint())
		}
		return enc.EncodeInt(v.Int())

	case schema.ClassSurrogate:
		return c.encode(st, enc, t.ToSurrogate(v))

	case schema.ClassStruct:
		if bc := c.reg.Broken(t.CanonicalName()); bc != nil {
			return bc
		}
		fields := t.StructFields()
		if err := enc.EncodeMapLen(len(fields)); err != nil {
			return err
		}
		for _, f := range fields {
			if err := enc.EncodeInt(int64(f.Order)); err != nil {
				return err
			}
			if err := c.encode(st, enc, v.FieldByIndex(f.Index)); err != nil {
				return err
			}
		}
		return nil

	case schema.ClassSlice, schema.ClassArray, schema.ClassMap:
		return c.encode(st, enc, v)
	}
	return argErrorf(ErrUnregisteredType, "cannot store %s", t.CanonicalName())
}

// encodeMap writes entries sorted by encoded key so equal maps produce equal bytes.
func (c *codec) encodeMap(st encodeState, enc *msgpack.Encoder, v reflect.Value) error {
	if v.IsNil() {
		return enc.EncodeNil()
	}
	type entry struct{ k, v []byte }
	entries := make([]entry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		kb, err := c.encodeToBytes(st.ctx, iter.Key(), st.mint)
		if err != nil {
			return err
		}
		vb, err := c.encodeToBytes(st.ctx, iter.Value(), st.mint)
		if err != nil {
			return err
		}
		entries = append(entries, entry{kb, vb})
	}
	sort.Slice(entries, func(i, j int) bool { return bytes.Compare(entries[i].k, entries[j].k) < 0 })

	if err := enc.EncodeMapLen(len(entries)); err != nil {
		return err
	}
	for _, e := range entries {
		if err := enc.Encode(msgpack.RawMessage(e.k)); err != nil {
			return err
		}
		if err := enc.Encode(msgpack.RawMessage(e.v)); err != nil {
			return err
		}
	}
	return nil
}

func encodePrimitive(enc *msgpack.Encoder, v reflect.Value) error {
	switch v.Kind() {
	case reflect.Bool:
		return enc.EncodeBool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return enc.EncodeInt(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return enc.EncodeUint(v.Uint())
	case reflect.Float32:
		return enc.EncodeFloat32(float32(v.Float()))
	case reflect.Float64:
		return enc.EncodeFloat64(v.Float())
	case reflect.String:
		return enc.EncodeString(v.String())
	case reflect.Slice:
		return enc.EncodeBytes(v.Bytes())
	case reflect.Struct:
		if v.Type() == timeType {
			// Binary form keeps the zone offset, msgpack's timestamp does not.
			b, err := v.Interface().(time.Time).MarshalBinary()
			if err != nil {
				return err
			}
			return enc.EncodeBytes(b)
		}
	}
	return fmt.Errorf("unsupported primitive %v", v.Type())
}

func (c *codec) decode(dec *msgpack.Decoder, v reflect.Value) error {
	switch v.Kind() {
	case reflect.Pointer:
		if isNil, err := decodeNil(dec); err != nil || isNil {
			if isNil {
				v.SetZero()
			}
			return err
		}
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		return c.decode(dec, v.Elem())
	case reflect.Interface:
		return c.decodeDynamic(dec, v)
	}

	if t, ok := c.set.Lookup(v.Type()); ok {
		return c.decodeTyped(dec, t, v)
	}

	switch v.Kind() {
	case reflect.Slice:
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return err
		}
		if n < 0 {
			v.SetZero()
			return nil
		}
		s := reflect.MakeSlice(v.Type(), n, n)
		for i := 0; i < n; i++ {
			if err := c.decode(dec, s.Index(i)); err != nil {
				return err
			}
		}
		v.Set(s)
		return nil

	case reflect.Array:
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if i >= v.Len() {
				if err := dec.Skip(); err != nil {
					return err
				}
				continue
			}
			if err := c.decode(dec, v.Index(i)); err != nil {
				return err
			}
		}
		return nil

	case reflect.Map:
		n, err := dec.DecodeMapLen()
		if err != nil {
			return err
		}
		if n < 0 {
			v.SetZero()
			return nil
		}
		m := reflect.MakeMapWithSize(v.Type(), n)
		for i := 0; i < n; i++ {
			k := reflect.New(v.Type().Key()).Elem()
			if err := c.decode(dec, k); err != nil {
				return err
			}
			e := reflect.New(v.Type().Elem()).Elem()
			if err := c.decode(dec, e); err != nil {
				return err
			}
			m.SetMapIndex(k, e)
		}
		v.Set(m)
		return nil
	}
	return argErrorf(ErrUnregisteredType, "cannot read %v", v.Type())
}

// decodeDynamic reads a [type id, payload] pair into an interface value.
// Values whose type is unknown to the session or not assignable to the
// field are left nil.
func (c *codec) decodeDynamic(dec *msgpack.Decoder, v reflect.Value) error {
	if isNil, err := decodeNil(dec); err != nil || isNil {
		if isNil {
			v.SetZero()
		}
		return err
	}
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n != 2 {
		return fmt.Errorf("malformed polymorphic value: %d elements", n)
	}
	id, err := dec.DecodeInt32()
	if err != nil {
		return err
	}

	t, ok := c.reg.Resolve(id)
	if !ok {
		v.SetZero()
		return dec.Skip()
	}
	out, inner, ok := allocFor(t.GoType(), v.Type())
	if !ok {
		v.SetZero()
		return dec.Skip()
	}
	if err := c.decodeAs(dec, t, inner); err != nil {
		return err
	}
	v.Set(out)
	return nil
}

func (c *codec) decodeAs(dec *msgpack.Decoder, t *schema.Type, v reflect.Value) error {
	switch t.Class() {
	case schema.ClassSlice, schema.ClassArray, schema.ClassMap:
		return c.decode(dec, v)
	}
	return c.decodeTyped(dec, t, v)
}

func (c *codec) decodeTyped(dec *msgpack.Decoder, t *schema.Type, v reflect.Value) error {
	switch t.Class() {
	case schema.ClassPrimitive:
		return decodePrimitive(dec, v)

	case schema.ClassEnum:
		if isNil, err := decodeNil(dec); err != nil || isNil {
			return err
		}
		if isUnsignedKind(v.Kind()) {
			n, err := dec.DecodeUint64()
			if err != nil {
				return err
			}
			v.SetUint(n)
			return nil
		}
		n, err := dec.DecodeInt64()
		if err != nil {
			return err
		}
		v.SetInt(n)
		return nil

	case schema.ClassSurrogate:
		s := reflect.New(t.SurrogateGoType()).Elem()
		if err := c.decode(dec, s); err != nil {
			return err
		}
		v.Set(t.FromSurrogate(s))
		return nil

	case schema.ClassStruct:
		if bc := c.reg.Broken(t.CanonicalName()); bc != nil {
			return bc
		}
		n, err := dec.DecodeMapLen()
		if err != nil {
			return err
		}
		if n < 0 {
			v.SetZero()
			return nil
		}
		for i := 0; i < n; i++ {
			order, err := dec.DecodeInt()
			if err != nil {
				return err
			}
			idx, ok := t.FieldIndex(order)
			if !ok {
				if err := dec.Skip(); err != nil {
					return err
				}
				continue
			}
			if err := c.decode(dec, v.FieldByIndex(idx)); err != nil {
				return err
			}
		}
		return nil

	case schema.ClassSlice, schema.ClassArray, schema.ClassMap:
		return c.decode(dec, v)
	}
	return argErrorf(ErrUnregisteredType, "cannot read %s", t.CanonicalName())
}

func decodePrimitive(dec *msgpack.Decoder, v reflect.Value) error {
	if isNil, err := decodeNil(dec); err != nil || isNil {
		if isNil {
			v.SetZero()
		}
		return err
	}
	switch v.Kind() {
	case reflect.Bool:
		b, err := dec.DecodeBool()
		if err != nil {
			return err
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := dec.DecodeInt64()
		if err != nil {
			return err
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := dec.DecodeUint64()
		if err != nil {
			return err
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := dec.DecodeFloat64()
		if err != nil {
			return err
		}
		v.SetFloat(f)
	case reflect.String:
		s, err := dec.DecodeString()
		if err != nil {
			return err
		}
		v.SetString(s)
	case reflect.Slice:
		b, err := dec.DecodeBytes()
		if err != nil {
			return err
		}
		v.SetBytes(b)
	case reflect.Struct:
		if v.Type() != timeType {
			return fmt.Errorf("unsupported primitive %v", v.Type())
		}
		b, err := dec.DecodeBytes()
		if err != nil {
			return err
		}
		var tm time.Time
		if err := tm.UnmarshalBinary(b); err != nil {
			return err
		}
		v.Set(reflect.ValueOf(tm))
	default:
		return fmt.Errorf("unsupported primitive %v", v.Type())
	}
	return nil
}

// decodeNil consumes a msgpack nil if one is next.
func decodeNil(dec *msgpack.Decoder) (bool, error) {
	code, err := dec.PeekCode()
	if err != nil {
		return false, err
	}
	if code != msgpcode.Nil {
		return false, nil
	}
	return true, dec.DecodeNil()
}

// indirect strips pointers and interfaces; it returns the zero Value for nil.
func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func isUnsignedKind(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}
