package schema

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// StructBuilder declares the stored shape of a struct type.
//
//	person := schema.Struct[Person]("acme.model", "Person").
//		Field("Name", 1).
//		Field("Age", 2).
//		MustBuild()
type StructBuilder[T any] struct {
	t   *Type
	err error
}

// Struct starts the declaration of struct type T under the given canonical name.
func Struct[T any](namespace, name string) *StructBuilder[T] {
	b := &StructBuilder[T]{}
	rt := valueType(reflect.TypeFor[T]())
	if rt.Kind() != reflect.Struct {
		b.err = fmt.Errorf("schema: %s: %v is not a struct", CanonicalName(namespace, name), rt)
		return b
	}
	if !validName(name) {
		b.err = fmt.Errorf("schema: invalid type name %q", name)
		return b
	}
	b.t = &Type{
		desc: Descriptor{
			Namespace: namespace,
			Name:      name,
			Class:     ClassStruct,
		},
		goType:  rt,
		byOrder: make(map[int]int),
	}
	return b
}

// Field declares the Go field goName as stored under the given order id.
// Order ids must be positive and unique within the type.
func (b *StructBuilder[T]) Field(goName string, order int) *StructBuilder[T] {
	if b.err != nil {
		return b
	}
	b.err = b.t.addField(goName, order)
	return b
}

// Build finishes the declaration.
func (b *StructBuilder[T]) Build() (*Type, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.t.desc.sortFields()
	return b.t, nil
}

// MustBuild is like Build but panics on error.
func (b *StructBuilder[T]) MustBuild() *Type {
	return Must(b.Build())
}

func (t *Type) addField(goName string, order int) error {
	name := t.desc.CanonicalName()
	sf, ok := t.goType.FieldByName(goName)
	if !ok || len(sf.Index) != 1 {
		return fmt.Errorf("schema: %s: no direct field %q in %v", name, goName, t.goType)
	}
	if !sf.IsExported() {
		return fmt.Errorf("schema: %s: field %q is not exported", name, goName)
	}
	if order <= 0 {
		return fmt.Errorf("schema: %s: field %q has non-positive order %d", name, goName, order)
	}
	if prev, dup := t.byOrder[order]; dup {
		return fmt.Errorf("schema: %s: order %d used by both %q and %q", name, order, t.fields[prev].Name, goName)
	}
	for _, f := range t.fields {
		if f.Name == goName {
			return fmt.Errorf("schema: %s: field %q declared twice", name, goName)
		}
	}
	t.byOrder[order] = len(t.fields)
	t.fields = append(t.fields, boundField{
		Field:  Field{Name: goName, Order: order},
		index:  sf.Index,
		goType: sf.Type,
	})
	t.desc.Fields = append(t.desc.Fields, Field{Name: goName, Order: order})
	return nil
}

// Reflect derives a struct declaration from T's exported fields.
//
// The type is named after T. Order ids come from a `stash:"<order>"` tag or
// default to the field's position among exported fields; `stash:"-"` skips
// a field. Relying on positions means reordering fields is a breaking change.
func Reflect[T any](namespace string) (*Type, error) {
	rt := valueType(reflect.TypeFor[T]())
	if rt.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema: Reflect: %v is not a struct", rt)
	}
	b := Struct[T](namespace, rt.Name())
	pos := 0
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		pos++
		order := pos
		if tag, ok := sf.Tag.Lookup("stash"); ok {
			tag = strings.TrimSpace(tag)
			if tag == "-" {
				continue
			}
			n, err := strconv.Atoi(tag)
			if err != nil {
				return nil, fmt.Errorf("schema: Reflect: %v.%s: bad stash tag %q", rt, sf.Name, tag)
			}
			order = n
		}
		b.Field(sf.Name, order)
	}
	return b.Build()
}

// EnumBuilder declares an integer-backed enumeration.
type EnumBuilder[T any] struct {
	t   *Type
	err error
}

// Enum starts the declaration of enum type T. T must have an integer kind.
func Enum[T any](namespace, name string) *EnumBuilder[T] {
	b := &EnumBuilder[T]{}
	rt := reflect.TypeFor[T]()
	if !isIntegerKind(rt.Kind()) {
		b.err = fmt.Errorf("schema: %s: enum %v must have an integer kind", CanonicalName(namespace, name), rt)
		return b
	}
	if !validName(name) {
		b.err = fmt.Errorf("schema: invalid type name %q", name)
		return b
	}
	b.t = &Type{
		desc: Descriptor{
			Namespace:      namespace,
			Name:           name,
			Class:          ClassEnum,
			EnumUnderlying: rt.Kind().String(),
		},
		goType: rt,
	}
	return b
}

// Member declares a named enum value.
func (b *EnumBuilder[T]) Member(name string, value int64) *EnumBuilder[T] {
	if b.err != nil {
		return b
	}
	for _, m := range b.t.desc.EnumMembers {
		if m.Name == name {
			b.err = fmt.Errorf("schema: %s: member %q declared twice", b.t.CanonicalName(), name)
			return b
		}
	}
	b.t.desc.EnumMembers = append(b.t.desc.EnumMembers, EnumMember{Name: name, Value: value})
	return b
}

func (b *EnumBuilder[T]) Build() (*Type, error) {
	if b.err != nil {
		return nil, b.err
	}
	members := b.t.desc.EnumMembers
	sort.SliceStable(members, func(i, j int) bool { return members[i].Value < members[j].Value })
	return b.t, nil
}

func (b *EnumBuilder[T]) MustBuild() *Type {
	return Must(b.Build())
}

// Surrogate makes T storable by routing its values through S. S must itself
// be a primitive or a type declared in the same Set.
func Surrogate[T, S any](namespace, name string, to func(T) S, from func(S) T) (*Type, error) {
	rt := reflect.TypeFor[T]()
	st := reflect.TypeFor[S]()
	if rt.Kind() == reflect.Interface || st.Kind() == reflect.Interface {
		return nil, fmt.Errorf("schema: %s: surrogate types must be concrete", CanonicalName(namespace, name))
	}
	if to == nil || from == nil {
		return nil, fmt.Errorf("schema: %s: both conversions are required", CanonicalName(namespace, name))
	}
	if !validName(name) {
		return nil, fmt.Errorf("schema: invalid type name %q", name)
	}
	return &Type{
		desc: Descriptor{
			Namespace: namespace,
			Name:      name,
			Class:     ClassSurrogate,
		},
		goType: rt,
		surrogate: &surrogateFuncs{
			goType: st,
			to: func(v reflect.Value) reflect.Value {
				return reflect.ValueOf(to(v.Interface().(T)))
			},
			from: func(v reflect.Value) reflect.Value {
				return reflect.ValueOf(from(v.Interface().(S)))
			},
		},
	}, nil
}

// Interface names an interface type so that collections declared over it
// are distinguishable from collections over other interfaces.
func Interface[T any](namespace, name string) (*Type, error) {
	rt := reflect.TypeFor[T]()
	if rt.Kind() != reflect.Interface {
		return nil, fmt.Errorf("schema: %s: %v is not an interface", CanonicalName(namespace, name), rt)
	}
	if !validName(name) {
		return nil, fmt.Errorf("schema: invalid type name %q", name)
	}
	return &Type{
		desc: Descriptor{
			Namespace: namespace,
			Name:      name,
			Class:     ClassInterface,
		},
		goType: rt,
	}, nil
}

// Must panics if err is non-nil.
func Must(t *Type, err error) *Type {
	if err != nil {
		panic(err)
	}
	return t
}

func valueType(rt reflect.Type) reflect.Type {
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	return rt
}

func isIntegerKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}
