package schema

import (
	"reflect"
)

// Type binds a Descriptor to the Go type that implements it in the current
// process. Types are created with the builders in this package and become
// usable once they are part of a Set.
type Type struct {
	desc      Descriptor
	goType    reflect.Type
	fields    []boundField
	byOrder   map[int]int
	surrogate *surrogateFuncs
}

type boundField struct {
	Field
	index  []int
	goType reflect.Type
}

type surrogateFuncs struct {
	goType reflect.Type
	to     func(reflect.Value) reflect.Value
	from   func(reflect.Value) reflect.Value
}

// StructField is the runtime view of a stored struct field.
type StructField struct {
	Name  string
	Order int
	Index []int
}

func (t *Type) clone() *Type {
	c := *t
	c.desc = t.desc.Clone()
	c.fields = append([]boundField(nil), t.fields...)
	c.byOrder = make(map[int]int, len(t.fields))
	for i, f := range c.fields {
		c.byOrder[f.Order] = i
	}
	return &c
}

// Descriptor returns a copy of the type's descriptor.
func (t *Type) Descriptor() Descriptor {
	return t.desc.Clone()
}

func (t *Type) CanonicalName() string { return t.desc.CanonicalName() }
func (t *Type) Class() Class          { return t.desc.Class }

// GoType returns the value form of the bound Go type. Pointers are never
// returned; a *T is stored as T.
func (t *Type) GoType() reflect.Type { return t.goType }

// StructFields lists stored fields in order id order.
func (t *Type) StructFields() []StructField {
	out := make([]StructField, len(t.fields))
	for i, f := range t.fields {
		out[i] = StructField{Name: f.Name, Order: f.Order, Index: f.index}
	}
	return out
}

// FieldIndex returns the Go field index for a stored order id.
func (t *Type) FieldIndex(order int) ([]int, bool) {
	i, ok := t.byOrder[order]
	if !ok {
		return nil, false
	}
	return t.fields[i].index, true
}

// SurrogateGoType returns the Go type values are converted to for storage.
func (t *Type) SurrogateGoType() reflect.Type {
	if t.surrogate == nil {
		return nil
	}
	return t.surrogate.goType
}

// ToSurrogate converts a value of t into its stand-in.
func (t *Type) ToSurrogate(v reflect.Value) reflect.Value {
	return t.surrogate.to(v)
}

// FromSurrogate converts a stand-in value back into t.
func (t *Type) FromSurrogate(v reflect.Value) reflect.Value {
	return t.surrogate.from(v)
}

// IsPrimitive reports whether t is one of the built-in primitive types.
func (t *Type) IsPrimitive() bool { return t.desc.Class == ClassPrimitive }

func (t *Type) String() string { return t.desc.String() }
