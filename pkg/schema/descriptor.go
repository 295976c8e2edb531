package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Class classifies what kind of structure a Descriptor describes.
type Class int

const (
	ClassPrimitive Class = iota
	ClassStruct
	ClassEnum
	ClassSlice
	ClassArray
	ClassMap
	ClassInterface
	ClassSurrogate
)

// String returns the persisted name of the class
func (c Class) String() string {
	switch c {
	case ClassPrimitive:
		return "primitive"
	case ClassStruct:
		return "struct"
	case ClassEnum:
		return "enum"
	case ClassSlice:
		return "slice"
	case ClassArray:
		return "array"
	case ClassMap:
		return "map"
	case ClassInterface:
		return "interface"
	case ClassSurrogate:
		return "surrogate"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// ParseClass is the inverse of Class.String.
func ParseClass(s string) (Class, error) {
	for c := ClassPrimitive; c <= ClassSurrogate; c++ {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown type class %q", s)
}

// Field describes one stored field of a struct type.
//
// Order is the stable wire identifier of the field; Type is the canonical
// name of the field's declared type.
type Field struct {
	Name  string `json:"name"`
	Order int    `json:"order"`
	Type  string `json:"type"`
}

// EnumMember is a named constant of an enum type.
type EnumMember struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

// Descriptor is the canonical, storage-independent description of a type.
// Two descriptors with the same canonical name describe the same logical type.
type Descriptor struct {
	Namespace string
	Name      string
	Class     Class

	// Struct
	Fields []Field
	Base   string

	// Enum
	EnumUnderlying string
	EnumMembers    []EnumMember

	// Slice, Array, Map
	Elem string
	Key  string

	// Surrogate
	Surrogate string
}

// CanonicalName returns the globally unique name of the type.
func (d *Descriptor) CanonicalName() string {
	return CanonicalName(d.Namespace, d.Name)
}

// CanonicalName joins a namespace and a name.
func CanonicalName(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "." + name
}

// FieldByOrder returns the field with the given order id.
func (d *Descriptor) FieldByOrder(order int) (Field, bool) {
	for _, f := range d.Fields {
		if f.Order == order {
			return f, true
		}
	}
	return Field{}, false
}

// FieldByName returns the field with the given name.
func (d *Descriptor) FieldByName(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Clone returns a deep copy of d.
func (d *Descriptor) Clone() Descriptor {
	c := *d
	c.Fields = append([]Field(nil), d.Fields...)
	c.EnumMembers = append([]EnumMember(nil), d.EnumMembers...)
	return c
}

func (d *Descriptor) sortFields() {
	sort.Slice(d.Fields, func(i, j int) bool { return d.Fields[i].Order < d.Fields[j].Order })
}

// String renders a short human-readable form, e.g. "struct acme.Person{1:Name string, 2:Age int32}".
func (d *Descriptor) String() string {
	var buf strings.Builder
	buf.WriteString(d.Class.String())
	buf.WriteByte(' ')
	buf.WriteString(d.CanonicalName())
	switch d.Class {
	case ClassStruct:
		buf.WriteByte('{')
		for i, f := range d.Fields {
			if i > 0 {
				buf.WriteString(", ")
			}
			fmt.Fprintf(&buf, "%d:%s %s", f.Order, f.Name, f.Type)
		}
		buf.WriteByte('}')
	case ClassEnum:
		fmt.Fprintf(&buf, "(%s)", d.EnumUnderlying)
	case ClassSurrogate:
		fmt.Fprintf(&buf, " via %s", d.Surrogate)
	}
	return buf.String()
}

func validName(s string) bool {
	return s != "" && !strings.ContainsAny(s, "[]* \t\n")
}
