package schema

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type order struct {
	ID     int64
	Lines  []line
	Notes  map[string]string
	Status status
	hidden int
}

type line struct {
	SKU string `stash:"2"`
	Qty int    `stash:"1"`
	Tmp bool   `stash:"-"`
}

type status uint8

func orderTypes(t *testing.T) []*Type {
	t.Helper()
	lt, err := Reflect[line]("shop")
	require.NoError(t, err)
	return []*Type{
		Struct[order]("shop", "Order").Field("ID", 1).Field("Lines", 2).Field("Notes", 3).Field("Status", 4).MustBuild(),
		lt,
		Enum[status]("shop", "Status").Member("Open", 1).Member("Closed", 2).MustBuild(),
	}
}

func TestBuilders(t *testing.T) {
	t.Run("Struct", func(t *testing.T) {
		_, err := Struct[order]("shop", "Order").Field("ID", 1).Field("ID", 2).Build()
		assert.ErrorContains(t, err, "declared twice")

		_, err = Struct[order]("shop", "Order").Field("ID", 1).Field("Notes", 1).Build()
		assert.ErrorContains(t, err, "order 1")

		_, err = Struct[order]("shop", "Order").Field("hidden", 1).Build()
		assert.ErrorContains(t, err, "not exported")

		_, err = Struct[order]("shop", "Order").Field("Missing", 1).Build()
		assert.Error(t, err)

		_, err = Struct[order]("shop", "Order").Field("ID", 0).Build()
		assert.ErrorContains(t, err, "non-positive")

		_, err = Struct[int]("shop", "Number").Build()
		assert.ErrorContains(t, err, "not a struct")

		_, err = Struct[order]("shop", "Bad Name").Build()
		assert.ErrorContains(t, err, "invalid type name")
	})

	t.Run("Reflect", func(t *testing.T) {
		lt, err := Reflect[line]("shop")
		require.NoError(t, err)
		d := lt.Descriptor()
		assert.Equal(t, "shop.line", d.CanonicalName())
		require.Len(t, d.Fields, 2)
		assert.Equal(t, "Qty", d.Fields[0].Name, "fields are sorted by order")
		assert.Equal(t, "SKU", d.Fields[1].Name)
	})

	t.Run("Enum", func(t *testing.T) {
		et := Enum[status]("shop", "Status").Member("Closed", 2).Member("Open", 1).MustBuild()
		d := et.Descriptor()
		assert.Equal(t, "uint8", d.EnumUnderlying)
		assert.Equal(t, []EnumMember{{Name: "Open", Value: 1}, {Name: "Closed", Value: 2}}, d.EnumMembers)

		_, err := Enum[string]("shop", "Word").Build()
		assert.ErrorContains(t, err, "integer kind")
	})

	t.Run("InterfaceAndSurrogate", func(t *testing.T) {
		_, err := Interface[order]("shop", "NotAnInterface")
		assert.Error(t, err)

		_, err = Surrogate[status, string]("shop", "S", nil, nil)
		assert.ErrorContains(t, err, "conversions")
	})

	t.Run("MustPanics", func(t *testing.T) {
		assert.Panics(t, func() { Must(nil, errors.New("boom")) })
	})
}

func TestSet(t *testing.T) {
	s, err := NewSet(orderTypes(t)...)
	require.NoError(t, err)

	t.Run("FieldReferences", func(t *testing.T) {
		ot, ok := s.Lookup(reflect.TypeFor[*order]())
		require.True(t, ok, "pointers are dereferenced")
		d := ot.Descriptor()
		f, ok := d.FieldByName("Lines")
		require.True(t, ok)
		assert.Equal(t, "[]shop.line", f.Type)
		f, _ = d.FieldByName("Notes")
		assert.Equal(t, "map[string]string", f.Type)
		f, _ = d.FieldByName("Status")
		assert.Equal(t, "shop.Status", f.Type)
	})

	t.Run("Composites", func(t *testing.T) {
		ct, err := s.TypeOf(reflect.TypeFor[map[string][]line]())
		require.NoError(t, err)
		assert.Equal(t, ClassMap, ct.Class())
		assert.Equal(t, "map[string][]shop.line", ct.CanonicalName())

		back, ok := s.ByName("map[string][]shop.line")
		require.True(t, ok)
		assert.Equal(t, reflect.TypeFor[map[string][]line](), back.GoType())

		arr, ok := s.ByName("[4]int32")
		require.True(t, ok)
		assert.Equal(t, reflect.TypeFor[[4]int32](), arr.GoType())

		_, ok = s.ByName("[]shop.Unknown")
		assert.False(t, ok)
	})

	t.Run("Interfaces", func(t *testing.T) {
		it, err := s.TypeOf(reflect.TypeFor[error]())
		require.NoError(t, err)
		assert.Equal(t, AnyName, it.CanonicalName(), "undeclared interfaces are any")
	})

	t.Run("Unknown", func(t *testing.T) {
		type stray struct{}
		_, err := s.TypeOf(reflect.TypeFor[stray]())
		assert.ErrorIs(t, err, ErrUnknownType)
		_, err = s.TypeOf(reflect.TypeFor[[]stray]())
		assert.ErrorIs(t, err, ErrUnknownType)
	})

	t.Run("Builtins", func(t *testing.T) {
		for _, name := range []string{"bool", "int64", "uint64", "float32", "string", "bytes", "time.Time", "time.Duration", "netip.Addr", AnyName} {
			_, ok := s.ByName(name)
			assert.True(t, ok, name)
		}
	})

	t.Run("Conflicts", func(t *testing.T) {
		_, err := NewSet(Struct[order]("shop", "Order").Field("ID", 1).MustBuild())
		require.NoError(t, err)

		_, err = NewSet(
			Struct[order]("shop", "Order").Field("ID", 1).MustBuild(),
			Struct[line]("shop", "Order").Field("Qty", 1).MustBuild(),
		)
		assert.ErrorContains(t, err, "declared for both")

		// Lines references shop.line, which is not declared.
		_, err = NewSet(Struct[order]("shop", "Order").Field("Lines", 1).MustBuild())
		assert.ErrorIs(t, err, ErrUnknownType)
	})
}

func TestCompatibility(t *testing.T) {
	base := Descriptor{
		Namespace: "shop", Name: "Order", Class: ClassStruct,
		Fields: []Field{{Name: "ID", Order: 1, Type: "int64"}, {Name: "Total", Order: 2, Type: "float64"}},
	}

	tests := []struct {
		name     string
		mutate   func(d *Descriptor)
		breaking bool
	}{
		{"Unchanged", func(d *Descriptor) {}, false},
		{"AddedField", func(d *Descriptor) { d.Fields = append(d.Fields, Field{Name: "Note", Order: 3, Type: "string"}) }, false},
		{"RemovedField", func(d *Descriptor) { d.Fields = d.Fields[:1] }, false},
		{"ChangedFieldType", func(d *Descriptor) { d.Fields[1].Type = "string" }, true},
		{"MovedField", func(d *Descriptor) { d.Fields[1].Order = 5 }, true},
		{"ReusedOrder", func(d *Descriptor) { d.Fields[1] = Field{Name: "Discount", Order: 2, Type: "float64"} }, true},
		{"ChangedClass", func(d *Descriptor) { d.Class = ClassEnum }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cur := base.Clone()
			tt.mutate(&cur)
			err := CheckCompatibility(&base, &cur)
			if !tt.breaking {
				assert.NoError(t, err)
				return
			}
			var bc *BreakingChangeError
			require.ErrorAs(t, err, &bc)
			assert.Equal(t, "shop.Order", bc.Type)
		})
	}

	t.Run("Enums", func(t *testing.T) {
		old := Descriptor{Name: "Status", Class: ClassEnum, EnumUnderlying: "uint8"}
		cur := old.Clone()
		cur.EnumMembers = []EnumMember{{Name: "New", Value: 3}}
		assert.NoError(t, CheckCompatibility(&old, &cur))
		cur.EnumUnderlying = "int32"
		assert.Error(t, CheckCompatibility(&old, &cur))
	})
}

func TestMerge(t *testing.T) {
	old := Descriptor{
		Namespace: "shop", Name: "Order", Class: ClassStruct,
		Fields: []Field{{Name: "ID", Order: 1, Type: "int64"}, {Name: "Legacy", Order: 2, Type: "string"}},
	}
	cur := Descriptor{
		Namespace: "shop", Name: "Order", Class: ClassStruct,
		Fields: []Field{{Name: "ID", Order: 1, Type: "int64"}, {Name: "Note", Order: 3, Type: "string"}},
	}

	m := Merge(&old, &cur)
	require.Len(t, m.Fields, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{m.Fields[0].Order, m.Fields[1].Order, m.Fields[2].Order})
	assert.False(t, Equal(&m, &cur))
	assert.True(t, Equal(&m, &m))

	// Reassigning the retired order id is detected against the merged form.
	next := cur.Clone()
	next.Fields = append(next.Fields, Field{Name: "Other", Order: 2, Type: "string"})
	assert.Error(t, CheckCompatibility(&m, &next))
}

func TestDescriptorString(t *testing.T) {
	d := Descriptor{
		Namespace: "shop", Name: "Order", Class: ClassStruct,
		Fields: []Field{{Name: "ID", Order: 1, Type: "int64"}},
	}
	assert.Equal(t, "struct shop.Order{1:ID int64}", d.String())

	c, err := ParseClass(ClassMap.String())
	require.NoError(t, err)
	assert.Equal(t, ClassMap, c)
}
