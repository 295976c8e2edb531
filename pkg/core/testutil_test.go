package core

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/liliang-cn/sqstash/pkg/schema"
	"github.com/stretchr/testify/require"
)

type Person struct {
	Name string
	Age  int32
}

type Shape interface {
	Area() float64
}

type Square struct {
	Side float64
}

func (s Square) Area() float64 { return s.Side * s.Side }

type Circle struct {
	Radius float64
}

func (c *Circle) Area() float64 { return 3 * c.Radius * c.Radius }

type Holder struct {
	Label string
	Item  any
	Tags  []string
	Attrs map[string]int
	Owner *Person
}

type Color int

const (
	Red Color = iota + 1
	Green
)

func personType() *schema.Type {
	return schema.Struct[Person]("acme.model", "Person").
		Field("Name", 1).
		Field("Age", 2).
		MustBuild()
}

func testTypes() []*schema.Type {
	return []*schema.Type{
		personType(),
		schema.Struct[Square]("acme.shapes", "Square").Field("Side", 1).MustBuild(),
		schema.Struct[Circle]("acme.shapes", "Circle").Field("Radius", 1).MustBuild(),
		schema.Must(schema.Interface[Shape]("acme.shapes", "Shape")),
		schema.Struct[Holder]("acme.model", "Holder").
			Field("Label", 1).
			Field("Item", 2).
			Field("Tags", 3).
			Field("Attrs", 4).
			Field("Owner", 5).
			MustBuild(),
		schema.Enum[Color]("acme.model", "Color").Member("Red", 1).Member("Green", 2).MustBuild(),
	}
}

func openMemory(t *testing.T, types ...*schema.Type) *Database {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Mode = ModeMemory
	cfg.Types = types
	db, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tempPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "stash.db")
}

func openFile(t *testing.T, path string, mode OpenMode, types ...*schema.Type) *Database {
	t.Helper()
	db, err := tryOpenFile(path, mode, types...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tryOpenFile(path string, mode OpenMode, types ...*schema.Type) (*Database, error) {
	cfg := DefaultConfig()
	cfg.Path = path
	cfg.Mode = mode
	cfg.Types = types
	return Open(context.Background(), cfg)
}
