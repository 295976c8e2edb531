package sqstash

import (
	"cmp"
	"context"
	"fmt"

	"github.com/liliang-cn/sqstash/pkg/core"
	"github.com/liliang-cn/sqstash/pkg/geo"
	"github.com/liliang-cn/sqstash/pkg/schema"
)

// Database is an open session on a stash file or a private in-memory stash
type Database = core.Database

// Type declares how a Go type is stored
type Type = schema.Type

// Collection handles and the records they return
type (
	Bag[V any]                                = core.Bag[V]
	Queue[V any]                              = core.Queue[V]
	HashSet[V any]                            = core.HashSet[V]
	Dictionary[K comparable, V any]           = core.Dictionary[K, V]
	MultiValueDictionary[K comparable, V any] = core.MultiValueDictionary[K, V]
	IntervalCollection[K cmp.Ordered, V any]  = core.IntervalCollection[K, V]
	OrderedCollection[K cmp.Ordered, V any]   = core.OrderedCollection[K, V]
	Point2DCollection[V any]                  = core.Point2DCollection[V]
	RowID                                     = core.RowID
	Row[V any]                                = core.Row[V]
	Entry[K, V any]                           = core.Entry[K, V]
	KeyValue[K, V any]                        = core.KeyValue[K, V]
	Interval[K cmp.Ordered]                   = core.Interval[K]
	IntervalEntry[K cmp.Ordered, V any]       = core.IntervalEntry[K, V]
	PointEntry[V any]                         = core.PointEntry[V]
	Point                                     = geo.Point
	Rectangle                                 = geo.Rectangle
	CollectionInfo                            = core.CollectionInfo
	Kind                                      = core.Kind
)

// Open opens the database described by config for the given types.
func Open(ctx context.Context, config Config, types ...*Type) (*Database, error) {
	cc, err := config.CoreConfig(types...)
	if err != nil {
		return nil, err
	}
	db, err := core.Open(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", describe(cc), err)
	}
	return db, nil
}

// CreateInMemory opens a private database that lives as long as the session.
func CreateInMemory(ctx context.Context, types ...*Type) (*Database, error) {
	cfg := DefaultConfig("")
	cfg.Mode = core.ModeMemory.String()
	return Open(ctx, cfg, types...)
}

// OpenOrCreate opens the file at path for reading and writing, creating it
// if it does not exist.
func OpenOrCreate(ctx context.Context, path string, types ...*Type) (*Database, error) {
	return Open(ctx, DefaultConfig(path), types...)
}

// OpenRead opens an existing file without write access.
func OpenRead(ctx context.Context, path string, types ...*Type) (*Database, error) {
	cfg := DefaultConfig(path)
	cfg.Mode = core.ModeReadOnly.String()
	return Open(ctx, cfg, types...)
}

func describe(cc core.Config) string {
	if cc.Mode == core.ModeMemory {
		return "in-memory database"
	}
	return fmt.Sprintf("%s (%s)", cc.Path, cc.Mode)
}

// GetOrCreateBag opens the bag called name, creating it if needed.
func GetOrCreateBag[V any](ctx context.Context, db *Database, name string) (*Bag[V], error) {
	return core.GetOrCreateBag[V](ctx, db, name)
}

// GetOrCreateQueue opens the queue called name, creating it if needed.
func GetOrCreateQueue[V any](ctx context.Context, db *Database, name string) (*Queue[V], error) {
	return core.GetOrCreateQueue[V](ctx, db, name)
}

// GetOrCreateHashSet opens the set called name, creating it if needed.
func GetOrCreateHashSet[V any](ctx context.Context, db *Database, name string) (*HashSet[V], error) {
	return core.GetOrCreateHashSet[V](ctx, db, name)
}

// GetOrCreateDictionary opens the dictionary called name, creating it if needed.
func GetOrCreateDictionary[K comparable, V any](ctx context.Context, db *Database, name string) (*Dictionary[K, V], error) {
	return core.GetOrCreateDictionary[K, V](ctx, db, name)
}

// GetOrCreateMultiValueDictionary opens the dictionary called name, creating it if needed.
func GetOrCreateMultiValueDictionary[K comparable, V any](ctx context.Context, db *Database, name string) (*MultiValueDictionary[K, V], error) {
	return core.GetOrCreateMultiValueDictionary[K, V](ctx, db, name)
}

// GetOrCreateIntervalCollection opens the collection called name, creating it if needed.
func GetOrCreateIntervalCollection[K cmp.Ordered, V any](ctx context.Context, db *Database, name string) (*IntervalCollection[K, V], error) {
	return core.GetOrCreateIntervalCollection[K, V](ctx, db, name)
}

// GetOrCreateOrderedCollection opens the collection called name, creating it if needed.
func GetOrCreateOrderedCollection[K cmp.Ordered, V any](ctx context.Context, db *Database, name string) (*OrderedCollection[K, V], error) {
	return core.GetOrCreateOrderedCollection[K, V](ctx, db, name)
}

// GetOrCreatePoint2DCollection opens the collection called name, creating it if needed.
func GetOrCreatePoint2DCollection[V any](ctx context.Context, db *Database, name string) (*Point2DCollection[V], error) {
	return core.GetOrCreatePoint2DCollection[V](ctx, db, name)
}

// CreateBag creates a new bag called name; the name must be unused.
func CreateBag[V any](ctx context.Context, db *Database, name string) (*Bag[V], error) {
	return core.CreateBag[V](ctx, db, name)
}

// GetBag opens the existing bag called name.
func GetBag[V any](ctx context.Context, db *Database, name string) (*Bag[V], error) {
	return core.GetBag[V](ctx, db, name)
}

// CreateQueue creates a new queue called name; the name must be unused.
func CreateQueue[V any](ctx context.Context, db *Database, name string) (*Queue[V], error) {
	return core.CreateQueue[V](ctx, db, name)
}

// GetQueue opens the existing queue called name.
func GetQueue[V any](ctx context.Context, db *Database, name string) (*Queue[V], error) {
	return core.GetQueue[V](ctx, db, name)
}

// CreateHashSet creates a new set called name; the name must be unused.
func CreateHashSet[V any](ctx context.Context, db *Database, name string) (*HashSet[V], error) {
	return core.CreateHashSet[V](ctx, db, name)
}

// GetHashSet opens the existing set called name.
func GetHashSet[V any](ctx context.Context, db *Database, name string) (*HashSet[V], error) {
	return core.GetHashSet[V](ctx, db, name)
}

// CreateDictionary creates a new dictionary called name; the name must be unused.
func CreateDictionary[K comparable, V any](ctx context.Context, db *Database, name string) (*Dictionary[K, V], error) {
	return core.CreateDictionary[K, V](ctx, db, name)
}

// GetDictionary opens the existing dictionary called name.
func GetDictionary[K comparable, V any](ctx context.Context, db *Database, name string) (*Dictionary[K, V], error) {
	return core.GetDictionary[K, V](ctx, db, name)
}

// CreateMultiValueDictionary creates a new dictionary called name; the name must be unused.
func CreateMultiValueDictionary[K comparable, V any](ctx context.Context, db *Database, name string) (*MultiValueDictionary[K, V], error) {
	return core.CreateMultiValueDictionary[K, V](ctx, db, name)
}

// GetMultiValueDictionary opens the existing dictionary called name.
func GetMultiValueDictionary[K comparable, V any](ctx context.Context, db *Database, name string) (*MultiValueDictionary[K, V], error) {
	return core.GetMultiValueDictionary[K, V](ctx, db, name)
}

// CreateIntervalCollection creates a new collection called name; the name must be unused.
func CreateIntervalCollection[K cmp.Ordered, V any](ctx context.Context, db *Database, name string) (*IntervalCollection[K, V], error) {
	return core.CreateIntervalCollection[K, V](ctx, db, name)
}

// GetIntervalCollection opens the existing collection called name.
func GetIntervalCollection[K cmp.Ordered, V any](ctx context.Context, db *Database, name string) (*IntervalCollection[K, V], error) {
	return core.GetIntervalCollection[K, V](ctx, db, name)
}

// CreateOrderedCollection creates a new collection called name; the name must be unused.
func CreateOrderedCollection[K cmp.Ordered, V any](ctx context.Context, db *Database, name string) (*OrderedCollection[K, V], error) {
	return core.CreateOrderedCollection[K, V](ctx, db, name)
}

// GetOrderedCollection opens the existing collection called name.
func GetOrderedCollection[K cmp.Ordered, V any](ctx context.Context, db *Database, name string) (*OrderedCollection[K, V], error) {
	return core.GetOrderedCollection[K, V](ctx, db, name)
}

// CreatePoint2DCollection creates a new collection called name; the name must be unused.
func CreatePoint2DCollection[V any](ctx context.Context, db *Database, name string) (*Point2DCollection[V], error) {
	return core.CreatePoint2DCollection[V](ctx, db, name)
}

// GetPoint2DCollection opens the existing collection called name.
func GetPoint2DCollection[V any](ctx context.Context, db *Database, name string) (*Point2DCollection[V], error) {
	return core.GetPoint2DCollection[V](ctx, db, name)
}
