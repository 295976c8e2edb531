package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/liliang-cn/sqstash/pkg/schema"
)

// Kind identifies the shape of a collection
type Kind int

const (
	KindBag Kind = iota + 1
	KindQueue
	KindDictionary
	KindMultiValueDictionary
	KindHashSet
	KindIntervalCollection
	KindOrderedCollection
	KindPoint2DCollection
)

var kindNames = map[Kind]string{
	KindBag:                  "Bag",
	KindQueue:                "Queue",
	KindDictionary:           "Dictionary",
	KindMultiValueDictionary: "MultiValueDictionary",
	KindHashSet:              "HashSet",
	KindIntervalCollection:   "IntervalCollection",
	KindOrderedCollection:    "OrderedCollection",
	KindPoint2DCollection:    "Point2DCollection",
}

var kindTables = map[Kind]string{
	KindBag:                  "bag",
	KindQueue:                "queue",
	KindDictionary:           "dict",
	KindMultiValueDictionary: "multidict",
	KindHashSet:              "hashset",
	KindIntervalCollection:   "interval",
	KindOrderedCollection:    "ordered",
	KindPoint2DCollection:    "point2d",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind is the inverse of Kind.String
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown collection kind %q", s)
}

// MarshalText encodes k by name
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// CollectionInfo is the catalog record of a collection
type CollectionInfo struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	Table     string    `json:"table"`
	KeyType   string    `json:"key_type,omitempty"`
	ValueType string    `json:"value_type"`
	Dropped   bool      `json:"dropped,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	keyTypeID   int32
	valueTypeID int32
}

// Collection is implemented by every collection handle
type Collection interface {
	Name() string
	Kind() Kind
	base() *collection
}

type openMode int

const (
	openOrCreate openMode = iota
	openCreate
	openExisting
)

type handleKey struct {
	name   string
	handle reflect.Type
}

type collectionState struct {
	dropped atomic.Bool
}

// catalog caches handles so that repeated opens with the same name and
// handle type share one instance.
type catalog struct {
	mu      sync.Mutex
	handles map[handleKey]Collection
	states  map[int64]*collectionState
}

func newCatalog() *catalog {
	return &catalog{
		handles: make(map[handleKey]Collection),
		states:  make(map[int64]*collectionState),
	}
}

func (c *catalog) state(id int64) *collectionState {
	s, ok := c.states[id]
	if !ok {
		s = &collectionState{}
		c.states[id] = s
	}
	return s
}

// collectionSpec describes the collection a handle type needs.
type collectionSpec struct {
	kind     Kind
	key      reflect.Type // nil for keyless kinds
	value    reflect.Type
	keyCheck func(reflect.Type) error
}

func openCollection[H Collection](ctx context.Context, d *Database, name string, mode openMode, spec collectionSpec, build func(*collection) H) (H, error) {
	var zero H
	if err := d.checkOpen(); err != nil {
		return zero, err
	}
	if name == "" {
		return zero, &ArgumentError{Msg: "collection name cannot be empty"}
	}
	if spec.keyCheck != nil {
		if err := spec.keyCheck(spec.key); err != nil {
			return zero, err
		}
	}

	var keyT *schema.Type
	if spec.key != nil {
		t, err := d.types.TypeOf(spec.key)
		if err != nil {
			return zero, argErrorf(err, "key type of %q", name)
		}
		keyT = t
	}
	valT, err := d.types.TypeOf(spec.value)
	if err != nil {
		return zero, argErrorf(err, "value type of %q", name)
	}

	hk := handleKey{name: name, handle: reflect.TypeFor[H]()}

	d.catalog.mu.Lock()
	defer d.catalog.mu.Unlock()

	if h, ok := d.catalog.handles[hk]; ok {
		if mode == openCreate {
			return zero, &CollectionNameInUseError{Name: name, Kind: h.Kind()}
		}
		return h.(H), nil
	}

	info, found, err := d.findCollection(ctx, name)
	if err != nil {
		return zero, err
	}
	if found {
		if mode == openCreate {
			return zero, &CollectionNameInUseError{Name: name, Kind: info.Kind}
		}
		if info.Kind != spec.kind {
			return zero, &WrongCollectionTypeError{Name: name, Requested: spec.kind, Actual: info.Kind}
		}
		if keyT != nil {
			if err := d.matchType(info, "key", info.keyTypeID, keyT); err != nil {
				return zero, err
			}
		}
		if err := d.matchType(info, "value", info.valueTypeID, valT); err != nil {
			return zero, err
		}
	} else {
		if mode == openExisting {
			return zero, &NoSuchCollectionError{Name: name}
		}
		if d.readOnly {
			return zero, ErrReadOnly
		}
		info, err = d.createCollection(ctx, name, spec, keyT, valT)
		if err != nil {
			return zero, err
		}
	}

	c := &collection{
		db:    d,
		info:  info,
		table: quoteIdent(info.Table),
		state: d.catalog.state(info.ID),
		value: viewColumn(spec.value, d.storedGoType(info.valueTypeID)),
	}
	if spec.key != nil {
		c.key = viewColumn(spec.key, d.storedGoType(info.keyTypeID))
	}
	h := build(c)
	d.catalog.handles[hk] = h
	return h, nil
}

// matchType checks a requested key or value type against the stored one.
// Interface handles may view collections of any type assignable to them.
func (d *Database) matchType(info CollectionInfo, role string, storedID int32, requested *schema.Type) error {
	stored, _ := d.registry.NameOf(storedID)
	if stored == requested.CanonicalName() {
		if bc := d.registry.Broken(stored); bc != nil {
			return bc
		}
		return nil
	}
	if requested.Class() == schema.ClassInterface {
		st, ok := d.registry.Resolve(storedID)
		if !ok {
			if bc := d.registry.Broken(stored); bc != nil {
				return bc
			}
			return &TypeNotResolvedError{Type: stored, Collection: info.Name}
		}
		if _, _, ok := allocFor(st.GoType(), requested.GoType()); ok {
			return nil
		}
	}
	return &TypeMismatchError{Name: info.Name, Role: role, Stored: stored, Requested: requested.CanonicalName()}
}

func (d *Database) storedGoType(id int32) reflect.Type {
	if t, ok := d.registry.Resolve(id); ok {
		return t.GoType()
	}
	return nil
}

func (d *Database) findCollection(ctx context.Context, name string) (CollectionInfo, bool, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT c.id, c.name, c.kind, c.table_name, c.key_type, c.value_type, c.dropped, c.created_at
		FROM collections c WHERE c.name = ? AND c.dropped = 0
	`, name)
	info, err := d.scanCollection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return CollectionInfo{}, false, nil
	}
	if err != nil {
		return CollectionInfo{}, false, wrapError("find collection", err)
	}
	return info, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (d *Database) scanCollection(row rowScanner) (CollectionInfo, error) {
	var (
		info    CollectionInfo
		kind    string
		keyType sql.NullInt32
	)
	if err := row.Scan(&info.ID, &info.Name, &kind, &info.Table, &keyType, &info.valueTypeID, &info.Dropped, &info.CreatedAt); err != nil {
		return info, err
	}
	k, err := ParseKind(kind)
	if err != nil {
		return info, err
	}
	info.Kind = k
	if keyType.Valid {
		info.keyTypeID = keyType.Int32
		info.KeyType, _ = d.registry.NameOf(keyType.Int32)
	}
	info.ValueType, _ = d.registry.NameOf(info.valueTypeID)
	return info, nil
}

func (d *Database) createCollection(ctx context.Context, name string, spec collectionSpec, keyT, valT *schema.Type) (CollectionInfo, error) {
	// Type ids are minted before the transaction; in-memory sessions have a
	// single connection.
	var keyID sql.NullInt32
	if keyT != nil {
		id, err := d.registry.GetOrCreateID(ctx, keyT)
		if err != nil {
			return CollectionInfo{}, err
		}
		keyID = sql.NullInt32{Int32: id, Valid: true}
	}
	valID, err := d.registry.GetOrCreateID(ctx, valT)
	if err != nil {
		return CollectionInfo{}, err
	}

	info := CollectionInfo{
		Name:        name,
		Kind:        spec.kind,
		ValueType:   valT.CanonicalName(),
		CreatedAt:   time.Now().UTC(),
		valueTypeID: valID,
	}
	if keyT != nil {
		info.KeyType = keyT.CanonicalName()
		info.keyTypeID = keyID.Int32
	}

	var keyCol column
	if spec.key != nil {
		keyCol = newColumn(spec.key)
	}
	valCol := newColumn(spec.value)

	err = d.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO collections (name, kind, key_type, value_type) VALUES (?, ?, ?, ?)
		`, name, spec.kind.String(), keyID, valID)
		if err != nil {
			return fmt.Errorf("failed to insert collection: %w", err)
		}
		info.ID, err = res.LastInsertId()
		if err != nil {
			return err
		}
		info.Table = fmt.Sprintf("%s_%d", kindTables[spec.kind], info.ID)
		if _, err := tx.ExecContext(ctx, `UPDATE collections SET table_name = ? WHERE id = ?`, info.Table, info.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, createTableSQL(spec.kind, info.Table, keyCol, valCol)); err != nil {
			return fmt.Errorf("failed to create table %s: %w", info.Table, err)
		}
		return nil
	})
	if err != nil {
		return CollectionInfo{}, wrapError("create collection", err)
	}

	d.logger.Info("collection created", "name", name, "kind", spec.kind, "table", info.Table)
	return info, nil
}

func createTableSQL(kind Kind, table string, key, value column) string {
	t := quoteIdent(table)
	idx := func(suffix string) string { return quoteIdent(table + "_" + suffix) }
	const rowID = "row_id INTEGER PRIMARY KEY AUTOINCREMENT"

	switch kind {
	case KindHashSet:
		return fmt.Sprintf(`
			CREATE TABLE %s (%s, hash INTEGER NOT NULL, value %s NOT NULL);
			CREATE INDEX %s ON %s(hash);`,
			t, rowID, value.affinity(), idx("hash"), t)
	case KindDictionary:
		return fmt.Sprintf(`CREATE TABLE %s (%s, key %s NOT NULL UNIQUE, value %s);`,
			t, rowID, key.affinity(), value.affinity())
	case KindMultiValueDictionary:
		return fmt.Sprintf(`
			CREATE TABLE %s (%s, key %s NOT NULL, value %s);
			CREATE INDEX %s ON %s(key);`,
			t, rowID, key.affinity(), value.affinity(), idx("key"), t)
	case KindIntervalCollection:
		return fmt.Sprintf(`
			CREATE TABLE %s (%s, lo %s NOT NULL, hi %s NOT NULL, value %s);
			CREATE INDEX %s ON %s(lo, hi);`,
			t, rowID, key.affinity(), key.affinity(), value.affinity(), idx("lo_hi"), t)
	case KindOrderedCollection:
		return fmt.Sprintf(`
			CREATE TABLE %s (%s, key %s NOT NULL, value %s);
			CREATE INDEX %s ON %s(key, row_id);`,
			t, rowID, key.affinity(), value.affinity(), idx("key"), t)
	case KindPoint2DCollection:
		return fmt.Sprintf(`
			CREATE TABLE %s (%s, x REAL NOT NULL, y REAL NOT NULL, value %s);
			CREATE INDEX %s ON %s(x, y);`,
			t, rowID, value.affinity(), idx("xy"), t)
	default:
		return fmt.Sprintf(`CREATE TABLE %s (%s, value %s);`, t, rowID, value.affinity())
	}
}

// RemoveCollection marks the collection behind c as removed. Every handle to it becomes
// unusable and its name becomes free. Removing twice is a no-op.
func (d *Database) RemoveCollection(ctx context.Context, c Collection) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	if d.readOnly {
		return ErrReadOnly
	}
	b := c.base()
	if b.db != d {
		return &ArgumentError{Msg: "collection belongs to a different database"}
	}

	d.catalog.mu.Lock()
	defer d.catalog.mu.Unlock()

	if b.state.dropped.Load() {
		return nil
	}
	// The record and its table are kept; only the flag changes.
	_, err := d.db.ExecContext(ctx, `UPDATE collections SET dropped = 1 WHERE id = ?`, b.info.ID)
	if err != nil {
		return wrapError("remove collection", err)
	}

	b.state.dropped.Store(true)
	for k := range d.catalog.handles {
		if k.name == b.info.Name {
			delete(d.catalog.handles, k)
		}
	}
	d.logger.Info("collection removed", "name", b.info.Name, "kind", b.info.Kind)
	return nil
}

// Collections lists the catalog, optionally including removed collections.
func (d *Database) Collections(ctx context.Context, includeRemoved bool) ([]CollectionInfo, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	query := `SELECT id, name, kind, table_name, key_type, value_type, dropped, created_at FROM collections`
	if !includeRemoved {
		query += ` WHERE dropped = 0`
	}
	query += ` ORDER BY id`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapError("list collections", err)
	}
	defer rows.Close()

	var out []CollectionInfo
	for rows.Next() {
		info, err := d.scanCollection(rows)
		if err != nil {
			return nil, wrapError("list collections", err)
		}
		out = append(out, info)
	}
	return out, wrapError("list collections", rows.Err())
}

// Collection returns the catalog record of a live collection.
func (d *Database) Collection(ctx context.Context, name string) (CollectionInfo, error) {
	if err := d.checkOpen(); err != nil {
		return CollectionInfo{}, err
	}
	info, found, err := d.findCollection(ctx, name)
	if err != nil {
		return CollectionInfo{}, err
	}
	if !found {
		return CollectionInfo{}, &NoSuchCollectionError{Name: name}
	}
	return info, nil
}

// CollectionCount returns the number of rows stored in a live collection without
// needing its Go types.
func (d *Database) CollectionCount(ctx context.Context, name string) (int64, error) {
	info, err := d.Collection(ctx, name)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+quoteIdent(info.Table)).Scan(&n); err != nil {
		return 0, wrapError("count", err)
	}
	return n, nil
}

func quoteIdent(s string) string {
	return `"` + s + `"`
}
