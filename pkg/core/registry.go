package core

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/liliang-cn/sqstash/pkg/schema"
)

// TypeEntry describes one type recorded in the database.
type TypeEntry struct {
	ID         int32
	Descriptor schema.Descriptor
	// Resolved reports whether the current session can read values of the type.
	Resolved bool
	Broken   *BreakingChangeError
}

type registryEntry struct {
	id     int32
	desc   schema.Descriptor
	bound  *schema.Type
	broken *BreakingChangeError
}

// TypeRegistry assigns persistent numeric ids to canonical type names and
// binds them to the Go types of the current session.
type TypeRegistry struct {
	db       *sql.DB
	set      *schema.Set
	readOnly bool
	// shared is set for file databases, where other sessions may record
	// types after this one has loaded the registry.
	shared bool
	logger Logger

	mu     sync.RWMutex
	byID   map[int32]*registryEntry
	byName map[string]*registryEntry
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func newTypeRegistry(db *sql.DB, set *schema.Set, readOnly, shared bool, logger Logger) *TypeRegistry {
	return &TypeRegistry{
		db:       db,
		set:      set,
		readOnly: readOnly,
		shared:   shared,
		logger:   logger,
		byID:     make(map[int32]*registryEntry),
		byName:   make(map[string]*registryEntry),
	}
}

// load reads every persisted descriptor.
func (r *TypeRegistry) load(ctx context.Context) error {
	rows, err := r.db.QueryContext(ctx, selectTypes+` ORDER BY id`)
	if err != nil {
		return fmt.Errorf("failed to load types: %w", err)
	}
	var entries []*registryEntry
	for rows.Next() {
		e, err := scanType(rows)
		if err != nil {
			rows.Close()
			return err
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	byID := make(map[int32]*registryEntry, len(entries))
	for _, e := range entries {
		byID[e.id] = e
	}

	rows, err = r.db.QueryContext(ctx, `SELECT type_id, field_order, name, field_type FROM type_fields ORDER BY type_id, field_order`)
	if err != nil {
		return fmt.Errorf("failed to load type fields: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id int32
			f  schema.Field
		)
		if err := rows.Scan(&id, &f.Order, &f.Name, &f.Type); err != nil {
			return fmt.Errorf("failed to scan type field: %w", err)
		}
		if e, ok := byID[id]; ok {
			e.desc.Fields = append(e.desc.Fields, f)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	for _, e := range entries {
		r.byID[e.id] = e
		r.byName[e.desc.CanonicalName()] = e
	}
	r.mu.Unlock()

	r.logger.Debug("types loaded", "count", len(entries))
	return nil
}

const selectTypes = `SELECT id, namespace, name, class, base, enum_underlying, enum_members, elem, key_type, surrogate FROM types`

func scanType(rows *sql.Rows) (*registryEntry, error) {
	var (
		e       registryEntry
		class   string
		members sql.NullString
	)
	if err := rows.Scan(&e.id, &e.desc.Namespace, &e.desc.Name, &class, &e.desc.Base,
		&e.desc.EnumUnderlying, &members, &e.desc.Elem, &e.desc.Key, &e.desc.Surrogate); err != nil {
		return nil, fmt.Errorf("failed to scan type: %w", err)
	}
	var err error
	if e.desc.Class, err = schema.ParseClass(class); err != nil {
		return nil, err
	}
	if members.Valid && members.String != "" {
		if err := json.Unmarshal([]byte(members.String), &e.desc.EnumMembers); err != nil {
			return nil, fmt.Errorf("failed to decode enum members of %s: %w", e.desc.CanonicalName(), err)
		}
	}
	return &e, nil
}

// loadType reads one stored descriptor selected by where. It returns nil
// when no type matches.
func loadType(ctx context.Context, q execQuerier, where string, arg any) (*registryEntry, error) {
	rows, err := q.QueryContext(ctx, selectTypes+` WHERE `+where, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to load type %v: %w", arg, err)
	}
	var e *registryEntry
	if rows.Next() {
		e, err = scanType(rows)
	}
	rows.Close()
	if err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if e == nil {
		return nil, nil
	}

	rows, err = q.QueryContext(ctx, `SELECT field_order, name, field_type FROM type_fields WHERE type_id = ? ORDER BY field_order`, e.id)
	if err != nil {
		return nil, fmt.Errorf("failed to load fields of %s: %w", e.desc.CanonicalName(), err)
	}
	defer rows.Close()
	for rows.Next() {
		var f schema.Field
		if err := rows.Scan(&f.Order, &f.Name, &f.Type); err != nil {
			return nil, fmt.Errorf("failed to scan type field: %w", err)
		}
		e.desc.Fields = append(e.desc.Fields, f)
	}
	return e, rows.Err()
}

// record stores t, or adopts the entry another session stored under the
// same canonical name and checks it against t.
func (r *TypeRegistry) record(ctx context.Context, q execQuerier, t *schema.Type) (*registryEntry, error) {
	desc := t.Descriptor()
	id, inserted, err := insertType(ctx, q, &desc)
	if err != nil {
		return nil, err
	}
	if inserted {
		r.logger.Debug("type registered", "type", desc.CanonicalName(), "id", id)
		return &registryEntry{id: id, desc: desc, bound: t}, nil
	}
	e, err := loadType(ctx, q, `canonical_name = ?`, desc.CanonicalName())
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("type %s was neither inserted nor found", desc.CanonicalName())
	}
	if err := r.bind(ctx, q, e, t); err != nil {
		return nil, err
	}
	return e, nil
}

// bind checks t against the stored entry e. A compatible t is merged into
// the stored descriptor; a breaking one flags e.
func (r *TypeRegistry) bind(ctx context.Context, q execQuerier, e *registryEntry, t *schema.Type) error {
	name := t.CanonicalName()
	desc := t.Descriptor()
	if err := schema.CheckCompatibility(&e.desc, &desc); err != nil {
		var bc *BreakingChangeError
		if !errors.As(err, &bc) {
			return err
		}
		e.broken = bc
		r.logger.Warn("breaking type change", "type", name, "reason", bc.Reason)
		return nil
	}

	merged := schema.Merge(&e.desc, &desc)
	if !schema.Equal(&merged, &e.desc) && !r.readOnly {
		if err := updateType(ctx, q, e.id, &merged); err != nil {
			return err
		}
		r.logger.Info("type descriptor updated", "type", name, "id", e.id)
	}
	e.desc = merged
	e.bound = t
	return nil
}

// reconcile compares the session's declared types with the persisted ones.
// New types are recorded, compatible changes are merged into the stored
// descriptor and breaking changes are returned. Read-only sessions never write.
func (r *TypeRegistry) reconcile(ctx context.Context) ([]*BreakingChangeError, error) {
	var breaking []*BreakingChangeError

	run := func(q execQuerier) error {
		for _, t := range r.set.All() {
			name := t.CanonicalName()
			e := r.byName[name]
			if e == nil {
				if r.readOnly {
					continue
				}
				var err error
				if e, err = r.record(ctx, q, t); err != nil {
					return err
				}
				r.byID[e.id] = e
				r.byName[name] = e
			} else if err := r.bind(ctx, q, e, t); err != nil {
				return err
			}
			if e.broken != nil {
				breaking = append(breaking, e.broken)
			}
		}
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.readOnly {
		if err := run(nil); err != nil {
			return nil, err
		}
		return breaking, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	if err := run(tx); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return breaking, nil
}

// insertType records d unless its canonical name is already taken.
// inserted is false when another session recorded it first.
func insertType(ctx context.Context, q execQuerier, d *schema.Descriptor) (id int32, inserted bool, err error) {
	members, err := encodeMembers(d.EnumMembers)
	if err != nil {
		return 0, false, err
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO types (namespace, name, canonical_name, class, base, enum_underlying, enum_members, elem, key_type, surrogate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(canonical_name) DO NOTHING
	`, d.Namespace, d.Name, d.CanonicalName(), d.Class.String(), d.Base, d.EnumUnderlying, members, d.Elem, d.Key, d.Surrogate)
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert type %s: %w", d.CanonicalName(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}
	lastID, err := res.LastInsertId()
	if err != nil {
		return 0, false, err
	}
	if err := insertFields(ctx, q, int32(lastID), d.Fields); err != nil {
		return 0, false, err
	}
	return int32(lastID), true, nil
}

func updateType(ctx context.Context, q execQuerier, id int32, d *schema.Descriptor) error {
	members, err := encodeMembers(d.EnumMembers)
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, `
		UPDATE types SET base = ?, enum_members = ? WHERE id = ?
	`, d.Base, members, id); err != nil {
		return fmt.Errorf("failed to update type %s: %w", d.CanonicalName(), err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM type_fields WHERE type_id = ?`, id); err != nil {
		return err
	}
	return insertFields(ctx, q, id, d.Fields)
}

func insertFields(ctx context.Context, q execQuerier, id int32, fields []schema.Field) error {
	for _, f := range fields {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO type_fields (type_id, field_order, name, field_type) VALUES (?, ?, ?, ?)
		`, id, f.Order, f.Name, f.Type); err != nil {
			return fmt.Errorf("failed to insert field %s: %w", f.Name, err)
		}
	}
	return nil
}

func encodeMembers(members []schema.EnumMember) (any, error) {
	if len(members) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(members)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// GetOrCreateID returns the id of t, recording it first if needed. A type
// recorded by another session on the same file is adopted with its id.
// It must not be called while a transaction is open on the session.
func (r *TypeRegistry) GetOrCreateID(ctx context.Context, t *schema.Type) (int32, error) {
	id, ok, err := r.ID(t)
	if err != nil || ok {
		return id, err
	}
	if r.readOnly {
		return 0, ErrReadOnly
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.CanonicalName()
	if e, ok := r.byName[name]; ok {
		if e.broken != nil {
			return 0, e.broken
		}
		return e.id, nil
	}

	// The type row and its fields are written together.
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrapError("register type", err)
	}
	defer func() { _ = tx.Rollback() }()
	e, err := r.record(ctx, tx, t)
	if err != nil {
		return 0, wrapError("register type", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, wrapError("register type", err)
	}

	r.byID[e.id] = e
	r.byName[name] = e
	if e.broken != nil {
		return 0, e.broken
	}
	return e.id, nil
}

// ID returns the id of t if it is already recorded. Types with a breaking
// change report their *BreakingChangeError.
func (r *TypeRegistry) ID(t *schema.Type) (int32, bool, error) {
	name := t.CanonicalName()
	r.mu.RLock()
	e, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		if e = r.fetch(`canonical_name = ?`, name); e == nil {
			return 0, false, nil
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e.broken != nil {
		return 0, false, e.broken
	}
	if e.bound == nil {
		e.bound = t
	}
	return e.id, true, nil
}

// Resolve returns the session type for id. It fails for ids whose type was
// not supplied to this session or changed incompatibly.
func (r *TypeRegistry) Resolve(id int32) (*schema.Type, bool) {
	r.mu.RLock()
	e, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		if e = r.fetch(`id = ?`, id); e == nil {
			return nil, false
		}
	}
	r.mu.RLock()
	bound, name, broken := e.bound, e.desc.CanonicalName(), e.broken
	r.mu.RUnlock()
	if broken != nil {
		return nil, false
	}
	if bound != nil {
		return bound, true
	}

	// Composite types are derived lazily from their element types.
	t, ok := r.set.ByName(name)
	if !ok {
		return nil, false
	}
	r.mu.Lock()
	e.bound = t
	r.mu.Unlock()
	return t, true
}

// NameOf returns the canonical name recorded for id.
func (r *TypeRegistry) NameOf(id int32) (string, bool) {
	r.mu.RLock()
	e, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		if e = r.fetch(`id = ?`, id); e == nil {
			return "", false
		}
	}
	return e.desc.CanonicalName(), true
}

// fetch loads a type recorded by another session since this one loaded the
// registry. A session type of the same name is checked against it.
func (r *TypeRegistry) fetch(where string, arg any) *registryEntry {
	if !r.shared {
		return nil
	}
	e, err := loadType(context.Background(), r.db, where, arg)
	if err != nil {
		r.logger.Warn("failed to load type", "type", arg, "error", err)
		return nil
	}
	if e == nil {
		return nil
	}

	name := e.desc.CanonicalName()
	if t, ok := r.set.ByName(name); ok {
		desc := t.Descriptor()
		if err := schema.CheckCompatibility(&e.desc, &desc); err != nil {
			var bc *BreakingChangeError
			if !errors.As(err, &bc) {
				return nil
			}
			e.broken = bc
			r.logger.Warn("breaking type change", "type", name, "reason", bc.Reason)
		} else {
			e.bound = t
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.byID[e.id]; ok {
		return cur
	}
	r.byID[e.id] = e
	r.byName[name] = e
	r.logger.Debug("type loaded", "type", name, "id", e.id)
	return e
}

// Broken returns the breaking change recorded for a canonical name, if any.
func (r *TypeRegistry) Broken(name string) *BreakingChangeError {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.byName[name]; ok {
		return e.broken
	}
	return nil
}

// Entries returns a snapshot of all recorded types ordered by id.
func (r *TypeRegistry) Entries() []TypeEntry {
	r.mu.RLock()
	out := make([]TypeEntry, 0, len(r.byID))
	for _, e := range r.byID {
		out = append(out, TypeEntry{
			ID:         e.id,
			Descriptor: e.desc.Clone(),
			Broken:     e.broken,
		})
	}
	r.mu.RUnlock()

	for i := range out {
		if out[i].Broken == nil {
			_, out[i].Resolved = r.Resolve(out[i].ID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
