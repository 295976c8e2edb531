package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/sqstash/pkg/schema"
	_ "modernc.org/sqlite" // SQLite driver
)

// SchemaVersion is the version of the metadata tables written by this package.
const SchemaVersion = 1

// Database is one open session on a SQLite file (or a private in-memory
// database). Handles obtained from it are safe for concurrent use.
type Database struct {
	db       *sql.DB
	config   Config
	logger   Logger
	readOnly bool
	closed   atomic.Bool
	closeMu  sync.Mutex
	id       string

	types    *schema.Set
	registry *TypeRegistry
	codec    *codec
	catalog  *catalog
	breaking []*BreakingChangeError
}

// Open opens the database described by config.
func Open(ctx context.Context, config Config) (*Database, error) {
	config = config.withDefaults()

	set, err := schema.NewSet(config.Types...)
	if err != nil {
		return nil, argErrorf(err, "invalid type declarations")
	}

	d := &Database{
		config:   config,
		logger:   config.Logger,
		readOnly: config.Mode == ModeReadOnly,
		types:    set,
		catalog:  newCatalog(),
	}

	db, err := d.connect()
	if err != nil {
		return nil, wrapError("open", err)
	}
	d.db = db

	if err := d.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	d.logger.Info("database opened", "path", d.displayPath(), "mode", config.Mode, "id", d.id)
	return d, nil
}

func (d *Database) connect() (*sql.DB, error) {
	timeout := d.config.BusyTimeout.Milliseconds()

	switch d.config.Mode {
	case ModeMemory:
		// Each connection to :memory: is its own database, so keep exactly one
		// and never let the pool recycle it.
		db, err := sql.Open("sqlite", fmt.Sprintf("file::memory:?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)", timeout))
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
		return db, nil

	case ModeReadOnly:
		if _, err := os.Stat(d.config.Path); err != nil {
			return nil, err
		}
		db, err := sql.Open("sqlite", fileDSN(d.config.Path, fmt.Sprintf("mode=ro&_pragma=busy_timeout(%d)", timeout)))
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(d.config.MaxOpenConns)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(2 * time.Hour)
		return db, nil

	default:
		if d.config.Path == "" {
			return nil, errors.New("database path is required")
		}
		// WAL for reader concurrency, immediate transactions so that writers
		// queue on the busy timeout instead of failing on lock upgrade.
		db, err := sql.Open("sqlite", fileDSN(d.config.Path, fmt.Sprintf(
			"_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_txlock=immediate",
			timeout)))
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(d.config.MaxOpenConns)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(2 * time.Hour)
		return db, nil
	}
}

// fileDSN builds a SQLite URI for path. The path is percent-escaped so that
// '?', '#' and '%' in file names survive.
func fileDSN(path, query string) string {
	u := url.URL{
		Scheme:   "file",
		Opaque:   (&url.URL{Path: path}).EscapedPath(),
		RawQuery: query,
	}
	return u.String()
}

func (d *Database) init(ctx context.Context) error {
	if !d.readOnly {
		if err := d.createTables(ctx); err != nil {
			return wrapError("init", err)
		}
	}
	if err := d.checkInfo(ctx); err != nil {
		return err
	}

	d.registry = newTypeRegistry(d.db, d.types, d.readOnly, d.config.Mode != ModeMemory, d.logger)
	if err := d.registry.load(ctx); err != nil {
		return wrapError("init", err)
	}
	breaking, err := d.registry.reconcile(ctx)
	if err != nil {
		return wrapError("init", err)
	}
	d.breaking = breaking
	if len(breaking) > 0 && d.config.StrictTypes {
		errs := make([]error, len(breaking))
		for i, b := range breaking {
			errs[i] = b
		}
		return errors.Join(errs...)
	}
	d.codec = &codec{set: d.types, reg: d.registry}
	return nil
}

// createTables creates the metadata tables
func (d *Database) createTables(ctx context.Context) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS sqstash_info (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS types (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		namespace TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		canonical_name TEXT NOT NULL UNIQUE,
		class TEXT NOT NULL,
		base TEXT NOT NULL DEFAULT '',
		enum_underlying TEXT NOT NULL DEFAULT '',
		enum_members TEXT, -- JSON list of {name, value}
		elem TEXT NOT NULL DEFAULT '',
		key_type TEXT NOT NULL DEFAULT '',
		surrogate TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS type_fields (
		type_id INTEGER NOT NULL,
		field_order INTEGER NOT NULL,
		name TEXT NOT NULL,
		field_type TEXT NOT NULL,
		PRIMARY KEY (type_id, field_order),
		FOREIGN KEY (type_id) REFERENCES types(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS collections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		table_name TEXT NOT NULL DEFAULT '',
		key_type INTEGER REFERENCES types(id),
		value_type INTEGER NOT NULL REFERENCES types(id),
		dropped INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_collections_live_name ON collections(name) WHERE dropped = 0;
	`
	if _, err := d.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO sqstash_info (key, value) VALUES
			('schema_version', ?),
			('database_id', ?),
			('created_at', ?)
	`, strconv.Itoa(SchemaVersion), uuid.NewString(), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to write database info: %w", err)
	}
	return nil
}

// checkInfo verifies that the metadata tables exist and were written by a
// compatible version.
func (d *Database) checkInfo(ctx context.Context) error {
	expected := strconv.Itoa(SchemaVersion)

	var n int
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sqlite_master
		WHERE type = 'table' AND name IN ('sqstash_info', 'types', 'type_fields', 'collections')
	`).Scan(&n)
	if err != nil {
		return wrapError("init", err)
	}
	if n != 4 {
		return &IncompatibleSchemaError{Found: "none", Expected: expected}
	}

	rows, err := d.db.QueryContext(ctx, `SELECT key, value FROM sqstash_info`)
	if err != nil {
		return wrapError("init", err)
	}
	defer rows.Close()

	info := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return wrapError("init", err)
		}
		info[k] = v
	}
	if err := rows.Err(); err != nil {
		return wrapError("init", err)
	}

	version, ok := info["schema_version"]
	if !ok {
		version = "none"
	}
	if version != expected {
		return &IncompatibleSchemaError{Found: version, Expected: expected}
	}
	d.id = info["database_id"]
	return nil
}

// Close closes the database connection. Handles become unusable.
func (d *Database) Close() error {
	d.closeMu.Lock()
	defer d.closeMu.Unlock()

	if d.closed.Load() {
		return nil
	}
	d.closed.Store(true)

	if err := d.db.Close(); err != nil {
		return wrapError("close", err)
	}

	d.logger.Info("database connection closed", "path", d.displayPath())
	return nil
}

// ID returns the identifier minted when the database file was created.
func (d *Database) ID() string { return d.id }

// Path returns the database file path, empty for in-memory databases.
func (d *Database) Path() string {
	if d.config.Mode == ModeMemory {
		return ""
	}
	return d.config.Path
}

// ReadOnly reports whether the database was opened read-only.
func (d *Database) ReadOnly() bool { return d.readOnly }

// BreakingChanges lists the supplied types found incompatible with their
// stored descriptors when the database was opened. Collections using these
// types cannot be opened in this session.
func (d *Database) BreakingChanges() []*BreakingChangeError {
	return append([]*BreakingChangeError(nil), d.breaking...)
}

// Types lists every type recorded in the database.
func (d *Database) Types() []TypeEntry {
	return d.registry.Entries()
}

func (d *Database) displayPath() string {
	if d.config.Mode == ModeMemory {
		return ":memory:"
	}
	return d.config.Path
}

func (d *Database) checkOpen() error {
	if d.closed.Load() {
		return ErrDatabaseClosed
	}
	return nil
}

// withTx runs fn in a transaction, committing if fn returns nil.
func (d *Database) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
