package relata

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"

	_ "github.com/mattn/go-sqlite3"
)

// Reserved names in the backing store. The surrogate-identity column and
// the shared relation table carry @@-markers so they cannot collide with
// application column or table names.
const (
	// IdentityColumn is the reserved surrogate-identity column present in
	// every managed table, auto-assigned on insert and never reassigned.
	IdentityColumn = "@@object_id@@"

	// RelationTable is the reserved shared table holding relation edges.
	RelationTable = "@@m2m_relations@@"
)

const (
	idColumn     = IdentityColumn
	idColumnSQL  = "[" + IdentityColumn + "]"
	linkTable    = RelationTable
	linkTableSQL = "[" + RelationTable + "]"
)

// DB is a persistence session over one SQLite database. It owns the
// table-to-type registry and the descriptor cache, both scoped to the
// session's lifetime. A DB assumes a single logical connection used
// sequentially; concurrent callers must serialize their own calls.
type DB struct {
	db        *sql.DB
	bindings  map[string]reflect.Type
	descs     map[reflect.Type]*descriptor
	linkReady bool
}

// Open creates or opens a SQLite database at the given path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// The connection pool is pinned to a single connection; SQLite supports
// one writer at a time and the session model assumes sequential use.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	return &DB{
		db:       db,
		bindings: make(map[string]reflect.Type),
		descs:    make(map[reflect.Type]*descriptor),
	}, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.db == nil {
		return nil
	}
	return db.db.Close()
}

// Raw returns the underlying sql.DB for direct queries.
// Use with caution - prefer Table views when available.
func (db *DB) Raw() *sql.DB {
	return db.db
}

// Register associates a table name with a record type. The last
// registration for a name wins. Registrations drive relation hydration:
// a hydrated child row is constructed through the binding for its table
// when one exists.
func (db *DB) Register(table string, prototype any) error {
	t, err := recordTypeOf(prototype)
	if err != nil {
		return err
	}
	db.bindings[table] = t
	db.describe(t)
	return nil
}

// Table returns a view over the table named by ref: a record type or
// instance yields a typed view over its declared table, a string yields a
// view whose result shape is decided by the registry at read time. An
// invalid reference is reported by the first operation on the view.
func (db *DB) Table(ref any) *Table {
	if name, ok := ref.(string); ok {
		return &Table{db: db, name: name}
	}
	t, err := recordTypeOf(ref)
	if err != nil {
		return &Table{db: db, err: err}
	}
	d := db.describe(t)
	return &Table{db: db, name: d.table, desc: d}
}

// tableExists reports whether a table is present in the catalog.
func (db *DB) tableExists(ctx context.Context, name string) (bool, error) {
	var count int
	err := db.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?",
		name,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return count > 0, nil
}

// ensureLinkTable creates the shared relation table on first use. The
// 5-tuple primary key makes duplicate edge writes idempotent no-ops.
func (db *DB) ensureLinkTable(ctx context.Context) error {
	if db.linkReady {
		return nil
	}
	_, err := db.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+linkTableSQL+` (
			parent_table TEXT NOT NULL,
			parent_id INTEGER NOT NULL,
			field TEXT NOT NULL,
			child_table TEXT NOT NULL,
			child_id INTEGER NOT NULL,
			PRIMARY KEY (parent_table, parent_id, field, child_table, child_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("create relation table: %w", err)
	}
	db.linkReady = true
	return nil
}
