package relata

import (
	"context"
	"fmt"
	"strings"
)

// CreateOptions controls table creation.
type CreateOptions struct {
	// Unique declares uniqueness constraints: a column name (string), a
	// []string treated as one composite constraint, or a []any whose
	// elements each become one simple (string) or composite ([]string)
	// constraint. A []any holding only strings collapses to one composite
	// constraint. Nil means no constraints.
	Unique any

	// Drop drops any pre-existing table of the same name first.
	Drop bool
}

// Create emits the view's table: the reserved surrogate-identity primary
// column plus one column per primitive field, with uniqueness constraints
// per opts.Unique. Creation is idempotent unless opts.Drop is set.
//
// For each relation field the referenced type's table is ensured
// recursively, the shared link table is ensured, and the table-to-type
// binding is registered.
func (t *Table) Create(ctx context.Context, opts CreateOptions) error {
	if t.err != nil {
		return t.err
	}
	if t.desc == nil {
		return invalidReference("create expects a record type, not an untyped table %q", t.name)
	}
	return t.db.createTable(ctx, t.name, t.desc, opts)
}

func (db *DB) createTable(ctx context.Context, name string, d *descriptor, opts CreateOptions) error {
	constraints, err := expandUnique(opts.Unique)
	if err != nil {
		return err
	}

	if opts.Drop {
		if _, err := db.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(name)); err != nil {
			return fmt.Errorf("drop table %s: %w", name, err)
		}
	}
	if _, err := db.db.ExecContext(ctx, tableDDL(name, d, constraints)); err != nil {
		return fmt.Errorf("create table %s: %w", name, err)
	}
	db.bindings[name] = d.typ

	if len(d.relations) == 0 {
		return nil
	}
	if err := db.ensureLinkTable(ctx); err != nil {
		return err
	}
	for _, fd := range d.relations {
		child := db.describe(fd.elem)
		exists, err := db.tableExists(ctx, child.table)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := db.createTable(ctx, child.table, child, CreateOptions{}); err != nil {
			return err
		}
	}
	return nil
}

// tableDDL renders the CREATE TABLE statement for a descriptor: the
// reserved identity column, one column per primitive field, then the
// expanded uniqueness clauses. Column names are quoted; a field may
// legitimately map onto a SQL keyword.
func tableDDL(name string, d *descriptor, constraints []string) string {
	columns := []string{idColumnSQL + " INTEGER PRIMARY KEY"}
	for _, fd := range d.primitives {
		columns = append(columns, quoteIdent(fd.name)+" "+fd.semType.columnType())
	}
	columns = append(columns, constraints...)
	return "CREATE TABLE IF NOT EXISTS " + quoteIdent(name) + " (" + strings.Join(columns, ", ") + ")"
}

// expandUnique turns a unique specification into UNIQUE clauses. Malformed
// shapes fail with an InvalidSpecification naming the offending element.
func expandUnique(unique any) ([]string, error) {
	switch u := unique.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{uniqueClause(u)}, nil
	case []string:
		return []string{uniqueClause(u...)}, nil
	case []any:
		if cols, ok := allStrings(u); ok {
			return []string{uniqueClause(cols...)}, nil
		}
		var out []string
		for _, element := range u {
			switch e := element.(type) {
			case string:
				out = append(out, uniqueClause(e))
			case []string:
				out = append(out, uniqueClause(e...))
			case []any:
				cols, ok := allStrings(e)
				if !ok {
					return nil, invalidSpecification("unique element must be a column name (string) or a collection of column names, got %v", e)
				}
				out = append(out, uniqueClause(cols...))
			default:
				return nil, invalidSpecification("unique element must be a column name (string) or a collection of column names, got %v", element)
			}
		}
		return out, nil
	default:
		return nil, invalidSpecification("unique must be a column name (string) or a collection of column names, got %v", unique)
	}
}

func uniqueClause(cols ...string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	return "UNIQUE (" + strings.Join(quoted, ", ") + ")"
}

func allStrings(elements []any) ([]string, bool) {
	out := make([]string, 0, len(elements))
	for _, e := range elements {
		s, ok := e.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, len(out) > 0
}
