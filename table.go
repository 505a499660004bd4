package relata

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
)

// Order is one ORDER BY term for OrderByColumns.
type Order struct {
	Column    string
	Direction string // "ASC" or "DESC"
}

// example is a by-example record retained as a deletion/update fallback.
type example struct {
	desc *descriptor
	rv   reflect.Value
}

// filterTerm is one accumulated WHERE term: a raw fragment, or a
// by-example record rendered against the stored column set at query time.
type filterTerm struct {
	raw string
	ex  *example
}

// Table is an immutable view over one table: a bound record type (or none
// for untyped row access), the accumulated filter and sort expressions,
// and the by-example fallback list. Every mutator returns a new view; the
// original is never altered, so a base view can be branched freely.
//
// A view built from an invalid reference carries the error and reports it
// on the first operation.
type Table struct {
	db       *DB
	name     string
	desc     *descriptor
	terms    []filterTerm
	sort     string
	examples []example

	// Stored-column cache, valid for this view's lifetime only.
	cols     map[string]bool
	colList  []string
	colTypes map[string]string

	err error
}

// Name returns the table name the view is bound to.
func (t *Table) Name() string {
	return t.name
}

func (t *Table) clone() *Table {
	nt := &Table{
		db:   t.db,
		name: t.name,
		desc: t.desc,
		sort: t.sort,
		err:  t.err,
	}
	nt.terms = append(nt.terms, t.terms...)
	nt.examples = append(nt.examples, t.examples...)
	return nt
}

// Where returns a new view with the condition ANDed onto the accumulated
// filter. cond is either a raw SQL boolean fragment (string, passed
// through verbatim) or a by-example record: each non-sentinel primitive
// field stored in the table becomes an equality test (declared fields the
// table lacks are ignored), and the record itself is appended to the
// fallback list used by Set and Delete when no filter is present at call
// time. A record example also rebinds the view's result shape to its type.
func (t *Table) Where(cond any) *Table {
	nt := t.clone()
	if t.err != nil || cond == nil {
		return nt
	}
	if raw, ok := cond.(string); ok {
		if raw != "" {
			nt.terms = append(nt.terms, filterTerm{raw: raw})
		}
		return nt
	}
	typ, err := recordTypeOf(cond)
	if err != nil {
		nt.err = invalidReference("where expects a raw fragment (string) or a record instance")
		return nt
	}
	d := t.db.describe(typ)
	rv := reflect.Indirect(reflect.ValueOf(cond))
	ex := example{desc: d, rv: rv}
	nt.terms = append(nt.terms, filterTerm{ex: &ex})
	nt.examples = append(nt.examples, ex)
	nt.desc = d
	return nt
}

// WhereFields returns a new view with key/value filters ANDed onto the
// accumulated filter. Nil values test IS NULL, Unchanged entries are
// skipped, and string values that read like operator fragments ("LIKE
// 'x%'", ">= 3") are emitted verbatim after the column name.
func (t *Table) WhereFields(filters map[string]any) *Table {
	nt := t.clone()
	if t.err != nil {
		return nt
	}
	if cond := fieldFilterCondition(filters); cond != "" {
		nt.terms = append(nt.terms, filterTerm{raw: cond})
	}
	return nt
}

// OrderBy returns a new view with the given raw sort expression. It
// replaces, not accumulates, any prior sort.
func (t *Table) OrderBy(order string) *Table {
	nt := t.clone()
	nt.sort = order
	return nt
}

// OrderByColumns returns a new view sorted by the given column/direction
// pairs, replacing any prior sort.
func (t *Table) OrderByColumns(orders ...Order) *Table {
	parts := make([]string, 0, len(orders))
	for _, o := range orders {
		if o.Direction == "" {
			parts = append(parts, o.Column)
			continue
		}
		parts = append(parts, o.Column+" "+o.Direction)
	}
	nt := t.clone()
	nt.sort = strings.Join(parts, ", ")
	return nt
}

// Bind returns a new view identical except for its result-projection type,
// enabling reads of the same table through a structurally different record
// shape. Only fields present in both the table and the new type are read;
// declared fields missing from the table keep their zero value and extra
// table columns are ignored.
func (t *Table) Bind(prototype any) *Table {
	nt := t.clone()
	if t.err != nil {
		return nt
	}
	typ, err := recordTypeOf(prototype)
	if err != nil {
		nt.err = err
		return nt
	}
	nt.desc = t.db.describe(typ)
	return nt
}

// Exists reports whether the view's table is present in the catalog.
func (t *Table) Exists(ctx context.Context) (bool, error) {
	if t.err != nil {
		return false, t.err
	}
	return t.db.tableExists(ctx, t.name)
}

// Count returns the number of rows matching the accumulated filter.
func (t *Table) Count(ctx context.Context) (int64, error) {
	if t.err != nil {
		return 0, t.err
	}
	where, err := t.renderWhere(ctx)
	if err != nil {
		return 0, err
	}
	var count int64
	err = t.db.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+quoteIdent(t.name)+where,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", t.name, err)
	}
	return count, nil
}

// resolvedDesc returns the view's bound descriptor, falling back to the
// registry binding for the table at read time. Nil means untyped rows.
func (t *Table) resolvedDesc() *descriptor {
	if t.desc != nil {
		return t.desc
	}
	if typ, ok := t.db.bindings[t.name]; ok {
		return t.db.describe(typ)
	}
	return nil
}

// columns introspects the stored column set through the catalog, cached
// for this view's lifetime.
func (t *Table) columns(ctx context.Context) (map[string]bool, []string, error) {
	if t.cols != nil {
		return t.cols, t.colList, nil
	}
	rows, err := t.db.db.QueryContext(ctx, "PRAGMA table_info("+quoteIdent(t.name)+")")
	if err != nil {
		return nil, nil, fmt.Errorf("introspect %s: %w", t.name, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	types := make(map[string]string)
	var list []string
	for rows.Next() {
		var (
			cid, notnull, pk int
			name, ctype      string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, nil, fmt.Errorf("introspect %s: %w", t.name, err)
		}
		cols[name] = true
		types[name] = ctype
		list = append(list, name)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("introspect %s: %w", t.name, err)
	}
	t.cols = cols
	t.colList = list
	t.colTypes = types
	return cols, list, nil
}

// renderFilter folds the accumulated terms into one condition. By-example
// terms constrain only fields present in the stored table, so rendering
// waits until a statement actually needs the condition.
func (t *Table) renderFilter(ctx context.Context) (string, error) {
	var cond string
	var cols map[string]bool
	for _, term := range t.terms {
		fresh := term.raw
		if term.ex != nil {
			if cols == nil {
				c, _, err := t.columns(ctx)
				if err != nil {
					return "", err
				}
				cols = c
			}
			fresh = exampleCondition(term.ex.desc, term.ex.rv, cols)
		}
		cond = combineConditions(cond, fresh)
	}
	return cond, nil
}

func (t *Table) renderWhere(ctx context.Context) (string, error) {
	cond, err := t.renderFilter(ctx)
	if err != nil || cond == "" {
		return "", err
	}
	return " WHERE " + cond, nil
}

// effectiveCondition is the condition Set and Delete act on: the
// accumulated filter terms, else the by-example fallback list.
func (t *Table) effectiveCondition(ctx context.Context) (string, error) {
	cond, err := t.renderFilter(ctx)
	if err != nil || cond != "" {
		return cond, err
	}
	return t.fallbackCondition(ctx)
}

func (t *Table) orderClause() string {
	if t.sort == "" {
		return ""
	}
	return " ORDER BY " + t.sort
}

// fallbackCondition derives a filter from the accumulated by-example
// records. Used by Set and Delete only when no filter is present.
func (t *Table) fallbackCondition(ctx context.Context) (string, error) {
	if len(t.examples) == 0 {
		return "", nil
	}
	cols, _, err := t.columns(ctx)
	if err != nil {
		return "", err
	}
	var parts []string
	for _, ex := range t.examples {
		if cond := exampleCondition(ex.desc, ex.rv, cols); cond != "" {
			parts = append(parts, cond)
		}
	}
	return strings.Join(parts, " AND "), nil
}

// quoteIdent quotes a SQL identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
