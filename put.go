package relata

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

// Put persists a record into the view's table: an insert, or on a
// uniqueness conflict an in-place update of the conflicting row. Fields
// holding the "unchanged" sentinel are skipped, so a conflicting update
// never touches their stored values. The resulting row's identity is
// stamped onto the record's ID field when it declares one and rec is a
// pointer.
//
// For each relation field with a non-empty value the referenced records
// are persisted recursively (their tables created if absent, their
// identities resolved or assigned) and the field's full edge set is
// replaced. Empty relation values leave existing edges untouched.
//
// A record with no assignable fields and no relations is a silent no-op.
func (t *Table) Put(ctx context.Context, rec any) error {
	_, err := t.putRecord(ctx, rec)
	return err
}

// PutAndGet is Put followed by a re-read of the persisted row, returning
// the stored state (relation fields hydrated).
func (t *Table) PutAndGet(ctx context.Context, rec any) (any, error) {
	id, err := t.putRecord(ctx, rec)
	if err != nil || id == 0 {
		return nil, err
	}
	typ, err := recordTypeOf(rec)
	if err != nil {
		return nil, err
	}
	view := &Table{db: t.db, name: t.name, desc: t.db.describe(typ)}
	out, ok, err := view.recordByID(ctx, id)
	if err != nil || !ok {
		return nil, err
	}
	return out.Interface(), nil
}

func (t *Table) putRecord(ctx context.Context, rec any) (int64, error) {
	if t.err != nil {
		return 0, t.err
	}
	typ, err := recordTypeOf(rec)
	if err != nil {
		return 0, err
	}
	rv := reflect.Indirect(reflect.ValueOf(rec))
	return t.putValue(ctx, t.db.describe(typ), rv)
}

// putValue is the engine behind Put: upsert the primitive row, resolve the
// identity, then run the relation protocol. rv should be addressable for
// identity stamping to reach the caller's instance.
func (t *Table) putValue(ctx context.Context, d *descriptor, rv reflect.Value) (int64, error) {
	cols, _, err := t.columns(ctx)
	if err != nil {
		return 0, err
	}
	values := primitiveValues(d, rv, cols)

	var id int64
	switch {
	case len(values) > 0:
		id, err = t.upsert(ctx, values)
		if err != nil {
			return 0, err
		}
	case len(d.relations) > 0:
		// Relation-only record: the parent row is just an identity.
		if d.idIndex >= 0 && rv.Field(d.idIndex).Int() != 0 {
			id = rv.Field(d.idIndex).Int()
			break
		}
		row := t.db.db.QueryRowContext(ctx,
			"INSERT INTO "+quoteIdent(t.name)+" DEFAULT VALUES RETURNING "+idColumnSQL)
		if err := row.Scan(&id); err != nil {
			return 0, translateWriteError(t.name, err)
		}
	default:
		return 0, nil
	}

	stampIdentity(d, rv, id)

	for _, fd := range d.relations {
		children, err := relationChildren(fd, rv)
		if err != nil {
			return 0, err
		}
		if len(children) == 0 {
			continue
		}
		links := make([]link, 0, len(children))
		for _, cv := range children {
			l, err := t.db.saveChild(ctx, fd.elem, cv)
			if err != nil {
				return 0, err
			}
			links = append(links, l)
		}
		if err := t.db.replaceEdges(ctx, t.name, id, fd.name, links); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// upsert writes the primitive row and returns its surrogate identity.
func (t *Table) upsert(ctx context.Context, values []fieldValue) (int64, error) {
	names := make([]string, 0, len(values))
	placeholders := make([]string, 0, len(values))
	settings := make([]string, 0, len(values))
	args := make([]any, 0, len(values))
	for _, v := range values {
		names = append(names, quoteIdent(v.col))
		placeholders = append(placeholders, "?")
		settings = append(settings, quoteIdent(v.col)+" = excluded."+quoteIdent(v.col))
		args = append(args, v.val)
	}

	query := "INSERT INTO " + quoteIdent(t.name) +
		" (" + strings.Join(names, ", ") + ")" +
		" VALUES (" + strings.Join(placeholders, ", ") + ")" +
		" ON CONFLICT DO UPDATE SET " + strings.Join(settings, ", ") +
		" RETURNING " + idColumnSQL

	var id int64
	if err := t.db.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, translateWriteError(t.name, err)
	}
	return id, nil
}

// relationChildren collects the addressable child values of one relation
// field. Nil pointers, nil slices, and empty slices yield none, which the
// caller treats as "leave existing edges alone".
func relationChildren(fd fieldDesc, rv reflect.Value) ([]reflect.Value, error) {
	fv := rv.Field(fd.index)
	if fd.kind == kindSingleRef {
		if fd.ptr {
			if fv.IsNil() {
				return nil, nil
			}
			return []reflect.Value{fv.Elem()}, nil
		}
		return []reflect.Value{fv}, nil
	}
	if fv.Len() == 0 {
		return nil, nil
	}
	out := make([]reflect.Value, 0, fv.Len())
	for i := 0; i < fv.Len(); i++ {
		ev := fv.Index(i)
		if fd.ptr {
			if ev.IsNil() {
				return nil, fmt.Errorf("relation %s has a nil element", fd.name)
			}
			ev = ev.Elem()
		}
		out = append(out, ev)
	}
	return out, nil
}
