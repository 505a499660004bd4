package relata

import (
	"context"
	"fmt"
	"reflect"
)

// link is one relation edge endpoint: the child's table and identity.
type link struct {
	childTable string
	childID    int64
}

// saveChild ensures the child's table exists, resolves or creates the
// child's identity (persisting the record if unresolved), and returns the
// edge endpoint for it.
func (db *DB) saveChild(ctx context.Context, childType reflect.Type, cv reflect.Value) (link, error) {
	d := db.describe(childType)
	exists, err := db.tableExists(ctx, d.table)
	if err != nil {
		return link{}, err
	}
	if !exists {
		if err := db.createTable(ctx, d.table, d, CreateOptions{}); err != nil {
			return link{}, err
		}
	}

	view := &Table{db: db, name: d.table, desc: d}
	id, ok, err := view.resolveIdentity(ctx, d, cv)
	if err != nil {
		return link{}, err
	}
	if !ok {
		id, err = view.putValue(ctx, d, cv)
		if err != nil {
			return link{}, err
		}
	}
	stampIdentity(d, cv, id)
	return link{childTable: d.table, childID: id}, nil
}

// replaceEdges replaces the full edge set for (parent table, parent id,
// field): existing edges are deleted, then the given links inserted with
// duplicates ignored. This is a full replace, not a diff - omitted
// children are always unlinked even when still referenced elsewhere.
func (db *DB) replaceEdges(ctx context.Context, parentTable string, parentID int64, field string, links []link) error {
	if err := db.ensureLinkTable(ctx); err != nil {
		return err
	}
	_, err := db.db.ExecContext(ctx, `
		DELETE FROM `+linkTableSQL+`
		WHERE parent_table = ? AND parent_id = ? AND field = ?
	`, parentTable, parentID, field)
	if err != nil {
		return fmt.Errorf("clear edges for %s.%s: %w", parentTable, field, err)
	}
	for _, l := range links {
		_, err := db.db.ExecContext(ctx, `
			INSERT INTO `+linkTableSQL+`
			(parent_table, parent_id, field, child_table, child_id)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`, parentTable, parentID, field, l.childTable, l.childID)
		if err != nil {
			return fmt.Errorf("insert edge for %s.%s: %w", parentTable, field, err)
		}
	}
	return nil
}

// readEdges returns the edges for (parent table, parent id, field) ordered
// by child identity ascending. Read-back order is by identity, not
// insertion order.
func (db *DB) readEdges(ctx context.Context, parentTable string, parentID int64, field string) ([]link, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT child_table, child_id FROM `+linkTableSQL+`
		WHERE parent_table = ? AND parent_id = ? AND field = ?
		ORDER BY child_id ASC
	`, parentTable, parentID, field)
	if err != nil {
		return nil, fmt.Errorf("read edges for %s.%s: %w", parentTable, field, err)
	}
	defer rows.Close()

	var links []link
	for rows.Next() {
		var l link
		if err := rows.Scan(&l.childTable, &l.childID); err != nil {
			return nil, fmt.Errorf("read edges for %s.%s: %w", parentTable, field, err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read edges for %s.%s: %w", parentTable, field, err)
	}
	return links, nil
}

// hydrate fills the relation fields of a loaded instance. Single-reference
// fields take the first edge's child (or stay zero when none); multi-
// reference fields take the full ordered list.
func (db *DB) hydrate(ctx context.Context, d *descriptor, rv reflect.Value, parentTable string, parentID int64) error {
	if len(d.relations) == 0 {
		return nil
	}
	exists, err := db.tableExists(ctx, linkTable)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	for _, fd := range d.relations {
		links, err := db.readEdges(ctx, parentTable, parentID, fd.name)
		if err != nil {
			return err
		}
		if len(links) == 0 {
			continue
		}
		field := rv.Field(fd.index)
		if fd.kind == kindSingleRef {
			child, ok, err := db.fetchChild(ctx, links[0], fd.elem)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if fd.ptr {
				field.Set(child)
			} else {
				field.Set(child.Elem())
			}
			continue
		}
		slice := reflect.MakeSlice(field.Type(), 0, len(links))
		for _, l := range links {
			child, ok, err := db.fetchChild(ctx, l, fd.elem)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if fd.ptr {
				slice = reflect.Append(slice, child)
			} else {
				slice = reflect.Append(slice, child.Elem())
			}
		}
		field.Set(slice)
	}
	return nil
}

// fetchChild loads one linked child row by identity through its own table.
// The registry binding for the table drives the record shape when it
// matches the declared field type; otherwise the declared type is used so
// the result can land on the field.
func (db *DB) fetchChild(ctx context.Context, l link, declared reflect.Type) (reflect.Value, bool, error) {
	typ := declared
	if bound, ok := db.bindings[l.childTable]; ok && bound == declared {
		typ = bound
	}
	d := db.describe(typ)
	view := &Table{db: db, name: l.childTable, desc: d}
	return view.recordByID(ctx, l.childID)
}

// cascadeDelete deletes a row and reference-counts its children: all edges
// where the row is parent or child are removed, the row itself is deleted,
// and any former child left without a referencing edge anywhere is
// recursively deleted. The reference count is global over the shared link
// table, not scoped to one relation field or parent type.
func (db *DB) cascadeDelete(ctx context.Context, table string, id int64) error {
	linked, err := db.tableExists(ctx, linkTable)
	if err != nil {
		return err
	}

	var children []link
	if linked {
		rows, err := db.db.QueryContext(ctx, `
			SELECT child_table, child_id FROM `+linkTableSQL+`
			WHERE parent_table = ? AND parent_id = ?
		`, table, id)
		if err != nil {
			return fmt.Errorf("collect children of %s: %w", table, err)
		}
		for rows.Next() {
			var l link
			if err := rows.Scan(&l.childTable, &l.childID); err != nil {
				rows.Close()
				return fmt.Errorf("collect children of %s: %w", table, err)
			}
			children = append(children, l)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("collect children of %s: %w", table, err)
		}
		rows.Close()

		_, err = db.db.ExecContext(ctx, `
			DELETE FROM `+linkTableSQL+` WHERE parent_table = ? AND parent_id = ?
		`, table, id)
		if err != nil {
			return fmt.Errorf("unlink parent %s: %w", table, err)
		}
		_, err = db.db.ExecContext(ctx, `
			DELETE FROM `+linkTableSQL+` WHERE child_table = ? AND child_id = ?
		`, table, id)
		if err != nil {
			return fmt.Errorf("unlink child %s: %w", table, err)
		}
	}

	_, err = db.db.ExecContext(ctx,
		"DELETE FROM "+quoteIdent(table)+" WHERE "+idColumnSQL+" = ?", id)
	if err != nil {
		return fmt.Errorf("delete row %s[%d]: %w", table, id, err)
	}

	for _, child := range children {
		var refs int
		err := db.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM `+linkTableSQL+`
			WHERE child_table = ? AND child_id = ?
		`, child.childTable, child.childID).Scan(&refs)
		if err != nil {
			return fmt.Errorf("count references to %s: %w", child.childTable, err)
		}
		if refs == 0 {
			if err := db.cascadeDelete(ctx, child.childTable, child.childID); err != nil {
				return err
			}
		}
	}
	return nil
}
