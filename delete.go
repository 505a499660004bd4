package relata

import (
	"context"
	"fmt"
	"reflect"
	"sort"
)

// Delete removes rows and cascades through the link table. Targets come
// from the record's resolved identity (when rec is non-nil) and from the
// view's accumulated filter - or, with no filter, the by-example fallback
// list. With no targets at all, Delete is a no-op.
//
// Each deleted row's edges are removed, and any child row left without a
// referencing edge anywhere - across all parents and fields - is deleted
// recursively.
func (t *Table) Delete(ctx context.Context, rec any) error {
	if t.err != nil {
		return t.err
	}

	targets := make(map[int64]bool)

	if rec != nil {
		typ, err := recordTypeOf(rec)
		if err != nil {
			return err
		}
		d := t.db.describe(typ)
		rv := reflect.Indirect(reflect.ValueOf(rec))
		id, ok, err := t.resolveIdentity(ctx, d, rv)
		if err != nil {
			return err
		}
		if ok {
			targets[id] = true
		}
	}

	cond, err := t.effectiveCondition(ctx)
	if err != nil {
		return err
	}
	if cond != "" {
		rows, err := t.db.db.QueryContext(ctx,
			"SELECT "+idColumnSQL+" FROM "+quoteIdent(t.name)+" WHERE "+cond)
		if err != nil {
			return fmt.Errorf("resolve delete targets in %s: %w", t.name, err)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("resolve delete targets in %s: %w", t.name, err)
			}
			targets[id] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("resolve delete targets in %s: %w", t.name, err)
		}
		rows.Close()
	}

	ids := make([]int64, 0, len(targets))
	for id := range targets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if err := t.db.cascadeDelete(ctx, t.name, id); err != nil {
			return err
		}
	}
	return nil
}
