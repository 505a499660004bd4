package relata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
)

// resolveIdentity determines the surrogate identity of a record instance:
// the advisory ID stamped on the instance if present, else an exact-match
// lookup by all of its non-sentinel primitive fields, else - when the
// record has no determinable fields at all - the most recently inserted
// row in the table.
//
// The latest-row fallback is a sequential-use heuristic: it assumes no
// intervening insert into the same table and is ambiguous under any
// concurrent writer. Callers that need a guaranteed identity should stamp
// the ID field or constrain enough fields for an exact match.
func (t *Table) resolveIdentity(ctx context.Context, d *descriptor, rv reflect.Value) (int64, bool, error) {
	if d.idIndex >= 0 {
		if id := rv.Field(d.idIndex).Int(); id != 0 {
			return id, true, nil
		}
	}

	cols, _, err := t.columns(ctx)
	if err != nil {
		return 0, false, err
	}

	cond := exampleCondition(d, rv, cols)
	query := "SELECT " + idColumnSQL + " FROM " + quoteIdent(t.name)
	if cond != "" {
		query += " WHERE " + cond + " ORDER BY " + idColumnSQL + " ASC"
	} else {
		query += " ORDER BY " + idColumnSQL + " DESC"
	}
	query += " LIMIT 1"

	var id int64
	err = t.db.db.QueryRowContext(ctx, query).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("resolve identity in %s: %w", t.name, err)
	}
	return id, true, nil
}

// stampIdentity writes the advisory identity back onto the instance when
// it declares an ID slot and is addressable.
func stampIdentity(d *descriptor, rv reflect.Value, id int64) {
	if d.idIndex < 0 || !rv.CanSet() {
		return
	}
	rv.Field(d.idIndex).SetInt(id)
}
