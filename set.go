package relata

import (
	"context"
	"reflect"
	"strings"
)

// Set updates the primitive columns of every row matching the view's
// filter with the record's non-sentinel field values. When no filter has
// accumulated, a condition derived from the view's by-example fallback
// list is used instead; with neither, all rows are updated.
//
// Set is a silent no-op when the record carries no assignable fields, and
// it never touches relation fields - only Put maintains the link table.
func (t *Table) Set(ctx context.Context, rec any) error {
	if t.err != nil {
		return t.err
	}
	typ, err := recordTypeOf(rec)
	if err != nil {
		return err
	}
	d := t.db.describe(typ)
	rv := reflect.Indirect(reflect.ValueOf(rec))

	cols, _, err := t.columns(ctx)
	if err != nil {
		return err
	}
	values := primitiveValues(d, rv, cols)
	if len(values) == 0 {
		return nil
	}

	settings := make([]string, 0, len(values))
	args := make([]any, 0, len(values))
	for _, v := range values {
		settings = append(settings, quoteIdent(v.col)+" = ?")
		args = append(args, v.val)
	}

	cond, err := t.effectiveCondition(ctx)
	if err != nil {
		return err
	}
	var where string
	if cond != "" {
		where = " WHERE " + cond
	}

	query := "UPDATE " + quoteIdent(t.name) + " SET " + strings.Join(settings, ", ") + where
	if _, err := t.db.db.ExecContext(ctx, query, args...); err != nil {
		return translateWriteError(t.name, err)
	}
	return nil
}

// SetAndGet is Set followed by a re-read of the rows the update targeted,
// returning their stored state.
func (t *Table) SetAndGet(ctx context.Context, rec any) ([]any, error) {
	if err := t.Set(ctx, rec); err != nil {
		return nil, err
	}
	cond, err := t.effectiveCondition(ctx)
	if err != nil {
		return nil, err
	}
	view := t.clone()
	view.terms = nil
	if cond != "" {
		view.terms = []filterTerm{{raw: cond}}
	}
	return view.All(ctx)
}
