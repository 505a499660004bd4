package relata

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

type shipment struct {
	ID      ID
	Ref     string
	Weight  float64
	Packed  bool
	Sent    time.Time
	Due     Date
	Payload []byte
	Note    Value[string]
}

// TestRenderedSQLGolden pins the exact SQL text the layer emits: the DDL
// column mapping, by-example and field-filter conditions, and literal
// rendering. Regenerate with -update after an intentional change.
func TestRenderedSQLGolden(t *testing.T) {
	db := newBareDB()
	var b strings.Builder

	d := db.describe(reflect.TypeOf(shipment{}))
	constraints, err := expandUnique([]any{"ref", []string{"weight", "packed"}})
	require.NoError(t, err)
	b.WriteString(tableDDL(d.table, d, constraints) + "\n")

	md := db.describe(reflect.TypeOf(measure{}))
	ex := measure{A: Set[int64](2), B: Null[string]()}
	b.WriteString(exampleCondition(md, reflect.ValueOf(ex), nil) + "\n")

	b.WriteString(fieldFilterCondition(map[string]any{
		"due_by": ">= '2024-01-01'",
		"flag":   Unchanged,
		"name":   "o'brien",
		"qty":    3,
		"state":  nil,
	}) + "\n")

	b.WriteString(combineConditions("a = 1", "b = 2 OR c = 3") + "\n")

	for _, v := range []any{[]byte{0xde, 0xad}, true, NewDate(2024, time.March, 5), ID(7), 1.414, "it's"} {
		b.WriteString(sqlLiteral(v) + "\n")
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "rendered_sql", []byte(b.String()))
}
