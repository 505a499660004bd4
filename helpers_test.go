package relata

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

// Record types shared across the test files.

type widget struct {
	ID    ID
	Name  string
	Price float64
}

type measure struct {
	A Value[int64]
	B Value[string]
	C Value[float64]
}

type gauge struct {
	A Value[int64]
	B Value[string]
	C Value[int64]
}

type author struct {
	ID   ID
	Name string
}

type book struct {
	ID      ID
	Title   string
	Authors []author
}

type tag struct {
	Name string
}

type article struct {
	Title string
	Tags  []tag
}

type team struct {
	Name string
}

type matchup struct {
	Home       *team
	Away       *team
	Alternates []team
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// newBareDB builds a session with no backing store, for exercising the
// descriptor cache and SQL rendering without touching disk.
func newBareDB() *DB {
	return &DB{
		bindings: make(map[string]reflect.Type),
		descs:    make(map[reflect.Type]*descriptor),
	}
}
