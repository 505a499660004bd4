package relata

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authorNames(authors []author) []string {
	names := make([]string, 0, len(authors))
	for _, a := range authors {
		names = append(names, a.Name)
	}
	return names
}

func TestSingleReferenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.Table(matchup{}).Create(ctx, CreateOptions{}))

	m := &matchup{
		Home:       &team{Name: "Falcons"},
		Away:       &team{Name: "Hawks"},
		Alternates: []team{{Name: "Owls"}, {Name: "Crows"}},
	}
	require.NoError(t, db.Table(matchup{}).Put(ctx, m))

	got, err := GetAs[matchup](ctx, db.Table(matchup{}))
	require.NoError(t, err)
	require.NotNil(t, got)

	require.NotNil(t, got.Home)
	assert.Equal(t, "Falcons", got.Home.Name)
	require.NotNil(t, got.Away)
	assert.Equal(t, "Hawks", got.Away.Name)
	require.Len(t, got.Alternates, 2)
}

func TestHydrationCompletesOnSingleConnection(t *testing.T) {
	// The session is pinned to one connection; hydrating relation fields
	// must not run while a result cursor still holds it.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db := openTestDB(t)
	require.NoError(t, db.Table(book{}).Create(ctx, CreateOptions{Unique: "title"}))
	require.NoError(t, db.Table(book{}).Put(ctx, &book{
		Title:   "Ledger",
		Authors: []author{{Name: "Alice"}},
	}))

	got, err := GetAs[book](ctx, db.Table(book{}).Where("title = 'Ledger'"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"Alice"}, authorNames(got.Authors))

	all, err := AllAs[book](ctx, db.Table(book{}))
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, []string{"Alice"}, authorNames(all[0].Authors))
}

func TestManyToManyReplace(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.Table(book{}).Create(ctx, CreateOptions{Unique: "title"}))

	require.NoError(t, db.Table(book{}).Put(ctx, &book{
		Title:   "Ledger",
		Authors: []author{{Name: "Alice"}, {Name: "Bob"}},
	}))
	require.NoError(t, db.Table(book{}).Put(ctx, &book{
		Title:   "Ledger",
		Authors: []author{{Name: "Alice"}, {Name: "David"}},
	}))

	got, err := GetAs[book](ctx, db.Table(book{}).Where("title = 'Ledger'"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"Alice", "David"}, authorNames(got.Authors))

	// The unlinked author row itself survives; only the edge is gone.
	count, err := db.Table(author{}).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestRelationReadOrderIsIdentityOrder(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.Table(book{}).Create(ctx, CreateOptions{Unique: "title"}))

	// Pre-assign identities so write order and identity order differ.
	require.NoError(t, db.Table(author{}).Put(ctx, &author{Name: "Abe"}))
	require.NoError(t, db.Table(author{}).Put(ctx, &author{Name: "Zed"}))

	require.NoError(t, db.Table(book{}).Put(ctx, &book{
		Title:   "Order",
		Authors: []author{{Name: "Zed"}, {Name: "Abe"}},
	}))

	got, err := GetAs[book](ctx, db.Table(book{}).Where("title = 'Order'"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Abe", "Zed"}, authorNames(got.Authors))
}

func TestEmptyRelationLeavesEdges(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.Table(book{}).Create(ctx, CreateOptions{Unique: "title"}))

	require.NoError(t, db.Table(book{}).Put(ctx, &book{
		Title:   "Ledger",
		Authors: []author{{Name: "Alice"}},
	}))
	require.NoError(t, db.Table(book{}).Put(ctx, &book{Title: "Ledger"}))

	got, err := GetAs[book](ctx, db.Table(book{}).Where("title = 'Ledger'"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, authorNames(got.Authors))
}

func TestPutResolvesExistingChildren(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.Table(book{}).Create(ctx, CreateOptions{Unique: "title"}))

	require.NoError(t, db.Table(book{}).Put(ctx, &book{
		Title: "First", Authors: []author{{Name: "Alice"}},
	}))
	require.NoError(t, db.Table(book{}).Put(ctx, &book{
		Title: "Second", Authors: []author{{Name: "Alice"}},
	}))

	count, err := db.Table(author{}).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "matching child reused, not duplicated")
}

func TestDeleteCascadesByReferenceCount(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.Table(article{}).Create(ctx, CreateOptions{Unique: "title"}))

	require.NoError(t, db.Table(article{}).Put(ctx, &article{
		Title: "First", Tags: []tag{{Name: "shared"}, {Name: "solo1"}},
	}))
	require.NoError(t, db.Table(article{}).Put(ctx, &article{
		Title: "Second", Tags: []tag{{Name: "shared"}, {Name: "solo2"}},
	}))

	require.NoError(t, db.Table(article{}).Where("title = 'First'").Delete(ctx, nil))

	count, err := db.Table(article{}).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// The shared tag is still referenced; only the orphaned one went.
	count, err = db.Table(tag{}).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	exists, err := db.Table(tag{}).Where("name = 'solo1'").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists)

	require.NoError(t, db.Table(article{}).Where("title = 'Second'").Delete(ctx, nil))

	count, err = db.Table(tag{}).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count, "last reference removed, children cascade")
}

func TestDeleteByRecordIdentity(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.Table(widget{}).Create(ctx, CreateOptions{Unique: "name"}))

	w := &widget{Name: "gear", Price: 2.5}
	require.NoError(t, db.Table(widget{}).Put(ctx, w))
	require.NotZero(t, w.ID)

	require.NoError(t, db.Table(widget{}).Delete(ctx, w))

	count, err := db.Table(widget{}).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestDeleteRemovesIncomingEdges(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.Table(book{}).Create(ctx, CreateOptions{Unique: "title"}))

	require.NoError(t, db.Table(book{}).Put(ctx, &book{
		Title:   "Ledger",
		Authors: []author{{Name: "Alice"}, {Name: "Bob"}},
	}))

	require.NoError(t, db.Table(author{}).Delete(ctx, &author{Name: "Bob"}))

	got, err := GetAs[book](ctx, db.Table(book{}).Where("title = 'Ledger'"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, authorNames(got.Authors))
}

func TestDeleteFallsBackToExamples(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedMeasures(t, db)

	// A view carrying only by-example records still resolves its targets.
	d := db.describe(reflect.TypeOf(measure{}))
	view := &Table{db: db, name: "measure", desc: d, examples: []example{
		{desc: d, rv: reflect.ValueOf(measure{A: Set[int64](2)})},
	}}
	require.NoError(t, view.Delete(ctx, nil))

	count, err := db.Table(measure{}).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	remaining, err := db.Table(measure{}).Where("a = 2").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), remaining)
}

func TestDeleteWithoutTargetsIsNoOp(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedWidgets(t, db)

	require.NoError(t, db.Table(widget{}).Delete(ctx, nil))

	count, err := db.Table(widget{}).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}
